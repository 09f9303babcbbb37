package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/calendar"
	"github.com/aven-agent/backend/internal/classifier"
	"github.com/aven-agent/backend/internal/guardrails"
	"github.com/aven-agent/backend/internal/llm"
	"github.com/aven-agent/backend/internal/metrics"
	"github.com/aven-agent/backend/internal/retrieval"
	"github.com/aven-agent/backend/internal/search/web"
	"github.com/aven-agent/backend/internal/storage/models"
	"github.com/aven-agent/backend/pkg/logger"
	"github.com/aven-agent/backend/pkg/utils"
)

// Outcome tags the terminal state a chat request reached.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeBlockedInput  Outcome = "blocked_input"
	OutcomeBlockedOutput Outcome = "blocked_output"
	OutcomeNoKnowledge   Outcome = "no_knowledge"
	OutcomeScheduled     Outcome = "scheduled"
	OutcomeErrored       Outcome = "error"
)

const (
	msgBlockedInput  = "I'm sorry, but I cannot process that request. Please ensure your message is appropriate and doesn't contain sensitive information."
	msgBlockedOutput = "I apologize, but I cannot provide that information. Please try rephrasing your question."
	msgNoKnowledge   = "I don't have information about that in my knowledge base. Please contact support@aven.com or try rephrasing your question."
	msgError         = "I apologize, but I encountered an error processing your request. Please try again."

	noKnowledgeConfidence = 0.2
	historyWindow         = 6
	defaultTopK           = 5
)

type ChatResponse struct {
	Message        string    `json:"message"`
	Sources        []string  `json:"sources"`
	Confidence     float64   `json:"confidence"`
	SafetyLevel    string    `json:"safety_level"`
	SafetyReason   string    `json:"safety_reason,omitempty"`
	SessionID      string    `json:"session_id"`
	QueryType      string    `json:"query_type,omitempty"`
	Outcome        Outcome   `json:"status"`
	ProcessingTime float64   `json:"processing_time"`
	Timestamp      time.Time `json:"timestamp"`
}

type Guard interface {
	CheckInput(ctx context.Context, userID, message string) guardrails.SafetyCheck
	CheckOutput(ctx context.Context, response, userID, originalQuery string) guardrails.SafetyCheck
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, domains []string, topK int) []retrieval.Fragment
}

type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, userID string, at *time.Time, topic string) (*calendar.Meeting, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]web.SearchResult, error)
}

type ResponseCache interface {
	GetResponse(ctx context.Context, messageHash string, response interface{}) (bool, error)
	SetResponse(ctx context.Context, messageHash string, response interface{}) error
}

type Recorder interface {
	InsertChatRecord(record *models.ChatRecord) error
	InsertChatSource(source *models.ChatSource) error
	InsertSafetyEvent(event *models.SafetyEvent) error
}

// Deps lists the orchestrator's collaborators. Guard, Retriever and
// Generator are required; the rest are optional and skipped when nil.
type Deps struct {
	Analyzer    *classifier.Analyzer
	Guard       Guard
	Retriever   Retriever
	Generator   Generator
	Scheduler   Scheduler
	WebSearcher WebSearcher
	Cache       ResponseCache
	Recorder    Recorder
	Sessions    *SessionStore
}

type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Analyzer == nil {
		deps.Analyzer = classifier.NewAnalyzer()
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessionStore(0, 0)
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) Sessions() *SessionStore {
	return o.deps.Sessions
}

// Handle runs the full chat pipeline for one message. It never returns
// an error: every failure mode maps to a terminal ChatResponse.
func (o *Orchestrator) Handle(ctx context.Context, message, sessionID string) (resp ChatResponse) {
	start := time.Now()

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	userID := deriveUserID(sessionID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Chat pipeline panic", zap.Any("panic", r), zap.String("session_id", sessionID))
			resp = o.assemble(ChatResponse{
				Message:      msgError,
				Sources:      []string{},
				Confidence:   0.0,
				SafetyLevel:  "error",
				SafetyReason: fmt.Sprintf("%v", r),
				Outcome:      OutcomeErrored,
			}, sessionID, "", start)
		}
	}()

	analysis := o.deps.Analyzer.Analyze(message)

	if analysis.CalendarTrigger && o.deps.Scheduler != nil {
		return o.handleScheduling(ctx, message, sessionID, userID, analysis, start)
	}

	inputCheck := o.deps.Guard.CheckInput(ctx, userID, message)
	metrics.SafetyChecks.WithLabelValues("input", inputCheck.Level.String()).Inc()
	if inputCheck.Level >= guardrails.LevelBlocked {
		o.recordSafetyEvent(userID, "input", inputCheck)
		r := o.assemble(ChatResponse{
			Message:      msgBlockedInput,
			Sources:      []string{},
			Confidence:   0.0,
			SafetyLevel:  inputCheck.Level.String(),
			SafetyReason: inputCheck.Reason,
			QueryType:    string(analysis.QueryType),
			Outcome:      OutcomeBlockedInput,
		}, sessionID, "", start)
		o.record(message, r, userID, analysis, 0, false)
		return r
	}

	history := o.deps.Sessions.History(sessionID)

	if cached, ok := o.cachedResponse(ctx, message, history); ok {
		cached.SessionID = sessionID
		cached.ProcessingTime = time.Since(start).Seconds()
		cached.Timestamp = time.Now()
		o.deps.Sessions.Append(sessionID,
			Turn{Role: "user", Content: message, Timestamp: time.Now()},
			Turn{Role: "assistant", Content: cached.Message, Timestamp: time.Now()},
		)
		return cached
	}

	fragments := o.deps.Retriever.Retrieve(ctx, message, analysis.DomainTags(), defaultTopK)
	metrics.RetrievalResultsCount.Observe(float64(len(fragments)))

	var webResults []web.SearchResult
	if analysis.RequiresRealtime && o.deps.WebSearcher != nil {
		metrics.WebSearchTriggered.Inc()
		results, err := o.deps.WebSearcher.Search(ctx, message, 3)
		if err != nil {
			logger.Warn("Real-time search failed", zap.Error(err))
		} else {
			webResults = results
		}
	}

	if len(fragments) == 0 && len(webResults) == 0 {
		r := o.assemble(ChatResponse{
			Message:     msgNoKnowledge,
			Sources:     []string{},
			Confidence:  noKnowledgeConfidence,
			SafetyLevel: guardrails.LevelSafe.String(),
			QueryType:   string(analysis.QueryType),
			Outcome:     OutcomeNoKnowledge,
		}, sessionID, message, start)
		o.record(message, r, userID, analysis, 0, len(webResults) > 0)
		return r
	}

	systemPrompt := buildSystemPrompt(fragments, webResults)
	userPrompt := buildUserPrompt(tail(history, historyWindow), message)

	completion, err := o.deps.Generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		logger.Error("Generation failed", zap.Error(err), zap.String("session_id", sessionID))
		r := o.assemble(ChatResponse{
			Message:      msgError,
			Sources:      []string{},
			Confidence:   0.0,
			SafetyLevel:  "error",
			SafetyReason: err.Error(),
			QueryType:    string(analysis.QueryType),
			Outcome:      OutcomeErrored,
		}, sessionID, "", start)
		o.record(message, r, userID, analysis, len(fragments), len(webResults) > 0)
		return r
	}

	sources := collectSources(fragments, webResults)
	confidence := responseConfidence(fragments, webResults)

	answer := completion.Content
	outcome := OutcomeCompleted

	outputCheck := o.deps.Guard.CheckOutput(ctx, answer, userID, message)
	metrics.SafetyChecks.WithLabelValues("output", outputCheck.Level.String()).Inc()
	safetyLevel := outputCheck.Level.String()
	safetyReason := outputCheck.Reason

	if outputCheck.Level >= guardrails.LevelBlocked {
		// Generated text is discarded but the computed metadata stays.
		o.recordSafetyEvent(userID, "output", outputCheck)
		answer = msgBlockedOutput
		outcome = OutcomeBlockedOutput
	}

	r := o.assemble(ChatResponse{
		Message:      answer,
		Sources:      sources,
		Confidence:   confidence,
		SafetyLevel:  safetyLevel,
		SafetyReason: safetyReason,
		QueryType:    string(analysis.QueryType),
		Outcome:      outcome,
	}, sessionID, message, start)

	o.record(message, r, userID, analysis, len(fragments), len(webResults) > 0)

	if outcome == OutcomeCompleted && o.deps.Cache != nil && len(history) == 0 {
		if err := o.deps.Cache.SetResponse(ctx, utils.HashString(message), r); err != nil {
			logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return r
}

func (o *Orchestrator) handleScheduling(ctx context.Context, message, sessionID, userID string, analysis classifier.QueryAnalysis, start time.Time) ChatResponse {
	meeting, err := o.deps.Scheduler.Schedule(ctx, userID, nil, "Support call")
	if err != nil {
		logger.Error("Scheduling failed", zap.Error(err))
		return o.assemble(ChatResponse{
			Message:      msgError,
			Sources:      []string{},
			Confidence:   0.0,
			SafetyLevel:  "error",
			SafetyReason: err.Error(),
			QueryType:    string(analysis.QueryType),
			Outcome:      OutcomeErrored,
		}, sessionID, "", start)
	}

	metrics.MeetingsScheduled.Inc()

	r := o.assemble(ChatResponse{
		Message: fmt.Sprintf("I've scheduled a support call for you on %s. You'll receive a confirmation shortly.",
			meeting.Time.Format("Monday, January 2 at 3:04 PM")),
		Sources:     []string{},
		Confidence:  analysis.Confidence,
		SafetyLevel: guardrails.LevelSafe.String(),
		QueryType:   string(analysis.QueryType),
		Outcome:     OutcomeScheduled,
	}, sessionID, message, start)

	o.record(message, r, userID, analysis, 0, false)
	return r
}

// assemble stamps timing fields and appends the exchange to session
// history. History is skipped for terminal states that produced no
// conversational answer (blocked input, errors), signalled by an empty
// userMessage.
func (o *Orchestrator) assemble(r ChatResponse, sessionID, userMessage string, start time.Time) ChatResponse {
	r.SessionID = sessionID
	r.ProcessingTime = time.Since(start).Seconds()
	r.Timestamp = time.Now()

	if userMessage != "" {
		o.deps.Sessions.Append(sessionID,
			Turn{Role: "user", Content: userMessage, Timestamp: time.Now()},
			Turn{Role: "assistant", Content: r.Message, Timestamp: r.Timestamp},
		)
	}

	metrics.ChatTotal.WithLabelValues(string(r.Outcome)).Inc()
	if r.QueryType != "" {
		metrics.ChatDuration.WithLabelValues(r.QueryType).Observe(r.ProcessingTime)
	}
	metrics.ConfidenceScore.Observe(r.Confidence)

	return r
}

func (o *Orchestrator) cachedResponse(ctx context.Context, message string, history []Turn) (ChatResponse, bool) {
	if o.deps.Cache == nil || len(history) > 0 {
		return ChatResponse{}, false
	}

	var cached ChatResponse
	found, err := o.deps.Cache.GetResponse(ctx, utils.HashString(message), &cached)
	if err != nil {
		logger.Warn("Cache lookup failed", zap.Error(err))
		return ChatResponse{}, false
	}
	if !found || cached.Outcome != OutcomeCompleted {
		metrics.CacheMisses.WithLabelValues("response").Inc()
		return ChatResponse{}, false
	}

	metrics.CacheHits.WithLabelValues("response").Inc()
	return cached, true
}

func (o *Orchestrator) record(message string, r ChatResponse, userID string, analysis classifier.QueryAnalysis, fragmentCount int, webUsed bool) {
	if o.deps.Recorder == nil {
		return
	}

	chatID := uuid.New().String()
	err := o.deps.Recorder.InsertChatRecord(&models.ChatRecord{
		ID:             chatID,
		SessionID:      r.SessionID,
		UserID:         userID,
		Message:        message,
		Response:       r.Message,
		QueryType:      string(analysis.QueryType),
		Confidence:     r.Confidence,
		SafetyLevel:    r.SafetyLevel,
		Outcome:        string(r.Outcome),
		SourcesCount:   len(r.Sources),
		WebSearchUsed:  webUsed,
		CalendarAction: r.Outcome == OutcomeScheduled,
		LatencyMS:      int(r.ProcessingTime * 1000),
		CreatedAt:      time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to persist chat record", zap.Error(err))
		return
	}

	for _, src := range r.Sources {
		sourceType := "knowledge_base"
		if webUsed {
			sourceType = "mixed"
		}
		if err := o.deps.Recorder.InsertChatSource(&models.ChatSource{
			ChatID:     chatID,
			SourceType: sourceType,
			SourceURL:  src,
			Score:      r.Confidence,
		}); err != nil {
			logger.Warn("Failed to persist chat source", zap.Error(err))
		}
	}
}

func (o *Orchestrator) recordSafetyEvent(userID, direction string, check guardrails.SafetyCheck) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.InsertSafetyEvent(&models.SafetyEvent{
		UserID:    userID,
		Direction: direction,
		Level:     check.Level.String(),
		Reason:    check.Reason,
	}); err != nil {
		logger.Warn("Failed to persist safety event", zap.Error(err))
	}
}

// deriveUserID maps a session to a stable pseudonymous rate-limit key.
func deriveUserID(sessionID string) string {
	if sessionID == "" {
		return "anonymous"
	}
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return fmt.Sprintf("user_%04d", h.Sum32()%10000)
}

func collectSources(fragments []retrieval.Fragment, webResults []web.SearchResult) []string {
	seen := make(map[string]struct{})
	sources := make([]string, 0, len(fragments)+len(webResults))

	add := func(url string) {
		if url == "" {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		sources = append(sources, url)
	}

	for _, f := range fragments {
		add(f.SourceURL)
	}
	for _, r := range webResults {
		add(r.URL)
	}

	return sources
}

// responseConfidence averages the top fragment scores, clamped to [0,1].
// Web-only answers get a fixed moderate score since search relevance is
// not comparable to vector similarity.
func responseConfidence(fragments []retrieval.Fragment, webResults []web.SearchResult) float64 {
	if len(fragments) == 0 {
		if len(webResults) > 0 {
			return 0.6
		}
		return noKnowledgeConfidence
	}

	n := len(fragments)
	if n > 3 {
		n = 3
	}
	var sum float64
	for _, f := range fragments[:n] {
		sum += f.Score
	}
	avg := sum / float64(n)

	if avg < 0 {
		return 0
	}
	if avg > 1 {
		return 1
	}
	return avg
}

func tail(turns []Turn, n int) []Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
