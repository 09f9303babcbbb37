package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aven-agent/backend/internal/calendar"
	"github.com/aven-agent/backend/internal/guardrails"
	"github.com/aven-agent/backend/internal/llm"
	"github.com/aven-agent/backend/internal/retrieval"
	"github.com/aven-agent/backend/internal/search/web"
)

type fakeGuard struct {
	inputLevel   guardrails.SafetyLevel
	outputLevel  guardrails.SafetyLevel
	inputReason  string
	outputReason string
}

func (g *fakeGuard) CheckInput(ctx context.Context, userID, message string) guardrails.SafetyCheck {
	return guardrails.SafetyCheck{Level: g.inputLevel, Reason: g.inputReason, Timestamp: time.Now()}
}

func (g *fakeGuard) CheckOutput(ctx context.Context, response, userID, originalQuery string) guardrails.SafetyCheck {
	return guardrails.SafetyCheck{Level: g.outputLevel, Reason: g.outputReason, Timestamp: time.Now()}
}

type fakeRetriever struct {
	fragments []retrieval.Fragment
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string, domains []string, topK int) []retrieval.Fragment {
	return r.fragments
}

type fakeGenerator struct {
	echo    bool
	content string
	err     error
	panics  bool
	called  bool
	lastReq llm.CompletionRequest
}

func (g *fakeGenerator) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	g.called = true
	g.lastReq = req
	if g.panics {
		panic("generator exploded")
	}
	if g.err != nil {
		return nil, g.err
	}
	content := g.content
	if g.echo {
		content = req.SystemPrompt + "\n" + req.UserPrompt
	}
	return &llm.CompletionResponse{Content: content}, nil
}

type fakeScheduler struct {
	called  bool
	meeting *calendar.Meeting
	err     error
}

func (s *fakeScheduler) Schedule(ctx context.Context, userID string, at *time.Time, topic string) (*calendar.Meeting, error) {
	s.called = true
	if s.err != nil {
		return nil, s.err
	}
	return s.meeting, nil
}

func safeGuard() *fakeGuard {
	return &fakeGuard{inputLevel: guardrails.LevelSafe, outputLevel: guardrails.LevelSafe}
}

func oneFragment() []retrieval.Fragment {
	return []retrieval.Fragment{{
		ID:        "chunk-1",
		Text:      "Aven charges no annual fee on its credit card.",
		SourceURL: "https://example.com/a",
		Score:     0.9,
	}}
}

func TestHandle_RoundTripSources(t *testing.T) {
	gen := &fakeGenerator{echo: true}
	o := New(Deps{
		Guard:     safeGuard(),
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: gen,
	})

	resp := o.Handle(context.Background(), "what are the fees", "session-1")

	assert.Equal(t, OutcomeCompleted, resp.Outcome)
	assert.Equal(t, []string{"https://example.com/a"}, resp.Sources)
	assert.Equal(t, "session-1", resp.SessionID)
	assert.InDelta(t, 0.9, resp.Confidence, 0.001)
	assert.Contains(t, gen.lastReq.SystemPrompt, "KNOWLEDGE BASE CONTEXT")
	assert.Contains(t, gen.lastReq.SystemPrompt, "no annual fee")
	assert.GreaterOrEqual(t, resp.ProcessingTime, 0.0)
}

func TestHandle_BlockedInput(t *testing.T) {
	gen := &fakeGenerator{content: "should never run"}
	o := New(Deps{
		Guard:     &fakeGuard{inputLevel: guardrails.LevelBlocked, inputReason: "PII detected"},
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: gen,
	})

	resp := o.Handle(context.Background(), "my ssn is 123-45-6789", "session-2")

	assert.Equal(t, OutcomeBlockedInput, resp.Outcome)
	assert.Equal(t, msgBlockedInput, resp.Message)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Equal(t, "blocked", resp.SafetyLevel)
	assert.Equal(t, "PII detected", resp.SafetyReason)
	assert.False(t, gen.called, "generation is skipped for blocked input")

	// Blocked exchanges never enter conversation history.
	assert.Empty(t, o.Sessions().History("session-2"))
}

func TestHandle_BlockedOutputKeepsMetadata(t *testing.T) {
	o := New(Deps{
		Guard:     &fakeGuard{inputLevel: guardrails.LevelSafe, outputLevel: guardrails.LevelBlocked, outputReason: "policy"},
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: &fakeGenerator{content: "unsafe generated text"},
	})

	resp := o.Handle(context.Background(), "what are the fees", "session-3")

	assert.Equal(t, OutcomeBlockedOutput, resp.Outcome)
	assert.Equal(t, msgBlockedOutput, resp.Message)
	assert.NotContains(t, resp.Message, "unsafe generated text")
	assert.Equal(t, []string{"https://example.com/a"}, resp.Sources, "sources survive the substitution")
	assert.InDelta(t, 0.9, resp.Confidence, 0.001, "confidence survives the substitution")
	assert.Equal(t, "blocked", resp.SafetyLevel)
}

func TestHandle_NoKnowledge(t *testing.T) {
	gen := &fakeGenerator{content: "anything"}
	o := New(Deps{
		Guard:     safeGuard(),
		Retriever: &fakeRetriever{},
		Generator: gen,
	})

	resp := o.Handle(context.Background(), "something obscure", "session-4")

	assert.Equal(t, OutcomeNoKnowledge, resp.Outcome)
	assert.Equal(t, msgNoKnowledge, resp.Message)
	assert.Equal(t, noKnowledgeConfidence, resp.Confidence)
	assert.Equal(t, "safe", resp.SafetyLevel)
	assert.Empty(t, resp.Sources)
	assert.False(t, gen.called, "no generation without context")
}

func TestHandle_GenerationError(t *testing.T) {
	o := New(Deps{
		Guard:     safeGuard(),
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: &fakeGenerator{err: errors.New("model unavailable")},
	})

	resp := o.Handle(context.Background(), "what are the fees", "session-5")

	assert.Equal(t, OutcomeErrored, resp.Outcome)
	assert.Equal(t, msgError, resp.Message)
	assert.Equal(t, "error", resp.SafetyLevel)
	assert.Equal(t, "model unavailable", resp.SafetyReason)
	assert.Equal(t, 0.0, resp.Confidence)
}

func TestHandle_PanicRecovery(t *testing.T) {
	o := New(Deps{
		Guard:     safeGuard(),
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: &fakeGenerator{panics: true},
	})

	resp := o.Handle(context.Background(), "what are the fees", "session-6")

	assert.Equal(t, OutcomeErrored, resp.Outcome)
	assert.Equal(t, msgError, resp.Message)
	assert.Equal(t, "error", resp.SafetyLevel)
	assert.Contains(t, resp.SafetyReason, "generator exploded")
}

func TestHandle_SessionHistoryAppended(t *testing.T) {
	o := New(Deps{
		Guard:     safeGuard(),
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: &fakeGenerator{content: "The card has no annual fee."},
	})

	o.Handle(context.Background(), "what are the fees", "session-7")

	history := o.Sessions().History("session-7")
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "what are the fees", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, "The card has no annual fee.", history[1].Content)
}

func TestHandle_SchedulingBranch(t *testing.T) {
	when := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{meeting: &calendar.Meeting{
		ID:     "m1",
		Time:   when,
		Topic:  "Support call",
		Status: calendar.StatusScheduled,
	}}
	gen := &fakeGenerator{content: "unused"}
	o := New(Deps{
		Guard:     safeGuard(),
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: gen,
		Scheduler: sched,
	})

	resp := o.Handle(context.Background(), "schedule a call with an agent", "session-8")

	assert.Equal(t, OutcomeScheduled, resp.Outcome)
	assert.True(t, sched.called)
	assert.False(t, gen.called, "scheduling bypasses retrieval and generation")
	assert.Contains(t, resp.Message, "scheduled")
	assert.Equal(t, "safe", resp.SafetyLevel)
}

func TestHandle_GeneratesSessionIDWhenMissing(t *testing.T) {
	o := New(Deps{
		Guard:     safeGuard(),
		Retriever: &fakeRetriever{fragments: oneFragment()},
		Generator: &fakeGenerator{content: "answer"},
	})

	resp := o.Handle(context.Background(), "what are the fees", "")

	assert.NotEmpty(t, resp.SessionID)
}

func TestDeriveUserID(t *testing.T) {
	a := deriveUserID("session-abc")
	b := deriveUserID("session-abc")
	c := deriveUserID("session-def")

	assert.Equal(t, a, b, "stable per session")
	assert.Regexp(t, `^user_\d{4}$`, a)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "anonymous", deriveUserID(""))
}

func TestResponseConfidence(t *testing.T) {
	frags := func(scores ...float64) []retrieval.Fragment {
		out := make([]retrieval.Fragment, len(scores))
		for i, s := range scores {
			out[i] = retrieval.Fragment{Score: s}
		}
		return out
	}

	assert.InDelta(t, 0.8, responseConfidence(frags(0.9, 0.8, 0.7, 0.1), nil), 0.001, "top three only")
	assert.Equal(t, 1.0, responseConfidence(frags(1.5, 1.2), nil), "clamped to 1")
	assert.Equal(t, 0.6, responseConfidence(nil, []web.SearchResult{{URL: "https://aven.com"}}))
	assert.Equal(t, noKnowledgeConfidence, responseConfidence(nil, nil))
}
