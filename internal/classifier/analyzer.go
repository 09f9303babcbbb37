package classifier

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/pkg/logger"
)

type QueryType string

const (
	QueryTypeGeneral  QueryType = "general"
	QueryTypeRealtime QueryType = "realtime"
	QueryTypePricing  QueryType = "pricing"
	QueryTypeFeatures QueryType = "features"
	QueryTypeSupport  QueryType = "support"
	QueryTypeMeeting  QueryType = "meeting"
)

type Intent string

const (
	IntentInformationSeeking Intent = "information_seeking"
	IntentSupportRequest     Intent = "support_request"
	IntentActionRequest      Intent = "action_request"
	IntentComparison         Intent = "comparison"
	IntentGeneralInquiry     Intent = "general_inquiry"
)

// QueryAnalysis is the immutable result of classifying one user message.
type QueryAnalysis struct {
	QueryType        QueryType
	Entities         []string
	Intent           Intent
	Confidence       float64
	RequiresRealtime bool
	RequiresTools    bool
	CalendarTrigger  bool
}

// DomainTags maps the classified query type to knowledge-base domains used
// for scoped retrieval sub-searches.
func (a QueryAnalysis) DomainTags() []string {
	switch a.QueryType {
	case QueryTypePricing:
		return []string{"pricing", "legal"}
	case QueryTypeFeatures:
		return []string{"product"}
	case QueryTypeSupport:
		return []string{"support"}
	default:
		return nil
	}
}

// Analyzer classifies user queries with keyword ladders plus lightweight NLP
// entity extraction. It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	realtimeKeywords []string
	meetingKeywords  []string
	pricingKeywords  []string
	featureKeywords  []string
	supportKeywords  []string
	timePatterns     []*regexp.Regexp
}

var schedulingEntities = []string{"meeting", "appointment", "call", "demo"}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		realtimeKeywords: []string{
			"latest", "current", "recent", "new", "updated", "now", "today",
			"this week", "this month", "latest news", "current status",
			"recent changes", "new features", "latest updates",
		},
		meetingKeywords: []string{
			"schedule", "book", "meeting", "appointment", "call", "demo",
			"consultation", "talk", "discuss", "set up",
		},
		pricingKeywords: []string{
			"price", "cost", "fee", "rate", "apr", "charges", "pricing",
			"how much", "costs", "fees", "rates", "pricing plan",
		},
		featureKeywords: []string{
			"feature", "functionality", "what can", "how does", "capabilities",
			"benefits", "advantages", "what does", "how to use",
		},
		supportKeywords: []string{
			"help", "support", "issue", "problem", "error", "trouble",
			"how to", "guide", "tutorial", "assistance", "contact",
		},
		timePatterns: []*regexp.Regexp{
			regexp.MustCompile(`today`),
			regexp.MustCompile(`tomorrow`),
			regexp.MustCompile(`this week`),
			regexp.MustCompile(`next week`),
			regexp.MustCompile(`this month`),
			regexp.MustCompile(`next month`),
			regexp.MustCompile(`\d{1,2}:\d{2}`),
			regexp.MustCompile(`\d{1,2}am`),
			regexp.MustCompile(`\d{1,2}pm`),
		},
	}
}

// Analyze classifies a raw query. It is pure and never fails: unmatched text
// falls back to the general type with base confidence.
func (a *Analyzer) Analyze(query string) QueryAnalysis {
	normalized := strings.ToLower(strings.TrimSpace(query))

	queryType := a.classify(normalized)
	entities, timeEntityFound := a.extractEntities(normalized)
	intent := a.determineIntent(normalized)
	confidence := a.calculateConfidence(normalized, queryType)

	schedulingEntityFound := false
	for _, e := range entities {
		for _, s := range schedulingEntities {
			if e == s {
				schedulingEntityFound = true
			}
		}
	}

	analysis := QueryAnalysis{
		QueryType:        queryType,
		Entities:         entities,
		Intent:           intent,
		Confidence:       confidence,
		RequiresRealtime: queryType == QueryTypeRealtime,
		RequiresTools:    queryType == QueryTypeMeeting,
		CalendarTrigger:  intent == IntentActionRequest && (schedulingEntityFound || timeEntityFound),
	}

	logger.Debug("Query analyzed",
		zap.String("query_type", string(queryType)),
		zap.String("intent", string(intent)),
		zap.Float64("confidence", confidence),
		zap.Strings("entities", entities),
	)

	return analysis
}

// classify applies the fixed priority ladder: realtime > meeting > pricing >
// features > support > general. The order is a product decision ("schedule a
// call about pricing" books a call, it does not quote pricing).
func (a *Analyzer) classify(query string) QueryType {
	switch {
	case containsAny(query, a.realtimeKeywords):
		return QueryTypeRealtime
	case containsAny(query, a.meetingKeywords):
		return QueryTypeMeeting
	case containsAny(query, a.pricingKeywords):
		return QueryTypePricing
	case containsAny(query, a.featureKeywords):
		return QueryTypeFeatures
	case containsAny(query, a.supportKeywords):
		return QueryTypeSupport
	default:
		return QueryTypeGeneral
	}
}

func (a *Analyzer) extractEntities(query string) ([]string, bool) {
	seen := make(map[string]bool)
	var entities []string
	add := func(e string) {
		if e != "" && !seen[e] {
			seen[e] = true
			entities = append(entities, e)
		}
	}

	if strings.Contains(query, "aven") {
		add("aven")
	}
	if strings.Contains(query, "card") {
		add("credit_card")
	}
	if strings.Contains(query, "home equity") || strings.Contains(query, "heloc") {
		add("home_equity")
	}
	for _, s := range schedulingEntities {
		if strings.Contains(query, s) {
			add(s)
		}
	}

	timeEntityFound := false
	for _, pattern := range a.timePatterns {
		for _, match := range pattern.FindAllString(query, -1) {
			add(match)
			timeEntityFound = true
		}
	}

	// Named entities via prose. Best effort only: a parse failure must not
	// fail classification.
	if doc, err := prose.NewDocument(query); err == nil {
		for _, ent := range doc.Entities() {
			add(strings.ToLower(ent.Text))
		}
	} else {
		logger.Debug("NLP entity extraction skipped", zap.Error(err))
	}

	return entities, timeEntityFound
}

func (a *Analyzer) determineIntent(query string) Intent {
	switch {
	case containsAnyWord(query, []string{"what", "how", "when", "where", "why"}):
		return IntentInformationSeeking
	case containsAnyWord(query, []string{"help", "support", "issue", "problem"}):
		return IntentSupportRequest
	case containsAnyWord(query, []string{"schedule", "book", "meeting"}):
		return IntentActionRequest
	case containsAnyWord(query, []string{"compare", "vs", "difference"}):
		return IntentComparison
	default:
		return IntentGeneralInquiry
	}
}

// calculateConfidence starts at 0.5 and adds 0.2 per matched keyword in the
// winning category (capped at +0.4) plus 0.1 when the company entity appears.
// The result never exceeds 1.0.
func (a *Analyzer) calculateConfidence(query string, queryType QueryType) float64 {
	confidence := 0.5

	var keywords []string
	switch queryType {
	case QueryTypeRealtime:
		keywords = a.realtimeKeywords
	case QueryTypeMeeting:
		keywords = a.meetingKeywords
	case QueryTypePricing:
		keywords = a.pricingKeywords
	case QueryTypeFeatures:
		keywords = a.featureKeywords
	case QueryTypeSupport:
		keywords = a.supportKeywords
	}

	matches := 0
	for _, keyword := range keywords {
		if strings.Contains(query, keyword) {
			matches++
		}
	}
	boost := float64(matches) * 0.2
	if boost > 0.4 {
		boost = 0.4
	}
	confidence += boost

	if strings.Contains(query, "aven") {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func containsAny(query string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(query, keyword) {
			return true
		}
	}
	return false
}

func containsAnyWord(query string, words []string) bool {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, field := range fields {
		for _, word := range words {
			if field == word {
				return true
			}
		}
	}
	return false
}
