package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze_QueryTypePriority(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		name     string
		query    string
		expected QueryType
	}{
		{
			name:     "scheduling beats pricing",
			query:    "schedule a call about pricing",
			expected: QueryTypeMeeting,
		},
		{
			name:     "realtime beats everything",
			query:    "what is the latest apr",
			expected: QueryTypeRealtime,
		},
		{
			name:     "pricing",
			query:    "how much does it cost",
			expected: QueryTypePricing,
		},
		{
			name:     "features",
			query:    "what can the card do for me",
			expected: QueryTypeFeatures,
		},
		{
			name:     "support",
			query:    "i have a problem with my account",
			expected: QueryTypeSupport,
		},
		{
			name:     "unmatched falls back to general",
			query:    "hello there",
			expected: QueryTypeGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := a.Analyze(tt.query)
			assert.Equal(t, tt.expected, analysis.QueryType)
		})
	}
}

func TestAnalyze_Confidence(t *testing.T) {
	a := NewAnalyzer()

	queries := []string{
		"hello there",
		"what is the latest apr for the aven card",
		"schedule a call about pricing",
		"how much does aven cost per month with all fees and rates included",
		"i have a problem",
	}

	for _, q := range queries {
		analysis := a.Analyze(q)
		assert.GreaterOrEqual(t, analysis.Confidence, 0.5, "query: %s", q)
		assert.LessOrEqual(t, analysis.Confidence, 1.0, "query: %s", q)
	}

	general := a.Analyze("hello there")
	assert.Equal(t, QueryTypeGeneral, general.QueryType)
	assert.Equal(t, 0.5, general.Confidence)

	withCompany := a.Analyze("tell me about aven please")
	assert.InDelta(t, 0.6, withCompany.Confidence, 0.001)
}

func TestAnalyze_Entities(t *testing.T) {
	a := NewAnalyzer()

	analysis := a.Analyze("does the aven card support heloc")

	assert.Contains(t, analysis.Entities, "aven")
	assert.Contains(t, analysis.Entities, "credit_card")
	assert.Contains(t, analysis.Entities, "home_equity")
}

func TestAnalyze_Intent(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		query    string
		expected Intent
	}{
		{"what are the fees", IntentInformationSeeking},
		{"help me with my login", IntentSupportRequest},
		{"book a meeting for me", IntentActionRequest},
		{"aven vs other cards", IntentComparison},
		{"good morning", IntentGeneralInquiry},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			analysis := a.Analyze(tt.query)
			assert.Equal(t, tt.expected, analysis.Intent)
		})
	}
}

func TestAnalyze_CalendarTrigger(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		{"scheduling verb with scheduling entity", "schedule a call with an agent", true},
		{"scheduling verb with time entity", "book something for tomorrow", true},
		{"information seeking never triggers", "what are the fees", false},
		{"scheduling noun without action intent", "what happened at the meeting", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := a.Analyze(tt.query)
			assert.Equal(t, tt.expected, analysis.CalendarTrigger)
		})
	}
}

func TestAnalyze_Flags(t *testing.T) {
	a := NewAnalyzer()

	realtime := a.Analyze("what is the latest news about aven")
	assert.True(t, realtime.RequiresRealtime)
	assert.False(t, realtime.RequiresTools)

	meeting := a.Analyze("schedule a demo")
	assert.True(t, meeting.RequiresTools)
	assert.False(t, meeting.RequiresRealtime)
}

func TestDomainTags(t *testing.T) {
	tests := []struct {
		queryType QueryType
		expected  []string
	}{
		{QueryTypePricing, []string{"pricing", "legal"}},
		{QueryTypeFeatures, []string{"product"}},
		{QueryTypeSupport, []string{"support"}},
		{QueryTypeGeneral, nil},
		{QueryTypeRealtime, nil},
	}

	for _, tt := range tests {
		analysis := QueryAnalysis{QueryType: tt.queryType}
		assert.Equal(t, tt.expected, analysis.DomainTags())
	}
}
