package guardrails

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aven-agent/backend/pkg/logger"
	"github.com/aven-agent/backend/pkg/utils"
)

// SafetyLevel orders outcomes by severity. When several checks disagree the
// most severe one wins.
type SafetyLevel int

const (
	LevelSafe SafetyLevel = iota
	LevelWarning
	LevelBlocked
	LevelCritical
)

func (l SafetyLevel) String() string {
	switch l {
	case LevelSafe:
		return "safe"
	case LevelWarning:
		return "warning"
	case LevelBlocked:
		return "blocked"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MaxLevel returns the most severe of the given levels.
func MaxLevel(levels ...SafetyLevel) SafetyLevel {
	max := LevelSafe
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// SafetyCheck is the result of one guardrail evaluation. Policy outcomes are
// values, never errors: callers branch on Level deterministically.
type SafetyCheck struct {
	Level     SafetyLevel            `json:"level"`
	Reason    string                 `json:"reason"`
	Details   map[string]interface{} `json:"details"`
	Timestamp time.Time              `json:"timestamp"`
}

func newCheck(level SafetyLevel, reason string, details map[string]interface{}) SafetyCheck {
	if details == nil {
		details = map[string]interface{}{}
	}
	return SafetyCheck{Level: level, Reason: reason, Details: details, Timestamp: time.Now().UTC()}
}

// ModerationResult is what an external moderation provider reports for a text.
type ModerationResult struct {
	Flagged    bool
	Categories []string
}

// Moderator is an optional external moderation capability. Failures are
// tolerated: moderation is advisory on top of the local rules.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationResult, error)
}

type Config struct {
	MaxInputLength    int
	MaxResponseLength int
	KeywordThreshold  int
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	BurstWindow       time.Duration
	BurstThreshold    int
	AuditLogSize      int
}

func DefaultConfig() Config {
	return Config{
		MaxInputLength:    2000,
		MaxResponseLength: 5000,
		KeywordThreshold:  3,
		RequestsPerMinute: 30,
		RequestsPerHour:   300,
		RequestsPerDay:    1000,
		BurstWindow:       5 * time.Minute,
		BurstThreshold:    10,
		AuditLogSize:      1000,
	}
}

type auditEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	UserID         string    `json:"user_id"`
	OriginalQuery  string    `json:"original_query"`
	ResponseLength int       `json:"response_length"`
	ResponseHash   string    `json:"response_hash"`
}

// Engine is the two-sided safety filter: it screens user input before the
// pipeline runs and model output before it reaches the user, while tracking
// per-user request history and an explicit block list.
type Engine struct {
	cfg       Config
	moderator Moderator

	contentPatterns []*regexp.Regexp
	piiPatterns     []*regexp.Regexp

	financialKeywords []string
	brandKeywords     []string
	hedgingPhrases    []string

	limiter *rateLimiter
	audit   *auditLog
}

var contentPolicyPatterns = []string{
	`(?i)\b(hate|racist|sexist|discriminatory)\b`,
	`(?i)\b(violence|kill|murder|attack)\b`,
	`(?i)\b(drugs|illegal|unlawful)\b`,
	`(?i)\b(personal|private|confidential)\s+(info|information|data)`,
	`(?i)\b(ssn|social\s+security|credit\s+card\s+number|bank\s+account)`,
	`(?i)\b(password|pin|security\s+code)`,
	`(?i)\b(admin|root|sudo|privileged)`,
	`(?i)\b(exploit|hack|breach|vulnerability)`,
}

var piiPolicyPatterns = []string{
	`\b\d{3}-\d{2}-\d{4}\b`,
	`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`,
	`\b\d{10,11}\b`,
	`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
}

func NewEngine(cfg Config, moderator Moderator) *Engine {
	compile := func(patterns []string) []*regexp.Regexp {
		compiled := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			compiled = append(compiled, regexp.MustCompile(p))
		}
		return compiled
	}

	e := &Engine{
		cfg:             cfg,
		moderator:       moderator,
		contentPatterns: compile(contentPolicyPatterns),
		piiPatterns:     compile(piiPolicyPatterns),
		financialKeywords: []string{
			"financial advice", "investment advice", "loan guarantee",
			"credit guarantee", "investment recommendation", "stock recommendation",
			"buy this stock", "sell this stock", "retirement planning",
			"tax advice", "legal advice", "medical advice",
		},
		brandKeywords: []string{
			"better than aven", "worse than aven", "switch to", "leave aven",
			"hate aven", "aven sucks", "aven is bad", "aven terrible",
		},
		hedgingPhrases: []string{
			"i don't have access to that information",
			"i cannot provide that information",
			"i'm not sure about that",
			"i don't know",
			"i cannot answer",
		},
		limiter: newRateLimiter(cfg),
		audit:   newAuditLog(cfg.AuditLogSize),
	}

	logger.Info("Guardrails engine initialized",
		zap.Int("content_patterns", len(e.contentPatterns)),
		zap.Int("pii_patterns", len(e.piiPatterns)),
	)

	return e
}

// CheckInput screens a user message. Checks run in a fixed order and the
// first non-passing result wins. Internal failures fail closed: the caller
// gets BLOCKED rather than a panic.
func (e *Engine) CheckInput(ctx context.Context, userID, message string) (check SafetyCheck) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Input safety check panicked", zap.Any("panic", r))
			check = newCheck(LevelBlocked, "Safety check error",
				map[string]interface{}{"error": fmt.Sprint(r)})
		}
	}()

	if strings.TrimSpace(message) == "" {
		return newCheck(LevelBlocked, "Empty or invalid message",
			map[string]interface{}{"message_length": len(message)})
	}

	// Blocks return immediately. Warnings are non-blocking, so they are
	// held back until every blocking rule has had its say: an SSN in a
	// message must block even when an earlier rule only warns.
	var warning *SafetyCheck
	warn := func(c SafetyCheck) {
		if warning == nil && c.Level == LevelWarning {
			warning = &c
		}
	}

	if len(message) > e.cfg.MaxInputLength {
		warn(newCheck(LevelWarning, "Message too long", map[string]interface{}{
			"message_length": len(message),
			"max_allowed":    e.cfg.MaxInputLength,
		}))
	}

	if rate := e.limiter.check(userID); rate.Level == LevelBlocked {
		return rate
	}

	if content := e.checkContentSafety(message); content.Level >= LevelBlocked {
		return content
	} else if content.Level == LevelWarning {
		warn(content)
	}

	if pii := e.checkPII(message); pii.Level == LevelBlocked {
		return pii
	}

	if compliance := e.checkCompliance(message); compliance.Level == LevelBlocked {
		return compliance
	}

	if e.moderator != nil {
		if moderation := e.checkModeration(ctx, message); moderation.Level == LevelBlocked {
			return moderation
		}
	}

	if suspicious := e.checkSuspiciousActivity(userID); suspicious.Level == LevelBlocked {
		return suspicious
	}

	if warning != nil {
		return *warning
	}

	return newCheck(LevelSafe, "Input passed all safety checks", map[string]interface{}{
		"checks_passed": []string{"length", "rate_limit", "content", "pii", "compliance", "suspicious"},
	})
}

// CheckOutput screens model-generated text before it reaches the user.
// Internal failures fail open but flagged: a broken check downgrades to
// WARNING instead of suppressing the response.
func (e *Engine) CheckOutput(ctx context.Context, response, userID, originalQuery string) (check SafetyCheck) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Output safety check panicked", zap.Any("panic", r))
			check = newCheck(LevelWarning, "Response safety check error",
				map[string]interface{}{"error": fmt.Sprint(r)})
		}
	}()

	// Every checked output lands in the audit log, hashed, not verbatim.
	e.audit.record(auditEntry{
		Timestamp:      time.Now().UTC(),
		UserID:         userID,
		OriginalQuery:  originalQuery,
		ResponseLength: len(response),
		ResponseHash:   utils.HashString(response),
	})

	if len(response) > e.cfg.MaxResponseLength {
		return newCheck(LevelWarning, "Response too long", map[string]interface{}{
			"response_length": len(response),
			"max_allowed":     e.cfg.MaxResponseLength,
		})
	}

	if content := e.checkContentSafety(response); content.Level >= LevelBlocked {
		return content
	}

	if hallucination := e.checkHallucination(response); hallucination.Level == LevelWarning {
		return hallucination
	}

	return newCheck(LevelSafe, "Response passed safety checks", map[string]interface{}{
		"checks_passed": []string{"length", "content", "hallucination"},
	})
}

func (e *Engine) checkContentSafety(text string) SafetyCheck {
	var matched []string
	for _, pattern := range e.contentPatterns {
		if pattern.MatchString(text) {
			matched = append(matched, pattern.String())
		}
	}

	if len(matched) >= e.cfg.KeywordThreshold {
		return newCheck(LevelBlocked, "Multiple inappropriate patterns detected",
			map[string]interface{}{"matched_patterns": matched, "count": len(matched)})
	}
	if len(matched) > 0 {
		return newCheck(LevelWarning, "Suspicious content detected",
			map[string]interface{}{"matched_patterns": matched})
	}
	return newCheck(LevelSafe, "Content safety check passed", nil)
}

func (e *Engine) checkPII(text string) SafetyCheck {
	var detected []string
	for _, pattern := range e.piiPatterns {
		if pattern.MatchString(text) {
			detected = append(detected, pattern.String())
		}
	}

	// Unlike the general content policy, any PII hit blocks outright.
	if len(detected) > 0 {
		return newCheck(LevelBlocked, "PII detected in message",
			map[string]interface{}{"detected_pii": detected})
	}
	return newCheck(LevelSafe, "No PII detected", nil)
}

func (e *Engine) checkCompliance(text string) SafetyCheck {
	lower := strings.ToLower(text)

	for _, keyword := range e.financialKeywords {
		if strings.Contains(lower, keyword) {
			return newCheck(LevelBlocked, fmt.Sprintf("Contains financial advice: %s", keyword),
				map[string]interface{}{"category": "financial_advice", "keyword": keyword})
		}
	}
	for _, keyword := range e.brandKeywords {
		if strings.Contains(lower, keyword) {
			return newCheck(LevelBlocked, fmt.Sprintf("Contains brand safety concern: %s", keyword),
				map[string]interface{}{"category": "brand_safety", "keyword": keyword})
		}
	}
	return newCheck(LevelSafe, "Compliance check passed", nil)
}

func (e *Engine) checkModeration(ctx context.Context, text string) SafetyCheck {
	result, err := e.moderator.Moderate(ctx, text)
	if err != nil {
		// Fail open: moderation outages never block traffic on their own.
		logger.Warn("Moderation call failed", zap.Error(err))
		return newCheck(LevelSafe, "Moderation unavailable",
			map[string]interface{}{"error": err.Error()})
	}
	if result.Flagged {
		return newCheck(LevelBlocked, "Flagged by moderation provider",
			map[string]interface{}{"categories": result.Categories})
	}
	return newCheck(LevelSafe, "Moderation check passed", nil)
}

func (e *Engine) checkSuspiciousActivity(userID string) SafetyCheck {
	recent := e.limiter.countRecent(userID, e.cfg.BurstWindow)
	if recent > e.cfg.BurstThreshold {
		return newCheck(LevelBlocked, "Suspicious activity: too many requests in short time",
			map[string]interface{}{"recent_requests": recent})
	}

	if reason, blocked := e.limiter.blockedReason(userID); blocked {
		return newCheck(LevelBlocked, "User is blocked",
			map[string]interface{}{"user_id": userID, "block_reason": reason})
	}

	return newCheck(LevelSafe, "No suspicious activity detected",
		map[string]interface{}{"recent_requests": recent})
}

func (e *Engine) checkHallucination(response string) SafetyCheck {
	lower := strings.ToLower(response)
	for _, phrase := range e.hedgingPhrases {
		if strings.Contains(lower, phrase) {
			return newCheck(LevelWarning, "Potential hallucination detected",
				map[string]interface{}{"indicator": phrase})
		}
	}
	return newCheck(LevelSafe, "No hallucination indicators detected", nil)
}

// Block puts a user on the explicit block list.
func (e *Engine) Block(userID, reason string) {
	e.limiter.block(userID, reason)
	logger.Warn("User blocked", zap.String("user_id", userID), zap.String("reason", reason))
}

// Unblock removes a user from the block list.
func (e *Engine) Unblock(userID string) {
	e.limiter.unblock(userID)
	logger.Info("User unblocked", zap.String("user_id", userID))
}

// Stats reports aggregate counters for the safety endpoints.
func (e *Engine) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_requests": e.limiter.totalRequests(),
		"tracked_users":  e.limiter.trackedUsers(),
		"blocked_users":  len(e.limiter.blockedUsers()),
		"audit_log_size": e.audit.size(),
		"rate_limits": map[string]int{
			"requests_per_minute": e.cfg.RequestsPerMinute,
			"requests_per_hour":   e.cfg.RequestsPerHour,
			"requests_per_day":    e.cfg.RequestsPerDay,
		},
		"thresholds": map[string]int{
			"max_input_length":    e.cfg.MaxInputLength,
			"max_response_length": e.cfg.MaxResponseLength,
			"keyword_threshold":   e.cfg.KeywordThreshold,
		},
	}
}

// ExportLog serializes the current safety state: stats, the full block list
// and the most recent 100 audited responses.
func (e *Engine) ExportLog() ([]byte, error) {
	export := struct {
		Timestamp       time.Time              `json:"timestamp"`
		Stats           map[string]interface{} `json:"stats"`
		BlockedUsers    []string               `json:"blocked_users"`
		RecentResponses []auditEntry           `json:"recent_responses"`
	}{
		Timestamp:       time.Now().UTC(),
		Stats:           e.Stats(),
		BlockedUsers:    e.limiter.blockedUsers(),
		RecentResponses: e.audit.recent(100),
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal safety log: %w", err)
	}
	return data, nil
}
