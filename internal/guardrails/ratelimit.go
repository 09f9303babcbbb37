package guardrails

import (
	"fmt"
	"sync"
	"time"
)

// userRecord tracks one user's request history. History is pruned lazily on
// each check rather than by a background sweep.
type userRecord struct {
	mu       sync.Mutex
	requests []time.Time
}

// rateLimiter keeps per-user sliding windows and the explicit block list.
// Locking is key-scoped: one user's checks never serialize another's.
type rateLimiter struct {
	cfg Config

	mu      sync.Mutex
	users   map[string]*userRecord
	blocked map[string]string
}

func newRateLimiter(cfg Config) *rateLimiter {
	return &rateLimiter{
		cfg:     cfg,
		users:   make(map[string]*userRecord),
		blocked: make(map[string]string),
	}
}

func (rl *rateLimiter) record(userID string) *userRecord {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rec, ok := rl.users[userID]
	if !ok {
		rec = &userRecord{}
		rl.users[userID] = rec
	}
	return rec
}

// check evaluates the three window ceilings. The decision is made before the
// current request is counted, so a request that would exceed a limit is
// rejected without entering history.
func (rl *rateLimiter) check(userID string) SafetyCheck {
	rec := rl.record(userID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := time.Now()

	kept := rec.requests[:0]
	for _, ts := range rec.requests {
		if now.Sub(ts) < 24*time.Hour {
			kept = append(kept, ts)
		}
	}
	rec.requests = kept

	lastMinute := 0
	lastHour := 0
	for _, ts := range rec.requests {
		age := now.Sub(ts)
		if age < time.Minute {
			lastMinute++
		}
		if age < time.Hour {
			lastHour++
		}
	}
	lastDay := len(rec.requests)

	if lastMinute >= rl.cfg.RequestsPerMinute {
		return newCheck(LevelBlocked, "Rate limit exceeded (per minute)", map[string]interface{}{
			"requests_last_minute": lastMinute,
			"limit":                rl.cfg.RequestsPerMinute,
		})
	}
	if lastHour >= rl.cfg.RequestsPerHour {
		return newCheck(LevelBlocked, "Rate limit exceeded (per hour)", map[string]interface{}{
			"requests_last_hour": lastHour,
			"limit":              rl.cfg.RequestsPerHour,
		})
	}
	if lastDay >= rl.cfg.RequestsPerDay {
		return newCheck(LevelBlocked, "Rate limit exceeded (per day)", map[string]interface{}{
			"requests_last_day": lastDay,
			"limit":             rl.cfg.RequestsPerDay,
		})
	}

	rec.requests = append(rec.requests, now)

	return newCheck(LevelSafe, "Rate limit check passed", map[string]interface{}{
		"requests_last_minute": lastMinute,
		"requests_last_hour":   lastHour,
	})
}

func (rl *rateLimiter) countRecent(userID string, window time.Duration) int {
	rec := rl.record(userID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := time.Now()
	count := 0
	for _, ts := range rec.requests {
		if now.Sub(ts) < window {
			count++
		}
	}
	return count
}

func (rl *rateLimiter) block(userID, reason string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if reason == "" {
		reason = "Manual block"
	}
	rl.blocked[userID] = reason
}

func (rl *rateLimiter) unblock(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.blocked, userID)
}

func (rl *rateLimiter) blockedReason(userID string) (string, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	reason, ok := rl.blocked[userID]
	return reason, ok
}

func (rl *rateLimiter) blockedUsers() []string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	users := make([]string, 0, len(rl.blocked))
	for userID, reason := range rl.blocked {
		users = append(users, fmt.Sprintf("%s: %s", userID, reason))
	}
	return users
}

func (rl *rateLimiter) totalRequests() int {
	rl.mu.Lock()
	records := make([]*userRecord, 0, len(rl.users))
	for _, rec := range rl.users {
		records = append(records, rec)
	}
	rl.mu.Unlock()

	total := 0
	for _, rec := range records {
		rec.mu.Lock()
		total += len(rec.requests)
		rec.mu.Unlock()
	}
	return total
}

func (rl *rateLimiter) trackedUsers() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.users)
}

// auditLog is a bounded ring of response audit entries, oldest evicted first.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
}

func newAuditLog(max int) *auditLog {
	if max <= 0 {
		max = 1000
	}
	return &auditLog{max: max}
}

func (a *auditLog) record(entry auditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > a.max {
		a.entries = a.entries[len(a.entries)-a.max:]
	}
}

func (a *auditLog) recent(n int) []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > len(a.entries) {
		n = len(a.entries)
	}
	out := make([]auditEntry, n)
	copy(out, a.entries[len(a.entries)-n:])
	return out
}

func (a *auditLog) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
