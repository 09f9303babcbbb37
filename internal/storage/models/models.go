package models

import "time"

type Document struct {
	ID          string
	URL         string
	Title       string
	Section     string
	Summary     string
	RawContent  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastCrawled *time.Time
}

type DocumentChunk struct {
	ID          string
	DocID       string
	ChunkIndex  int
	Text        string
	EmbeddingID string
	CreatedAt   time.Time
}

type ChatRecord struct {
	ID             string
	SessionID      string
	UserID         string
	Message        string
	Response       string
	QueryType      string
	Confidence     float64
	SafetyLevel    string
	Outcome        string
	SourcesCount   int
	WebSearchUsed  bool
	CalendarAction bool
	LatencyMS      int
	CreatedAt      time.Time
}

type ChatSource struct {
	ID         int
	ChatID     string
	SourceType string
	SourceURL  string
	ChunkID    string
	Score      float64
}

type SafetyEvent struct {
	ID        int
	UserID    string
	Direction string
	Level     string
	Reason    string
	CreatedAt time.Time
}

type Feedback struct {
	ID            int
	ChatID        string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}
