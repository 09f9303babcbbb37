package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aven-agent/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())

	t.Cleanup(func() { c.Close() })
	return c
}

func insertChat(t *testing.T, c *Client, id, sessionID string, createdAt time.Time) {
	t.Helper()

	require.NoError(t, c.InsertChatRecord(&models.ChatRecord{
		ID:          id,
		SessionID:   sessionID,
		UserID:      "user_0001",
		Message:     "what are the fees",
		Response:    "Aven charges no annual fee.",
		QueryType:   "pricing",
		Confidence:  0.9,
		SafetyLevel: "safe",
		Outcome:     "completed",
		CreatedAt:   createdAt,
	}))
}

func TestDocumentRoundTrip(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	doc := &models.Document{
		ID:         "doc-1",
		URL:        "https://aven.com/support/fees",
		Title:      "Fees",
		Section:    "support",
		Summary:    "Fee overview",
		RawContent: "Aven charges no annual fee.",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, c.InsertDocument(doc))

	got, err := c.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.URL, got.URL)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Section, got.Section)
	assert.Equal(t, doc.RawContent, got.RawContent)
}

func TestInsertDocument_UpsertsOnConflict(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	doc := &models.Document{
		ID:        "doc-1",
		URL:       "https://aven.com/support/fees",
		Title:     "Fees",
		Summary:   "old summary",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, c.InsertDocument(doc))

	doc.Title = "Fees and Charges"
	doc.Summary = "new summary"
	doc.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, c.InsertDocument(doc))

	got, err := c.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Fees and Charges", got.Title)
	assert.Equal(t, "new summary", got.Summary)
}

func TestGetDocument_UnknownID(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetDocument("missing")
	assert.Error(t, err)
}

func TestGetChatHistory(t *testing.T) {
	c := newTestClient(t)

	base := time.Now().Add(-time.Hour)
	insertChat(t, c, "chat-1", "session-a", base)
	insertChat(t, c, "chat-2", "session-a", base.Add(time.Minute))
	insertChat(t, c, "chat-3", "session-b", base.Add(2*time.Minute))

	records, err := c.GetChatHistory("session-a", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "chat-2", records[0].ID, "newest record first")
	assert.Equal(t, "chat-1", records[1].ID)
	assert.Equal(t, "session-a", records[0].SessionID)

	limited, err := c.GetChatHistory("session-a", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
	assert.Equal(t, "chat-2", limited[0].ID)
}

func TestGetChatHistory_EmptySession(t *testing.T) {
	c := newTestClient(t)

	records, err := c.GetChatHistory("nothing-here", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStoreFeedback(t *testing.T) {
	c := newTestClient(t)

	insertChat(t, c, "chat-1", "session-a", time.Now())

	err := c.StoreFeedback(&models.Feedback{
		ChatID:        "chat-1",
		Helpful:       true,
		IssueCategory: "",
		Comment:       "answered my question",
	})
	assert.NoError(t, err)
}

func TestStoreFeedback_UnknownChat(t *testing.T) {
	c := newTestClient(t)

	err := c.StoreFeedback(&models.Feedback{
		ChatID:  "no-such-chat",
		Helpful: false,
	})
	assert.Error(t, err, "feedback requires an existing chat record")
}
