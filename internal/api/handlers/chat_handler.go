package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/orchestrator"
	"github.com/aven-agent/backend/internal/storage/models"
	"github.com/aven-agent/backend/pkg/logger"
)

// ChatStore is the persistence surface the chat handlers need: archived
// history for sessions the in-memory store has evicted, and feedback on
// past answers.
type ChatStore interface {
	GetChatHistory(sessionID string, limit int) ([]models.ChatRecord, error)
	StoreFeedback(feedback *models.Feedback) error
}

type ChatHandler struct {
	orch  *orchestrator.Orchestrator
	store ChatStore
}

func NewChatHandler(orch *orchestrator.Orchestrator, store ChatStore) *ChatHandler {
	return &ChatHandler{orch: orch, store: store}
}

// HandleChat runs one message through the pipeline. Policy blocks are
// valid outcomes, not server faults, so they return 200 with the
// "blocked_*" status field set.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}

	// Validation middleware has already screened and sanitized the body.
	if sanitized, ok := c.Locals("sanitized_body").(map[string]interface{}); ok {
		req.Message, _ = sanitized["message"].(string)
		req.SessionID, _ = sanitized["session_id"].(string)
	} else if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	response := h.orch.Handle(c.Context(), req.Message, req.SessionID)

	return c.JSON(response)
}

func (h *ChatHandler) GetSessionHistory(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	history := h.orch.Sessions().History(sessionID)

	// Idle sessions get reaped from memory; fall back to the archived
	// history so old sessions stay readable.
	if len(history) == 0 && h.store != nil {
		records, err := h.store.GetChatHistory(sessionID, 50)
		if err != nil {
			logger.Warn("Failed to load archived chat history", zap.Error(err))
		} else {
			history = turnsFromRecords(records)
		}
	}

	if history == nil {
		history = []orchestrator.Turn{}
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"turns":      history,
	})
}

// turnsFromRecords expands archived chat records, newest first as stored,
// into chronological user/assistant turns.
func turnsFromRecords(records []models.ChatRecord) []orchestrator.Turn {
	turns := make([]orchestrator.Turn, 0, len(records)*2)
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		turns = append(turns,
			orchestrator.Turn{Role: "user", Content: r.Message, Timestamp: r.CreatedAt},
			orchestrator.Turn{Role: "assistant", Content: r.Response, Timestamp: r.CreatedAt},
		)
	}
	return turns
}

func (h *ChatHandler) ClearSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	cleared := h.orch.Sessions().Clear(sessionID)

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"cleared":    cleared,
	})
}

// SubmitFeedback records whether an answer helped, tied to its chat record.
func (h *ChatHandler) SubmitFeedback(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Feedback storage is not configured",
		})
	}

	var req struct {
		ChatID        string `json:"chat_id"`
		Helpful       *bool  `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.ChatID == "" || req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chat_id and helpful are required",
		})
	}

	err := h.store.StoreFeedback(&models.Feedback{
		ChatID:        req.ChatID,
		Helpful:       *req.Helpful,
		IssueCategory: req.IssueCategory,
		Comment:       req.Comment,
	})
	if err != nil {
		logger.Error("Failed to store feedback", zap.Error(err), zap.String("chat_id", req.ChatID))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown chat_id",
		})
	}

	return c.JSON(fiber.Map{
		"chat_id":  req.ChatID,
		"recorded": true,
	})
}
