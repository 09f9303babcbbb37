package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/guardrails"
	"github.com/aven-agent/backend/pkg/logger"
)

type SafetyHandler struct {
	engine *guardrails.Engine
}

func NewSafetyHandler(engine *guardrails.Engine) *SafetyHandler {
	return &SafetyHandler{engine: engine}
}

// CheckMessage runs a standalone input guardrail check without going
// through the chat pipeline.
func (h *SafetyHandler) CheckMessage(c *fiber.Ctx) error {
	var req struct {
		Message string `json:"message"`
		UserID  string `json:"user_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		req.UserID = "anonymous"
	}

	check := h.engine.CheckInput(c.Context(), req.UserID, req.Message)

	return c.JSON(fiber.Map{
		"level":     check.Level.String(),
		"reason":    check.Reason,
		"details":   check.Details,
		"timestamp": check.Timestamp,
	})
}

func (h *SafetyHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.engine.Stats())
}

func (h *SafetyHandler) ExportLog(c *fiber.Ctx) error {
	data, err := h.engine.ExportLog()
	if err != nil {
		logger.Error("Failed to export safety log", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export safety log",
		})
	}

	c.Set("Content-Type", "application/json")
	return c.Send(data)
}

func (h *SafetyHandler) BlockUser(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	if req.Reason == "" {
		req.Reason = "Blocked by administrator"
	}

	h.engine.Block(req.UserID, req.Reason)
	logger.Info("User blocked", zap.String("user_id", req.UserID), zap.String("reason", req.Reason))

	return c.JSON(fiber.Map{
		"user_id": req.UserID,
		"blocked": true,
	})
}

func (h *SafetyHandler) UnblockUser(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	h.engine.Unblock(req.UserID)
	logger.Info("User unblocked", zap.String("user_id", req.UserID))

	return c.JSON(fiber.Map{
		"user_id": req.UserID,
		"blocked": false,
	})
}
