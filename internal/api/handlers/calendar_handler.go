package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/calendar"
	"github.com/aven-agent/backend/pkg/logger"
)

type CalendarHandler struct {
	service *calendar.Service
}

func NewCalendarHandler(service *calendar.Service) *CalendarHandler {
	return &CalendarHandler{service: service}
}

func (h *CalendarHandler) ListMeetings(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	meetings, err := h.service.List(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to list meetings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list meetings",
		})
	}

	return c.JSON(fiber.Map{
		"meetings": meetings,
	})
}

func (h *CalendarHandler) CancelMeeting(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	if meetingID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Meeting ID is required",
		})
	}

	canceled, err := h.service.Cancel(c.Context(), meetingID)
	if err != nil {
		logger.Error("Failed to cancel meeting", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel meeting",
		})
	}

	if !canceled {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Meeting not found",
		})
	}

	return c.JSON(fiber.Map{
		"meeting_id": meetingID,
		"canceled":   true,
	})
}
