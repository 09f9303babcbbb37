package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aven-agent/backend/internal/cache/redis"
	"github.com/aven-agent/backend/internal/ingestion"
	"github.com/aven-agent/backend/internal/metrics"
	"github.com/aven-agent/backend/internal/storage/models"
	"github.com/aven-agent/backend/pkg/logger"
	"github.com/aven-agent/backend/pkg/utils"
)

// DocumentStore reads back ingested documents.
type DocumentStore interface {
	GetDocument(id string) (*models.Document, error)
}

type KnowledgeHandler struct {
	processor *ingestion.Processor
	cache     *redis.Client
	docs      DocumentStore
}

func NewKnowledgeHandler(processor *ingestion.Processor, cache *redis.Client, docs DocumentStore) *KnowledgeHandler {
	return &KnowledgeHandler{
		processor: processor,
		cache:     cache,
		docs:      docs,
	}
}

func (h *KnowledgeHandler) IngestDocument(c *fiber.Ctx) error {
	var req struct {
		URL         string `json:"url"`
		HTMLContent string `json:"html_content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL and HTML content are required",
		})
	}

	err := h.processor.ProcessDocument(c.Context(), req.URL, req.HTMLContent)
	if err != nil {
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	metrics.DocumentsProcessed.Inc()

	// Cached answers may now be stale.
	if h.cache != nil {
		if err := h.cache.Invalidate(c.Context()); err != nil {
			logger.Warn("Failed to invalidate response cache", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"message": "Document processed successfully",
		"url":     req.URL,
		"doc_id":  utils.HashString(req.URL),
	})
}

// GetDocument serves an ingested document by id (the hash of its URL,
// as returned by ingestion).
func (h *KnowledgeHandler) GetDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document ID is required",
		})
	}

	doc, err := h.docs.GetDocument(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	return c.JSON(fiber.Map{
		"id":         doc.ID,
		"url":        doc.URL,
		"title":      doc.Title,
		"section":    doc.Section,
		"summary":    doc.Summary,
		"updated_at": doc.UpdatedAt,
	})
}

func (h *KnowledgeHandler) InvalidateCache(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Cache is not configured",
		})
	}

	if err := h.cache.Invalidate(c.Context()); err != nil {
		logger.Error("Failed to invalidate cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to invalidate cache",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Cache invalidated",
	})
}
