package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Chat messages are natural language, so only markup injection is
// screened here. Semantic abuse (prompt injection, PII, policy
// violations) is the guardrails engine's job.
var scriptInjectionPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|data:text/html|onerror=|onload=|onclick=)`)

type Config struct {
	MaxMessageLength int
	MaxDocumentSize  int
	Logger           *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 5000
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		switch {
		case strings.HasPrefix(c.Path(), "/api/v1/chat"):
			return validateChat(c, cfg)
		case strings.HasPrefix(c.Path(), "/api/v1/knowledge"):
			return validateKnowledge(c, cfg)
		}

		return c.Next()
	}
}

func validateChat(c *fiber.Ctx, cfg Config) error {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON format",
		})
	}

	message, ok := req["message"].(string)
	if !ok || strings.TrimSpace(message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required and must be a string",
		})
	}

	if len(message) > cfg.MaxMessageLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message exceeds maximum length",
		})
	}

	if scriptInjectionPattern.MatchString(message) {
		cfg.Logger.Warn("Markup injection attempt in chat message",
			zap.String("ip", c.IP()),
		)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid message content",
		})
	}

	req["message"] = sanitizeString(message)
	c.Locals("sanitized_body", req)

	return c.Next()
}

func validateKnowledge(c *fiber.Ctx, cfg Config) error {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON format",
		})
	}

	urlStr, ok := req["url"].(string)
	if !ok || urlStr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required and must be a string",
		})
	}

	if !isValidURL(urlStr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid URL format",
		})
	}

	if content, ok := req["html_content"].(string); ok && len(content) > cfg.MaxDocumentSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Document content exceeds maximum size",
		})
	}

	return c.Next()
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.ReplaceAll(input, "\x00", "")
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
