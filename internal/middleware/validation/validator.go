package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxUploadSize       int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware enforces content types and upload size before a request reaches
// the handlers. Survey packages arrive as multipart forms; everything else
// is JSON.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 500 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut || c.Method() == fiber.MethodPatch {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}

			if len(c.Body()) > cfg.MaxUploadSize {
				if cfg.Logger != nil {
					cfg.Logger.Warn("Upload rejected: body too large",
						zap.Int("size", len(c.Body())),
						zap.Int("limit", cfg.MaxUploadSize),
					)
				}
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Upload too large",
				})
			}
		}

		return c.Next()
	}
}
