package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses and answers
// conditional requests with 304 when the body is unchanged. Snapshot data
// changes every poll, so it is only cacheable for revalidation.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if c.Method() != fiber.MethodGet {
			return nil
		}

		path := c.Path()
		if c.Get(fiber.HeaderCacheControl) == "" {
			if ttl := cacheControl(path); ttl != "" {
				c.Set(fiber.HeaderCacheControl, ttl)
			}
		}

		if c.Response().StatusCode() != fiber.StatusOK || path == "/metrics" {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}
		h := sha256.Sum256(body)
		etag := `W/"` + hex.EncodeToString(h[:8]) + `"`
		c.Set(fiber.HeaderETag, etag)
		if c.Get(fiber.HeaderIfNoneMatch) == etag {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

func cacheControl(path string) string {
	switch {
	case path == "/metrics", path == "/v1/health", path == "/v1/ready":
		return "no-store"
	case strings.HasPrefix(path, "/v1/trips"):
		return "public, max-age=60" // archived trips never change
	case strings.HasPrefix(path, "/docs"):
		return "public, max-age=3600"
	case strings.HasPrefix(path, "/v1/"):
		return "no-cache"
	}
	return ""
}
