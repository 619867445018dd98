package router

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
)

// cacheablePrefixes lists the read-only routes backed by durable storage. Live
// session reads are never cached.
var cacheablePrefixes = []string{"/v1/db/", "/v1/admin/stats"}

func HttpCacheInMemory(ttl int) fiber.Handler {
	if ttl <= 0 {
		ttl = 5
	}
	return cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			path := strings.TrimPrefix(c.Path(), BaseURL)
			for _, prefix := range cacheablePrefixes {
				if strings.HasPrefix(path, prefix) {
					return false
				}
			}
			return true
		},
		KeyGenerator: cacheKey,
		Expiration:   time.Duration(ttl) * time.Second,
	})
}

// cacheKey partitions cached entries per credential so scoped principals never see
// each other's responses.
func cacheKey(c *fiber.Ctx) string {
	credential := c.Get("apikey") + "|" + c.Get("x-api-key") + "|" + c.Query("apikey") + "|" + c.Get(fiber.HeaderAuthorization)
	sum := sha256.Sum256([]byte(credential))
	return c.OriginalURL() + "#" + hex.EncodeToString(sum[:8])
}
