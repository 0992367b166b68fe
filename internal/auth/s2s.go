package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// ServiceKeyHeader carries the shared key on S2S calls.
const ServiceKeyHeader = "X-Service-Key"

// RequireServiceKey admits peer-authority calls presenting one of keys.
// More than one key is accepted so a rotated key and its predecessor both
// verify until the peer picks up the new one.
func RequireServiceKey(keys []string) fiber.Handler {
	accepted := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			accepted = append(accepted, []byte(k))
		}
	}
	return func(c *fiber.Ctx) error {
		presented := []byte(c.Get(ServiceKeyHeader))
		if len(presented) == 0 {
			return apperrors.NewUnauthorized("missing service key")
		}
		match := 0
		for _, k := range accepted {
			match |= subtle.ConstantTimeCompare(presented, k)
		}
		if match != 1 {
			return apperrors.NewUnauthorized("invalid service key")
		}
		return c.Next()
	}
}
