package httpapi

import (
	"crypto/subtle"
	"strings"
	"time"

	"credpool-go/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// requestIDMiddleware stamps every request with a uuid, reusing an
// inbound X-Request-ID when the caller already supplied one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// accessLogMiddleware logs one structured line per request: method, path,
// status, and latency.
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		logging.WithReq(c, log.Fields{
			"component":  "admin_http",
			"status":     status,
			"latency_ms": logging.DurationMS(time.Since(start)),
			"error_kind": logging.ErrorKind(status, len(c.Errors) > 0),
		}).Info("admin request")
	}
}

// adminKeyMiddleware rejects requests lacking a valid "Bearer <key>"
// Authorization header, using a constant-time comparison so response
// timing cannot leak how much of the key matched. An empty configured key
// disables the check, for local development only.
func adminKeyMiddleware(adminAPIKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminAPIKey == "" {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		const prefix = "bearer "
		if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			respondError(c, 401, "missing or malformed Authorization header")
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len(prefix):])
		if subtle.ConstantTimeCompare([]byte(token), []byte(adminAPIKey)) != 1 {
			respondError(c, 401, "invalid admin key")
			c.Abort()
			return
		}
		c.Next()
	}
}
