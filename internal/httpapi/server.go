// Package httpapi is the admin HTTP binary: a gin router exposing the
// Admin Facade's operations over its management route table.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"credpool-go/internal/credential"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Server wraps the gin engine and the underlying http.Server so callers
// get a plain Start/Shutdown pair without reaching into gin directly.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// balanceConcurrency sets the balance() rate limit: calls start at most
// this many times per second, with bursts of up to this many. Each call
// forces a refresh, so an admin script fanning out over the whole pool is
// throttled. It limits how often calls start, not how many are in flight.
const balanceConcurrency = 4

// NewServer builds the admin HTTP binary's router over admin, guarded by
// adminAPIKey (empty disables the check, for local development only).
func NewServer(admin *credential.Admin, adminAPIKey, bindAddr string) *Server {
	if !log.IsLevelEnabled(log.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(accessLogMiddleware())

	h := &handler{
		admin:      admin,
		balanceLim: rate.NewLimiter(rate.Limit(balanceConcurrency), balanceConcurrency),
	}

	api := engine.Group("/api/admin")
	api.Use(adminKeyMiddleware(adminAPIKey))
	{
		api.GET("/credentials", h.list)
		api.POST("/credentials", h.add)
		api.DELETE("/credentials/:id", h.delete)
		api.PATCH("/credentials/:id/disabled", h.setDisabled)
		api.PATCH("/credentials/:id/priority", h.setPriority)
		api.PATCH("/credentials/:id/proxy", h.setProxy)
		api.POST("/credentials/:id/reset-failure", h.resetFailure)
		api.GET("/credentials/:id/balance", h.balance)
		api.GET("/mode", h.getMode)
		api.PUT("/mode", h.setMode)
		api.GET("/cloud-pass", h.cloudPassStatus)
		api.POST("/cloud-pass/refresh", h.refreshCloudPass)
	}

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:              bindAddr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start runs the HTTP server until it errors or is shut down;
// http.ErrServerClosed is not returned as an error.
func (s *Server) Start() error {
	log.WithField("addr", s.http.Addr).Info("admin http: listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
