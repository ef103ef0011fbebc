package api

import (
	"context"
	"net/http"
	"time"

	"example.com/lifeline/agent/config"
	"example.com/lifeline/agent/internal/api/handlers"
	"example.com/lifeline/agent/internal/repositories"
	"example.com/lifeline/agent/internal/services"
	"example.com/lifeline/agent/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server is the local HTTP surface: capture endpoints for the field app
// shell and the operator-facing sync views
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
}

// Deps carries everything the server's handlers need
type Deps struct {
	Donors       *services.DonorService
	Donations    *services.DonationService
	Appointments *services.AppointmentService
	Queue        *repositories.QueueRepository
	Engine       *sync.Engine
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Deps) *Server {
	server := &Server{config: cfg}

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(gin.Recovery())

	captureHandler := handlers.NewCaptureHandler(deps.Donors, deps.Donations, deps.Appointments)
	captureHandler.RegisterRoutes(router)

	syncHandler := handlers.NewSyncHandler(deps.Queue, deps.Engine)
	syncHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server.router = router
	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	return nil
}
