package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storyweaver/harvester/internal/config"
	"storyweaver/harvester/internal/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StatusProvider exposes the live queue; nil means no run is active yet
type StatusProvider interface {
	Snapshot() *domain.QueueState
}

type Handler struct {
	provider StatusProvider
	started  time.Time
}

func NewHandler(provider StatusProvider) *Handler {
	return &Handler{provider: provider, started: time.Now()}
}

// NewRouter creates the read-only status routes
func NewRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
	}))
	r.Use(gin.Recovery())

	r.GET("/health", handler.HealthCheck)
	r.GET("/status", handler.GetStatus)
	r.GET("/failures", handler.GetFailures)

	return r
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) GetStatus(c *gin.Context) {
	st := h.provider.Snapshot()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     st.RunID,
		"updated_at": st.UpdatedAt,
		"summary":    st.Summary(),
	})
}

type failureView struct {
	RemoteID  string `json:"remote_id"`
	Slug      string `json:"slug"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

func (h *Handler) GetFailures(c *gin.Context) {
	st := h.provider.Snapshot()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active run"})
		return
	}
	failures := make([]failureView, 0)
	for _, item := range st.Failures() {
		failures = append(failures, failureView{
			RemoteID:  item.RemoteID,
			Slug:      item.Slug,
			Attempts:  item.Attempts,
			LastError: item.LastError,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(failures), "failures": failures})
}

// Server runs the status router until its context ends
type Server struct {
	httpServer *http.Server
}

func NewServer(cfg config.ServerConfig, provider StatusProvider) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      NewRouter(NewHandler(provider)),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌐 Status API listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop status API: %w", err)
	}
	return nil
}
