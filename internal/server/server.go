package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/tts"
)

// ServiceName is reported by /health.
const ServiceName = "Utero AI Backend"

const shutdownTimeout = 10 * time.Second

// Config holds the request defaults and limits of the HTTP boundary.
type Config struct {
	Addr          string
	CORSOrigins   []string
	MaxTextLength int

	// PublicURL overrides the scheme and host used in audio_url.
	PublicURL string

	DefaultLanguage string
	DefaultSlow     bool

	Debug   bool
	Version string
}

// ConfigFrom derives the server settings from the application config.
func ConfigFrom(c *config.Config, version string) Config {
	return Config{
		Addr:            c.Server.Addr(),
		CORSOrigins:     c.Server.CORSOrigins,
		MaxTextLength:   c.Server.MaxTextLength,
		PublicURL:       c.Server.PublicURL,
		DefaultLanguage: c.TTS.Language,
		DefaultSlow:     c.TTS.Slow,
		Debug:           c.Server.Debug,
		Version:         version,
	}
}

// Server routes HTTP requests to a tts.Service.
type Server struct {
	cfg     Config
	svc     *tts.Service
	janitor *tts.Janitor
	logger  *log.Logger
	router  *gin.Engine
}

// New builds the router. janitor may be nil to disable opportunistic cleanup.
func New(cfg Config, svc *tts.Service, janitor *tts.Janitor, logger *log.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("server needs a tts service")
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = config.DefaultConfig().Server.MaxTextLength
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = config.DefaultConfig().TTS.Language
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		janitor: janitor,
		logger:  logger.WithPrefix("server"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.logger), requestLogger(s.logger), cors(s.cfg.CORSOrigins))

	r.GET("/health", s.handleHealth)

	synth := r.Group("/tts")
	{
		synth.GET("", s.cleanup, s.handleTTS)
		synth.POST("", s.cleanup, s.handleTTS)
		synth.POST("/stream", s.handleStream)
	}

	r.GET("/audio/:filename", s.handleAudio)
	r.GET("/cache/stats", s.handleCacheStats)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, failure("Endpoint not found"))
	})
	return r
}

// Handler returns the router wrapped in response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", ln.Addr().String(), "version", s.cfg.Version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// baseURL is the scheme and host clients reach this server on.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
