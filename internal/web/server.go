// Package web provides the HTTP API for managing sources, triggering syncs,
// and querying imported records.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tabwell/tabsync/internal/config"
	"github.com/tabwell/tabsync/internal/query"
	"github.com/tabwell/tabsync/internal/source"
	"github.com/tabwell/tabsync/internal/syncer"
	"github.com/tabwell/tabsync/internal/web/middleware"
)

// Sources is the source configuration store the handlers use.
// *store.Store satisfies it.
type Sources interface {
	CreateSource(ctx context.Context, src *source.Source) error
	UpdateSource(ctx context.Context, src *source.Source) error
	DeleteSource(ctx context.Context, id uuid.UUID) error
	GetSource(ctx context.Context, id uuid.UUID) (*source.Source, error)
	ListSources(ctx context.Context, status source.Status) ([]*source.Source, error)
}

// SyncRunner triggers imports. *syncer.Syncer satisfies it.
type SyncRunner interface {
	SyncNow(ctx context.Context, src *source.Source) syncer.Result
	SyncDue(ctx context.Context) (syncer.BatchSummary, error)
}

// Records answers logical-name row queries. *query.Facade satisfies it.
type Records interface {
	GetRecords(ctx context.Context, shortID string, req query.Request) ([]map[string]interface{}, error)
	GetRecordsSelect(ctx context.Context, shortID string, fragment string, params []interface{}, req query.Request) ([]map[string]interface{}, error)
}

// Downloader fetches remote files for previews. *importer.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Server is the HTTP server for the import service.
type Server struct {
	sources Sources
	syncs   SyncRunner
	records Records
	client  Downloader
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, sources Sources, syncs SyncRunner, records Records, client Downloader) *Server {
	s := &Server{
		sources: sources,
		syncs:   syncs,
		records: records,
		client:  client,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)

	// Rate limiting: 100 requests per minute per IP
	limiter := newRateLimiter(100, time.Minute)
	s.router.Use(limiter.middleware)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		// Source configuration
		r.Get("/sources", s.handleListSources)
		r.Post("/sources", s.handleCreateSource)
		r.Get("/sources/{sourceID}", s.handleGetSource)
		r.Put("/sources/{sourceID}", s.handleUpdateSource)
		r.Delete("/sources/{sourceID}", s.handleDeleteSource)

		// Sync triggers
		r.Post("/sources/{sourceID}/sync", s.handleSyncSource)
		r.Post("/sync-due", s.handleSyncDue)

		// Mapping setup helpers
		r.Post("/preview", s.handlePreview)
		r.Post("/allocate", s.handleAllocate)

		// Record queries by short identifier
		r.Get("/records/{shortID}", s.handleGetRecords)
		r.Post("/records/{shortID}/select", s.handleSelectRecords)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON API only; no resources may load
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	// Check if we have tokens left
	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		// Use X-Real-IP if set (by RealIP middleware)
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
