// Package http exposes the ledger engine as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"moneta/internal/cache"
	"moneta/internal/core"
	"moneta/internal/ledger"
	"moneta/internal/log"
	"moneta/internal/services"
)

// RecordsExporter appends records to an external sheet. Optional.
type RecordsExporter interface {
	AppendRecords(ctx context.Context, records []core.MoneyRecord) error
}

type Server struct {
	http.Server

	logger    *log.Logger
	store     ledger.Store
	settings  core.Settings
	loc       *time.Location
	carry     *services.CarryForward
	scorer    *services.HealthScorer
	suggester *services.DefaultsSuggester
	processor *services.MonthlyProcessor
	exporter  RecordsExporter

	rateLimiter *rateLimiter

	// Month-keyed caches for the read-only analytics.
	reportCache *cache.LRU[services.MonthlyReport]
	scoreCache  *cache.LRU[services.ScoreResult]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer wires routes and the engine services over the given store.
// exporter and the publisher inside pub may be nil; the corresponding
// features degrade gracefully.
func NewServer(addr string, store ledger.Store, settings core.Settings, loc *time.Location, pub services.EventPublisher, exporter RecordsExporter) *Server {
	mux := http.NewServeMux()

	policy := services.DefaultScorePolicy()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP),
		store:     store,
		settings:  settings,
		loc:       loc,
		carry:     services.NewCarryForward(store, pub),
		scorer:    services.NewHealthScorer(store, policy, pub),
		suggester: services.NewDefaultsSuggester(store),
		processor: services.NewMonthlyProcessor(store, policy, pub),
		exporter:  exporter,

		rateLimiter:      newRateLimiter(),
		reportCache:      cache.NewLRU[services.MonthlyReport](100, 5*time.Minute),
		scoreCache:       cache.NewLRU[services.ScoreResult](100, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/api/records", s.withMiddleware(s.handleCreateRecord))
	mux.HandleFunc("/api/records/{id}/approval", s.withMiddleware(s.handleUpdateApproval))
	mux.HandleFunc("/api/carry-forward", s.withMiddleware(s.handleCarryForward))
	mux.HandleFunc("/api/score", s.withMiddleware(s.handleScore))
	mux.HandleFunc("/api/health-check", s.withMiddleware(s.handleHealthCheck))
	mux.HandleFunc("/api/insights", s.withMiddleware(s.handleInsights))
	mux.HandleFunc("/api/suggest", s.withMiddleware(s.handleSuggest))
	mux.HandleFunc("/api/export", s.withMiddleware(s.handleExport))
	mux.HandleFunc("/api/templates", s.withMiddleware(s.handleTemplates))

	return s
}

// startCacheCleanup periodically evicts expired analytics entries.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reports := s.reportCache.CleanExpired()
			scores := s.scoreCache.CleanExpired()
			if reports > 0 || scores > 0 {
				s.logger.Debug("Cache cleanup completed",
					"report_entries_removed", reports,
					"score_entries_removed", scores)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateMonth drops cached analytics after a write that changes
// them.
func (s *Server) invalidateMonth(monthKey time.Time) {
	key := core.FormatMonth(monthKey)
	s.reportCache.Delete(key)
	s.scoreCache.Delete(key)
}

// Shutdown stops the cleanup goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds request logging, rate limiting on writes, and
// standard response headers.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			"client_ip", clientIP)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// rateLimiter caps POST requests per client IP.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}
