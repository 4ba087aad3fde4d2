package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fundpulse/internal/cache"
	"fundpulse/internal/core"
	"fundpulse/internal/engine"
	"fundpulse/internal/feeds"
	"fundpulse/internal/middleware/ratelimit"
	"fundpulse/internal/middleware/security"
	"fundpulse/internal/middleware/trace"
)

// Options configures the API server.
type Options struct {
	Addr string
	Feed feeds.Feed

	// FetchTimeout bounds every upstream feed call. Defaults to 10s.
	FetchTimeout time.Duration

	// AllocationMinPct folds slices below this percentage into an
	// "Other" bucket. Zero disables grouping.
	AllocationMinPct float64

	// Defaults applied when a request names no sheet or investor.
	DefaultSheet    string
	DefaultInvestor string

	RequestsPerMinute int

	// Refresh, when set, is notified after a manual refresh so the sync
	// worker re-pulls the subject from upstream.
	Refresh RefreshPublisher
}

// RefreshPublisher forwards refresh requests to the sync worker.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, investor, sheet, reason string) error
}

// Server exposes portfolio metrics over a JSON API. One engine is kept
// per subject so applied ranges survive across requests, and refreshes
// fan out to SSE subscribers. Selector state is per subject, not per
// client: concurrent clients viewing the same subject share the
// committed window, and a range applied by one is served to all. Clients
// that need an independent window pass explicit from/to on each request.
type Server struct {
	http.Server

	feed         feeds.Feed
	fetchTimeout time.Duration
	minPct       float64
	defaults     core.Subject

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	headers  *security.HeadersMiddleware

	mu      sync.Mutex
	engines map[string]*engine.Engine

	periodsCache *cache.LRUCache[[]periodRow]
	roiCache     *cache.LRUCache[[]roiMonthlyRow]
	cacheManager *cache.Manager

	hub     *EventHub
	refresh RefreshPublisher

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()

	detector := security.NewDetector()
	limiterCfg := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RequestsPerMinute
	}

	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		feed:         opts.Feed,
		fetchTimeout: opts.FetchTimeout,
		minPct:       opts.AllocationMinPct,
		defaults:     core.Subject{Investor: opts.DefaultInvestor, Sheet: opts.DefaultSheet},
		detector:     detector,
		limiter:      ratelimit.NewLimiter(limiterCfg),
		tracer:       trace.NewMiddleware(detector.ExtractClientIP),
		headers:      security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		engines:      make(map[string]*engine.Engine),
		periodsCache: cache.NewLRUCache[[]periodRow](100, 5*time.Minute),
		roiCache:     cache.NewLRUCache[[]roiMonthlyRow](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
		hub:          NewEventHub(),
		refresh:      opts.Refresh,
	}

	s.cacheManager.Register(s.periodsCache)
	s.cacheManager.Register(s.roiCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/metrics/overview", s.wrap(s.handleOverview))
	mux.HandleFunc("/api/metrics/investor-overview", s.wrap(s.handleInvestorOverview))
	mux.HandleFunc("/api/metrics/allocation", s.wrap(s.handleAllocation))
	mux.HandleFunc("/api/metrics/periods", s.wrap(s.handlePeriods))
	mux.HandleFunc("/api/portfolio/roi_monthly", s.wrap(s.handleRoiMonthly))
	mux.HandleFunc("/api/refresh", s.wrap(s.handleRefresh))
	mux.HandleFunc("/api/events", s.wrap(s.handleEvents))

	return s
}

// wrap applies the standard middleware chain to a handler: security
// headers, suspicious-request rejection, rate limiting and tracing.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, nil)

	var h http.Handler = next
	h = limited(h)
	h = s.headers.Middleware(h)
	h = s.tracer.Middleware(h)

	return func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", s.detector.ExtractClientIP(r))
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		h.ServeHTTP(w, r)
	}
}

// engineFor returns the engine for a subject, building one on first use.
// Engines broadcast their committed results to the SSE hub.
func (s *Server) engineFor(subject core.Subject) (*engine.Engine, error) {
	key := subjectKey(subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	if eng, ok := s.engines[key]; ok {
		return eng, nil
	}

	eng, err := engine.New(engine.Config{
		Subject:      subject,
		Periods:      s.feed,
		Allocations:  s.feed,
		FetchTimeout: s.fetchTimeout,
		OnSnapshotsChanged: func(kpis core.KpiResult) {
			s.hub.Broadcast(Event{
				Type:     "kpis",
				Investor: subject.Investor,
				Sheet:    subject.Sheet,
				Payload:  kpiPayloadFrom(kpis),
			})
		},
		OnAllocationChanged: func(start, end core.AllocationBreakdown) {
			s.hub.Broadcast(Event{
				Type:     "allocation",
				Investor: subject.Investor,
				Sheet:    subject.Sheet,
				Payload: map[string]any{
					"start": allocationPayloadFrom(start, s.minPct),
					"end":   allocationPayloadFrom(end, s.minPct),
				},
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build engine for %q/%q: %w", subject.Investor, subject.Sheet, err)
	}

	s.engines[key] = eng
	return eng, nil
}

// ensureLoaded refreshes an engine that has never loaded data. Engines
// that already hold data serve it as-is; fresh data arrives through
// RefreshSubject.
func (s *Server) ensureLoaded(ctx context.Context, eng *engine.Engine) error {
	if eng.HasData() {
		return nil
	}
	err := eng.Refresh(ctx)
	if err != nil && core.IsStale(err) {
		// A concurrent request finished the load first.
		return nil
	}
	return err
}

// RefreshSubject reloads the subject's feed, drops derived caches and
// lets the engine callbacks notify SSE subscribers. Called from the
// refresh endpoint and from the AMQP consumer.
func (s *Server) RefreshSubject(ctx context.Context, subject core.Subject) error {
	eng, err := s.engineFor(subject)
	if err != nil {
		return err
	}

	s.invalidateSubject(subject)
	if err := eng.Refresh(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Server) invalidateSubject(subject core.Subject) {
	prefix := subjectKey(subject) + "|"
	s.periodsCache.InvalidatePrefix(prefix)
	s.roiCache.InvalidatePrefix(prefix)
}

func subjectKey(subject core.Subject) string {
	return subject.Investor + "|" + subject.Sheet
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.hub.Close()
		s.limiter.Stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no feed configured"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
