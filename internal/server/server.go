package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cayyus/engineerverse/internal/bsky"
	"github.com/cayyus/engineerverse/internal/config"
	"github.com/cayyus/engineerverse/internal/engine"
	"github.com/cayyus/engineerverse/internal/scheduler"
	"github.com/cayyus/engineerverse/internal/store"
)

// Server is the feed generator HTTP server.
type Server struct {
	db        *store.DB
	curator   *engine.Curator
	sampler   *engine.Sampler
	scheduler *scheduler.Scheduler
	registry  *prometheus.Registry
	logger    *slog.Logger

	feed         config.FeedConfig
	feedURI      string
	defaultLimit int
	maxLimit     int

	router  chi.Router
	version string
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithCurator enables getFeedSkeleton. Without it the endpoint answers 503.
func WithCurator(c *engine.Curator) Option {
	return func(s *Server) { s.curator = c }
}

// WithSampler exposes the live term weights at /api/weights.
func WithSampler(sm *engine.Sampler) Option {
	return func(s *Server) { s.sampler = sm }
}

// WithScheduler reports background jobs in /api/health.
func WithScheduler(sc *scheduler.Scheduler) Option {
	return func(s *Server) { s.scheduler = sc }
}

// WithRegistry serves reg at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithFeed sets the feed identity served by describeFeedGenerator and
// did.json and accepted by getFeedSkeleton.
func WithFeed(f config.FeedConfig) Option {
	return func(s *Server) { s.feed = f }
}

// WithLimits sets the default and maximum page size.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Server) {
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
		if defaultLimit > 0 && defaultLimit <= s.maxLimit {
			s.defaultLimit = defaultLimit
		}
	}
}

// New creates a new Server with the given database and version string.
func New(db *store.DB, version string, opts ...Option) *Server {
	s := &Server{
		db:           db,
		feed:         config.Default().Feed,
		defaultLimit: engine.DefaultLimit,
		maxLimit:     100,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		version:      version,
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.feedURI = bsky.FeedURI(s.feed.Publisher(), s.feed.RecordName)
	s.routes()
	return s
}

// FeedURI is the at:// URI clients request the feed by.
func (s *Server) FeedURI() string { return s.feedURI }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logging(s.logger))
	r.Use(ViewerDID)

	r.Get("/.well-known/did.json", s.handleDIDDocument)

	r.Route("/xrpc", func(r chi.Router) {
		r.Get("/app.bsky.feed.getFeedSkeleton", s.handleGetFeedSkeleton)
		r.Get("/app.bsky.feed.describeFeedGenerator", s.handleDescribeFeedGenerator)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/batches", s.handleBatches)
		r.Get("/weights", s.handleWeights)
	})

	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db != nil && s.db.Ping() == nil

	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"curator": s.curator != nil,
	}
	if s.db != nil {
		body["db_path"] = s.db.Path
	}
	if s.curator != nil {
		body["cached_batches"] = s.curator.Cache().Len()
		body["current_batch"] = s.curator.Cache().CurrentBatchID()
	}
	if s.scheduler != nil {
		body["jobs"] = s.scheduler.ListJobs()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeXRPCError writes the {"error","message"} body XRPC clients expect.
func writeXRPCError(w http.ResponseWriter, r *http.Request, status int, name, message string) {
	setErrorCode(r, name)
	writeJSON(w, status, map[string]string{
		"error":   name,
		"message": message,
	})
}
