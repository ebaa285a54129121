// Package devserver is an in-memory chat backend speaking the same REST and
// push contract as production. It exists for local development and for
// end-to-end tests of the chat client; nothing it stores survives a restart.
package devserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultSendQueueSize = 256
	minSendQueueSize     = 32
	defaultWriteTimeout  = 5 * time.Second
	defaultReadIdle      = 2 * time.Minute
	closeGrace           = time.Second
	maxPingFailures      = 3
)

// Server is the dev backend. Mount Handler on an http.Server.
type Server struct {
	log      *slog.Logger
	dir      *Directory
	store    *MemoryStore
	hub      *Hub
	metrics  *serverMetrics
	registry *prometheus.Registry
	now      func() time.Time

	pushDisabled   bool
	allowedOrigins []string
	originPatterns []string

	sendQueueSize    int
	writeTimeout     time.Duration
	readIdleTimeout  time.Duration
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
	rateEvents       int
	rateWindow       time.Duration
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDirectory replaces the default two-user directory.
func WithDirectory(d *Directory) Option {
	return func(s *Server) {
		if d != nil {
			s.dir = d
		}
	}
}

// WithPushDisabled turns the WebSocket endpoint off so clients fall back to polling.
func WithPushDisabled() Option {
	return func(s *Server) { s.pushDisabled = true }
}

// WithAllowedOrigins restricts browser origins on the push endpoint. Requests
// without an Origin header are always accepted.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = nil
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				s.allowedOrigins = append(s.allowedOrigins, o)
			}
		}
	}
}

func WithHeartbeat(every, timeout time.Duration) Option {
	return func(s *Server) {
		if every > 0 {
			s.heartbeatEvery = every
		}
		if timeout > 0 {
			s.heartbeatTimeout = timeout
		}
	}
}

func WithRateLimit(events int, window time.Duration) Option {
	return func(s *Server) {
		if events > 0 {
			s.rateEvents = events
		}
		if window > 0 {
			s.rateWindow = window
		}
	}
}

func WithSendQueue(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendQueueSize = n
		}
	}
}

// WithRegistry registers the server metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		log:              slog.Default(),
		dir:              DefaultDirectory(),
		store:            NewMemoryStore(),
		now:              time.Now,
		sendQueueSize:    defaultSendQueueSize,
		writeTimeout:     defaultWriteTimeout,
		readIdleTimeout:  defaultReadIdle,
		heartbeatEvery:   heartbeatInterval,
		heartbeatTimeout: heartbeatTimeout,
		rateEvents:       rateLimitEvents,
		rateWindow:       rateLimitWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.sendQueueSize < minSendQueueSize {
		s.sendQueueSize = minSendQueueSize
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector())
	}
	s.originPatterns = deriveOriginPatterns(s.allowedOrigins)
	s.metrics = newServerMetrics(s.registry)
	s.hub = newHub(s.log, s.metrics)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /v1/profiles", s.handleProfiles)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleConversation)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handleCreateMessage)
	mux.HandleFunc("POST /v1/conversations/{id}/read", s.handleMarkRead)

	mux.HandleFunc("GET /ws", s.handleWS)

	return mux
}

// Store exposes the backing store for seeding in tests and tools.
func (s *Server) Store() *MemoryStore { return s.store }

// Hub exposes room membership and presence.
func (s *Server) Hub() *Hub { return s.hub }
