// Package app wires the unimatch runtime: config, logging, the chat client
// stack and the dev backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"unimatch/cmd/internal/api"
	"unimatch/cmd/internal/chat"
	"unimatch/cmd/internal/devserver"
	"unimatch/cmd/internal/push"
	"unimatch/cmd/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// ChatRuntime is a signed-in chat client and the connections it owns.
type ChatRuntime struct {
	Client  *chat.Client
	Session *session.Session

	log  Logger
	push *push.Client
}

// NewChatRuntime builds the chat client stack from cfg. When the push channel
// cannot be dialed the client runs without one and every view polls.
func NewChatRuntime(ctx context.Context, cfg ClientConfig, log Logger, reg prometheus.Registerer) (*ChatRuntime, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("client token is required (UNIMATCH_TOKEN)")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("client user id is required (UNIMATCH_USER_ID)")
	}

	sess := session.New(cfg.UserID, cfg.Token)

	rest, err := api.NewClient(cfg.BaseURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		api.WithLogger(log),
		api.WithUserAgent("unimatch-cli/1"),
	)
	if err != nil {
		return nil, err
	}

	opts := []chat.Option{
		chat.WithLogger(log),
		chat.WithPollInterval(cfg.PollInterval),
		chat.WithJoinTimeout(cfg.JoinTimeout),
		chat.WithDuplicateWindow(cfg.DuplicateWindow),
	}
	if reg != nil {
		opts = append(opts, chat.WithMetrics(chat.NewMetrics(reg)))
	}

	rt := &ChatRuntime{Session: sess, log: log}

	if u := cfg.ResolvedPushURL(); u != "" {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.JoinTimeout)
		pc, err := push.Dial(dialCtx, u, cfg.Token, push.WithLogger(log))
		cancel()
		if err != nil {
			log.Warn("chat.push.unavailable", "url", u, "err", err)
		} else {
			rt.push = pc
			opts = append(opts, chat.WithPush(pc))
		}
	}

	rt.Client = chat.NewClient(rest, sess, opts...)
	return rt, nil
}

// Close closes the active view and the push connection.
func (r *ChatRuntime) Close() {
	r.Client.Close()
	if r.push != nil {
		_ = r.push.Close()
	}
}

// Logout tears the runtime down and clears the session.
func (r *ChatRuntime) Logout() {
	r.Close()
	r.Session.Clear()
	r.log.Info("session.clear", "session_id", r.Session.ID())
}

// NewDevServer builds the dev backend from cfg.
func NewDevServer(cfg ServerConfig, log Logger, reg *prometheus.Registry) *devserver.Server {
	opts := []devserver.Option{
		devserver.WithLogger(log),
		devserver.WithRegistry(reg),
		devserver.WithAllowedOrigins(cfg.AllowedOrigins),
	}
	if cfg.Directory != nil {
		opts = append(opts, devserver.WithDirectory(cfg.Directory))
	}
	if cfg.DisablePush {
		opts = append(opts, devserver.WithPushDisabled())
	}
	return devserver.New(opts...)
}

// DevServerHandler wraps the dev backend with the HTTP middleware chain.
func DevServerHandler(s *devserver.Server, cfg ServerConfig, log Logger) http.Handler {
	return WithRequestLogging(WithSecurityHeaders(WithCORS(s.Handler(), cfg.CORS, log)), log)
}

// RunDevServer serves the dev backend until ctx is done.
func RunDevServer(ctx context.Context, cfg ServerConfig, log Logger) error {
	reg := prometheus.NewRegistry()
	s := NewDevServer(cfg, log, reg)

	// No read or write deadline: push sessions are long lived.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           DevServerHandler(s, cfg, log),
		ReadHeaderTimeout: nonZeroDuration(cfg.ReadHeaderTimeout, 5*time.Second),
		IdleTimeout:       nonZeroDuration(cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(cfg.MaxHeaderBytes, 1<<20),
	}

	log.Info("devserver.start",
		"addr", cfg.HTTPAddr,
		"base_url", runtimeBaseURL(cfg.HTTPAddr),
		"push_url", wsBaseURL(runtimeBaseURL(cfg.HTTPAddr))+"/ws",
		"push_enabled", !cfg.DisablePush,
	)
	return serve(ctx, srv, log, "devserver")
}

// ServeMetrics exposes reg on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics.start", "addr", addr)
	return serve(ctx, srv, log, "metrics")
}

func serve(ctx context.Context, srv *http.Server, log Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info(name+".stop", "reason", "context_done")
	case err := <-errCh:
		log.Error(name+".fail", "err", err)
		return fmt.Errorf("%s: listen: %w", name, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(name+".shutdown.fail", "err", err)
		return err
	}
	log.Info(name + ".stopped")
	return nil
}

// runtimeBaseURL turns a listen address into a URL clients can dial.
// Wildcard binds map to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL to its ws(s) form.
func wsBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
		return base
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
