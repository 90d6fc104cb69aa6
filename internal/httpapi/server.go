package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/metrics"
	"github.com/you/echo-relay/internal/slackbot"
	"github.com/you/echo-relay/internal/twitterbot"
)

// AuditStore lists recorded outcomes.
type AuditStore interface {
	CountAudit(ctx context.Context, filters Filters) (int64, error)
	ListAudit(ctx context.Context, filters Filters) ([]core.AuditEvent, error)
}

// SlackBot is the routing engine behind the Slack endpoints.
type SlackBot interface {
	OnMessage(ctx context.Context, payload []byte) slackbot.Reply
	OnCommand(ctx context.Context, form url.Values) slackbot.Reply
}

// PageSource looks up Twitter reply pages by tweet id.
type PageSource interface {
	Get(id string) (*twitterbot.Post, bool)
}

type Options struct {
	Addr          string
	SigningSecret string
	RateRPS       float64
	RateBurst     int
	StaticDir     string
	AccessLog     bool
	Build         BuildInfo
	// Summary is served under "config" on /info; it must already be redacted.
	Summary any

	Slack      SlackBot
	Pages      PageSource
	Audit      AuditStore
	Metrics    *metrics.Metrics
	Dispatcher *Dispatcher
}

type subscriber struct {
	ch        chan core.AuditEvent
	filters   Filters
	transport string
}

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	opts       Options
	limiter    *ipRateLimiter
	dispatch   *Dispatcher

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

func New(opts Options) *Server {
	srv := &Server{
		mux:      http.NewServeMux(),
		opts:     opts,
		limiter:  newIPRateLimiter(opts.RateRPS, opts.RateBurst),
		dispatch: opts.Dispatcher,
		clients:  make(map[*subscriber]struct{}),
	}
	if srv.dispatch == nil {
		srv.dispatch = NewDispatcher(0, opts.Metrics)
	}

	srv.HandleFunc("/healthz", srv.handleHealthz)
	srv.HandleFunc("/info", srv.handleInfo)
	srv.mux.Handle("/metrics", opts.Metrics.Handler())

	if opts.Slack != nil {
		// Slack retries deliveries it sees throttled, so these are not limited.
		srv.handle("/slack_message", false, srv.handleSlackMessage)
		srv.handle("/slack_command", false, srv.handleSlackCommand)
	}
	if opts.Pages != nil {
		srv.handle("GET /twitter_reply/{id}", true, srv.handleTwitterReply)
	}
	if opts.Audit != nil {
		srv.handle("GET /audit", true, srv.handleAudit)
		srv.handle("GET /audit/count", true, srv.handleAuditCount)
	}
	srv.handle("GET /audit/stream", true, srv.handleAuditStream)
	srv.handle("GET /audit/ws", true, srv.handleAuditWS)

	if dir := opts.StaticDir; dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			srv.handle("/", true, http.FileServer(http.Dir(dir)).ServeHTTP)
		} else {
			log.Printf("http: static dir %q not found, static files disabled", dir)
		}
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// HandleFunc registers an unthrottled, instrumented route. It lets other
// packages mount endpoints on the same listener.
func (s *Server) HandleFunc(pattern string, fn func(http.ResponseWriter, *http.Request)) {
	s.handle(pattern, false, fn)
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) Dispatcher() *Dispatcher { return s.dispatch }

func (s *Server) handle(pattern string, limited bool, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.instrument(pattern, limited, fn))
}

func (s *Server) instrument(route string, limited bool, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)

		if limited && !s.limiter.Allow(remoteIP(r)) {
			s.opts.Metrics.IncRateLimited()
			http.Error(rec, "rate limited", http.StatusTooManyRequests)
		} else if gz, ok := maybeGzip(rec, r); ok {
			next(rec, r)
			_ = gz.Close()
		} else {
			next(rec, r)
		}

		dur := time.Since(start)
		s.opts.Metrics.ObserveRequest(route, r.Method, rec.Status(), dur)
		if s.opts.AccessLog {
			log.Printf("http: %s %s %d %dB %s ip=%s", r.Method, r.URL.Path, rec.Status(), rec.Bytes(), dur.Round(time.Millisecond), remoteIP(r))
		}
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleTwitterReply(w http.ResponseWriter, r *http.Request) {
	post, ok := s.opts.Pages.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(post.HTML()))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := s.opts.Audit.ListAudit(r.Context(), filters)
	if err != nil {
		log.Printf("http: list audit: %v", err)
		http.Error(w, "list error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []core.AuditEvent{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleAuditCount(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	count, err := s.opts.Audit.CountAudit(r.Context(), filters)
	if err != nil {
		http.Error(w, "count error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"count": count})
}

func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	sub, ok := s.subscribe(filters, "sse")
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(sub)
	s.opts.Metrics.IncSSEClients(1)
	defer s.opts.Metrics.IncSSEClients(-1)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, ":ok\n\n")
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":ping\n\n")
			flusher.Flush()
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: audit\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) subscribe(filters Filters, transport string) (*subscriber, bool) {
	sub := &subscriber{
		ch:        make(chan core.AuditEvent, 256),
		filters:   filters.CloneForStream(),
		transport: transport,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.clients[sub] = struct{}{}
	return sub, true
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.clients, sub)
	s.mu.Unlock()
}

// Broadcast fans an audit event out to live subscribers whose filters match.
// Slow subscribers drop events rather than block the caller.
func (s *Server) Broadcast(ev core.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.clients {
		if !sub.filters.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			s.opts.Metrics.IncBroadcastDrops(sub.transport)
		}
	}
}

func (s *Server) Start() error {
	log.Printf("http: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

// Shutdown closes live subscribers, stops the listener and then drains
// dispatched work, all bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for sub := range s.clients {
		close(sub.ch)
		delete(s.clients, sub)
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	if derr := s.dispatch.Drain(ctx); derr != nil {
		log.Printf("http: drain dispatched work: %v", derr)
		if err == nil {
			err = derr
		}
	}
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
