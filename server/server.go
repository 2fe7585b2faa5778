// Package server provides the forward-proxy front end of uaemulate.
//
// Absolute-form requests (GET http://host/path) are forwarded upstream
// through the emulation transport.  Origin-form requests are served locally:
//   - GET  /healthz             – liveness probe
//   - GET  /api/metrics         – metrics snapshot (JSON)
//   - GET  /api/metrics/stream  – SSE stream of metrics snapshots
//   - GET  /api/profiles        – loaded profiles (JSON)
//
// CONNECT is refused with 501: a tunnel carries opaque TLS, so its headers
// cannot be emulated.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/time/rate"

	"github.com/firasghr/uaemulate/emulate"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
	"github.com/firasghr/uaemulate/metrics"
)

// ProfileSummary describes one loaded profile on /api/profiles.
type ProfileSummary struct {
	Name        string `json:"name"`
	UAKind      string `json:"ua_kind"`
	UAVersion   int    `json:"ua_version"`
	Platform    string `json:"platform,omitempty"`
	ClientHello string `json:"client_hello,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// Config groups the dependencies of New.
type Config struct {
	// Transport forwards absolute-form requests, normally an
	// *emulate.Transport.
	Transport http.RoundTripper

	Metrics  *metrics.Metrics
	Profiles []*fingerprint.Profile
	Log      *logger.Logger

	// Limiter throttles forwarded requests; nil disables throttling.
	Limiter *rate.Limiter

	// RequestTimeout bounds one forwarded exchange; zero means none.
	RequestTimeout time.Duration

	// StreamInterval is the tick of /api/metrics/stream.  Defaults to one
	// second.
	StreamInterval time.Duration
}

// Server is the forward proxy.  It implements http.Handler.
type Server struct {
	cfg Config
	mux *http.ServeMux

	subMu sync.Mutex
	subs  map[chan metrics.Snapshot]struct{}
}

// New returns a Server for cfg.
func New(cfg Config) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	s := &Server{
		cfg:  cfg,
		mux:  http.NewServeMux(),
		subs: make(map[chan metrics.Snapshot]struct{}),
	}
	s.registerRoutes()
	return s
}

// ─── Lifecycle ────────────────────────────────────────────────────────────────

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.  It also drives the metrics stream ticker.
//
// WriteTimeout is disabled: forwarded downloads and SSE streams are
// unbounded, and forwarded exchanges are bounded by RequestTimeout instead.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	tickCtx, stopTicker := context.WithCancel(ctx)
	defer stopTicker()
	go s.RunTicker(tickCtx)

	errCh := make(chan error, 1)
	go func() {
		s.cfg.Log.Infof("server: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodConnect:
		s.cfg.Log.Debugf("server: CONNECT %s refused", r.Host)
		http.Error(w, "CONNECT tunnels cannot be emulated", http.StatusNotImplemented)
	case r.URL.IsAbs():
		s.forward(w, r)
	default:
		s.mux.ServeHTTP(w, r)
	}
}

// ─── Forwarding ───────────────────────────────────────────────────────────────

// hopHeaders are removed from both directions of a forwarded exchange, in
// addition to any header named by Connection.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if token = textproto.TrimString(token); httpguts.ValidHeaderFieldName(token) {
				h.Del(token)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if r.URL.Scheme != "http" && r.URL.Scheme != "https" {
		http.Error(w, "unsupported scheme "+r.URL.Scheme, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	out := r.Clone(ctx)
	out.RequestURI = ""
	out.Close = false
	if r.ContentLength == 0 {
		out.Body = nil
	}
	removeHopHeaders(out.Header)
	// Browsers speak HTTP/2 to https origins whenever they can.
	if out.URL.Scheme == "https" && out.Body == nil {
		out.Proto, out.ProtoMajor, out.ProtoMinor = "HTTP/2.0", 2, 0
	}

	resp, err := s.transport().RoundTrip(out)
	if err != nil {
		status := statusForError(err)
		s.cfg.Log.WithFields(map[string]interface{}{
			"method": r.Method,
			"url":    r.URL.Redacted(),
			"status": status,
		}).Errorf("server: forward failed: %v", err)
		http.Error(w, http.StatusText(status)+": "+err.Error(), status)
		return
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(flushWriter{w}, resp.Body); err != nil {
		s.cfg.Log.Debugf("server: copy body of %s: %v", r.URL.Redacted(), err)
	}
}

// statusForError maps a transport error to the status returned to the
// proxy client.
func statusForError(err error) int {
	var orderErr *emulate.InvalidHeaderOrderValueError
	switch {
	case errors.Is(err, emulate.ErrProfileRequired):
		return http.StatusServiceUnavailable
	case errors.As(err, &orderErr), errors.Is(err, emulate.ErrInvalidOverwrites):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// flushWriter flushes after every write so streamed responses reach the
// client as they arrive.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}

func (s *Server) transport() http.RoundTripper {
	if s.cfg.Transport != nil {
		return s.cfg.Transport
	}
	return http.DefaultTransport
}

// ─── Local routes ─────────────────────────────────────────────────────────────

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/metrics", withCORS(s.handleMetrics))
	s.mux.HandleFunc("/api/metrics/stream", withCORS(s.handleMetricsStream))
	s.mux.HandleFunc("/api/profiles", withCORS(s.handleProfiles))
}

func withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.cfg.Log.Errorf("server: encode response: %v", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.cfg.Metrics.Snapshot())
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	out := make([]ProfileSummary, 0, len(s.cfg.Profiles))
	for _, p := range s.cfg.Profiles {
		out = append(out, ProfileSummary{
			Name:        p.String(),
			UAKind:      string(p.UAKind),
			UAVersion:   p.UAVersion,
			Platform:    string(p.Platform),
			ClientHello: p.TLS.ClientHello,
			UserAgent:   p.UserAgent(),
		})
	}
	s.writeJSON(w, out)
}

// ─── /api/metrics/stream ──────────────────────────────────────────────────────

// RunTicker pushes a metrics snapshot to every stream subscriber each
// StreamInterval until ctx is done.  ListenAndServe runs it; callers that
// mount the Server elsewhere run it themselves.
func (s *Server) RunTicker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(s.cfg.Metrics.Snapshot())
		}
	}
}

func (s *Server) broadcast(snap metrics.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Slow subscriber – drop rather than block.
		}
	}
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan metrics.Snapshot, 16)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	defer func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}()

	// Send the current state first so clients need not wait a full tick.
	if err := sseWrite(w, s.cfg.Metrics.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			if err := sseWrite(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sseWrite(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
