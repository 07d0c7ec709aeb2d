// Package visualization serves the simdash dashboard: an HTML shell plus a
// JSON API over session.Manager, PNG charts and Prometheus metrics.
package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/simdash/internal/chart"
	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/export"
	"github.com/nvandessel/simdash/internal/logging"
	"github.com/nvandessel/simdash/internal/pathutil"
	"github.com/nvandessel/simdash/internal/ratelimit"
	"github.com/nvandessel/simdash/internal/results"
	"github.com/nvandessel/simdash/internal/selection"
	"github.com/nvandessel/simdash/internal/series"
	"github.com/nvandessel/simdash/internal/session"
	"github.com/nvandessel/simdash/internal/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Options configures a Server. Zero values select defaults.
type Options struct {
	// Addr is the listen address; defaults to an OS-assigned local port.
	Addr string

	// ExportDir receives files written by the table save endpoint. Empty
	// disables the endpoint.
	ExportDir string

	// SessionIdle drops sessions untouched this long whenever a new session
	// is created. Zero keeps sessions until deleted.
	SessionIdle time.Duration

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// RunLimiter throttles runs per session. Nil means unlimited.
	RunLimiter *ratelimit.Limiter

	// Inputs prefills the dashboard's input box.
	Inputs string

	Chart  chart.Options
	Logger *slog.Logger
}

// Server serves the dashboard HTML and its session API.
type Server struct {
	sessions *session.Manager
	opts     Options
	logger   *slog.Logger
	index    *template.Template

	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a dashboard server over m.
func NewServer(m *session.Manager, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = constants.DefaultServerAddr
	}
	if opts.Chart.Width <= 0 || opts.Chart.Height <= 0 {
		opts.Chart = chart.DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Inputs == "" {
		opts.Inputs = "{}"
	}
	return &Server{
		sessions: m,
		opts:     opts,
		logger:   opts.Logger,
		index:    template.Must(template.ParseFS(templates, "templates/index.html")),
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleState))
	mux.HandleFunc("POST /api/sessions/{id}/run", s.withSession(s.handleRun))
	mux.HandleFunc("GET /api/sessions/{id}/options", s.withSession(s.handleOptions))
	mux.HandleFunc("GET /api/sessions/{id}/options/{key}", s.withSession(s.handleSubOptions))
	mux.HandleFunc("POST /api/sessions/{id}/select", s.withSession(s.handleSelect))
	mux.HandleFunc("POST /api/sessions/{id}/checklist", s.withSession(s.handleChecklist))
	mux.HandleFunc("POST /api/sessions/{id}/restyle", s.withSession(s.handleRestyle))
	mux.HandleFunc("POST /api/sessions/{id}/clear", s.withSession(s.handleClear))
	mux.HandleFunc("GET /api/sessions/{id}/projection", s.withSession(s.handleProjection))
	mux.HandleFunc("GET /api/sessions/{id}/chart.png", s.withSession(s.handleChart))
	mux.HandleFunc("GET /api/sessions/{id}/heatmap", s.withSession(s.handleHeatmap))
	mux.HandleFunc("GET /api/sessions/{id}/globals", s.withSession(s.handleGlobals))
	mux.HandleFunc("GET /api/sessions/{id}/globals.csv", s.withSession(s.handleGlobalsCSV))

	mux.HandleFunc("GET /api/sessions/{id}/table", s.withSession(s.handleTable))
	mux.HandleFunc("GET /api/sessions/{id}/table.csv", s.withSession(s.handleTableCSV))
	mux.HandleFunc("POST /api/sessions/{id}/table/export", s.withSession(s.handleTableExport))
	mux.HandleFunc("POST /api/sessions/{id}/table/append", s.withSession(s.handleTableAppend))
	mux.HandleFunc("POST /api/sessions/{id}/table/clear", s.withSession(s.handleTableClear))
	mux.HandleFunc("POST /api/sessions/{id}/table/save", s.withSession(s.handleTableSave))

	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard listening", "addr", s.addr)
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleIndex serves the dashboard HTML page with the API base URL configured.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Title   string
		APIBase string
		Inputs  string
	}{
		Title:   "simdash",
		APIBase: "http://" + r.Host,
		Inputs:  s.opts.Inputs,
	}

	var buf bytes.Buffer
	if err := s.index.Execute(&buf, data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, ok := s.sessions.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("session %q not found", id))
			return
		}
		h(w, r, sess)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.SessionIdle > 0 {
		if n := s.sessions.RemoveIdle(s.opts.SessionIdle); n > 0 {
			s.logger.Debug("removed idle sessions", "count", n)
		}
	}
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.Remove(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %q not found", id))
		return
	}
	if s.opts.RunLimiter != nil {
		s.opts.RunLimiter.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.State())
}

type runRequest struct {
	Inputs map[string]any `json:"inputs"`
}

type runResponse struct {
	Fingerprint string               `json:"fingerprint"`
	Globals     []export.GlobalRow   `json:"globals"`
	Selection   series.Selection     `json:"selection"`
	Projection  selection.Projection `json:"projection"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req runRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if s.opts.RunLimiter != nil {
		if ok, wait := s.opts.RunLimiter.Reserve(sess.ID()); !ok {
			s.handleError(w, r, &ratelimit.LimitError{Tool: "run", RetryAfter: wait})
			return
		}
	}

	globals, err := sess.Run(r.Context(), req.Inputs)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		Fingerprint: sess.Fingerprint().Key(),
		Globals:     export.GlobalRows(globals),
		Selection:   sess.Selection(),
		Projection:  sess.Projection(),
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	opts, err := sess.SeriesOptions(r.Context())
	if errors.Is(err, session.ErrNoData) {
		opts, err = session.Options{Options: []string{}}, nil
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleSubOptions(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	opts, err := sess.SubOptions(r.Context(), r.PathValue("key"))
	if errors.Is(err, session.ErrNoData) {
		opts, err = session.Options{Options: []string{}}, nil
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var sel series.Selection
	if !decodeBody(w, r, &sel) {
		return
	}
	p, err := sess.Select(r.Context(), sel)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var ev selection.Checklist
	if !decodeBody(w, r, &ev) {
		return
	}
	s.apply(w, r, sess, ev)
}

func (s *Server) handleRestyle(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	p, err := sess.ApplyRestyle(raw)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.apply(w, r, sess, selection.Clear{})
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, sess *session.Session, ev selection.Event) {
	p, err := sess.Apply(ev)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Projection())
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	opts := s.opts.Chart
	if v, err := strconv.Atoi(r.URL.Query().Get("width")); err == nil && v > 0 && v <= 4096 {
		opts.Width = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("height")); err == nil && v > 0 && v <= 4096 {
		opts.Height = v
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, sess.Projection(), opts); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()
	h, err := sess.Heatmap(r.Context(), series.Selection{Primary: q.Get("primary"), Secondary: q.Get("secondary")})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleGlobals(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rows, err := sess.GlobalTable(r.Context())
	if errors.Is(err, session.ErrNoData) {
		rows, err = []export.GlobalRow{}, nil
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGlobalsCSV(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	g, err := sess.Globals(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeCSV(w, r, "globals.csv", export.FromGlobals(g))
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Table())
}

func (s *Server) handleTableCSV(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.writeCSV(w, r, "series.csv", export.FromTable(sess.Table()))
}

func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, name string, f *export.Frame) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, f); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(buf.Bytes())
}

func (s *Server) handleTableExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	tbl, err := sess.ExportTable()
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tbl)
}

func (s *Server) handleTableAppend(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	res, err := sess.AppendTable()
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTableClear(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.ClearTable())
}

type saveRequest struct {
	// Path is relative to the export directory; its extension picks the format.
	Path string `json:"path"`
}

func (s *Server) handleTableSave(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req saveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if s.opts.ExportDir == "" {
		writeError(w, http.StatusForbidden, errors.New("no export directory configured"))
		return
	}
	if _, err := export.FormatFromPath(req.Path); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	path, err := pathutil.ResolveExportPath(s.opts.ExportDir, req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tbl := sess.Table()
	if tbl.IsEmpty() {
		writeError(w, http.StatusConflict, errors.New("table is empty"))
		return
	}
	if err := export.WriteFile(r.Context(), path, export.FromTable(tbl)); err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "rows": tbl.Len()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	sess.Reset()
	writeJSON(w, http.StatusOK, sess.State())
}

// handleError maps engine errors to HTTP statuses.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var limitErr *ratelimit.LimitError
	switch {
	case simulation.IsComputationError(err):
		s.logger.Warn("simulation failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &limitErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(limitErr.RetryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, chart.ErrNothingToRender):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, results.ErrKeyNotFound),
		errors.Is(err, results.ErrNotLeaf),
		errors.Is(err, results.ErrNotBranch):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, selection.ErrInvalidRestyle),
		errors.Is(err, selection.ErrUnknownEvent):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, session.ErrNoData):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
