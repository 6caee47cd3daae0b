// Package server exposes database inspection over http. Every browser gets its own inspector
// session, tracked by a cookie, and a small embedded page drives the json api.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/syncs"
	"github.com/google/uuid"

	"github.com/umputun/sqltes/pkg/config"
	"github.com/umputun/sqltes/pkg/inspector"
)

//go:embed web/index.html
var indexHTML []byte

const (
	cookieName   = "sqltes_session"
	maxBodySize  = 1 << 20
	shutdownWait = 5 * time.Second

	defaultSessionTTL  = 30 * time.Minute
	defaultMaxSessions = 100
)

// Server serves the inspector api. Config provides the data dir, default database, listen address
// and example queries. Watch enables logging of changes in the data dir.
// Sessions idle longer than SessionTTL are closed, as are the least recently used ones above MaxSessions.
type Server struct {
	Config      *config.Config
	Watch       bool
	SessionTTL  time.Duration // defaultSessionTTL if zero
	MaxSessions int           // defaultMaxSessions if zero

	once     sync.Once
	sessions cache.Cache[string, *webSession]
}

// webSession serializes requests of a single browser, inspector sessions are not safe for concurrent use
type webSession struct {
	mu     sync.Mutex
	sess   *inspector.Session
	closed bool
}

// close releases the database handle, closed sessions are never reused
func (ws *webSession) close(id string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return
	}
	ws.closed = true
	if err := ws.sess.Close(); err != nil {
		log.Printf("[WARN] can't close session %s: %v", id, err)
	}
	log.Printf("[DEBUG] session %s closed", id)
}

type execRequest struct {
	SQL string `json:"sql"`
}

type databaseRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Run starts http server on Config.Listen and blocks until ctx is canceled or the server fails.
// All sessions are closed on exit.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config.Listen)
	if err != nil {
		return fmt.Errorf("can't listen on %s: %w", s.Config.Listen, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	defer s.closeSessions()

	if s.Watch {
		watcher, err := s.watch()
		if err != nil {
			_ = ln.Close()
			return err
		}
		defer watcher.Close() // nolint
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := syncs.NewErrSizedGroup(3)
	wg.Go(func() error {
		defer cancel()
		log.Printf("[INFO] http server listening on %s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	wg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownWait)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("can't shutdown http server: %w", err)
		}
		log.Printf("[INFO] http server stopped")
		return nil
	})
	wg.Go(func() error {
		s.expireSessions(ctx)
		return nil
	})
	return wg.Wait()
}

// expireSessions closes idle sessions periodically until ctx is canceled
func (s *Server) expireSessions(ctx context.Context) {
	interval := min(max(s.sessionTTL()/2, 10*time.Millisecond), time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessionCache().DeleteExpired()
		}
	}
}

// Handler returns http handler with all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/database", s.withSession(s.handleGetDatabase))
	mux.HandleFunc("POST /api/database", s.withSession(s.handleOpenDatabase))
	mux.HandleFunc("GET /api/schema", s.withSession(s.handleSchema))
	mux.HandleFunc("POST /api/exec", s.withSession(s.handleExec))
	mux.HandleFunc("GET /api/tables/{name}", s.withSession(s.handleTable))
	mux.HandleFunc("GET /api/history", s.withSession(s.handleHistory))
	mux.HandleFunc("GET /api/examples", s.handleExamples)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetDatabase(w http.ResponseWriter, r *http.Request, sess *inspector.Session) {
	if sess.Path() == "" {
		if _, err := sess.ListSchema(r.Context()); err != nil { // opens the default database
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": sess.Path()})
}

func (s *Server) handleOpenDatabase(w http.ResponseWriter, r *http.Request, sess *inspector.Session) {
	var req databaseRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	path, err := sess.OpenOrCreate(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request, sess *inspector.Session) {
	schema, err := sess.ListSchema(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": schema})
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request, sess *inspector.Session) {
	var req execRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res, err := sess.Execute(r.Context(), req.SQL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResult(res))
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request, sess *inspector.Session) {
	res, err := sess.TableRows(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResult(res))
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request, sess *inspector.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"history": sess.History()})
}

func (s *Server) handleExamples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"levels": s.Config.Examples})
}

// withSession finds or creates the caller's session and holds its lock for the request
func (s *Server) withSession(fn func(http.ResponseWriter, *http.Request, *inspector.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws := s.session(w, r)
		ws.mu.Lock()
		for ws.closed { // evicted between lookup and lock
			ws.mu.Unlock()
			ws = s.session(w, r)
			ws.mu.Lock()
		}
		defer ws.mu.Unlock()
		log.Printf("[DEBUG] %s %s", r.Method, r.URL.Path)
		fn(w, r, ws.sess)
	}
}

// session returns the session from the request cookie, extending its ttl, or makes a new one
func (s *Server) session(w http.ResponseWriter, r *http.Request) *webSession {
	sessions := s.sessionCache()
	if c, err := r.Cookie(cookieName); err == nil {
		if ws, ok := sessions.Get(c.Value); ok {
			sessions.Set(c.Value, ws, 0)
			return ws
		}
	}

	id := uuid.NewString()
	ws := &webSession{sess: &inspector.Session{Dir: s.Config.DataDir, DefaultName: s.Config.DefaultDB}}
	sessions.Set(id, ws, 0)
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: id, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	log.Printf("[DEBUG] new session %s, total %d", id, sessions.Len())
	return ws
}

func (s *Server) sessionCache() cache.Cache[string, *webSession] {
	s.once.Do(func() {
		maxSessions := s.MaxSessions
		if maxSessions <= 0 {
			maxSessions = defaultMaxSessions
		}
		s.sessions = cache.NewCache[string, *webSession]().WithLRU().WithTTL(s.sessionTTL()).
			WithMaxKeys(maxSessions).WithOnEvicted(func(id string, ws *webSession) { ws.close(id) })
	})
	return s.sessions
}

func (s *Server) sessionTTL() time.Duration {
	if s.SessionTTL <= 0 {
		return defaultSessionTTL
	}
	return s.SessionTTL
}

// closeSessions closes and drops every session, expired ones included
func (s *Server) closeSessions() {
	sessions := s.sessionCache()
	sessions.DeleteExpired()
	for _, id := range sessions.Keys() {
		if ws, ok := sessions.Peek(id); ok {
			ws.close(id)
		}
		sessions.Invalidate(id)
	}
}

// watch logs changes of database files made outside of this server
func (s *Server) watch() (*fileutils.FileWatcher, error) {
	dir := s.Config.DataDir
	if dir == "" {
		dir = "."
	}
	if !fileutils.IsDir(dir) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("can't make data dir %s: %w", dir, err)
		}
	}
	watcher, err := fileutils.NewFileWatcher(dir, func(ev fileutils.FileEvent) {
		log.Printf("[INFO] data dir change: %s %v", ev.Path, ev.Type)
	})
	if err != nil {
		return nil, fmt.Errorf("can't watch data dir %s: %w", dir, err)
	}
	log.Printf("[INFO] watching data dir %s", dir)
	return watcher, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("can't decode request: %w", err)
	}
	return nil
}

// writeError maps inspector errors to status codes, bad names are 400 and failed statements 422
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var stErr *inspector.StatementError
	switch {
	case errors.Is(err, inspector.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.As(err, &stErr):
		status = http.StatusUnprocessableEntity
	default:
		log.Printf("[WARN] request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] can't encode response: %v", err)
	}
}

// jsonResult converts text blobs to strings, encoding/json would turn them into base64
func jsonResult(res inspector.Result) inspector.Result {
	for _, row := range res.Rows {
		for k, v := range row {
			if b, ok := v.([]byte); ok && utf8.Valid(b) {
				row[k] = string(b)
			}
		}
	}
	return res
}
