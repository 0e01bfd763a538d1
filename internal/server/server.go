package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pairpad/internal/config"
	"github.com/michaelbrown/pairpad/internal/execution"
	"github.com/michaelbrown/pairpad/internal/room"
	"github.com/michaelbrown/pairpad/internal/session"
	"github.com/michaelbrown/pairpad/internal/storage"
)

// Server is the HTTP and websocket front end of pairpad.
type Server struct {
	cfg      *config.Config
	sessions *session.MemoryStore
	hub      *room.Hub
	engine   *execution.Engine
	journal  storage.Store // nil when the run journal is disabled
	log      *slog.Logger
	router   chi.Router
	http     *http.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	sockets   map[*websocket.Conn]struct{}
	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// New creates a new Server. journal may be nil.
func New(cfg *config.Config, sessions *session.MemoryStore, engine *execution.Engine, journal storage.Store, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		hub:      room.NewHub(sessions, log),
		engine:   engine,
		journal:  journal,
		log:      log.With("component", "server"),
		router:   chi.NewRouter(),
		sockets:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			// Sessions are open to anyone holding the id.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Post("/session", s.handleCreateSession)
		r.Get("/session/{id}", s.handleGetSession)
		r.Get("/session/{id}/runs", s.handleListRuns)
		r.Post("/execute", s.handleExecute)
	})

	// SPA fallback
	r.Handle("/*", spaHandler())
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the room hub.
func (s *Server) Hub() *room.Hub { return s.hub }

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request with its chi request id.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					"id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Start begins listening on the configured port. It returns nil after a
// graceful Shutdown.
func (s *Server) Start() error {
	s.StartSweeper()

	s.log.Info("pairpad server starting", "addr", "http://localhost"+s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartSweeper evicts idle sessions in the background when an idle TTL is
// configured. Shutdown stops it.
func (s *Server) StartSweeper() {
	ttl, every := s.cfg.Session.IdleTTL, s.cfg.Session.SweepInterval
	if ttl <= 0 || every <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopSweep != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stopSweep, s.sweepDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.sessions.Sweep(now); n > 0 {
					s.log.Info("evicted idle sessions", "count", n, "remaining", s.sessions.Len())
				}
			}
		}
	}()
}

// Shutdown stops accepting requests, disconnects websocket clients and
// releases the execution engine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")

	s.mu.Lock()
	stop, done := s.stopSweep, s.sweepDone
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	errs := []error{s.http.Shutdown(shutdownCtx)}

	// Hijacked connections are not tracked by http.Server.
	s.mu.Lock()
	for ws := range s.sockets {
		ws.Close()
	}
	s.mu.Unlock()

	errs = append(errs, s.engine.Close())
	return errors.Join(errs...)
}

func (s *Server) track(ws *websocket.Conn) {
	s.mu.Lock()
	s.sockets[ws] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(ws *websocket.Conn) {
	s.mu.Lock()
	delete(s.sockets, ws)
	s.mu.Unlock()
}
