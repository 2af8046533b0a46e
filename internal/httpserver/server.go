// internal/httpserver/server.go
//
// HTTP server wiring for the Storytopia backend.
// Responsibilities:
//   - Router + middleware (request IDs, access log, panic recovery, timeouts,
//     JSON, CORS, player identity).
//   - Public endpoints: "/", "/health", "/metrics", "/lessons".
//   - Canvas endpoints: mounted under /canvas (drawing sessions).
//   - Quest endpoints: mounted under /quests (quest sessions).
//   - Results endpoints: mounted under /results.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so the player cookie works).
//   - Generation routes get a longer timeout than the rest; the collaborator
//     routinely takes tens of seconds.
//   - The engines are the source of truth; handlers only translate HTTP into
//     engine calls and engine views back into JSON.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/storytopia/apps/go-server/internal/config"
	"github.com/robalobadob/storytopia/apps/go-server/internal/generator"
	"github.com/robalobadob/storytopia/apps/go-server/internal/lessons"
	"github.com/robalobadob/storytopia/apps/go-server/internal/metrics"
	"github.com/robalobadob/storytopia/apps/go-server/internal/quest"
	"github.com/robalobadob/storytopia/apps/go-server/internal/results"
	"github.com/robalobadob/storytopia/apps/go-server/internal/store"
)

// requestTimeout bounds every non-generation handler.
const requestTimeout = 10 * time.Second

// Generator is the generation collaborator. *generator.Client satisfies it.
type Generator interface {
	GenerateCharacter(ctx context.Context, drawingDataURL, userID string) (*generator.Character, error)
	GenerateQuest(ctx context.Context, req generator.QuestRequest) (*quest.Quest, error)
}

// Options wires the server's dependencies. Results and Metrics may be nil.
type Options struct {
	Config    config.Config
	Store     store.Store
	Results   *results.Store
	Generator Generator
	Metrics   *metrics.Metrics
	// Scheduler drives quest auto-advance; nil uses real timers.
	Scheduler quest.Scheduler
	Logger    *zerolog.Logger
}

// Server bundles router and dependencies.
type Server struct {
	r       *chi.Mux
	cfg     config.Config
	store   store.Store
	results *results.Store
	gen     Generator
	metrics *metrics.Metrics
	sched   quest.Scheduler
	log     zerolog.Logger
}

// New constructs a Server, installs middleware, and registers routes.
func New(opts Options) *Server {
	lg := log.Logger
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = quest.RealScheduler
	}
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     opts.Config,
		store:   opts.Store,
		results: opts.Results,
		gen:     opts.Generator,
		metrics: opts.Metrics,
		sched:   sched,
		log:     lg,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(hlog.NewHandler(lg))
	s.r.Use(requestIDLog)
	s.r.Use(hlog.AccessHandler(accessLog))
	s.r.Use(chimw.Recoverer)
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "storytopia-go",
			"endpoints": []string{"/health", "/lessons", "POST /canvas", "POST /quests", "/results/*"},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Handle("/metrics", promhttp.Handler())
	s.r.With(chimw.Timeout(requestTimeout)).Get("/lessons", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, lessons.All())
	})
	s.r.Get("/debug/sessions", func(w http.ResponseWriter, r *http.Request) {
		d, q := s.store.Counts()
		writeJSON(w, http.StatusOK, map[string]int{"drawings": d, "quests": q, "lessons": lessons.Stats()})
	})

	// Session endpoints identify the player; guests get a token on first use.
	s.r.Group(func(r chi.Router) {
		r.Use(s.withPlayer)
		s.mountCanvas(r)
		s.mountQuests(r)
		s.mountResults(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Start begins serving HTTP on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	if ttl := s.cfg.SessionIdleTTL; ttl > 0 {
		go s.sweepSessions(ctx, max(ttl/4, time.Second))
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// sweepSessions drops idle sessions every interval until ctx ends.
func (s *Server) sweepSessions(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.sweepOnce(now)
		}
	}
}

func (s *Server) sweepOnce(now time.Time) {
	drawings, quests := s.store.Sweep(now)
	for i := 0; i < quests; i++ {
		s.metrics.QuestEnded()
	}
	if drawings+quests > 0 {
		s.log.Info().Int("drawings", drawings).Int("quests", quests).Msg("swept idle sessions")
	}
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// generationTimeout bounds handlers that call the collaborator.
func (s *Server) generationTimeout() time.Duration {
	if s.cfg.GeneratorTimeout > 0 {
		return s.cfg.GeneratorTimeout + 5*time.Second
	}
	return 95 * time.Second
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	if origin == "" {
		origin = "http://localhost:3000"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-None-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag, "+playerTokenHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDLog tags the request logger with chi's request id.
func requestIDLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, d time.Duration) {
	lvl := zerolog.InfoLevel
	if status >= 500 {
		lvl = zerolog.WarnLevel
	}
	hlog.FromRequest(r).WithLevel(lvl).Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", d).
		Msg("request")
}

// ------------------------------- helpers -----------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr writes {"error":code,"detail":detail}; detail may be empty.
func writeErr(w http.ResponseWriter, status int, code, detail string) {
	body := map[string]string{"error": code}
	if detail != "" {
		body["detail"] = detail
	}
	writeJSON(w, status, body)
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
