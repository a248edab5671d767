package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve leads, run history and on-demand pipeline runs over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx, newMetrics())
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{
			ctx:      ctx,
			store:    env.Store,
			run:      env.Pipeline.Run,
			breakers: env.Breakers,
		}
		handler := buildRouter(api, cfg.Server.CORSOrigins, promhttp.Handler())

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runFunc executes one pipeline run.
type runFunc func(ctx context.Context) (*model.RunHistory, error)

// apiServer holds the dependencies of the HTTP handlers. run and breakers
// may be nil.
type apiServer struct {
	ctx      context.Context
	store    store.Store
	run      runFunc
	breakers *resilience.ServiceBreakers

	running atomic.Bool
	done    chan struct{} // closed when a triggered run finishes; tests only
}

// buildRouter mounts the API routes behind CORS and request logging.
func buildRouter(s *apiServer, origins []string, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/leads", s.listLeads)
		r.Get("/runs", s.listRuns)
		r.Post("/runs", s.triggerRun)
		r.Get("/runs/{id}", s.getRun)
	})
	return r
}

func (s *apiServer) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	storeStatus := "ok"
	if s.store == nil {
		storeStatus = "unavailable"
	} else if err := s.store.Ping(r.Context()); err != nil {
		storeStatus = err.Error()
	}
	if storeStatus != "ok" {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	body := map[string]any{"status": status, "store": storeStatus}
	if s.breakers != nil {
		body["breakers"] = s.breakers.States()
	}
	writeJSON(w, code, body)
}

func (s *apiServer) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.LeadFilter{Layer: model.Layer(q.Get("layer"))}
	if filter.Layer != "" && !filter.Layer.Valid() {
		writeError(w, http.StatusBadRequest, "layer must be est or new")
		return
	}
	var ok bool
	if filter.MinScore, ok = intParam(w, q.Get("min_score"), "min_score"); !ok {
		return
	}
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}

	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list leads", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list leads")
		return
	}
	if leads == nil {
		leads = []model.ScoredLead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(leads), "leads": leads})
}

func (s *apiServer) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return
	}
	runs, err := s.store.ListRunHistory(r.Context(), model.RunFilter{Limit: limit})
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.RunHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(runs), "runs": runs})
}

func (s *apiServer) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRunHistory(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case err != nil:
		zap.L().Error("api: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

// triggerRun starts a pipeline run in the background. Only one run may be
// in flight at a time.
func (s *apiServer) triggerRun(w http.ResponseWriter, _ *http.Request) {
	if s.run == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	go func() {
		defer func() {
			s.running.Store(false)
			if s.done != nil {
				close(s.done)
			}
		}()
		hist, err := s.run(s.ctx)
		if err != nil {
			zap.L().Error("api: triggered run failed", zap.Error(err))
			return
		}
		zap.L().Info("api: triggered run complete",
			zap.String("run_id", hist.ID),
			zap.Int("operators", hist.OperatorsFound),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// intParam parses an optional non-negative integer query parameter. It
// writes a 400 and returns false when the value is malformed.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
