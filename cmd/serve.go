package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/planner"
	"github.com/sells-group/trip-planner/internal/recovery"
	"github.com/sells-group/trip-planner/internal/stage"
	"github.com/sells-group/trip-planner/internal/store"
)

var servePort int

// maxRequestBytes bounds POST /api/trips bodies.
const maxRequestBytes = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Planner, env.Store, env.Catalog.Graph()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// tripPlanner answers planning requests.
type tripPlanner interface {
	Plan(ctx context.Context, req model.Request) (*planner.Outcome, error)
}

// newRouter builds the API routes.
func newRouter(p tripPlanner, st store.Store, graph *stage.Graph) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/trips", planHandler(p))
		r.Get("/trips", listTripsHandler(st))
		r.Get("/trips/{id}", getTripHandler(st))
		r.Get("/stages", stagesHandler(graph))
	})
	return r
}

func planHandler(p tripPlanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		out, err := p.Plan(r.Context(), req)
		if err != nil {
			var execErr *recovery.ExecutionError
			switch {
			case errors.Is(err, planner.ErrInvalidRequest):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.As(err, &execErr):
				writeJSON(w, http.StatusBadGateway, map[string]string{
					"error":  "trip planning failed",
					"run_id": execErr.RunID,
				})
			default:
				zap.L().Error("plan request failed", zap.Error(err))
				writeError(w, http.StatusBadGateway, "trip planning failed")
			}
			return
		}

		body, err := out.Body()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encode response")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func listTripsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := model.TripFilter{
			Destination: q.Get("destination"),
			Status:      model.RunStatus(q.Get("status")),
		}
		var err error
		if filter.Limit, err = intParam(q.Get("limit")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if filter.Offset, err = intParam(q.Get("offset")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}

		trips, err := st.ListTrips(r.Context(), filter)
		if err != nil {
			zap.L().Error("list trips failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list trips failed")
			return
		}
		if trips == nil {
			trips = []model.Trip{}
		}
		writeJSON(w, http.StatusOK, trips)
	}
}

func getTripHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trip, err := st.GetTrip(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trip not found")
			return
		}
		if err != nil {
			zap.L().Error("get trip failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get trip failed")
			return
		}
		writeJSON(w, http.StatusOK, trip)
	}
}

type stageView struct {
	Group     int      `json:"group"`
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on"`
	Gate      bool     `json:"gate,omitempty"`
}

func stagesHandler(g *stage.Graph) http.HandlerFunc {
	var views []stageView
	for i, grp := range g.Groups() {
		for _, s := range grp {
			deps := s.DependsOn
			if deps == nil {
				deps = []string{}
			}
			views = append(views, stageView{Group: i, Name: s.Name, DependsOn: deps, Gate: s.AbortOnNegative})
		}
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, views)
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
