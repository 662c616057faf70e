package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealsense/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for analysis requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/opportunities/{id}/analyze", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			force := req.URL.Query().Get("force") == "true"

			result, err := env.Pipeline.Run(req.Context(), id, force)
			if err != nil {
				if errors.Is(err, pipeline.ErrContextUnavailable) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "opportunity context unavailable"})
					return
				}
				zap.L().Error("api analysis failed",
					zap.String("opportunity", id),
					zap.Error(err),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "analysis failed"})
				return
			}
			writeJSON(w, http.StatusOK, result)
		})

		r.Get("/opportunities/{id}/extractions", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			latest, err := env.Store.LatestPerType(req.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "load extractions failed"})
				return
			}
			writeJSON(w, http.StatusOK, latest)
		})

		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			snapshots, err := env.Metrics.Collect(req.Context(), req.URL.Query().Get("opportunity"))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "collect metrics failed"})
				return
			}
			writeJSON(w, http.StatusOK, snapshots)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
