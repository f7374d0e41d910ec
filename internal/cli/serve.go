package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/canopyscan/canopy/pkg/buildinfo"
	"github.com/canopyscan/canopy/pkg/cache"
	"github.com/canopyscan/canopy/pkg/config"
	"github.com/canopyscan/canopy/pkg/npm"
	"github.com/canopyscan/canopy/pkg/runner"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dependency resolution over HTTP",
		Long: `Run a small HTTP server exposing resolution as an API.

  GET  /healthz        liveness probe
  POST /resolve        {"dir": "/path/to/project"} -> resolved graph JSON`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	return cmd
}

type resolveRequest struct {
	Dir           string   `json:"dir"`
	Strategy      string   `json:"strategy,omitempty"`
	ExcludeScopes []string `json:"excludeScopes,omitempty"`
	FetchInfo     bool     `json:"fetchInfo,omitempty"`
}

func serve(ctx context.Context, addr string) error {
	logger := loggerFromContext(ctx)

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	metaCache, err := openMetadataCache(cfg)
	if err != nil {
		logger.Warn("metadata cache disabled", "err", err)
		metaCache = cache.NewNullCache()
	}
	defer metaCache.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": buildinfo.Version,
		})
	})

	r.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
		var body resolveRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Dir == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dir is required"})
			return
		}

		scopes := make([]npm.Scope, 0, len(body.ExcludeScopes))
		for _, s := range body.ExcludeScopes {
			scopes = append(scopes, npm.Scope(s))
		}
		resolver := npm.NewResolver(runner.New(), npm.Options{
			Strategy:      npm.Strategy(body.Strategy),
			ExcludeScopes: scopes,
			Workers:       cfg.Workers,
			Cache:         metaCache,
			CacheTTL:      cfg.TTL(),
			FetchInfo:     body.FetchInfo,
			Logger:        logger,
		})
		g, err := resolver.Resolve(req.Context(), body.Dir)
		if err != nil {
			logger.Error("resolution failed", "dir", body.Dir, "err", err)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, g)
	})

	srv := &http.Server{Addr: addr, Handler: r}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
