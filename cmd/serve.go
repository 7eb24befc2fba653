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

	"github.com/verdantly/proposal-cli/internal/fault"
	"github.com/verdantly/proposal-cli/internal/model"
	"github.com/verdantly/proposal-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proposal HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/proposals", func(w http.ResponseWriter, req *http.Request) {
			var body model.ProposalRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			proposal, err := env.Pipeline.Generate(req.Context(), body)
			if err != nil {
				writeFault(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, proposal)
		})

		r.Get("/proposals", func(w http.ResponseWriter, req *http.Request) {
			filter := store.ProposalFilter{Client: req.URL.Query().Get("client")}
			if v := req.URL.Query().Get("limit"); v != "" {
				filter.Limit, _ = strconv.Atoi(v)
			}
			if v := req.URL.Query().Get("offset"); v != "" {
				filter.Offset, _ = strconv.Atoi(v)
			}

			proposals, err := env.Store.ListProposals(req.Context(), filter)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list proposals failed"})
				return
			}
			if proposals == nil {
				proposals = []model.PersistedProposal{}
			}
			writeJSON(w, http.StatusOK, proposals)
		})

		r.Get("/proposals/{id}", func(w http.ResponseWriter, req *http.Request) {
			proposal, err := env.Store.GetProposal(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "proposal not found"})
				return
			}
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get proposal failed"})
				return
			}
			writeJSON(w, http.StatusOK, proposal)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown. The signal context is already cancelled by the
		// time we get here, so the drain gets its own deadline.
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFault maps a pipeline failure onto an HTTP status by its kind.
// Rejections are the caller's problem, rate limits carry a Retry-After, and
// everything else is an upstream or internal failure.
func writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]string{"error": err.Error()}

	if f, ok := fault.As(err); ok {
		body["kind"] = string(f.Kind)
		body["error"] = f.Reason
		switch f.Kind {
		case fault.KindRejection:
			status = http.StatusUnprocessableEntity
		case fault.KindProvider:
			status = http.StatusBadGateway
		case fault.KindRateLimited:
			status = http.StatusServiceUnavailable
			secs := int(f.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	writeJSON(w, status, body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
