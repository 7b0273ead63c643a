// Package transport exposes the command router and ledger queries over
// HTTP, alongside health, metrics and the live trade feed.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/bot"
	"github.com/papertrade/simulator/internal/ledger"
	"github.com/papertrade/simulator/internal/metrics"
	"github.com/papertrade/simulator/internal/model"
	"github.com/papertrade/simulator/internal/store"
)

// Commander runs one chat command. *bot.Router implements it.
type Commander interface {
	Handle(ctx context.Context, req bot.Request) string
}

// Deps are the services the HTTP layer fronts. Feed may be nil, in which
// case /api/v1/ws is not mounted.
type Deps struct {
	Commands Commander
	Ledger   *ledger.Service
	Pricer   ledger.Pricer
	Feed     http.HandlerFunc
	Logger   *zap.Logger
	Timeout  time.Duration
}

type handler struct {
	commands Commander
	ledger   *ledger.Service
	pricer   ledger.Pricer
	logger   *zap.Logger
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	h := &handler{
		commands: deps.Commands,
		ledger:   deps.Ledger,
		pricer:   deps.Pricer,
		logger:   deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"simulator"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The feed is long-lived and must not sit behind the request timeout.
		if deps.Feed != nil {
			r.Get("/ws", deps.Feed)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(deps.Timeout))
			r.Post("/commands", h.runCommand)
			r.Get("/portfolio/{userID}", h.getPortfolio)
		})
	})
	return r
}

type commandRequest struct {
	model.Profile
	Text string `json:"text"`
}

type commandResponse struct {
	Reply string `json:"reply"`
}

// runCommand handles POST /api/v1/commands.
func (h *handler) runCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, "text is required", http.StatusBadRequest)
		return
	}

	reply := h.commands.Handle(r.Context(), bot.Request{User: req.Profile, Text: req.Text})
	writeJSON(w, http.StatusOK, commandResponse{Reply: reply})
}

// getPortfolio handles GET /api/v1/portfolio/{userID}.
func (h *handler) getPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	p, err := h.ledger.Portfolio(r.Context(), userID, h.pricer)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("portfolio lookup failed", zap.String("user", userID), zap.Error(err))
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// cors allows browser clients on other origins.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
