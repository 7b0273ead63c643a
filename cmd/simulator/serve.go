package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/events"
	"github.com/papertrade/simulator/internal/transport"
)

type serveCmd struct {
	requestTimeout time.Duration
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP command API and the live trade feed" }
func (*serveCmd) Usage() string {
	return `simulator serve [-timeout <duration>]

  Serves POST /api/v1/commands, GET /api/v1/portfolio/{userID},
  GET /api/v1/ws, /health and /metrics on $PORT until SIGINT or SIGTERM.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.requestTimeout, "timeout", 30*time.Second, "Per-request timeout for API calls.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer logger.Sync()

	if cfg.AlphaVantageKey == "" {
		logger.Error("ALPHA_VANTAGE_API_KEY is required")
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- WebSocket hub ---
	hub := events.NewHub(logger)
	hubDone := make(chan struct{})
	hubCtx, stopHub := context.WithCancel(context.Background())
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	a, err := newApp(ctx, cfg, logger, hub)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		stopHub()
		<-hubDone
		return subcommands.ExitFailure
	}
	defer a.Close()

	handler := transport.NewRouter(transport.Deps{
		Commands: a.router,
		Ledger:   a.ledger,
		Pricer:   a.provider,
		Feed:     hub.HandleWS,
		Logger:   logger,
		Timeout:  c.requestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: c.requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("simulator listening",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.AppEnv),
			zap.Strings("commands", a.router.Commands()),
		)
		errc <- srv.ListenAndServe()
	}()

	status := subcommands.ExitSuccess
	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			status = subcommands.ExitFailure
		}
	}

	logger.Info("shutting down simulator...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	stopHub()
	<-hubDone
	logger.Info("simulator stopped")
	return status
}
