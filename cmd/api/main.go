package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/wolfman30/lab-scheduling-assistant/cmd/mainconfig"
	"github.com/wolfman30/lab-scheduling-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/lab-scheduling-assistant/internal/config"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is optional outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting lab-scheduling-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.BuildApp(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := newServer(cfg, app.Handler)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	if app.WebChat != nil {
		app.WebChat.CloseAll()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// loadAWSConfig returns nil when neither Bedrock nor SES is configured.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config) (*aws.Config, error) {
	if !mainconfig.NeedsAWS(cfg) {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &awsCfg, nil
}

// newServer leaves WriteTimeout unset: websocket sessions outlive any
// per-request deadline and chat turns carry their own budgets.
func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
