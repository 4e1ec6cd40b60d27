package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/config"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/observability"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/service"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/store"
)

func main() {
	cfg := config.LoadFromEnv()

	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	flag.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	flag.StringVar(&cfg.Store.DataDir, "data", cfg.Store.DataDir, "local store directory")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}

	s, err := newStore(cfg)
	if err != nil {
		logger.Errorf("store setup failed: %v", err)
		os.Exit(1)
	}

	metrics := observability.NewMetrics(nil)
	timers := observability.NewTimers()

	srv, err := service.NewServer(cfg, s, logger, metrics, timers)
	if err != nil {
		logger.Errorf("server setup failed: %v", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Errorf("shutdown: %v", err)
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			logger.Errorf("server: %v", err)
			os.Exit(1)
		}
	}
}

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == "s3" {
		return store.NewS3Store(context.Background(), store.S3Config{
			AccessKeyID:     cfg.Store.S3AccessKeyID,
			SecretAccessKey: cfg.Store.S3SecretKey,
			Region:          cfg.Store.S3Region,
			Endpoint:        cfg.Store.S3Endpoint,
			Bucket:          cfg.Store.S3Bucket,
			Prefix:          cfg.Store.S3Prefix,
			ForcePathStyle:  cfg.Store.S3ForcePathStyle,
		})
	}
	return store.NewLocalStore(cfg.Store.DataDir), nil
}
