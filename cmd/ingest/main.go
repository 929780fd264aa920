// Package main is the entry point for the ingest service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/config"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/deltasink"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/kafkasource"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/metrics"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/pipeline"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/registrycache"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/srhttp"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("kafka-delta-proto-ingest %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting ingest service",
		slog.String("version", version),
		slog.String("topic", cfg.Kafka.Topic),
		slog.String("registry_url", cfg.Registry.URL),
	)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			logger.Info("serving metrics", slog.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, m.Handler()); err != nil { //nolint:gosec // internal metrics listener, timeouts not required
				logger.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
	}

	var fetcherOpts []srhttp.Option
	if cfg.Registry.Username != "" {
		fetcherOpts = append(fetcherOpts, srhttp.WithBasicAuth(cfg.Registry.Username, cfg.Registry.Password))
	}
	fetcher := srhttp.New(cfg.Registry.URL, fetcherOpts...)
	cache := registrycache.New(fetcher, cfg.Registry.CacheSize, time.Hour, m)

	sink := deltasink.NewMemorySink()
	defer sink.Close()

	tableName := cfg.Delta.TableName
	if tableName == "" {
		tableName = cfg.Kafka.Topic
	}
	p := pipeline.New(cache, sink, m, logger, []pipeline.TopicConfig{
		{Topic: cfg.Kafka.Topic, FullName: cfg.Kafka.FullName, Table: tableName},
	})

	source, err := kafkasource.New(kafkasource.Config{
		Brokers: cfg.Kafka.Brokers,
		Topics:  []string{cfg.Kafka.Topic},
		Group:   cfg.Kafka.ConsumerGroup,
	}, logger)
	if err != nil {
		logger.Error("failed to create kafka source", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer source.Close()

	if configWatcher, err := fsnotify.NewWatcher(); err == nil && *configPath != "" {
		defer configWatcher.Close()
		if err := configWatcher.Add(*configPath); err == nil {
			go watchConfig(configWatcher, logger)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx, source)
	}()

	select {
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			logger.Error("pipeline error", slog.String("error", err.Error()))
			cancel()
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		cancel()
		<-runErr
	}

	logger.Info("shutdown complete")
}

// watchConfig logs config-file change events; the running process does not
// hot-swap Kafka or registry connections on a config edit, only surfaces
// that a reload would be needed.
func watchConfig(watcher *fsnotify.Watcher, logger *slog.Logger) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Info("configuration file changed, restart to apply", slog.String("file", event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", slog.String("error", err.Error()))
		}
	}
}
