package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"eurexflow/config"
	"eurexflow/internal/channel"
	"eurexflow/logger"
	"eurexflow/processor"
	"eurexflow/reader"
	"eurexflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Eurexflow.Name,
		"version":     cfg.Eurexflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting eurexflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Cloudwatch.Enabled {
		logger.InitCloudWatch(cfg.Cloudwatch.Region, cfg.Cloudwatch.Namespace, cfg.Cloudwatch.Dashboard)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.MetricsBuffer,
	)

	go channels.StartMetricsReporting(ctx)

	metricsWriter, err := writer.NewMetricsWriter(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to create metrics writer")
		os.Exit(1)
	}

	proc := processor.NewProcessor(cfg, channels)
	fileReader := reader.NewFileReader(cfg, channels)

	if err := metricsWriter.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start metrics writer")
		os.Exit(1)
	}
	if err := proc.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start processor")
		os.Exit(1)
	}
	if err := fileReader.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start file reader")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	// A batch run finishes when the writer drains the metrics channel.
	// Operators can still interrupt it with SIGINT or SIGTERM.
	done := make(chan struct{})
	go func() {
		fileReader.Wait()
		proc.Wait()
		metricsWriter.Wait()
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interrupted := false
	select {
	case <-done:
		log.Info("pipeline drained")
	case sig := <-sigChan:
		interrupted = true
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
		select {
		case <-done:
			log.Info("graceful shutdown completed")
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timeout exceeded")
		}
	}

	logger.FinalReport(log)
	log.Info("eurexflow stopped")

	if interrupted {
		os.Exit(1)
	}
}
