/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/chiefworks/chief/internal/monitor/api"
	"github.com/chiefworks/chief/internal/monitor/config"
	"github.com/chiefworks/chief/internal/monitor/engine"
	"github.com/chiefworks/chief/internal/monitor/scheduler"
	"github.com/chiefworks/chief/internal/monitor/store"
)

func main() {
	// Set up pflags
	flags := pflag.NewFlagSet("chief-monitor", pflag.ExitOnError)
	config.BindFlags(flags)

	bootZl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
	bootLog := zerologr.New(&bootZl)

	// Parse flags
	if err := flags.Parse(os.Args[1:]); err != nil {
		bootLog.Error(err, "failed to parse flags")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(flags)
	if err != nil {
		bootLog.Error(err, "failed to load configuration")
		os.Exit(1)
	}

	// Set up zerolog with configured log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
	logger := zerologr.New(&zl)
	setupLog := logger.WithName("setup")

	if cfg.ConfigFileUsed() != "" {
		setupLog.Info("configuration loaded", "file", cfg.ConfigFileUsed(), "level", cfg.LogLevel)
	} else {
		setupLog.Info("no config file found, using defaults and flags", "level", cfg.LogLevel)
	}

	// Build the store
	dsn, err := cfg.DSN()
	if err != nil {
		setupLog.Error(err, "invalid storage configuration")
		os.Exit(1)
	}
	dataStore, err := store.NewGormStore(cfg.Storage.Type, dsn)
	if err != nil {
		setupLog.Error(err, "failed to create store")
		os.Exit(1)
	}
	if err := dataStore.Init(); err != nil {
		setupLog.Error(err, "failed to initialize store")
		os.Exit(1)
	}
	defer func() {
		if err := dataStore.Close(); err != nil {
			setupLog.Error(err, "failed to close store")
		}
	}()
	setupLog.Info("store initialized", "type", cfg.Storage.Type)

	checkEngine := engine.New(dataStore, logger.WithName("engine"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background sweeps
	evaluator := scheduler.NewEvaluator(dataStore, logger.WithName("evaluator"))
	evaluator.SetInterval(cfg.Sweeps.EvaluatorInterval)
	go func() {
		if err := evaluator.Start(ctx); err != nil && ctx.Err() == nil {
			setupLog.Error(err, "evaluator stopped")
		}
	}()
	defer evaluator.Stop()

	retention := scheduler.NewRetentionSweeper(dataStore, logger.WithName("retention"))
	retention.SetInterval(cfg.Sweeps.RetentionInterval)
	retention.SetRetentionDays(cfg.Sweeps.RetentionDays)
	go func() {
		if err := retention.Start(ctx); err != nil && ctx.Err() == nil {
			setupLog.Error(err, "retention sweeper stopped")
		}
	}()
	defer retention.Stop()

	recovery := scheduler.NewRecoverySweeper(dataStore, logger.WithName("recovery"))
	recovery.SetTTL(cfg.Sweeps.RecoveryTTL)
	go func() {
		if err := recovery.Start(ctx); err != nil && ctx.Err() == nil {
			setupLog.Error(err, "recovery sweeper stopped")
		}
	}()
	defer recovery.Stop()

	// API server blocks until shutdown
	server := api.NewServer(api.ServerOptions{
		Store:               dataStore,
		Engine:              checkEngine,
		Log:                 logger.WithName("api"),
		APIKey:              cfg.Server.APIKey,
		Host:                cfg.Server.Host,
		Port:                cfg.Server.Port,
		IngestRatePerSecond: cfg.Server.IngestRatePerSecond,
		IngestBurst:         cfg.Server.IngestBurst,
	})
	if err := server.Start(ctx); err != nil {
		setupLog.Error(err, "API server failed")
		os.Exit(1)
	}
	setupLog.Info("shutdown complete")
}
