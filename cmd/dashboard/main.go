// Command dashboard serves the OpenClaw agent dashboard API: task and cron
// CRUD over JSON files, agent execution triggers through the gateway hook,
// and read-only views of the agent's sessions, workspace and skills.
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

	"github.com/karem505/openclaw-agent-dashboard/internal/bus"
	"github.com/karem505/openclaw-agent-dashboard/internal/channels"
	"github.com/karem505/openclaw-agent-dashboard/internal/config"
	"github.com/karem505/openclaw-agent-dashboard/internal/cron"
	"github.com/karem505/openclaw-agent-dashboard/internal/dispatch"
	"github.com/karem505/openclaw-agent-dashboard/internal/gateway"
	otelPkg "github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/sessions"
	"github.com/karem505/openclaw-agent-dashboard/internal/store"
	"github.com/karem505/openclaw-agent-dashboard/internal/task"
	"github.com/karem505/openclaw-agent-dashboard/internal/telemetry"
	"github.com/karem505/openclaw-agent-dashboard/internal/workspace"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logLevel, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()

	if len(cfg.EnvOverrides) > 0 {
		logger.Info("config overridden from environment", "overrides", cfg.EnvOverrides)
	}

	provider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutCtx)
	}()
	metrics, err := otelPkg.NewMetrics(provider.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	eventBus := bus.New()

	tasksCol := store.NewCollection(cfg.TasksFile, func() []task.Task { return []task.Task{} }, logger)
	cronCol := store.NewCollection(cfg.CronStorePath, cron.SeedStore, logger)

	dispatcher := dispatch.New(dispatch.Config{
		HookURL:      cfg.HookURL,
		HookToken:    cfg.HookToken,
		DashboardURL: cfg.DashboardURL,
		AuthToken:    cfg.AuthToken,
		Workers:      cfg.Dispatch.Workers,
		QueueSize:    cfg.Dispatch.QueueSize,
		Bus:          eventBus,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       provider.Tracer,
	})

	taskEngine := task.New(task.Config{
		Collection: tasksCol,
		Dispatcher: dispatcher,
		Bus:        eventBus,
		Metrics:    metrics,
		Logger:     logger,
	})

	attachments := task.NewAttachments(task.AttachmentsConfig{
		Root:            cfg.AttachmentsDir,
		Engine:          taskEngine,
		Bus:             eventBus,
		Logger:          logger,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		AllowedPrefixes: cfg.UploadAllowedPrefixes(),
	})
	dispatcher.SetAttachments(attachments)

	cronEngine := cron.New(cron.Config{
		Collection: cronCol,
		RunsDir:    cfg.CronRunsDir,
		Dispatcher: dispatcher,
		Reload:     cron.NewGatewayReloader(logger),
		Bus:        eventBus,
		Metrics:    metrics,
		Logger:     logger,
	})

	aggregator := sessions.New(sessions.Config{
		SessionsPath: cfg.SessionsFile,
		RunsPath:     cfg.SubagentRunsFile,
		Logger:       logger,
	})

	ws := workspace.New(cfg.Workspace, cfg.SystemSkillsDir)

	server := gateway.New(gateway.Config{
		Tasks:          taskEngine,
		Attachments:    attachments,
		Cron:           cronEngine,
		Sessions:       aggregator,
		Workspace:      ws,
		Bus:            eventBus,
		Logger:         logger,
		Metrics:        metrics,
		Tracer:         provider.Tracer,
		AuthToken:      cfg.AuthToken,
		CORS:           cfg.CORS,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		tg := channels.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatIDs, eventBus, logger)
		go func() {
			if err := tg.Start(ctx); err != nil {
				logger.Error("telegram channel exited", "error", err)
			}
		}()
	}

	// Hot reload: auth token and log level follow config.yaml edits.
	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				fresh, err := config.Load()
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				server.SetAuthToken(fresh.AuthToken)
				logLevel.Set(telemetry.ParseLevel(fresh.LogLevel))
				logger.Info("config reloaded", "log_level", fresh.LogLevel)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard API listening", "addr", cfg.BindAddr, "version", Version)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}
