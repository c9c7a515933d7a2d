package cron

import (
	"context"
	"log/slog"
	"os/exec"
)

// GatewayReloader signals the external scheduler process to re-read the job
// store by sending SIGUSR1, falling back to a service restart. Both steps
// are best-effort; the scheduler's own poll interval is the backstop.
type GatewayReloader struct {
	logger *slog.Logger
}

// NewGatewayReloader creates the default reload signaler.
func NewGatewayReloader(logger *slog.Logger) *GatewayReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayReloader{logger: logger}
}

// SignalReload nudges the scheduler. Errors are logged at debug and swallowed.
func (g *GatewayReloader) SignalReload(ctx context.Context) {
	cmd := exec.CommandContext(ctx, "sh", "-c",
		"kill -USR1 $(pgrep -f 'openclaw.*gateway' | head -1) 2>/dev/null || true")
	if err := cmd.Run(); err != nil {
		g.logger.Debug("gateway signal failed", "error", err)
	}
	restart := exec.CommandContext(ctx, "sh", "-c",
		"sudo systemctl restart openclaw-gateway 2>/dev/null || true")
	if err := restart.Run(); err != nil {
		g.logger.Debug("gateway restart failed", "error", err)
	}
}
