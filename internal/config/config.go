// Package config loads dashboard configuration from <home>/config.yaml with
// environment-variable overrides. Defaults mirror the systemd deployment the
// dashboard ships with, so an empty config file produces a working server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/karem505/openclaw-agent-dashboard/internal/otel"
	"github.com/karem505/openclaw-agent-dashboard/internal/shared"
)

const (
	defaultBindAddr     = "0.0.0.0:18791"
	defaultHookURL      = "http://127.0.0.1:18789/hooks/agent"
	defaultDashboardURL = "http://localhost:18790"

	// DefaultMaxBody caps ordinary request bodies.
	DefaultMaxBody = 1 << 20 // 1 MiB
	// DefaultMaxUpload caps attachment uploads.
	DefaultMaxUpload = 20 << 20 // 20 MiB
)

// CORSConfig controls the CORS middleware.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// TelegramConfig enables the optional completion notifier channel.
type TelegramConfig struct {
	Enabled bool    `yaml:"enabled"`
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

// DispatchConfig tunes the outbound trigger outbox.
type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	// AuthToken is the opaque shared secret compared for equality on every
	// authenticated request.
	AuthToken string `yaml:"auth_token"`

	// HookURL/HookToken address the external agent runtime's execute hook.
	HookURL   string `yaml:"hook_url"`
	HookToken string `yaml:"hook_token"`

	// DashboardURL is the externally reachable base URL embedded in hook
	// instruction messages so the agent can call back into the task API.
	DashboardURL string `yaml:"dashboard_url"`

	// Workspace is the agent workspace root (markdown files, skills, memory).
	Workspace       string `yaml:"workspace"`
	SystemSkillsDir string `yaml:"system_skills_dir"`

	TasksFile      string `yaml:"tasks_file"`
	AttachmentsDir string `yaml:"attachments_dir"`

	CronStorePath string `yaml:"cron_store_path"`
	CronRunsDir   string `yaml:"cron_runs_dir"`

	// SessionsFile/SubagentRunsFile are the externally owned session table
	// and sub-agent run registry; the dashboard only reads them.
	SessionsFile     string `yaml:"sessions_file"`
	SubagentRunsFile string `yaml:"subagent_runs_file"`

	MaxBodyBytes   int64 `yaml:"max_body_bytes"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	Dispatch DispatchConfig `yaml:"dispatch"`
	CORS     CORSConfig     `yaml:"cors"`
	Telegram TelegramConfig `yaml:"telegram"`
	OTel     otel.Config    `yaml:"otel"`

	// EnvOverrides lists the environment variables that were applied over
	// the file config, as "KEY=value" with secret values hidden. Startup
	// logging reports them so an effective config is traceable.
	EnvOverrides []string `yaml:"-"`
}

// HomeDir resolves the dashboard data directory.
func HomeDir() string {
	if override := os.Getenv("OPENCLAW_DASHBOARD_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".openclaw", "dashboard")
}

func defaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	openclaw := filepath.Join(home, ".openclaw")
	return Config{
		BindAddr:         defaultBindAddr,
		LogLevel:         "info",
		HookURL:          defaultHookURL,
		DashboardURL:     defaultDashboardURL,
		Workspace:        filepath.Join(home, "clawd"),
		SystemSkillsDir:  "/opt/homebrew/lib/node_modules/openclaw/skills",
		CronStorePath:    filepath.Join(openclaw, "cron", "jobs.json"),
		CronRunsDir:      filepath.Join(openclaw, "cron", "runs"),
		SessionsFile:     filepath.Join(openclaw, "agents", "main", "sessions", "sessions.json"),
		SubagentRunsFile: filepath.Join(openclaw, "subagents", "runs.json"),
		MaxBodyBytes:     DefaultMaxBody,
		MaxUploadBytes:   DefaultMaxUpload,
		Dispatch: DispatchConfig{
			Workers:   2,
			QueueSize: 64,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		OTel: otel.Config{Exporter: "none"},
	}
}

// Load reads config.yaml from the dashboard home, applies env overrides and
// fills in derived paths.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create dashboard home: %w", err)
	}

	configPath := filepath.Join(cfg.HomeDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	override := func(key string, apply func(string)) {
		raw := os.Getenv(key)
		if raw == "" {
			return
		}
		apply(raw)
		cfg.EnvOverrides = append(cfg.EnvOverrides, key+"="+shared.RedactEnvValue(key, raw))
	}
	override("DASHBOARD_PORT", func(raw string) {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			cfg.BindAddr = fmt.Sprintf("0.0.0.0:%d", port)
		}
	})
	override("DASHBOARD_LOG_LEVEL", func(raw string) { cfg.LogLevel = raw })
	override("OPENCLAW_AUTH_TOKEN", func(raw string) { cfg.AuthToken = raw })
	override("OPENCLAW_HOOK_TOKEN", func(raw string) { cfg.HookToken = raw })
	override("OPENCLAW_HOOK_URL", func(raw string) { cfg.HookURL = raw })
	override("OPENCLAW_WORKSPACE", func(raw string) { cfg.Workspace = raw })
	override("OPENCLAW_SESSIONS_FILE", func(raw string) { cfg.SessionsFile = raw })
	override("OPENCLAW_SUBAGENT_RUNS", func(raw string) { cfg.SubagentRunsFile = raw })
	override("OPENCLAW_SYSTEM_SKILLS", func(raw string) { cfg.SystemSkillsDir = raw })
	override("DASHBOARD_URL", func(raw string) { cfg.DashboardURL = raw })
}

func normalize(cfg *Config) {
	if cfg.TasksFile == "" {
		cfg.TasksFile = filepath.Join(cfg.HomeDir, "tasks.json")
	}
	if cfg.AttachmentsDir == "" {
		cfg.AttachmentsDir = filepath.Join(cfg.HomeDir, "attachments")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBody
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUpload
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = 2
	}
	if cfg.Dispatch.QueueSize <= 0 {
		cfg.Dispatch.QueueSize = 64
	}
	cfg.BindAddr = strings.TrimSpace(cfg.BindAddr)
	if cfg.BindAddr == "" {
		cfg.BindAddr = defaultBindAddr
	}
}

// UploadAllowedPrefixes returns the directories attachment source-path copies
// may originate from.
func (c Config) UploadAllowedPrefixes() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return []string{
		"/tmp/",
		c.Workspace + string(filepath.Separator),
		filepath.Join(home, "openclaw") + string(filepath.Separator),
	}
}
