package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	serveradapter "github.com/tillerhq/tiller/internal/adapters/server"
	"github.com/tillerhq/tiller/internal/adapters/storage/sqlite"
	"github.com/tillerhq/tiller/internal/app"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/domain"
	"github.com/tillerhq/tiller/internal/platform"
)

// version is stamped at build time.
var version = "dev"

// rootOptions carries the persistent flag state shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the tiller command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "tiller",
		Short:         "Dependency-aware sprint capacity rebalancing engine",
		Long:          "Tiller tracks work-item dependencies and team capacity, detects overload, and proposes explainable workload rebalancing plans over HTTP and MCP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("TILLER_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultAppName := "tiller"
	if envApp := strings.TrimSpace(os.Getenv("TILLER_APP_NAME")); envApp != "" {
		defaultAppName = envApp
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultAppName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newPathsCmd(opts))
	root.AddCommand(newSeedCmd(opts))
	return root
}

// runtime bundles resolved config, paths, and logging for one command run.
type runtime struct {
	cfg        config.Config
	paths      platform.Paths
	configPath string
	logger     *runtimeLogger
}

// resolveRuntime loads paths and config, honoring flag and env overrides.
func resolveRuntime(opts *rootOptions, stderr io.Writer) (runtime, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
	if err != nil {
		return runtime{}, err
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("TILLER_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("TILLER_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return runtime{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, cfg.Logging)
	if err != nil {
		return runtime{}, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "config_path", configPath, "db_path", cfg.Database.Path)
	return runtime{cfg: cfg, paths: paths, configPath: configPath, logger: logger}, nil
}

// openService opens the sqlite repository and wires the engine service over it.
func openService(rt runtime) (*app.Service, *sqlite.Repository, error) {
	rt.logger.Info("opening sqlite repository", "db_path", rt.cfg.Database.Path)
	repo, err := sqlite.Open(rt.cfg.Database.Path)
	if err != nil {
		rt.logger.Error("sqlite open failed", "db_path", rt.cfg.Database.Path, "err", err)
		return nil, nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	rt.logger.Info("sqlite repository ready", "db_path", rt.cfg.Database.Path, "migrations", "ensured")

	svc := app.NewService(repo, repo, uuid.NewString, nil, app.ServiceConfig{
		DefaultWindowDays: rt.cfg.Planner.WindowDays,
		HistoryLimit:      rt.cfg.Planner.HistoryLimit,
	})
	rt.logger.Debug("engine service initialized", "window_days", rt.cfg.Planner.WindowDays, "history_limit", rt.cfg.Planner.HistoryLimit)
	return svc, repo, nil
}

// newServeCmd builds the HTTP+MCP serve command.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP API and MCP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLogger(rt.logger, cmd.ErrOrStderr())

			svc, repo, err := openService(rt)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := repo.Close(); closeErr != nil {
					rt.logger.Warn("sqlite close failed", "db_path", rt.cfg.Database.Path, "err", closeErr)
				}
			}()

			if strings.TrimSpace(httpBind) == "" {
				httpBind = rt.cfg.Server.HTTPBind
			}
			if strings.TrimSpace(apiEndpoint) == "" {
				apiEndpoint = rt.cfg.Server.APIEndpoint
			}
			if strings.TrimSpace(mcpEndpoint) == "" {
				mcpEndpoint = rt.cfg.Server.MCPEndpoint
			}

			rt.logger.Info("command flow start", "command", "serve", "http_bind", httpBind, "api_endpoint", apiEndpoint, "mcp_endpoint", mcpEndpoint)
			err = serveradapter.Run(cmd.Context(), serveradapter.Config{
				HTTPBind:      httpBind,
				APIEndpoint:   apiEndpoint,
				MCPEndpoint:   mcpEndpoint,
				ServerName:    opts.appName,
				ServerVersion: version,
			}, serveradapter.Dependencies{
				Engine: svc,
			})
			if err != nil {
				rt.logger.Error("command flow failed", "command", "serve", "err", err)
				return err
			}
			rt.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}

	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (defaults to config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (defaults to config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (defaults to config)")
	return cmd
}

// newPathsCmd builds the path-resolution inspection command.
func newPathsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := platform.DefaultPathsWithOptions(platform.Options{
				AppName: opts.appName,
				DevMode: opts.devMode,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			return nil
		},
	}
}

// newSeedCmd builds a demo-data seeding command for local exploration.
func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo team with dependent work items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLogger(rt.logger, cmd.ErrOrStderr())

			svc, repo, err := openService(rt)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := repo.Close(); closeErr != nil {
					rt.logger.Warn("sqlite close failed", "db_path", rt.cfg.Database.Path, "err", closeErr)
				}
			}()

			summary, err := seedDemoData(cmd.Context(), svc)
			if err != nil {
				rt.logger.Error("command flow failed", "command", "seed", "err", err)
				return fmt.Errorf("seed demo data: %w", err)
			}
			rt.logger.Info("command flow complete", "command", "seed", "team_id", summary.TeamID)

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "team: %s\n", summary.TeamID)
			_, _ = fmt.Fprintf(out, "sprint: %s\n", summary.SprintID)
			_, _ = fmt.Fprintf(out, "project: %s\n", summary.ProjectID)
			_, _ = fmt.Fprintf(out, "story: %s\n", summary.StoryID)
			for _, id := range summary.MemberIDs {
				_, _ = fmt.Fprintf(out, "member: %s\n", id)
			}
			return nil
		},
	}
}

// seedSummary lists the identifiers created by one seed run.
type seedSummary struct {
	TeamID    string
	SprintID  string
	ProjectID string
	StoryID   string
	MemberIDs []string
}

// seedDemoData creates one overloaded demo team so plan generation has
// something to suggest immediately.
func seedDemoData(ctx context.Context, svc *app.Service) (seedSummary, error) {
	team, err := svc.CreateTeam(ctx, "Platform", "Demo delivery team")
	if err != nil {
		return seedSummary{}, err
	}
	asha, err := svc.AddMember(ctx, team.ID, "Asha", 40)
	if err != nil {
		return seedSummary{}, err
	}
	bruno, err := svc.AddMember(ctx, team.ID, "Bruno", 40)
	if err != nil {
		return seedSummary{}, err
	}

	now := time.Now().UTC()
	sprintStart := now.Truncate(24 * time.Hour)
	sprint, err := svc.CreateSprint(ctx, team.ID, "Demo Sprint", sprintStart, sprintStart.AddDate(0, 0, 14))
	if err != nil {
		return seedSummary{}, err
	}

	projectID := "demo-" + strconv.FormatInt(now.Unix(), 10)
	storyPoints := 24.0
	story, err := svc.CreateWorkItem(ctx, app.CreateWorkItemInput{
		ProjectID:   projectID,
		Kind:        domain.KindStory,
		Title:       "Launch reporting pipeline",
		Description: "Demo story split into dependent tasks",
		Status:      domain.StatusProgress,
		Priority:    domain.PriorityHigh,
		Points:      &storyPoints,
	})
	if err != nil {
		return seedSummary{}, err
	}

	taskTitles := []string{"Model events", "Build ingestion", "Wire dashboards"}
	taskIDs := make([]string, 0, len(taskTitles))
	for _, title := range taskTitles {
		task, err := svc.CreateWorkItem(ctx, app.CreateWorkItemInput{
			ProjectID: projectID,
			ParentID:  story.ID,
			Kind:      domain.KindTask,
			Title:     title,
			Status:    domain.StatusTodo,
			Priority:  domain.PriorityMedium,
		})
		if err != nil {
			return seedSummary{}, err
		}
		// Everything lands on one member so the planner has an overload to fix.
		if _, err := svc.AssignWorkItem(ctx, task.ID, asha.ID); err != nil {
			return seedSummary{}, err
		}
		taskIDs = append(taskIDs, task.ID)
	}
	for i := 1; i < len(taskIDs); i++ {
		if _, err := svc.AddDependency(ctx, taskIDs[i], taskIDs[i-1]); err != nil {
			return seedSummary{}, err
		}
	}

	extraPoints := 30.0
	extra, err := svc.CreateWorkItem(ctx, app.CreateWorkItemInput{
		ProjectID: projectID,
		Kind:      domain.KindStory,
		Title:     "Backfill historical data",
		Status:    domain.StatusTodo,
		Priority:  domain.PriorityLow,
		Points:    &extraPoints,
	})
	if err != nil {
		return seedSummary{}, err
	}
	if _, err := svc.AssignWorkItem(ctx, extra.ID, asha.ID); err != nil {
		return seedSummary{}, err
	}

	return seedSummary{
		TeamID:    team.ID,
		SprintID:  sprint.ID,
		ProjectID: projectID,
		StoryID:   story.ID,
		MemberIDs: []string{asha.ID, bruno.ID},
	}, nil
}

// closeLogger flushes the optional file sink, reporting failures to stderr.
func closeLogger(logger *runtimeLogger, stderr io.Writer) {
	if err := logger.Close(); err != nil {
		_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", err)
	}
}

// parseBoolEnv parses a boolean environment variable, reporting presence.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// runtimeLogger fans log events to a styled console sink and an optional logfmt file sink.
type runtimeLogger struct {
	sinks     []*charmLog.Logger
	closeFile func() error
}

// newRuntimeLogger configures runtime log sinks from config state.
func newRuntimeLogger(stderr io.Writer, appName string, cfg config.LoggingConfig) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})
	logger := &runtimeLogger{sinks: []*charmLog.Logger{consoleLogger}}

	filePath := strings.TrimSpace(cfg.File)
	if filePath == "" {
		return logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// File output stays unstyled and parseable while console logs keep styling.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	return logger, nil
}

// Close closes the optional file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Error(msg, keyvals...)
	}
}
