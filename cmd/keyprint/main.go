// Package main provides the CLI entrypoint for keyprint.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verte-zerg/keyprint/internal/config"
	"github.com/verte-zerg/keyprint/internal/logging"
	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/store"
)

const (
	defaultLogLevel  = "warn"
	defaultLogFormat = logging.FormatConsole
	defaultRedisAddr = "localhost:6379"
)

var (
	configPath    string
	dbPath        string
	storeBackend  string
	redisAddr     string
	redisDB       int
	logLevel      string
	logFormat     string
	minRounds     int
	minKeystrokes int
	minDigraphs   int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyprint",
		Short:         "Keystroke dynamics enrollment and verification",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/keyprint/config.toml)")
	flags.StringVar(&dbPath, "db", "", "SQLite database path (default: $XDG_DATA_HOME/keyprint/keyprint.db)")
	flags.StringVar(&storeBackend, "backend", store.BackendSQLite, "profile store backend (sqlite or redis)")
	flags.StringVar(&redisAddr, "redis-addr", defaultRedisAddr, "redis address for the redis backend")
	flags.IntVar(&redisDB, "redis-db", 0, "redis database number")
	flags.StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", defaultLogFormat, "log format (console or json)")
	flags.IntVar(&minRounds, "min-rounds", 0, "enrollment rounds required for readiness (0: default)")
	flags.IntVar(&minKeystrokes, "min-keystrokes", 0, "keystrokes required for readiness (0: default)")
	flags.IntVar(&minDigraphs, "min-digraphs", 0, "digraphs required for readiness (0: default)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newEnrollCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newPhraseCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd
}

// env is the per-command runtime: merged config, logger and open store.
type env struct {
	cfg     config.FileConfig
	logger  *zap.Logger
	backend store.Backend
}

func loadFileConfig() (config.FileConfig, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	fileCfg, err := config.LoadConfig(path)
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return fileCfg, nil
}

func openEnv(cmd *cobra.Command) (*env, error) {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return nil, err
	}
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Store.Path)
	applyStringConfig(cmd, "backend", &storeBackend, fileCfg.Store.Backend)
	applyStringConfig(cmd, "redis-addr", &redisAddr, fileCfg.Store.RedisAddr)
	applyIntConfig(cmd, "redis-db", &redisDB, fileCfg.Store.RedisDB)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &logFormat, fileCfg.Log.Format)
	applyIntConfig(cmd, "min-rounds", &minRounds, fileCfg.Enrollment.MinRounds)
	applyIntConfig(cmd, "min-keystrokes", &minKeystrokes, fileCfg.Enrollment.MinKeystrokes)
	applyIntConfig(cmd, "min-digraphs", &minDigraphs, fileCfg.Enrollment.MinDigraphs)

	if err := validateFlags(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{Level: logLevel, Format: logFormat})
	if err != nil {
		return nil, err
	}

	path := dbPath
	if path == "" {
		path = config.DefaultDBPath()
	}
	backend, err := store.OpenBackend(cmd.Context(), store.Options{
		Backend: storeBackend,
		Path:    path,
		Redis: store.RedisOptions{
			Addr:     redisAddr,
			Password: deref(fileCfg.Store.RedisPassword),
			DB:       redisDB,
			Prefix:   deref(fileCfg.Store.RedisPrefix),
		},
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open %s store: %w", storeBackend, err)
	}
	logger.Debug("store opened", zap.String("backend", storeBackend), zap.String("path", path))
	return &env{cfg: fileCfg, logger: logger, backend: backend}, nil
}

func (e *env) Close() {
	if err := e.backend.Close(); err != nil {
		logErrf("failed to close store: %v\n", err)
	}
	// Sync on stderr returns EINVAL on some platforms.
	_ = e.logger.Sync()
}

func (e *env) targets() model.EnrollmentTargets {
	return model.EnrollmentTargets{
		MinRounds:     minRounds,
		MinKeystrokes: minKeystrokes,
		MinDigraphs:   minDigraphs,
	}
}

func validateFlags() error {
	if storeBackend != store.BackendSQLite && storeBackend != store.BackendRedis {
		return fmt.Errorf("--backend must be %q or %q", store.BackendSQLite, store.BackendRedis)
	}
	if minRounds < 0 || minKeystrokes < 0 || minDigraphs < 0 {
		return fmt.Errorf("enrollment targets must be >= 0")
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

// flagOrConfigFloat returns the flag value when it was set, else the config
// value. Nil means the built-in default applies.
func flagOrConfigFloat(cmd *cobra.Command, name string, flag float64, value *float64) *float64 {
	if cmd.Flags().Changed(name) {
		return &flag
	}
	return value
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# keyprint configuration
# Uncomment a value to enable it. CLI flags override config values.
# Point KEYPRINT_CONFIG at a .yaml file to use YAML instead.

[store]
# backend = %q           # sqlite or redis
# path = ""                # SQLite path (default $XDG_DATA_HOME/keyprint/keyprint.db)
# redis-addr = %q
# redis-password = ""
# redis-db = 0
# redis-prefix = "keyprint:"

[log]
# level = %q
# format = %q            # console or json

[policy]
# allow = 0.76             # Similarity at or above which a sample is accepted
# step-up = 0.56           # Similarity at or above which a second factor is asked
# deny = 0.36              # Similarity below which a sample is rejected
# update-on-allow = true   # Adapt the profile after an accepted sample
# adapt-rate = 0.08        # Exponential update rate (0.01-0.5)

[enrollment]
# min-rounds = 8
# min-keystrokes = 120
# min-digraphs = 40
# phrases = ""             # Prompt phrase file, one phrase per line
`,
		store.BackendSQLite,
		defaultRedisAddr,
		defaultLogLevel,
		defaultLogFormat,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
