package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/registry/internal/config"
	"github.com/JonMunkholm/registry/internal/logging"
	"github.com/JonMunkholm/registry/internal/registry"
	"github.com/JonMunkholm/registry/internal/store"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodePartial indicates an import finished but at least one chunk was rolled back.
	ExitCodePartial = 2
)

// partialImportError is returned after printing an outcome with failed chunks.
type partialImportError struct {
	failed int
}

func (e *partialImportError) Error() string {
	return fmt.Sprintf("%d chunk(s) rolled back", e.failed)
}

// globalFlags override the environment configuration.
type globalFlags struct {
	driver      string
	sqlitePath  string
	databaseURL string
	logLevel    string
}

var (
	flags globalFlags
	cfg   *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "registryctl",
	Short: "Import and maintain the professional registry",
	Long: `registryctl reconciles registry CSV exports into the professional registry
and runs the maintenance operations around it.

Configuration is read from the environment (and a .env file when present),
the same way the server reads it. Flags override the environment.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command and exits with a semantic status code.
func Execute() {
	err := rootCmd.Execute()
	os.Exit(getExitCode(err))
}

func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var partial *partialImportError
	if errors.As(err, &partial) {
		return ExitCodePartial
	}
	return ExitCodeError
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.driver, "driver", "", "store driver: postgres or sqlite (default from DB_DRIVER)")
	pf.StringVar(&flags.sqlitePath, "sqlite-path", "", "sqlite database file (default from SQLITE_PATH)")
	pf.StringVar(&flags.databaseURL, "database-url", "", "postgres connection URL (default from DATABASE_URL)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")

	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newLookupCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())
}

// loadConfig reads the environment, applies flag overrides and sets up logging.
// Logs go to stderr so stdout stays clean for json and yaml output.
func loadConfig(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	c, err := config.Parse()
	if err != nil {
		return err
	}
	if flags.driver != "" {
		c.Database.Driver = strings.ToLower(flags.driver)
	}
	if flags.sqlitePath != "" {
		c.Database.SQLitePath = flags.sqlitePath
	}
	if flags.databaseURL != "" {
		c.Database.URL = flags.databaseURL
	}
	if flags.logLevel != "" {
		c.Logging.Level = flags.logLevel
	}

	slog.SetDefault(logging.New(os.Stderr, c.Logging.Level, c.Logging.Format))
	cfg = c
	return nil
}

// openService opens the configured backend and wraps it in a Service.
// The caller must close the returned backend.
func openService(ctx context.Context, sc registry.ServiceConfig) (*registry.Service, registry.Backend, error) {
	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return registry.NewService(backend, sc, nil), backend, nil
}
