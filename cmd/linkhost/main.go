package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/artpar/linkhost/internal/shell/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit code out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return ExitConfigError
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var configPath, envFile string

	root := &cobra.Command{
		Use:           "linkhost",
		Short:         "Custom domain verification and routing for short links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return &exitError{code: ExitConfigError, err: fmt.Errorf("load %s: %w", envFile, err)}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, domain proxy and refresher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, cmd.ErrOrStderr())
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(configPath, cmd.ErrOrStderr())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "linkhost %s (built %s)\n", Version, BuildTime)
		},
	}

	root.AddCommand(serveCmd, migrateCmd, versionCmd)
	return root
}

func loadConfig(configPath string, stderr io.Writer) (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	return cfg, nil
}

func serve(ctx context.Context, configPath string, stderr io.Writer) error {
	cfg, err := loadConfig(configPath, stderr)
	if err != nil {
		return err
	}

	logger := SetupLogger(cfg)
	logger.Info("starting linkhost",
		"version", Version,
		"config", configPath,
	)

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return serverExit(logger, "failed to create server", err)
	}

	if err := server.Start(ctx); err != nil {
		return serverExit(logger, "server error", err)
	}
	return nil
}

func migrate(configPath string, stderr io.Writer) error {
	cfg, err := loadConfig(configPath, stderr)
	if err != nil {
		return err
	}

	logger := SetupLogger(cfg)
	if err := store.Migrate(cfg.Database.Driver, cfg.Database.DSN); err != nil {
		logger.Error("migration failed", "driver", cfg.Database.Driver, "error", err)
		return &exitError{code: ExitDatabaseError, err: err}
	}
	logger.Info("migrations applied", "driver", cfg.Database.Driver)
	return nil
}

func serverExit(logger *slog.Logger, msg string, err error) error {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		logger.Error(msg,
			"error", sErr.Err,
			"operation", sErr.Op,
		)
		return &exitError{code: sErr.ExitCode, err: err}
	}
	logger.Error(msg, "error", err)
	return &exitError{code: ExitConfigError, err: err}
}
