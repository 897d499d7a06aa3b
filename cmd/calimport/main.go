package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"calimport/internal/config"
	appLog "calimport/internal/log"
)

const (
	version           = "0.1.0"
	defaultConfigPath = "/etc/calimport/config.yaml"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitInvalid = 2
)

// exitError carries a process exit code through cobra. Printed marks
// errors whose details were already written to the output.
type exitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e exitError) Error() string { return e.Err.Error() }
func (e exitError) Unwrap() error { return e.Err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var e exitError
	if errors.As(err, &e) {
		return e.Code
	}
	return exitFailure
}

type globalOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	LogFormat  string
	Timezone   string
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(execute(ctx, newRootCommand(), os.Args[1:]))
}

func execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		var e exitError
		if !errors.As(err, &e) || !e.Printed {
			fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		}
	}
	return exitCode(err)
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "calimport",
		Short:         "Parse, validate, export and serve iCalendar documents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfigPath, "Path to config file")
	root.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "Path to a .env file with CALIMPORT_* overrides")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "Log format: text|json (overrides config)")
	root.PersistentFlags().StringVar(&opts.Timezone, "timezone", "", "IANA zone for floating times (overrides config)")

	root.AddCommand(newParseCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newServeCmd(opts))
	return root
}

// loadConfig resolves the effective configuration. With create set a
// missing config file is written with defaults; otherwise defaults are
// used in memory so one-shot commands work without any file.
func loadConfig(c *cobra.Command, opts *globalOptions, create bool) (*config.Config, error) {
	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, fmt.Errorf("env file %s: %w", opts.EnvFile, err)
	}

	var cfg *config.Config
	_, statErr := os.Stat(opts.ConfigPath)
	if create || statErr == nil {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			if loaded == nil {
				return nil, err
			}
			appLog.Warn("failed to write default config", "config_path", opts.ConfigPath, "err", err)
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
		cfg.ApplyEnv(os.Getenv)
		cfg.Normalize()
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}
	if opts.Timezone != "" {
		cfg.Timezone = opts.Timezone
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	lvl, _ := appLog.ParseLevel(cfg.LogLevel)
	appLog.SetOutput(c.ErrOrStderr(), cfg.LogFormat)
	appLog.SetLevel(lvl)
	return cfg, nil
}
