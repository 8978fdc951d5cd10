package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/modules/config"
)

const defaultConfigPath = "config/ticketcap.yaml"

var (
	version = "dev"

	configPath string
	logLevel   string
	simulate   bool

	// cfg is loaded once by the root PersistentPreRunE.
	cfg     *config.Config
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ticketcap",
	Short: "ticketcap - ticket capture station",
	Long: `ticketcap photographs both sides of a paper ticket, finds the Code 128
barcode on the back, reads it and files the images under the ticket code.

A capture goes Ready → front → back → save. The back is only accepted when
the barcode was both located and decoded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo records build information for --version and metadata files.
func SetVersionInfo(v, c, d string) {
	version = v
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default "+defaultConfigPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "use the simulated camera")
}

func setup() error {
	loaded, err := loadConfig(configPath)
	if err != nil {
		return printer.Error("cannot load configuration", err.Error(),
			"check the YAML syntax", "run 'ticketcap config' to print a valid file")
	}
	if simulate {
		loaded.Development.Simulation = true
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	cfg = loaded
	if cfg.UI.Color != nil && !*cfg.UI.Color {
		printer.DisableColor()
	}

	closer, err := setupLogging(cfg.Logging, cfg.LogLevel(), os.Stderr)
	if err != nil {
		return printer.Error("cannot open log file", err.Error())
	}
	logFile = closer
	return nil
}

// loadConfig reads path, falling back to the default file and then to
// built-in defaults when no path was given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	c, err := config.Load(defaultConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return c, err
}

// setupLogging installs the default slog logger. The returned closer is
// non-nil when a log file was opened.
func setupLogging(lc config.LoggingConfig, level slog.Level, console io.Writer) (io.Closer, error) {
	var (
		w      = console
		closer io.Closer
	)
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		w = io.MultiWriter(console, f)
		closer = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return closer, nil
}
