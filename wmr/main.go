package main

import (
	"fmt"
	"os"

	"github.com/itohio/wmr/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "wmr"
	version = "v0.3.0"
)

// app carries the global flags and the loaded configuration to subcommands.
type app struct {
	configPath string
	port       string
	logLevel   string
	mock       bool

	cfg *config.Config
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Magnetometer water meter reader",
		Version: version,
		Long: `wmr reads a 2-axis magnetometer mounted next to a mechanical water meter,
fits the ellipse traced by the rotating indicator and counts its revolutions.

Without a subcommand the scope GUI is started.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGUI(a)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "config.yaml", "Configuration file path")
	flags.StringVarP(&a.port, "port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	flags.BoolVar(&a.mock, "mock", false, "Use simulated sensor instead of serial port")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(a),
		newGUICmd(a),
		newStatsCmd(a),
		newPortsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("wmr failed")
		os.Exit(1)
	}
}

// load reads the configuration and applies command line overrides.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.applyOverrides(cfg)
	a.cfg = cfg

	return setupLogging(cfg.Log)
}

func (a *app) applyOverrides(cfg *config.Config) {
	if a.port != "" {
		cfg.Serial.Port = a.port
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
}

func newGUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Show the live scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGUI(a)
		},
	}
}
