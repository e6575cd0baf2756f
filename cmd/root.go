package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/eqroute/cmd/config"
	"github.com/tphakala/eqroute/cmd/devices"
	"github.com/tphakala/eqroute/cmd/route"
	"github.com/tphakala/eqroute/internal/buildinfo"
	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/logger"
	"github.com/tphakala/eqroute/internal/telemetry"
)

// RootCommand creates and returns the root command. settings is filled from
// the config file, environment and flags before any subcommand runs.
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "eqroute",
		Short:         "Real-time audio router with an insertable processing chain",
		Version:       info.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
		},
	}

	rootCmd.AddCommand(
		route.Command(settings),
		devices.Command(settings),
		config.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, configFile, info)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown()
	}

	return rootCmd
}

// initialize loads settings and sets up logging and error reporting.
func initialize(settings *conf.Settings, configFile string, info *buildinfo.Context) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if err := setupLogging(settings); err != nil {
		return err
	}

	return telemetry.InitSentry(settings, info.GetVersion())
}

// setupLogging installs the global logger configured by settings.Log.
func setupLogging(settings *conf.Settings) error {
	level := settings.Log.Level
	if settings.Debug {
		level = string(logger.LogLevelDebug)
	}

	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     settings.Log.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
	}
	if settings.Log.File != "" {
		cfg.FileOutput = &logger.FileOutput{Enabled: true, Path: settings.Log.File, Level: level}
	}

	cl, err := logger.NewCentralLogger(cfg)
	if err != nil {
		return fmt.Errorf("error setting up logging: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}

// setupFlags defines flags that are global to the command line interface and
// binds them to their config keys; a flag given on the command line wins over
// the config file and environment.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/eqroute, /etc/eqroute)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", conf.BackendMalgo, "Audio backend (\"malgo\" or \"offline\")")
	flags.StringP("input", "i", "", "Input device name, empty for the system default")
	flags.StringP("output", "o", "", "Output device name, empty for the system default")
	flags.Bool("bypass", false, "Start with the processing chain bypassed")
	flags.Float64("gain", 0, "Gain stage level in dB, 0 for an empty chain")

	bindings := map[string]string{
		"debug":         "debug",
		"audio.backend": "backend",
		"audio.input":   "input",
		"audio.output":  "output",
		"audio.bypass":  "bypass",
		"audio.gaindb":  "gain",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}
