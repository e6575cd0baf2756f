package route

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/router"
)

// Command creates the command that routes audio until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route audio from the input device to the output device",
		Long: "Start routing audio from the selected input through the processing chain to the\n" +
			"selected output, showing level meters until interrupted with Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, cmd.OutOrStdout())
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// Run builds the configured backend and router and routes until ctx is done.
func Run(ctx context.Context, settings *conf.Settings, console io.Writer) error {
	backend, err := router.NewBackend(settings, nil)
	if err != nil {
		return err
	}

	r, err := router.New(settings, backend, router.WithConsole(console))
	if err != nil {
		_ = backend.Release()
		return err
	}
	return r.Run(ctx)
}

// setupFlags configures flags specific to the route command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus telemetry endpoint")
	cmd.Flags().String("listen", "localhost:8090", "Listen address and port of telemetry endpoint")
	cmd.Flags().Bool("meter", true, "Print a level meter line while routing")
	cmd.Flags().String("meter-policy", conf.MeterPolicyHold, "Meter behavior on stop (\"hold\" or \"reset\")")
	cmd.Flags().String("infile", "", "Offline backend: WAV file offered as an input device")
	cmd.Flags().String("outfile", "", "Offline backend: WAV file offered as an output device")

	bindings := map[string]string{
		"telemetry.enabled":        "telemetry",
		"telemetry.listen":         "listen",
		"monitor.console":          "meter",
		"audio.meterpolicy":        "meter-policy",
		"audio.offline.inputfile":  "infile",
		"audio.offline.outputfile": "outfile",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}

	return nil
}
