package devices

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/eqroute/internal/catalog"
	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/router"
)

// Command creates the command that lists audio devices.
func Command(settings *conf.Settings) *cobra.Command {
	var checkVirtual bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "List the input and output devices of the configured backend and check for a virtual loopback device.",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := router.NewBackend(settings, nil)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Release() }()

			out := cmd.OutOrStdout()
			if err := List(out, backend.Catalog); err != nil {
				return err
			}
			if !checkVirtual {
				return nil
			}
			setup, err := catalog.CheckVirtualSetup(backend.Catalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n", setup.Instructions)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkVirtual, "check-virtual", false, "Check for a virtual loopback device and print setup instructions")

	return cmd
}

// List writes the input and output devices of c as two tables.
func List(w io.Writer, c catalog.Catalog) error {
	for _, dir := range []catalog.Direction{catalog.Input, catalog.Output} {
		devices, err := c.ListDevices(dir)
		if err != nil {
			return fmt.Errorf("error listing %s devices: %w", dir, err)
		}

		fmt.Fprintf(w, "%s devices:\n", titleFor(dir))
		if len(devices) == 0 {
			fmt.Fprintln(w, "  (none)")
			continue
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tCHANNELS\tRATE\tTRANSPORT\tFLAGS")
		for _, d := range devices {
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\t%s\n",
				d.Name, d.Channels(dir), formatRate(d.SampleRate), transportName(d.Transport), flags(d, dir))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}

func titleFor(dir catalog.Direction) string {
	if dir == catalog.Output {
		return "Output"
	}
	return "Input"
}

func formatRate(rate float64) string {
	if rate <= 0 {
		return "-"
	}
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

func transportName(t catalog.TransportType) string {
	if t == "" {
		return string(catalog.TransportUnknown)
	}
	return string(t)
}

func flags(d catalog.DeviceInfo, dir catalog.Direction) string {
	var s string
	if d.IsDefault(dir) {
		s = "default"
	}
	if d.IsVirtual || catalog.ClassifyVirtual(d) {
		if s != "" {
			s += ","
		}
		s += "virtual"
	}
	if s == "" {
		return "-"
	}
	return s
}
