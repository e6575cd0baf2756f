package main

import (
	"fmt"
	"os"

	"github.com/tphakala/eqroute/cmd"
	"github.com/tphakala/eqroute/internal/buildinfo"
	"github.com/tphakala/eqroute/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	info := &buildinfo.Context{Version: version, BuildDate: buildDate}
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(settings, info)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
