// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/logger"
)

// GetLogger returns the module logger for telemetry
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// FlushTimeout bounds how long Flush waits for pending events at shutdown.
const FlushTimeout = 2 * time.Second

var sentryInitialized atomic.Bool

// PlatformInfo holds privacy-safe platform information for telemetry
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// InitSentry initializes the Sentry SDK and installs it as the error reporter.
// Nothing happens unless sentry.enabled is set.
func InitSentry(settings *conf.Settings, version string) error {
	return initSentry(settings, version, nil)
}

// initSentry is InitSentry with an optional transport override for tests.
func initSentry(settings *conf.Settings, version string, transport sentry.Transport) error {
	log := GetLogger()
	if !settings.Sentry.Enabled {
		log.Debug("Sentry telemetry is disabled (opt-in required)")
		errors.SetTelemetryReporter(nil)
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Transport:        transport,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("eqroute@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	configureSentryScope(version)
	sentryInitialized.Store(true)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	platform := collectPlatformInfo()
	log.Info("Sentry telemetry initialized",
		logger.String("version", version),
		logger.String("platform", platform.OS),
		logger.String("arch", platform.Architecture))
	return nil
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

func configureSentryScope(version string) {
	platform := collectPlatformInfo()

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)
		scope.SetContext("application", map[string]any{
			"name":    "eqroute",
			"version": version,
		})
		scope.SetContext("platform", map[string]any{
			"os":           platform.OS,
			"architecture": platform.Architecture,
			"num_cpu":      platform.NumCPU,
			"go_version":   platform.GoVersion,
		})
	})
}

// Enabled reports whether Sentry has been initialized.
func Enabled() bool {
	return sentryInitialized.Load()
}

// Flush sends buffered events, waiting at most timeout.
func Flush(timeout time.Duration) {
	if !sentryInitialized.Load() {
		return
	}
	sentry.Flush(timeout)
}

// Shutdown flushes pending events and detaches the error reporter.
func Shutdown() {
	Flush(FlushTimeout)
	errors.SetTelemetryReporter(nil)
	sentryInitialized.Store(false)
}
