package telemetry

import (
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/errors"
)

// Tests in this file share the global Sentry hub and error reporter, so none
// of them run in parallel.

func TestInitSentryDisabled(t *testing.T) {
	settings := &conf.Settings{}
	require.NoError(t, InitSentry(settings, "test"))
	assert.False(t, Enabled())

	assert.NotPanics(t, func() { Flush(FlushTimeout) })
}

func TestEnhancedErrorsReachSentry(t *testing.T) {
	transport := NewMockTransport()
	settings := &conf.Settings{Sentry: conf.SentrySettings{Enabled: true}}
	require.NoError(t, initSentry(settings, "test", transport))
	t.Cleanup(Shutdown)
	assert.True(t, Enabled())

	_ = errors.New(fmt.Errorf("no capture device")).
		Component("audiocore").
		Category(errors.CategoryDeviceUnavailable).
		Context("operation", "start").
		Build()

	event := transport.GetLastEvent()
	require.NotNil(t, event, "error should be reported")
	assert.Equal(t, "audiocore", event.Tags["component"])
	assert.Equal(t, string(errors.CategoryDeviceUnavailable), event.Tags["category"])
	assert.Equal(t, sentry.LevelWarning, event.Level, "device errors are transient")
	assert.True(t, event.User.IsEmpty())
	assert.Empty(t, event.ServerName)

	Shutdown()
	count := len(transport.GetEvents())
	_ = errors.New(fmt.Errorf("after shutdown")).Component("audiocore").Build()
	assert.Len(t, transport.GetEvents(), count, "no reports after shutdown")
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.User = sentry.User{ID: "someone"}
	event.ServerName = "studio-mac"
	event.Contexts = map[string]sentry.Context{
		"device":      {"name": "x"},
		"os":          {"name": "y"},
		"application": {"name": "eqroute"},
	}
	event.Extra = map[string]any{"component": "audiocore", "path": "/home/user"}
	event.Tags = map[string]string{"hostname": "studio-mac", "category": "state"}

	filtered := applyPrivacyFilters(event)

	assert.True(t, filtered.User.IsEmpty())
	assert.Empty(t, filtered.ServerName)
	assert.NotContains(t, filtered.Contexts, "device")
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "application")
	assert.Equal(t, map[string]any{"component": "audiocore"}, filtered.Extra)
	assert.Equal(t, map[string]string{"category": "state"}, filtered.Tags)
}
