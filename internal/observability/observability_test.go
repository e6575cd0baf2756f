package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/eqroute/internal/audiocore"
	"github.com/tphakala/eqroute/internal/conf"
	"github.com/tphakala/eqroute/internal/errors"
	"github.com/tphakala/eqroute/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	require.NotNil(t, m.Engine)
	require.NotNil(t, m.Registry())

	// every instance has its own registry
	other, err := NewMetrics()
	require.NoError(t, err)
	assert.NotSame(t, m.Registry(), other.Registry())
}

func TestEngineObserver(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	obs := NewEngineObserver(m.Engine)

	obs.OperationCompleted(audiocore.OpStart, time.Millisecond, nil)
	notFound := errors.Newf("input device %q: %w", "x", audiocore.ErrDeviceNotFound).
		Category(errors.CategoryNotFound).
		Build()
	obs.OperationCompleted(audiocore.OpSetInputDevice, time.Millisecond, notFound)
	obs.OperationCompleted(audiocore.OpSetInputDevice, time.Millisecond, errors.NewStd("plain"))
	obs.RunningChanged(true)
	obs.StreamStarted(audiocore.DeviceParams{SampleRate: 44100, BufferSize: 256, InputChannels: 1, OutputChannels: 2})

	count, err := testutil.GatherAndCount(m.Registry(), "eqroute_engine_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per category")

	assert.Equal(t, "not-found", errorCategory(notFound))
	assert.Equal(t, "generic", errorCategory(errors.NewStd("plain")))
}

func TestNewEndpointRequiresTelemetry(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(&conf.Settings{}, m)
	require.Error(t, err)
}

func TestEndpointServesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Engine.SetRunning(true)

	settings := &conf.Settings{}
	settings.Telemetry.Enabled = true
	settings.Telemetry.Listen = "127.0.0.1:0"
	endpoint, err := NewEndpoint(settings, m)
	require.NoError(t, err)
	assert.Same(t, m, endpoint.GetMetrics())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- endpoint.Serve(ctx, ln) }()

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "eqroute_engine_running 1")
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(metrics.ShutdownTimeout + time.Second):
		t.Fatal("endpoint did not shut down")
	}
}
