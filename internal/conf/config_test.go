package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMalgo, settings.Audio.Backend)
	assert.Equal(t, 2, settings.Audio.InputChannels)
	assert.Equal(t, 2, settings.Audio.OutputChannels)
	assert.Equal(t, MeterPolicyHold, settings.Audio.MeterPolicy)
	assert.Equal(t, 100*time.Millisecond, settings.Monitor.Interval)
	assert.Equal(t, "info", settings.Log.Level)
	assert.Same(t, settings, GetSettings())
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
audio:
  backend: offline
  input: BlackHole 2ch
  outputchannels: 1
  meterpolicy: reset
  offline:
    tonehz: 1000
monitor:
  interval: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendOffline, settings.Audio.Backend)
	assert.Equal(t, "BlackHole 2ch", settings.Audio.Input)
	assert.Equal(t, 2, settings.Audio.InputChannels)
	assert.Equal(t, 1, settings.Audio.OutputChannels)
	assert.Equal(t, MeterPolicyReset, settings.Audio.MeterPolicy)
	assert.InDelta(t, 1000.0, settings.Audio.Offline.ToneHz, 0)
	assert.Equal(t, 250*time.Millisecond, settings.Monitor.Interval)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	resetViper(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  backend: jack\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 1)
	assert.Contains(t, ve.Errors[0], "jack")
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := validSettings()
	in.Audio.Output = "Speakers"
	in.Audio.BufferSize = 256

	require.NoError(t, SaveYAMLConfig(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Speakers", out.Audio.Output)
	assert.Equal(t, 256, out.Audio.BufferSize)
	assert.Equal(t, in.Monitor.Interval, out.Monitor.Interval)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}
