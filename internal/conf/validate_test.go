package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Audio: AudioSettings{
			Backend:        BackendMalgo,
			InputChannels:  2,
			OutputChannels: 2,
			MeterPolicy:    MeterPolicyHold,
			Offline:        OfflineSettings{ToneHz: 440, ToneLevel: 0.5},
		},
		Monitor:   MonitorSettings{Interval: 100 * time.Millisecond},
		Telemetry: TelemetrySettings{Listen: "localhost:8090"},
		Log:       LogSettings{Level: "info"},
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"unknown backend", func(s *Settings) { s.Audio.Backend = "jack" }, "unknown audio backend"},
		{"no channels", func(s *Settings) { s.Audio.InputChannels, s.Audio.OutputChannels = 0, 0 }, "at least one"},
		{"too many channels", func(s *Settings) { s.Audio.OutputChannels = 65 }, "output channels"},
		{"sample rate", func(s *Settings) { s.Audio.SampleRate = 1000 }, "sample rate"},
		{"device default rate", func(s *Settings) { s.Audio.SampleRate = 0 }, ""},
		{"buffer size", func(s *Settings) { s.Audio.BufferSize = -1 }, "buffer size"},
		{"meter policy", func(s *Settings) { s.Audio.MeterPolicy = "decay" }, "meter policy"},
		{"tone level", func(s *Settings) { s.Audio.Offline.ToneLevel = 2 }, "tone level"},
		{"gain", func(s *Settings) { s.Audio.GainDB = 30 }, "gain 30.0 dB out of range"},
		{"monitor interval", func(s *Settings) { s.Monitor.Interval = 0 }, "monitor interval"},
		{"telemetry listen", func(s *Settings) {
			s.Telemetry.Enabled = true
			s.Telemetry.Listen = "nope"
		}, "telemetry listen"},
		{"sentry dsn", func(s *Settings) { s.Sentry.Enabled = true }, "DSN"},
		{"log level", func(s *Settings) { s.Log.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	s := validSettings()
	s.Audio.Backend = "jack"
	s.Audio.MeterPolicy = "decay"
	s.Log.Level = "loud"

	err := ValidateSettings(s)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}
