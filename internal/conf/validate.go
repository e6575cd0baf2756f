// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// limits for channel requests and block sizes
const (
	maxChannels   = 64
	maxBufferSize = 16384
	minSampleRate = 8000
	maxSampleRate = 384000
	minGainDB     = -60.0
	maxGainDB     = 24.0
)

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateAudioSettings(&settings.Audio)...)

	if settings.Monitor.Interval <= 0 {
		ve.Errors = append(ve.Errors, "monitor interval must be positive")
	}

	if settings.Telemetry.Enabled {
		if _, _, err := net.SplitHostPort(settings.Telemetry.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("invalid telemetry listen address %q: %v", settings.Telemetry.Listen, err))
		}
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is set")
	}

	switch strings.ToLower(settings.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("invalid log level %q", settings.Log.Level))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(audio *AudioSettings) []string {
	var errs []string

	switch audio.Backend {
	case BackendMalgo, BackendOffline:
	default:
		errs = append(errs, fmt.Sprintf("unknown audio backend %q, must be %q or %q", audio.Backend, BackendMalgo, BackendOffline))
	}

	if audio.InputChannels < 0 || audio.InputChannels > maxChannels {
		errs = append(errs, fmt.Sprintf("input channels must be between 0 and %d", maxChannels))
	}
	if audio.OutputChannels < 0 || audio.OutputChannels > maxChannels {
		errs = append(errs, fmt.Sprintf("output channels must be between 0 and %d", maxChannels))
	}
	if audio.InputChannels == 0 && audio.OutputChannels == 0 {
		errs = append(errs, "at least one input or output channel is required")
	}

	if audio.SampleRate != 0 && (audio.SampleRate < minSampleRate || audio.SampleRate > maxSampleRate) {
		errs = append(errs, fmt.Sprintf("sample rate %d out of range %d-%d", audio.SampleRate, minSampleRate, maxSampleRate))
	}
	if audio.BufferSize < 0 || audio.BufferSize > maxBufferSize {
		errs = append(errs, fmt.Sprintf("buffer size must be between 0 and %d frames", maxBufferSize))
	}

	switch audio.MeterPolicy {
	case MeterPolicyHold, MeterPolicyReset:
	default:
		errs = append(errs, fmt.Sprintf("unknown meter policy %q", audio.MeterPolicy))
	}

	if audio.GainDB < minGainDB || audio.GainDB > maxGainDB {
		errs = append(errs, fmt.Sprintf("gain %.1f dB out of range %.0f to %.0f dB", audio.GainDB, minGainDB, maxGainDB))
	}

	if audio.Offline.ToneLevel < 0 || audio.Offline.ToneLevel > 1 {
		errs = append(errs, "offline tone level must be between 0 and 1")
	}
	if audio.Offline.ToneHz < 0 {
		errs = append(errs, "offline tone frequency must not be negative")
	}

	return errs
}
