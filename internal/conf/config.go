// config.go: settings for the audio router and functions to load and save them.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/eqroute/internal/errors"
)

// Backend names for AudioSettings.Backend
const (
	BackendMalgo   = "malgo"   // native devices through miniaudio
	BackendOffline = "offline" // clocked software device, optional WAV in/out
)

// Meter policies for AudioSettings.MeterPolicy
const (
	MeterPolicyHold  = "hold"  // meters keep the last block's peak after stop
	MeterPolicyReset = "reset" // meters are zeroed on stop
)

// OfflineSettings configure the software device used without audio hardware.
type OfflineSettings struct {
	InputFile  string  // WAV file offered as an input, played once; empty for the test tone
	OutputFile string  // WAV file receiving the routed output; empty to discard
	ToneHz     float64 // test tone frequency, 0 for the 440 Hz default
	ToneLevel  float64 // test tone peak amplitude, 0..1
}

// AudioSettings contains device selection and engine settings.
type AudioSettings struct {
	Backend        string          // "malgo" or "offline"
	Input          string          // input device name, empty for the system default
	Output         string          // output device name, empty for the system default
	InputChannels  int             // channels requested from the input device
	OutputChannels int             // channels requested from the output device
	SampleRate     int             // preferred sample rate, 0 lets the device decide
	BufferSize     int             // preferred frames per block, 0 lets the device decide
	MeterPolicy    string          // "hold" or "reset"
	Bypass         bool            // start with the processing chain bypassed
	GainDB         float64         // gain stage level in dB, 0 leaves the chain empty
	Offline        OfflineSettings // software device settings
}

// MonitorSettings control level polling for the console meter.
type MonitorSettings struct {
	Interval time.Duration // polling interval, 100ms gives the usual 10 Hz meter
	Console  bool          // print a meter line while routing
}

// TelemetrySettings control the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to serve /metrics
	Listen  string // listen address of the metrics endpoint
}

// SentrySettings control error reporting.
type SentrySettings struct {
	Enabled bool   // true to report errors to Sentry
	DSN     string // Sentry DSN
}

// LogSettings control application logging.
type LogSettings struct {
	Level    string // trace, debug, info, warn, error
	File     string // optional JSON log file
	Timezone string // timezone for file timestamps
}

// Settings is the root of the configuration tree.
type Settings struct {
	Debug     bool              // true to enable debug logging
	Audio     AudioSettings     // audio routing settings
	Monitor   MonitorSettings   // level monitor settings
	Telemetry TelemetrySettings // metrics endpoint settings
	Sentry    SentrySettings    // error reporting settings
	Log       LogSettings       // logging settings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new Settings.
// An explicit configFile must exist; otherwise the default paths are searched and
// a missing file leaves the defaults in effect.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// initViper sets defaults, env binding and config paths, then reads the config file.
func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix("EQROUTE")
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}
	return nil
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "eqroute"))
	}
	return append(paths, "/etc/eqroute")
}

// SaveYAMLConfig writes settings to configPath, replacing the file atomically.
// Comments and structure of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating config directory: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.New(fmt.Errorf("error replacing config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}
