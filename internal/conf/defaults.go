// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.backend", BackendMalgo)
	viper.SetDefault("audio.input", "")
	viper.SetDefault("audio.output", "")
	viper.SetDefault("audio.inputchannels", 2)
	viper.SetDefault("audio.outputchannels", 2)
	viper.SetDefault("audio.samplerate", 0)
	viper.SetDefault("audio.buffersize", 0)
	viper.SetDefault("audio.meterpolicy", MeterPolicyHold)
	viper.SetDefault("audio.bypass", false)
	viper.SetDefault("audio.gaindb", 0.0)

	viper.SetDefault("audio.offline.inputfile", "")
	viper.SetDefault("audio.offline.outputfile", "")
	viper.SetDefault("audio.offline.tonehz", 440.0)
	viper.SetDefault("audio.offline.tonelevel", 0.5)

	viper.SetDefault("monitor.interval", 100*time.Millisecond)
	viper.SetDefault("monitor.console", true)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "localhost:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.timezone", "Local")
}
