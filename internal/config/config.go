package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// RecorderConfig holds episode recorder settings.
type RecorderConfig struct {
	Backend       string `json:"backend" mapstructure:"backend"`
	OutputDir     string `json:"outputDir" mapstructure:"outputDir"`
	FlushInterval int    `json:"flushInterval" mapstructure:"flushInterval"`
}

// Load reads configuration from a JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName("smarts.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults installs default values for every config key. Split out of
// Load so tests and embedded callers can run without a config file.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("sim.tickRate", 10.0)
	viper.SetDefault("sim.maxTicks", 1000)
	viper.SetDefault("scenario.path", "./scenario.yaml")

	viper.SetDefault("recorder.backend", "memory")
	viper.SetDefault("recorder.outputDir", "./recordings")
	viper.SetDefault("recorder.flushInterval", 100)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "smarts")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "smarts-metrics")
	viper.SetDefault("influx.bucket", "sim_data")

	viper.SetDefault("geo.originLongitude", 0.0)
	viper.SetDefault("geo.originLatitude", 0.0)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// Recorder returns the recorder section as a typed struct. Reads go through
// viper key by key so defaults apply to keys absent from the config file.
func Recorder() RecorderConfig {
	return RecorderConfig{
		Backend:       viper.GetString("recorder.backend"),
		OutputDir:     viper.GetString("recorder.outputDir"),
		FlushInterval: viper.GetInt("recorder.flushInterval"),
	}
}
