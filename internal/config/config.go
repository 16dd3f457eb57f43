package config

import "github.com/spf13/viper"

// Config holds all runtime configuration for a pulsar run.
// Values are populated from .pulsar.yaml, PULSAR_* env vars, and CLI flags.
type Config struct {
	// ExtractDir is the directory holding the JSONL extract files.
	ExtractDir string `mapstructure:"extract_dir"`
	// DBPath is where the SQLite index is written.
	DBPath string `mapstructure:"db_path"`
	// BatchSize bounds how many backfill updates share one transaction.
	BatchSize int `mapstructure:"batch_size"`
	// ReportDir, when non-empty, receives the TOML run report.
	ReportDir string `mapstructure:"report_dir"`
	// TelemetryPath, when non-empty, receives the JSONL event log.
	TelemetryPath string `mapstructure:"telemetry_path"`
	Verbose       bool   `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("extract_dir", "./extracts")
	viper.SetDefault("db_path", "./pulsar.db")
	viper.SetDefault("batch_size", 100)
	viper.SetDefault("report_dir", "")
	viper.SetDefault("telemetry_path", "")
	viper.SetDefault("verbose", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
