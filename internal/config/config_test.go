package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"ExtractDir", cfg.ExtractDir, "./extracts"},
		{"DBPath", cfg.DBPath, "./pulsar.db"},
		{"BatchSize", cfg.BatchSize, 100},
		{"ReportDir", cfg.ReportDir, ""},
		{"TelemetryPath", cfg.TelemetryPath, ""},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper()

	os.Setenv("PULSAR_DB_PATH", "/tmp/index.db")
	os.Setenv("PULSAR_BATCH_SIZE", "25")
	defer os.Unsetenv("PULSAR_DB_PATH")
	defer os.Unsetenv("PULSAR_BATCH_SIZE")

	viper.SetEnvPrefix("PULSAR")
	viper.AutomaticEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.DBPath != "/tmp/index.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/index.db")
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
	}
}

func TestLoad_FileValues(t *testing.T) {
	resetViper()

	viper.Set("extract_dir", "/data/extracts")
	viper.Set("verbose", true)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.ExtractDir != "/data/extracts" {
		t.Errorf("ExtractDir = %q, want %q", cfg.ExtractDir, "/data/extracts")
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
}
