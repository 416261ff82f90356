// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"

	"github.com/spf13/viper"
)

// Config holds all user-facing settings. It maps directly to the
// structure of config.yml; every key has a default and unknown keys are
// ignored.
type Config struct {
	Port      int    `mapstructure:"port"`
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	Format    string `mapstructure:"format"`
	Quality   int    `mapstructure:"quality"`
	// Workers 0 means auto: available CPUs minus one, minimum 1.
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
	Database  struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Watch struct {
		Enabled bool `mapstructure:"enabled"`
		// SweepInterval is the periodic input-directory sweep in
		// minutes; 0 disables the sweep and leaves only the
		// filesystem watcher.
		SweepInterval int `mapstructure:"sweep_interval"`
	} `mapstructure:"watch"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct. A missing
// file is not an error; defaults apply.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// Environment variable overrides, e.g. HEIFCONV_OUTPUT_DIR or
	// HEIFCONV_DATABASE_PATH.
	viper.SetEnvPrefix("HEIFCONV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", 8080)
	viper.SetDefault("input_dir", "./input")
	viper.SetDefault("output_dir", "./output")
	viper.SetDefault("format", "png")
	viper.SetDefault("quality", 90)
	viper.SetDefault("workers", 0)
	viper.SetDefault("batch_size", 10)
	viper.SetDefault("database.path", "./heifconv.db")
	viper.SetDefault("watch.enabled", false)
	viper.SetDefault("watch.sweep_interval", 5)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults.
		} else {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
