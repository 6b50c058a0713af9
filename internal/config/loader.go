package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "decklens"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DECKLENS"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a configuration loader on the global viper instance so
// that cobra flag bindings are honored.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load loads configuration from files, environment variables, and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")

	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for flag binding.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}

	l.v.AddConfigPath("/etc/decklens")

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "decklens"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "decklens"))
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("pipeline.segment.metadata_fraction", defaults.Pipeline.Segment.MetadataFraction)
	l.v.SetDefault("pipeline.segment.detect_boundary", defaults.Pipeline.Segment.DetectBoundary)
	l.v.SetDefault("pipeline.segment.skip_top_fraction", defaults.Pipeline.Segment.SkipTopFraction)
	l.v.SetDefault("pipeline.segment.sample_x_fraction", defaults.Pipeline.Segment.SampleXFraction)
	l.v.SetDefault("pipeline.segment.columns", defaults.Pipeline.Segment.Columns)

	l.v.SetDefault("pipeline.recognizer.model_path", defaults.Pipeline.Recognizer.ModelPath)
	l.v.SetDefault("pipeline.recognizer.dict_path", defaults.Pipeline.Recognizer.DictPath)
	l.v.SetDefault("pipeline.recognizer.image_height", defaults.Pipeline.Recognizer.ImageHeight)
	l.v.SetDefault("pipeline.recognizer.max_width", defaults.Pipeline.Recognizer.MaxWidth)
	l.v.SetDefault("pipeline.recognizer.pad_width_multiple", defaults.Pipeline.Recognizer.PadWidthMultiple)
	l.v.SetDefault("pipeline.recognizer.num_threads", defaults.Pipeline.Recognizer.NumThreads)

	l.v.SetDefault("pipeline.catalog.dataset_path", defaults.Pipeline.Catalog.DatasetPath)
	l.v.SetDefault("pipeline.catalog.alias_path", defaults.Pipeline.Catalog.AliasPath)

	l.v.SetDefault("pipeline.match.fuzzy_threshold", defaults.Pipeline.Match.FuzzyThreshold)
	l.v.SetDefault("pipeline.match.fuzzy_candidates", defaults.Pipeline.Match.FuzzyCandidates)

	l.v.SetDefault("pipeline.targets.main_quantity", defaults.Pipeline.Targets.MainQuantity)
	l.v.SetDefault("pipeline.targets.battlefield_lines", defaults.Pipeline.Targets.BattlefieldLines)
	l.v.SetDefault("pipeline.targets.rune_quantity", defaults.Pipeline.Targets.RuneQuantity)
	l.v.SetDefault("pipeline.targets.side_quantity_max", defaults.Pipeline.Targets.SideQuantityMax)

	l.v.SetDefault("output.format", defaults.Output.Format)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.max_batch_size", defaults.Server.MaxBatchSize)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)

	l.v.SetDefault("batch.parallel", defaults.Batch.Parallel)
	l.v.SetDefault("batch.max_workers", defaults.Batch.MaxWorkers)
	l.v.SetDefault("batch.output_dir", defaults.Batch.OutputDir)
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile generates a configuration file with all defaults.
func GenerateDefaultConfigFile(filename string) error {
	loader := &Loader{v: viper.New()}
	loader.setDefaults()

	if filename == "" {
		filename = "decklens.yaml"
	}

	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
		paths = append(paths, filepath.Join(home, ".config", "decklens"))
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "decklens"))
	}

	paths = append(paths, "/etc/decklens")

	return paths
}
