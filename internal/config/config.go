// Package config loads and validates application configuration from files,
// environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/decklens/decklens/internal/pipeline"
)

// Config represents the complete configuration for the decklens application.
// It covers all commands (scan, batch, serve) and supports loading from
// configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Pipeline configuration
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// PipelineConfig contains decklist pipeline settings.
type PipelineConfig struct {
	Segment    SegmentConfig    `mapstructure:"segment" yaml:"segment" json:"segment"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Catalog    CatalogConfig    `mapstructure:"catalog" yaml:"catalog" json:"catalog"`
	Match      MatchConfig      `mapstructure:"match" yaml:"match" json:"match"`
	Targets    TargetsConfig    `mapstructure:"targets" yaml:"targets" json:"targets"`
}

// SegmentConfig contains region segmentation settings.
type SegmentConfig struct {
	MetadataFraction float64 `mapstructure:"metadata_fraction" yaml:"metadata_fraction" json:"metadata_fraction"`
	DetectBoundary   bool    `mapstructure:"detect_boundary" yaml:"detect_boundary" json:"detect_boundary"`
	SkipTopFraction  float64 `mapstructure:"skip_top_fraction" yaml:"skip_top_fraction" json:"skip_top_fraction"`
	SampleXFraction  float64 `mapstructure:"sample_x_fraction" yaml:"sample_x_fraction" json:"sample_x_fraction"`
	Columns          int     `mapstructure:"columns" yaml:"columns" json:"columns"`
}

// RecognizerConfig contains text recognition settings.
type RecognizerConfig struct {
	ModelPath        string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DictPath         string `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	ImageHeight      int    `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	MaxWidth         int    `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	PadWidthMultiple int    `mapstructure:"pad_width_multiple" yaml:"pad_width_multiple" json:"pad_width_multiple"`
	NumThreads       int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// CatalogConfig contains card catalog settings.
type CatalogConfig struct {
	DatasetPath string `mapstructure:"dataset_path" yaml:"dataset_path" json:"dataset_path"`
	AliasPath   string `mapstructure:"alias_path" yaml:"alias_path" json:"alias_path"`
}

// MatchConfig contains catalog matching settings.
type MatchConfig struct {
	FuzzyThreshold  float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	FuzzyCandidates int     `mapstructure:"fuzzy_candidates" yaml:"fuzzy_candidates" json:"fuzzy_candidates"`
}

// TargetsConfig contains the expected section sizes used during parsing.
type TargetsConfig struct {
	MainQuantity     int `mapstructure:"main_quantity" yaml:"main_quantity" json:"main_quantity"`
	BattlefieldLines int `mapstructure:"battlefield_lines" yaml:"battlefield_lines" json:"battlefield_lines"`
	RuneQuantity     int `mapstructure:"rune_quantity" yaml:"rune_quantity" json:"rune_quantity"`
	SideQuantityMax  int `mapstructure:"side_quantity_max" yaml:"side_quantity_max" json:"side_quantity_max"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host" json:"host"`
	Port         int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin   string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB  int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	MaxBatchSize int    `mapstructure:"max_batch_size" yaml:"max_batch_size" json:"max_batch_size"`
	TimeoutSec   int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Parallel   bool   `mapstructure:"parallel" yaml:"parallel" json:"parallel"`
	MaxWorkers int    `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Pipeline: PipelineConfig{
			Segment: SegmentConfig{
				MetadataFraction: p.Segment.MetadataFraction,
				DetectBoundary:   p.Segment.DetectBoundary,
				SkipTopFraction:  p.Segment.SkipTopFraction,
				SampleXFraction:  p.Segment.SampleXFraction,
				Columns:          p.Segment.Columns,
			},
			Recognizer: RecognizerConfig{
				ImageHeight:      p.Engine.ImageHeight,
				MaxWidth:         p.Engine.MaxWidth,
				PadWidthMultiple: p.Engine.PadWidth,
				NumThreads:       p.Engine.NumThreads,
			},
			Match: MatchConfig{
				FuzzyThreshold:  p.Match.FuzzyThreshold,
				FuzzyCandidates: p.Match.FuzzyCandidates,
			},
			Targets: TargetsConfig{
				MainQuantity:     p.Targets.MainQuantity,
				BattlefieldLines: p.Targets.BattlefieldLines,
				RuneQuantity:     p.Targets.RuneQuantity,
				SideQuantityMax:  p.Targets.SideQuantityMax,
			},
		},
		Output: OutputConfig{
			Format: "json",
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8000,
			CORSOrigin:   "*",
			MaxUploadMB:  10,
			MaxBatchSize: 10,
			TimeoutSec:   300,
		},
		Batch: BatchConfig{
			Parallel:   false,
			MaxWorkers: 2,
		},
	}
}

// ToPipelineConfig converts the pipeline section into the runtime config
// consumed by pipeline.NewBuilder.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()

	cfg.Segment.MetadataFraction = c.Pipeline.Segment.MetadataFraction
	cfg.Segment.DetectBoundary = c.Pipeline.Segment.DetectBoundary
	cfg.Segment.SkipTopFraction = c.Pipeline.Segment.SkipTopFraction
	cfg.Segment.SampleXFraction = c.Pipeline.Segment.SampleXFraction
	cfg.Segment.Columns = c.Pipeline.Segment.Columns

	cfg.Engine.ModelPath = c.Pipeline.Recognizer.ModelPath
	cfg.Engine.DictPath = c.Pipeline.Recognizer.DictPath
	cfg.Engine.ImageHeight = c.Pipeline.Recognizer.ImageHeight
	cfg.Engine.MaxWidth = c.Pipeline.Recognizer.MaxWidth
	cfg.Engine.PadWidth = c.Pipeline.Recognizer.PadWidthMultiple
	cfg.Engine.NumThreads = c.Pipeline.Recognizer.NumThreads

	cfg.Catalog.DatasetPath = c.Pipeline.Catalog.DatasetPath
	cfg.Catalog.AliasPath = c.Pipeline.Catalog.AliasPath

	cfg.Match.FuzzyThreshold = c.Pipeline.Match.FuzzyThreshold
	cfg.Match.FuzzyCandidates = c.Pipeline.Match.FuzzyCandidates

	cfg.Targets.MainQuantity = c.Pipeline.Targets.MainQuantity
	cfg.Targets.BattlefieldLines = c.Pipeline.Targets.BattlefieldLines
	cfg.Targets.RuneQuantity = c.Pipeline.Targets.RuneQuantity
	cfg.Targets.SideQuantityMax = c.Pipeline.Targets.SideQuantityMax

	return cfg
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"json", "csv", "text"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := validateFraction(c.Pipeline.Segment.MetadataFraction, "segment.metadata_fraction"); err != nil {
		return err
	}
	if err := validateFraction(c.Pipeline.Segment.SkipTopFraction, "segment.skip_top_fraction"); err != nil {
		return err
	}
	if err := validateFraction(c.Pipeline.Segment.SampleXFraction, "segment.sample_x_fraction"); err != nil {
		return err
	}
	if err := validateFraction(c.Pipeline.Match.FuzzyThreshold, "match.fuzzy_threshold"); err != nil {
		return err
	}

	if c.Pipeline.Match.FuzzyCandidates <= 0 {
		return fmt.Errorf("invalid match.fuzzy_candidates: %d (must be positive)", c.Pipeline.Match.FuzzyCandidates)
	}
	if c.Pipeline.Targets.MainQuantity <= 0 {
		return fmt.Errorf("invalid targets.main_quantity: %d (must be positive)", c.Pipeline.Targets.MainQuantity)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("invalid max batch size: %d (must be positive)", c.Server.MaxBatchSize)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("invalid batch max workers: %d (must be positive)", c.Batch.MaxWorkers)
	}

	return nil
}

func validateFraction(v float64, name string) error {
	if v < 0.0 || v > 1.0 {
		return fmt.Errorf("invalid %s: %f (must be between 0.0 and 1.0)", name, v)
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
