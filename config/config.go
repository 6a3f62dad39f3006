package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Eurexflow  EurexflowConfig  `yaml:"eurexflow"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Reader     ReaderConfig     `yaml:"reader"`
	Book       BookConfig       `yaml:"book"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Writer     WriterConfig     `yaml:"writer"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cloudwatch CloudwatchConfig `yaml:"cloudwatch"`
}

type EurexflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer     int `yaml:"raw_buffer"`
	MetricsBuffer int `yaml:"metrics_buffer"`
}

type ReaderConfig struct {
	// DataDir is scanned for *.csv depth-incremental files when Files is
	// empty. Each file is one independent partition: a file that fails to
	// open aborts only itself.
	DataDir   string        `yaml:"data_dir"`
	Files     []string      `yaml:"files"`
	Mapping   MappingConfig `yaml:"mapping"`
	BatchSize int           `yaml:"batch_size"`
}

// MappingConfig holds the column index of each field inside a depth entry
// block. Column order differs by exchange segment, so the mapping is
// configuration, not code.
type MappingConfig struct {
	UpdateAction int `yaml:"md_update_action_idx"`
	EntryType    int `yaml:"entry_type_idx"`
	PriceLevel   int `yaml:"price_level_idx"`
	SecurityID   int `yaml:"security_id_idx"`
	Price        int `yaml:"price_idx"`
	Size         int `yaml:"size_idx"`
	TsNs         int `yaml:"ts_ns_idx"`
	SequenceNum  int `yaml:"seq_num_idx"`
}

type BookConfig struct {
	// MaxDepth bounds the levels tracked per side. Zero selects
	// auto-detection, capped at five.
	MaxDepth          int           `yaml:"max_depth"`
	BucketGranularity time.Duration `yaml:"bucket_granularity"`
	DenseBuckets      bool          `yaml:"dense_buckets"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type WriterConfig struct {
	OutputDir     string        `yaml:"output_dir"`
	Compression   string        `yaml:"compression"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Resume        bool          `yaml:"resume"`
	TimeFormat    string        `yaml:"time_format"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool    `yaml:"enabled"`
	Bucket          string  `yaml:"bucket"`
	Prefix          string  `yaml:"prefix"`
	Region          string  `yaml:"region"`
	Endpoint        string  `yaml:"endpoint"`
	PathStyle       bool    `yaml:"path_style"`
	AccessKeyID     string  `yaml:"access_key_id"`
	SecretAccessKey string  `yaml:"secret_access_key"`
	UploadsPerSec   float64 `yaml:"uploads_per_sec"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type CloudwatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// LoadConfig reads a YAML configuration file, applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Eurexflow: EurexflowConfig{Name: "eurexflow", Version: "dev"},
		Channels:  ChannelsConfig{RawBuffer: 64, MetricsBuffer: 64},
		Reader: ReaderConfig{
			BatchSize: 10000,
			// Default Eurex DI entry layout:
			// {action, level, side, security_id, M, price, size, ..., ts_ns}
			Mapping: MappingConfig{
				UpdateAction: 0,
				PriceLevel:   1,
				EntryType:    2,
				SecurityID:   3,
				Price:        5,
				Size:         6,
				TsNs:         7,
				SequenceNum:  8,
			},
		},
		Book: BookConfig{
			MaxDepth:          0, // auto, capped at 5
			BucketGranularity: time.Second,
		},
		Processor: ProcessorConfig{
			MaxWorkers: 4,
		},
		Writer: WriterConfig{
			OutputDir:   "out",
			Compression: "snappy",
			BatchSize:   50000,
			TimeFormat:  "2006-01-02",
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.S3.SecretAccessKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("EUREXFLOW_DATA_DIR"); v != "" {
		cfg.Reader.DataDir = v
	}
	if v := os.Getenv("EUREXFLOW_OUTPUT_DIR"); v != "" {
		cfg.Writer.OutputDir = v
	}
}

// Validate checks the parts of the configuration the pipeline depends on.
func (c *Config) Validate() error {
	if c.Book.MaxDepth < 0 {
		return fmt.Errorf("book.max_depth must not be negative")
	}
	if c.Book.MaxDepth > 5 {
		return fmt.Errorf("book.max_depth above 5 is not supported by the feed")
	}
	if c.Book.BucketGranularity <= 0 {
		return fmt.Errorf("book.bucket_granularity must be positive")
	}
	if c.Reader.DataDir == "" && len(c.Reader.Files) == 0 {
		return fmt.Errorf("reader.data_dir or reader.files must be set")
	}
	if c.Writer.OutputDir == "" {
		return fmt.Errorf("writer.output_dir must be set")
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket must be set when s3 is enabled")
	}
	if env := AppEnvironment(); IsProductionLike(env) && !c.Storage.S3.Enabled {
		return fmt.Errorf("storage.s3 must be enabled in %s", env)
	}
	return nil
}

// EffectiveDepth resolves the configured max depth, applying the
// auto-detection cap when unset.
func (c *Config) EffectiveDepth() int {
	if c.Book.MaxDepth <= 0 {
		return 5
	}
	return c.Book.MaxDepth
}
