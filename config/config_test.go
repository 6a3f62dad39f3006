package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
reader:
  data_dir: /data/di
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Reader.DataDir != "/data/di" {
		t.Errorf("data dir = %s", cfg.Reader.DataDir)
	}
	if cfg.Book.BucketGranularity != time.Second {
		t.Errorf("granularity = %v, want 1s default", cfg.Book.BucketGranularity)
	}
	if cfg.Processor.MaxWorkers != 4 {
		t.Errorf("workers = %d, want default 4", cfg.Processor.MaxWorkers)
	}
	if cfg.Writer.Compression != "snappy" {
		t.Errorf("compression = %s, want snappy", cfg.Writer.Compression)
	}
	if cfg.Reader.Mapping.SecurityID != 3 || cfg.Reader.Mapping.TsNs != 7 {
		t.Errorf("default mapping = %+v", cfg.Reader.Mapping)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
reader:
  data_dir: /data/di
  mapping:
    security_id_idx: 9
book:
  max_depth: 3
  bucket_granularity: 500000000
writer:
  output_dir: /tmp/metrics
  compression: gzip
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Book.MaxDepth != 3 {
		t.Errorf("max depth = %d", cfg.Book.MaxDepth)
	}
	if cfg.Book.BucketGranularity != 500*time.Millisecond {
		t.Errorf("granularity = %v", cfg.Book.BucketGranularity)
	}
	if cfg.Reader.Mapping.SecurityID != 9 {
		t.Errorf("mapping override lost: %+v", cfg.Reader.Mapping)
	}
	if cfg.Writer.OutputDir != "/tmp/metrics" || cfg.Writer.Compression != "gzip" {
		t.Errorf("writer = %+v", cfg.Writer)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "reader: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := defaultConfig()
		c.Reader.DataDir = "/data/di"
		return c
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative depth", func(c *Config) { c.Book.MaxDepth = -1 }},
		{"depth beyond feed", func(c *Config) { c.Book.MaxDepth = 6 }},
		{"zero granularity", func(c *Config) { c.Book.BucketGranularity = 0 }},
		{"no input", func(c *Config) { c.Reader.DataDir = ""; c.Reader.Files = nil }},
		{"no output", func(c *Config) { c.Writer.OutputDir = "" }},
		{"s3 without bucket", func(c *Config) { c.Storage.S3.Enabled = true }},
	}
	for _, tc := range cases {
		c := base()
		tc.mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("S3_BUCKET", "depth-metrics")
	t.Setenv("EUREXFLOW_DATA_DIR", "/mnt/di")
	t.Setenv("EUREXFLOW_OUTPUT_DIR", "/mnt/out")

	path := writeConfig(t, `
reader:
  data_dir: /data/di
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.S3.Bucket != "depth-metrics" {
		t.Errorf("bucket = %s", cfg.Storage.S3.Bucket)
	}
	if cfg.Reader.DataDir != "/mnt/di" {
		t.Errorf("data dir = %s", cfg.Reader.DataDir)
	}
	if cfg.Writer.OutputDir != "/mnt/out" {
		t.Errorf("output dir = %s", cfg.Writer.OutputDir)
	}
}

func TestEffectiveDepth(t *testing.T) {
	c := &Config{}
	if c.EffectiveDepth() != 5 {
		t.Errorf("auto depth = %d, want 5", c.EffectiveDepth())
	}
	c.Book.MaxDepth = 3
	if c.EffectiveDepth() != 3 {
		t.Errorf("depth = %d, want 3", c.EffectiveDepth())
	}
}
