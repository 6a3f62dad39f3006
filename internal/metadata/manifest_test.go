package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorCreatesMetadata(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "liquidity_metrics")
	df := DataFile{
		Path:        "out/instrument=5315926/date=2021-03-01/metrics_5315926_2021-03-01_part00000.parquet",
		FileSize:    100,
		RecordCount: 10,
		Partition: map[string]any{
			"instrument": int64(5315926),
			"date":       "2021-03-01",
		},
		Timestamp: time.Unix(0, 0),
	}
	if err := gen.AddFile(df); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "metadata", "metadata.json")); err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	catalogDir := filepath.Join(dir, "catalog")
	if err := gen.WriteCatalogEntry(catalogDir); err != nil {
		t.Fatalf("catalog entry: %v", err)
	}
	if _, err := os.Stat(filepath.Join(catalogDir, "liquidity_metrics.json")); err != nil {
		t.Fatalf("catalog entry not written: %v", err)
	}
}
