// Package writer persists metric rows as partitioned parquet files, locally
// and optionally to S3. Output paths are deterministic so a rerun over the
// same input reproduces the same tree byte for byte.
package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	appconfig "eurexflow/config"
	"eurexflow/internal/channel"
	"eurexflow/internal/metadata"
	"eurexflow/logger"
	"eurexflow/models"
)

// MetricsWriter buffers metric batches per (instrument, date) partition and
// flushes them as parquet files. A single consumer goroutine drains the
// metrics channel so rows keep their emission order inside each partition.
type MetricsWriter struct {
	config   *appconfig.Config
	channels *channel.Channels
	uploader *s3Uploader
	metaGen  *metadata.Generator
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	buffer  map[string][]models.MetricsRow
	parts   map[string]int
	skipped map[string]bool

	flushTicker *time.Ticker
	drained     chan struct{}
}

// NewMetricsWriter creates the writer stage. The S3 uploader is only
// constructed when the storage config enables it.
func NewMetricsWriter(cfg *appconfig.Config, channels *channel.Channels) (*MetricsWriter, error) {
	log := logger.GetLogger()

	var uploader *s3Uploader
	if cfg.Storage.S3.Enabled {
		up, err := newS3Uploader(cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 uploader: %w", err)
		}
		uploader = up
	}

	w := &MetricsWriter{
		config:   cfg,
		channels: channels,
		uploader: uploader,
		metaGen:  metadata.NewGenerator(cfg.Writer.OutputDir, "liquidity_metrics"),
		wg:       &sync.WaitGroup{},
		log:      log,
		buffer:   make(map[string][]models.MetricsRow),
		parts:    make(map[string]int),
		skipped:  make(map[string]bool),
		drained:  make(chan struct{}),
	}

	log.WithComponent("metrics_writer").WithFields(logger.Fields{
		"output_dir":  cfg.Writer.OutputDir,
		"compression": cfg.Writer.Compression,
		"s3_enabled":  cfg.Storage.S3.Enabled,
		"resume":      cfg.Writer.Resume,
	}).Info("metrics writer initialized")

	return w, nil
}

// Start launches the consumer. It drains the metrics channel until the
// processor closes it, then flushes every remaining partition.
func (w *MetricsWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("metrics writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("metrics_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting metrics writer")

	if w.config.Writer.FlushInterval > 0 {
		w.flushTicker = time.NewTicker(w.config.Writer.FlushInterval)
		w.wg.Add(1)
		go w.flushWorker()
	}

	w.wg.Add(1)
	go w.consume()

	return nil
}

// Wait blocks until the metrics channel has been drained and all partitions
// are flushed.
func (w *MetricsWriter) Wait() { w.wg.Wait() }

func (w *MetricsWriter) consume() {
	defer w.wg.Done()

	log := w.log.WithComponent("metrics_writer")

	for batch := range w.channels.Metrics {
		w.addBatch(batch)
	}
	close(w.drained)

	w.flushAll("end_of_stream")
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	if err := w.metaGen.WriteCatalogEntry(filepath.Join(w.config.Writer.OutputDir, "catalog")); err != nil {
		log.WithError(err).Warn("failed to write catalog entry")
	}
	log.Info("metrics writer finished")
}

func (w *MetricsWriter) flushWorker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.drained:
			return
		case <-w.flushTicker.C:
			w.flushAll("interval")
		}
	}
}

func (w *MetricsWriter) partitionKey(instrumentID int64, bucketStart int64) string {
	date := time.Unix(0, bucketStart).UTC().Format(w.config.Writer.TimeFormat)
	return fmt.Sprintf("%d|%s", instrumentID, date)
}

func (w *MetricsWriter) addBatch(batch models.MetricsBatch) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, row := range batch.Rows {
		key := w.partitionKey(row.InstrumentID, row.BucketStart)
		if w.skipped[key] {
			continue
		}
		w.buffer[key] = append(w.buffer[key], row)
		if len(w.buffer[key]) >= w.config.Writer.BatchSize {
			w.flushKey(key, "batch_size")
		}
	}
}

func (w *MetricsWriter) flushAll(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	keys := make([]string, 0, len(w.buffer))
	for k := range w.buffer {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.flushKey(k, reason)
	}
}

// flushKey writes one partition's buffered rows. Caller holds the lock.
func (w *MetricsWriter) flushKey(key, reason string) {
	rows := w.buffer[key]
	if len(rows) == 0 {
		return
	}
	delete(w.buffer, key)

	parts := strings.SplitN(key, "|", 2)
	instrument, date := parts[0], parts[1]
	part := w.parts[key]

	relPath := w.relativePath(instrument, date, part)
	fullPath := filepath.Join(w.config.Writer.OutputDir, relPath)

	log := w.log.WithComponent("metrics_writer").WithFields(logger.Fields{
		"partition": key,
		"rows":      len(rows),
		"path":      relPath,
		"reason":    reason,
	})

	if part == 0 && w.config.Writer.Resume {
		if _, err := os.Stat(fullPath); err == nil {
			w.skipped[key] = true
			log.Info("partition already written, skipping (resume)")
			return
		}
	}

	data, size, err := createParquetFile(rows, w.config.Writer.Compression)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		log.WithError(err).Error("failed to create partition directory")
		return
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		log.WithError(err).Error("failed to write parquet file")
		return
	}
	w.parts[key] = part + 1
	logger.RecordFileWritten(size)

	log.WithFields(logger.Fields{"file_size": size}).Info("partition flushed")

	instrumentID, _ := parseInstrument(instrument)
	df := metadata.DataFile{
		Path:        fullPath,
		FileSize:    size,
		RecordCount: int64(len(rows)),
		Partition: map[string]any{
			"instrument": instrumentID,
			"date":       date,
		},
		Timestamp: time.Unix(0, rows[len(rows)-1].BucketStart).UTC(),
	}
	if err := w.metaGen.AddFile(df); err != nil {
		log.WithError(err).Warn("failed to update metadata")
	}

	if w.uploader != nil {
		s3Key := filepath.ToSlash(filepath.Join(w.config.Storage.S3.Prefix, relPath))
		if err := w.uploader.Upload(w.ctx, s3Key, data); err != nil {
			log.WithError(err).
				WithEnv("S3_BUCKET").
				WithFields(logger.Fields{"s3_key": s3Key}).
				Error("failed to upload to S3")
			return
		}
		logger.RecordS3Upload(size)
	}
}

func (w *MetricsWriter) relativePath(instrument, date string, part int) string {
	filename := fmt.Sprintf("metrics_%s_%s_part%05d.parquet", instrument, date, part)
	return filepath.Join(
		fmt.Sprintf("instrument=%s", instrument),
		fmt.Sprintf("date=%s", date),
		filename,
	)
}

func parseInstrument(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}
