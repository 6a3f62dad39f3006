// Package reader adapts raw Eurex depth-incremental files into the
// normalized update stream the engine consumes. Ordering correctness is the
// sequencer's job downstream; the reader only preserves file order within
// each instrument.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "eurexflow/config"
	"eurexflow/internal/channel"
	"eurexflow/logger"
	"eurexflow/models"
)

// FileReader walks the configured depth files and emits per-instrument
// ordered DepthUpdateBatches on the raw channel. Each file is an independent
// partition: an unreadable file fails alone and the rest of the batch
// completes.
type FileReader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// pending per-instrument update runs for the file being read
	pending map[int64][]models.DepthUpdate
	// synthesized sequence counters for feeds without a sequence column
	nextSeq map[int64]int64

	filesRead   int
	filesFailed int
}

// NewFileReader creates a reader over the configured data directory or file
// list.
func NewFileReader(cfg *appconfig.Config, channels *channel.Channels) *FileReader {
	return &FileReader{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		pending:  make(map[int64][]models.DepthUpdate),
		nextSeq:  make(map[int64]int64),
	}
}

// Start launches the read loop. The raw channel is closed when every file
// has been consumed, which lets the downstream stages drain and finish.
func (r *FileReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("file reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	files, err := r.resolveFiles()
	if err != nil {
		return err
	}

	log := r.log.WithComponent("file_reader").WithFields(logger.Fields{"files": len(files)})
	log.Info("starting file reader")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.channels.CloseRaw()
		for _, f := range files {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := r.readFile(f); err != nil {
				r.filesFailed++
				log.WithError(err).WithFields(logger.Fields{"file": f}).Error("partition failed")
				continue
			}
			r.filesRead++
		}
		log.WithFields(logger.Fields{
			"files_read":   r.filesRead,
			"files_failed": r.filesFailed,
		}).Info("file reader finished")
	}()

	return nil
}

// Wait blocks until all files have been consumed.
func (r *FileReader) Wait() { r.wg.Wait() }

func (r *FileReader) resolveFiles() ([]string, error) {
	if len(r.config.Reader.Files) > 0 {
		files := append([]string(nil), r.config.Reader.Files...)
		sort.Strings(files)
		return files, nil
	}

	var files []string
	err := filepath.WalkDir(r.config.Reader.DataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".csv", ".txt":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan data dir %s: %w", r.config.Reader.DataDir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no depth files found under %s", r.config.Reader.DataDir)
	}
	sort.Strings(files)
	return files, nil
}

func (r *FileReader) readFile(path string) error {
	log := r.log.WithComponent("file_reader").WithFields(logger.Fields{"file": path})

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open partition: %w", err)
	}
	defer f.Close()

	start := time.Now()
	var lines, entries, malformed int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}
		lines++
		for _, tokens := range ExtractEntries(scanner.Text()) {
			entries++
			u, err := ToUpdate(tokens, r.config.Reader.Mapping)
			if err != nil {
				malformed++
				logger.RecordMalformedMessage()
				log.WithError(err).Debug("dropping malformed entry")
				continue
			}
			if u.SequenceNumber == 0 {
				r.nextSeq[u.InstrumentID]++
				u.SequenceNumber = r.nextSeq[u.InstrumentID]
			}
			r.pending[u.InstrumentID] = append(r.pending[u.InstrumentID], u)
			if len(r.pending[u.InstrumentID]) >= r.config.Reader.BatchSize {
				if !r.emit(u.InstrumentID, path) {
					return r.ctx.Err()
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan partition: %w", err)
	}

	// Flush every instrument's tail so the partition is self-contained.
	ids := make([]int64, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !r.emit(id, path) {
			return r.ctx.Err()
		}
	}

	log.WithFields(logger.Fields{
		"lines":     lines,
		"entries":   entries,
		"malformed": malformed,
		"elapsed":   time.Since(start).String(),
	}).Info("partition read")
	return nil
}

// emit sends the instrument's pending run downstream in file order.
func (r *FileReader) emit(instrumentID int64, sourceFile string) bool {
	updates := r.pending[instrumentID]
	if len(updates) == 0 {
		return true
	}
	delete(r.pending, instrumentID)

	batch := models.DepthUpdateBatch{
		BatchID:      uuid.New().String(),
		InstrumentID: instrumentID,
		SourceFile:   sourceFile,
		Updates:      updates,
		RecordCount:  len(updates),
		Timestamp:    time.Now(),
	}
	return r.channels.SendRaw(r.ctx, batch)
}
