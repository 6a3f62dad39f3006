// Package processor runs the reconstruction core: sequencing, book state,
// sampling and metric aggregation, parallelized across instruments.
package processor

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"eurexflow/book"
	appconfig "eurexflow/config"
	"eurexflow/internal/channel"
	"eurexflow/logger"
	"eurexflow/models"
)

// Processor consumes raw update batches and emits metric row batches. Each
// instrument is pinned to one worker by hash, so a single goroutine owns each
// book and no state is shared or locked. The metrics channel is closed once
// every worker has flushed its trailing buckets.
type Processor struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	workerChans []chan models.DepthUpdateBatch
}

// instrumentPipeline is the per-instrument reconstruction chain. Exclusively
// owned by one worker goroutine.
type instrumentPipeline struct {
	book       *book.Book
	sequencer  *book.Sequencer
	sampler    *book.Sampler
	rows       []models.MetricsRow
	sourceFile string
}

// NewProcessor creates the processing stage.
func NewProcessor(cfg *appconfig.Config, channels *channel.Channels) *Processor {
	return &Processor{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the dispatcher and worker pool.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	workers := p.config.Processor.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	log := p.log.WithComponent("processor").WithFields(logger.Fields{"workers": workers})
	log.Info("starting processor")

	p.workerChans = make([]chan models.DepthUpdateBatch, workers)
	workerWg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		p.workerChans[i] = make(chan models.DepthUpdateBatch, 1)
		workerWg.Add(1)
		p.wg.Add(1)
		go func(id int, in <-chan models.DepthUpdateBatch) {
			defer p.wg.Done()
			defer workerWg.Done()
			p.worker(id, in)
		}(i, p.workerChans[i])
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.dispatch()
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		workerWg.Wait()
		p.channels.CloseMetrics()
		log.Info("processor finished")
	}()

	// Not tracked by the wait group: it only stops on cancellation, and Wait
	// must return as soon as the stream is drained.
	go p.metricsReporter(ctx)

	return nil
}

// Wait blocks until the input channel is drained and all workers have
// flushed.
func (p *Processor) Wait() { p.wg.Wait() }

// dispatch routes each batch to the worker owning its instrument, preserving
// per-instrument order.
func (p *Processor) dispatch() {
	defer func() {
		for _, ch := range p.workerChans {
			close(ch)
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case batch, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			idx := workerIndex(batch.InstrumentID, len(p.workerChans))
			select {
			case p.workerChans[idx] <- batch:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func workerIndex(instrumentID int64, workers int) int {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(instrumentID >> (8 * i))
	}
	h.Write(buf[:])
	return int(h.Sum32() % uint32(workers))
}

func (p *Processor) worker(id int, in <-chan models.DepthUpdateBatch) {
	log := p.log.WithComponent("processor").WithFields(logger.Fields{"worker_id": id})
	log.Debug("worker started")

	pipelines := make(map[int64]*instrumentPipeline)

	for batch := range in {
		pl, ok := pipelines[batch.InstrumentID]
		if !ok {
			pl = p.newPipeline(batch.InstrumentID)
			pipelines[batch.InstrumentID] = pl
		}
		pl.sourceFile = batch.SourceFile
		p.processBatch(pl, batch)
		p.emitRows(pl)
	}

	// End of stream: flush trailing buckets per instrument, in a stable
	// order so repeated runs emit identically.
	ids := make([]int64, 0, len(pipelines))
	for instrumentID := range pipelines {
		ids = append(ids, instrumentID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, instrumentID := range ids {
		pl := pipelines[instrumentID]
		for _, bkt := range pl.sampler.Flush(pl.book) {
			pl.rows = append(pl.rows, p.aggregator().Row(bkt))
		}
		p.emitRows(pl)
	}

	log.Debug("worker stopped")
}

func (p *Processor) newPipeline(instrumentID int64) *instrumentPipeline {
	depth := p.config.EffectiveDepth()
	return &instrumentPipeline{
		book:      book.New(instrumentID, depth),
		sequencer: book.NewSequencer(instrumentID),
		sampler:   book.NewSampler(p.config.Book.BucketGranularity, depth, p.config.Book.DenseBuckets),
	}
}

func (p *Processor) aggregator() *book.Aggregator {
	return book.NewAggregator(p.config.EffectiveDepth())
}

func (p *Processor) processBatch(pl *instrumentPipeline, batch models.DepthUpdateBatch) {
	agg := p.aggregator()
	applied := 0

	for _, u := range batch.Updates {
		p.handleWarnings(pl, pl.sequencer.Observe(u.SequenceNumber))

		// Roll before applying so closed buckets carry the state as of the
		// boundary, not the state after this update.
		for _, bkt := range pl.sampler.Roll(u.EventTime, pl.book) {
			pl.rows = append(pl.rows, agg.Row(bkt))
		}

		warns := pl.book.Apply(u)
		p.handleWarnings(pl, warns)
		if dropped(warns) {
			continue
		}
		pl.sampler.Record(pl.book, u)
		applied++
	}

	logger.RecordUpdatesApplied(applied)
}

// dropped reports whether the update never reached the ladder.
func dropped(warns []book.Warning) bool {
	for _, w := range warns {
		if w.Kind == book.MalformedMessage {
			return true
		}
	}
	return false
}

func (p *Processor) handleWarnings(pl *instrumentPipeline, warns []book.Warning) {
	for _, w := range warns {
		switch w.Kind {
		case book.SequenceGap:
			logger.RecordSequenceGap(w.GapTo - w.GapFrom + 1)
			p.log.WithComponent("processor").WithFields(logger.Fields{
				"instrument": w.InstrumentID,
				"gap_from":   w.GapFrom,
				"gap_to":     w.GapTo,
			}).Warn("sequence gap")
		case book.OutOfOrder:
			logger.RecordOutOfOrder()
			p.log.WithComponent("processor").WithFields(logger.Fields{
				"instrument": w.InstrumentID,
				"sequence":   w.Sequence,
			}).Debug("out of order message applied best-effort")
		case book.OrphanLevelUpdate:
			logger.RecordOrphanLevelUpdate()
			p.log.WithComponent("processor").WithFields(logger.Fields{
				"instrument": w.InstrumentID,
				"sequence":   w.Sequence,
				"level":      w.Level,
			}).Debug("orphan level update")
		case book.CrossedMarket:
			logger.RecordCrossedMarket()
			p.log.WithComponent("processor").WithFields(logger.Fields{
				"instrument": w.InstrumentID,
				"bid":        w.BidPrice,
				"ask":        w.AskPrice,
			}).Warn("crossed market retained")
		case book.MalformedMessage:
			logger.RecordMalformedMessage()
			p.log.WithComponent("processor").WithFields(logger.Fields{
				"instrument": w.InstrumentID,
				"sequence":   w.Sequence,
			}).Debug("malformed message dropped")
		case book.DeepLevelDrop:
			logger.RecordDeepLevelDrop()
		}
	}
}

func (p *Processor) emitRows(pl *instrumentPipeline) {
	if len(pl.rows) == 0 {
		return
	}
	rows := pl.rows
	pl.rows = nil

	batch := models.MetricsBatch{
		BatchID:      uuid.New().String(),
		InstrumentID: pl.book.InstrumentID(),
		SourceFile:   pl.sourceFile,
		Rows:         rows,
		RecordCount:  len(rows),
		ProcessedAt:  time.Now(),
	}
	logger.RecordRowsEmitted(len(rows))
	p.channels.SendMetrics(p.ctx, batch)
}

func (p *Processor) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.RLock()
			running := p.running
			p.mu.RUnlock()
			if !running {
				return
			}
			p.log.WithComponent("processor").WithFields(logger.Fields{
				"raw_channel_len":     len(p.channels.Raw),
				"raw_channel_cap":     cap(p.channels.Raw),
				"metrics_channel_len": len(p.channels.Metrics),
				"metrics_channel_cap": cap(p.channels.Metrics),
			}).Info("processor channel sizes")
		}
	}
}
