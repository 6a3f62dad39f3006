// Package channel wires the pipeline stages together with typed, buffered
// channels and keeps per-channel send statistics.
package channel

import (
	"context"
	"sync"
	"time"

	"eurexflow/logger"
	"eurexflow/models"
)

type Stats struct {
	RawSent     int64
	MetricsSent int64
	RawDropped  int64
}

type Channels struct {
	Raw     chan models.DepthUpdateBatch
	Metrics chan models.MetricsBatch

	stats      Stats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, metricsBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:     make(chan models.DepthUpdateBatch, rawBufferSize),
		Metrics: make(chan models.MetricsBatch, metricsBufferSize),
		log:     log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":     rawBufferSize,
		"metrics_buffer_size": metricsBufferSize,
	}).Info("pipeline channels initialized")

	return c
}

// SendRaw delivers one update batch to the processor. The batch pipeline
// never drops data for backpressure; the send blocks until the processor
// drains the channel or the context is cancelled.
func (c *Channels) SendRaw(ctx context.Context, batch models.DepthUpdateBatch) bool {
	select {
	case c.Raw <- batch:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("raw_updates", batch.RecordCount)
		return true
	case <-ctx.Done():
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		return false
	}
}

// SendMetrics delivers one metrics batch to the writer, blocking like SendRaw.
func (c *Channels) SendMetrics(ctx context.Context, batch models.MetricsBatch) bool {
	select {
	case c.Metrics <- batch:
		c.statsMutex.Lock()
		c.stats.MetricsSent++
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("metrics_rows", batch.RecordCount)
		return true
	case <-ctx.Done():
		return false
	}
}

// CloseRaw signals end of input to the processor.
func (c *Channels) CloseRaw() {
	close(c.Raw)
	c.log.WithComponent("channels").Info("raw channel closed")
}

// CloseMetrics signals end of output to the writer.
func (c *Channels) CloseMetrics() {
	close(c.Metrics)
	c.log.WithComponent("channels").Info("metrics channel closed")
}

func (c *Channels) GetStats() Stats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs channel occupancy until the
// context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			c.log.WithComponent("channels").WithFields(logger.Fields{
				"raw_len":      len(c.Raw),
				"raw_cap":      cap(c.Raw),
				"metrics_len":  len(c.Metrics),
				"metrics_cap":  cap(c.Metrics),
				"raw_sent":     stats.RawSent,
				"metrics_sent": stats.MetricsSent,
			}).Info("channel sizes")
		}
	}
}
