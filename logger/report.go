package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

// Run quality counters. Every non-fatal condition the engine absorbs is
// counted here and attached to the per-run report.
var (
	sequenceGaps      int64
	missingSequences  int64
	outOfOrder        int64
	orphanLevels      int64
	crossedMarkets    int64
	malformedMessages int64
	deepLevelDrops    int64

	updatesApplied int64
	rowsEmitted    int64
	filesWritten   int64
	s3Uploads      int64

	warnsTotal  int64
	errorsTotal int64

	channels sync.Map // map[string]*channelStat
)

func recordWarn(string)  { atomic.AddInt64(&warnsTotal, 1) }
func recordError(string) { atomic.AddInt64(&errorsTotal, 1) }

// RecordSequenceGap counts one gap event and accumulates the number of
// sequence numbers it skipped.
func RecordSequenceGap(missing int64) {
	atomic.AddInt64(&sequenceGaps, 1)
	atomic.AddInt64(&missingSequences, missing)
}
func RecordOutOfOrder()          { atomic.AddInt64(&outOfOrder, 1) }
func RecordOrphanLevelUpdate()   { atomic.AddInt64(&orphanLevels, 1) }
func RecordCrossedMarket()       { atomic.AddInt64(&crossedMarkets, 1) }
func RecordMalformedMessage()    { atomic.AddInt64(&malformedMessages, 1) }
func RecordDeepLevelDrop()       { atomic.AddInt64(&deepLevelDrops, 1) }
func RecordUpdatesApplied(n int) { atomic.AddInt64(&updatesApplied, int64(n)) }
func RecordRowsEmitted(n int)    { atomic.AddInt64(&rowsEmitted, int64(n)) }
func RecordFileWritten(bytes int64) {
	atomic.AddInt64(&filesWritten, 1)
	recordChannel("parquet_write", int(bytes))
}
func RecordS3Upload(bytes int64) {
	atomic.AddInt64(&s3Uploads, 1)
	recordChannel("s3_upload", int(bytes))
}
func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

// QualityReport is a point-in-time snapshot of the run counters, used for the
// final report and by tests.
type QualityReport struct {
	SequenceGaps      int64 `json:"sequence_gaps"`
	MissingSequences  int64 `json:"missing_sequences"`
	OutOfOrder        int64 `json:"out_of_order"`
	OrphanLevels      int64 `json:"orphan_level_updates"`
	CrossedMarkets    int64 `json:"crossed_markets"`
	MalformedMessages int64 `json:"malformed_messages"`
	DeepLevelDrops    int64 `json:"deep_level_drops"`
	UpdatesApplied    int64 `json:"updates_applied"`
	RowsEmitted       int64 `json:"rows_emitted"`
	FilesWritten      int64 `json:"files_written"`
	S3Uploads         int64 `json:"s3_uploads"`
	Warns             int64 `json:"warns"`
	Errors            int64 `json:"errors"`
}

// Quality returns the current counter snapshot.
func Quality() QualityReport {
	return QualityReport{
		SequenceGaps:      atomic.LoadInt64(&sequenceGaps),
		MissingSequences:  atomic.LoadInt64(&missingSequences),
		OutOfOrder:        atomic.LoadInt64(&outOfOrder),
		OrphanLevels:      atomic.LoadInt64(&orphanLevels),
		CrossedMarkets:    atomic.LoadInt64(&crossedMarkets),
		MalformedMessages: atomic.LoadInt64(&malformedMessages),
		DeepLevelDrops:    atomic.LoadInt64(&deepLevelDrops),
		UpdatesApplied:    atomic.LoadInt64(&updatesApplied),
		RowsEmitted:       atomic.LoadInt64(&rowsEmitted),
		FilesWritten:      atomic.LoadInt64(&filesWritten),
		S3Uploads:         atomic.LoadInt64(&s3Uploads),
		Warns:             atomic.LoadInt64(&warnsTotal),
		Errors:            atomic.LoadInt64(&errorsTotal),
	}
}

// ResetQuality clears all counters. Intended for tests.
func ResetQuality() {
	for _, p := range []*int64{
		&sequenceGaps, &missingSequences, &outOfOrder, &orphanLevels, &crossedMarkets,
		&malformedMessages, &deepLevelDrops, &updatesApplied, &rowsEmitted,
		&filesWritten, &s3Uploads, &warnsTotal, &errorsTotal,
	} {
		atomic.StoreInt64(p, 0)
	}
	channels.Range(func(k, _ any) bool {
		channels.Delete(k)
		return true
	})
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and quality statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

// FinalReport logs the end-of-run quality summary once.
func FinalReport(log *Log) {
	q := Quality()
	log.WithComponent("report").WithFields(Fields{
		"sequence_gaps":        q.SequenceGaps,
		"missing_sequences":    q.MissingSequences,
		"out_of_order":         q.OutOfOrder,
		"orphan_level_updates": q.OrphanLevels,
		"crossed_markets":      q.CrossedMarkets,
		"malformed_messages":   q.MalformedMessages,
		"deep_level_drops":     q.DeepLevelDrops,
		"updates_applied":      q.UpdatesApplied,
		"rows_emitted":         q.RowsEmitted,
		"files_written":        q.FilesWritten,
		"s3_uploads":           q.S3Uploads,
	}).Info("run quality report")
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	q := Quality()
	fields := Fields{
		"sequence_gaps":      q.SequenceGaps,
		"missing_sequences":  q.MissingSequences,
		"out_of_order":       q.OutOfOrder,
		"orphan_levels":      q.OrphanLevels,
		"crossed_markets":    q.CrossedMarkets,
		"malformed_messages": q.MalformedMessages,
		"deep_level_drops":   q.DeepLevelDrops,
		"updates_applied":    q.UpdatesApplied,
		"rows_emitted":       q.RowsEmitted,
		"files_written":      q.FilesWritten,
		"s3_uploads":         q.S3Uploads,
		"warns":              q.Warns,
		"errors":             q.Errors,
		"goroutines":         runtime.NumGoroutine(),
		"cpu_percent":        cpuPct,
		"memory_mb":          int64(memStats.Used) / 1024 / 1024,
		"disk_mb":            int64(diskStats.Used) / 1024 / 1024,
		"channels":           channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	for name, val := range map[string]int64{
		"SequenceGaps":      q.SequenceGaps,
		"MissingSequences":  q.MissingSequences,
		"OutOfOrder":        q.OutOfOrder,
		"OrphanLevels":      q.OrphanLevels,
		"CrossedMarkets":    q.CrossedMarkets,
		"MalformedMessages": q.MalformedMessages,
		"DeepLevelDrops":    q.DeepLevelDrops,
		"UpdatesApplied":    q.UpdatesApplied,
		"RowsEmitted":       q.RowsEmitted,
		"FilesWritten":      q.FilesWritten,
		"S3Uploads":         q.S3Uploads,
	} {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("Eurexflow-" + name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(val)),
		})
	}
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Eurexflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Eurexflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Eurexflow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Eurexflow-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Eurexflow-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
