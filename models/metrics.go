package models

import "time"

// MetricsRow is one output record per (bucket, instrument). Nullable metrics
// are pointers: a nil field is emitted as a real null in parquet and JSON,
// never as zero. Rows are append-only and never mutated after emission.
type MetricsRow struct {
	InstrumentID int64 `json:"instrument_id"`
	BucketStart  int64 `json:"bucket_start"` // nanoseconds since epoch, bucket open

	BestBid     *float64 `json:"best_bid"`
	BestBidSize *float64 `json:"best_bid_size"`
	BestAsk     *float64 `json:"best_ask"`
	BestAskSize *float64 `json:"best_ask_size"`
	Midprice    *float64 `json:"midprice"`
	Spread      *float64 `json:"spread"`
	RelSpread   *float64 `json:"rel_spread"`
	Microprice  *float64 `json:"microprice"`

	// Per-level volumes, index 0 = L1. Length equals the configured depth;
	// a nil entry means the level is absent on that side.
	BidVolumes []*float64 `json:"bid_volumes"`
	AskVolumes []*float64 `json:"ask_volumes"`

	// Cumulative volume across all tracked levels per side.
	CumBidVolume float64 `json:"cum_bid_volume"`
	CumAskVolume float64 `json:"cum_ask_volume"`

	// Imbalance per cumulative depth k, index 0 = L1. Nil when both sides
	// contribute zero volume at that depth.
	Imbalances []*float64 `json:"imbalances"`

	MsgCount    int64 `json:"msg_count"`
	UpdateCount int64 `json:"update_count"`
	CancelCount int64 `json:"cancel_count"`

	// Standard deviation of intra-bucket midprice observations; nil when the
	// bucket produced no two-sided midprice sample.
	Volatility *float64 `json:"price_volatility"`

	Crossed bool `json:"crossed"`
}

// MetricsBatch carries metric rows for one instrument to the writer.
type MetricsBatch struct {
	BatchID      string       `json:"batch_id"`
	InstrumentID int64        `json:"instrument_id"`
	SourceFile   string       `json:"source_file"`
	Rows         []MetricsRow `json:"rows"`
	RecordCount  int          `json:"record_count"`
	ProcessedAt  time.Time    `json:"processed_at"`
}
