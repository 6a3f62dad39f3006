package models

import "time"

// Side identifies which ladder of an instrument's book an update targets.
type Side int8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Action is the normalized depth-incremental update action. The Eurex feed
// encodes New=0, Change=1, Delete=2 and Overlay=5; the reader folds Overlay
// into Add since both carry a full price/size pair for the targeted level.
type Action int8

const (
	Add Action = iota
	Change
	Delete
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Change:
		return "change"
	default:
		return "delete"
	}
}

// DepthUpdate is one normalized exchange depth message. Immutable once the
// reader has built it.
type DepthUpdate struct {
	InstrumentID   int64   `json:"instrument_id"`
	SequenceNumber int64   `json:"sequence_number"`
	EventTime      int64   `json:"event_time"` // nanoseconds since epoch
	Side           Side    `json:"side"`
	Action         Action  `json:"action"`
	PriceLevel     int     `json:"price_level"` // 0 = best
	Price          float64 `json:"price"`
	Size           float64 `json:"size"`
	HasPrice       bool    `json:"has_price"`
	HasSize        bool    `json:"has_size"`
}

// PriceLevelEntry is one row of a ladder.
type PriceLevelEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot is the materialized state of one instrument's book at a bucket
// boundary. Bids/Asks are indexed by price level; a nil entry means the level
// is currently absent from the ladder.
type BookSnapshot struct {
	InstrumentID  int64              `json:"instrument_id"`
	BucketStart   int64              `json:"bucket_start"` // nanoseconds since epoch
	LastEventTime int64              `json:"last_event_time"`
	LastSequence  int64              `json:"last_sequence"`
	Bids          []*PriceLevelEntry `json:"bids"`
	Asks          []*PriceLevelEntry `json:"asks"`
	Crossed       bool               `json:"crossed"`
}

// BestBid returns the shallowest populated bid level.
func (s *BookSnapshot) BestBid() *PriceLevelEntry {
	for _, e := range s.Bids {
		if e != nil {
			return e
		}
	}
	return nil
}

// BestAsk returns the shallowest populated ask level.
func (s *BookSnapshot) BestAsk() *PriceLevelEntry {
	for _, e := range s.Asks {
		if e != nil {
			return e
		}
	}
	return nil
}

// BucketStats accumulates per-bucket message activity between two snapshot
// boundaries. Mids retains every intra-bucket midprice observation so the
// aggregator can compute a standard deviation rather than a min/max range.
type BucketStats struct {
	MsgCount    int64     `json:"msg_count"`
	UpdateCount int64     `json:"update_count"`
	CancelCount int64     `json:"cancel_count"`
	CrossedSeen bool      `json:"crossed_seen"`
	Mids        []float64 `json:"-"`
}

// DepthUpdateBatch carries an ordered run of updates for one instrument
// through the raw channel. Updates preserve file order within the batch.
type DepthUpdateBatch struct {
	BatchID      string        `json:"batch_id"`
	InstrumentID int64         `json:"instrument_id"`
	SourceFile   string        `json:"source_file"`
	Updates      []DepthUpdate `json:"updates"`
	RecordCount  int           `json:"record_count"`
	Timestamp    time.Time     `json:"timestamp"`
}
