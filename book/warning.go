package book

import "fmt"

// WarningKind classifies the non-fatal data-quality conditions observed while
// applying updates. None of these abort the batch; they are counted into the
// run quality report and processing continues.
type WarningKind int8

const (
	// SequenceGap means one or more sequence numbers were never observed.
	SequenceGap WarningKind = iota
	// OutOfOrder means a message arrived at or below the last applied
	// sequence number and was applied best-effort.
	OutOfOrder
	// OrphanLevelUpdate means a Change or Delete referenced a level that is
	// not present in the ladder.
	OrphanLevelUpdate
	// CrossedMarket means best bid >= best ask after applying an update.
	CrossedMarket
	// MalformedMessage means a required field was missing for the action;
	// the message was dropped.
	MalformedMessage
	// DeepLevelDrop means the update targeted a level at or beyond the
	// configured depth bound and was ignored.
	DeepLevelDrop
)

func (k WarningKind) String() string {
	switch k {
	case SequenceGap:
		return "sequence_gap"
	case OutOfOrder:
		return "out_of_order"
	case OrphanLevelUpdate:
		return "orphan_level_update"
	case CrossedMarket:
		return "crossed_market"
	case MalformedMessage:
		return "malformed_message"
	default:
		return "deep_level_drop"
	}
}

// Warning records one quality condition with enough context to log it.
type Warning struct {
	Kind         WarningKind
	InstrumentID int64
	Sequence     int64
	GapFrom      int64 // SequenceGap only: first missing sequence
	GapTo        int64 // SequenceGap only: last missing sequence
	Level        int
	BidPrice     float64 // CrossedMarket only
	AskPrice     float64 // CrossedMarket only
}

func (w Warning) String() string {
	switch w.Kind {
	case SequenceGap:
		return fmt.Sprintf("%s instrument=%d missing=[%d,%d]", w.Kind, w.InstrumentID, w.GapFrom, w.GapTo)
	case CrossedMarket:
		return fmt.Sprintf("%s instrument=%d bid=%g ask=%g", w.Kind, w.InstrumentID, w.BidPrice, w.AskPrice)
	default:
		return fmt.Sprintf("%s instrument=%d seq=%d level=%d", w.Kind, w.InstrumentID, w.Sequence, w.Level)
	}
}
