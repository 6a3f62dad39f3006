// Package book reconstructs per-instrument order book state from a sequential
// feed of depth-incremental messages and derives time-bucketed liquidity
// metrics from the reconstructed state.
package book

import (
	"sort"

	"eurexflow/models"
)

// MaxAutoDepth caps the depth used when the configuration asks for
// auto-detection.
const MaxAutoDepth = 5

// Ladder is the ordered set of price levels on one side of a book, keyed by
// level index (0 = best). Deleting a level never shifts the indices above it;
// the feed sends explicit updates when the exchange intends to shift levels.
type Ladder struct {
	levels   map[int]models.PriceLevelEntry
	maxDepth int
}

// NewLadder creates an empty ladder bounded to maxDepth levels.
func NewLadder(maxDepth int) *Ladder {
	return &Ladder{
		levels:   make(map[int]models.PriceLevelEntry, maxDepth),
		maxDepth: maxDepth,
	}
}

// Set inserts or overwrites the entry at level. Returns false when the level
// is at or beyond the depth bound and the entry was dropped.
func (l *Ladder) Set(level int, e models.PriceLevelEntry) bool {
	if level < 0 || level >= l.maxDepth {
		return false
	}
	l.levels[level] = e
	return true
}

// Get returns the entry at level, if present.
func (l *Ladder) Get(level int) (models.PriceLevelEntry, bool) {
	e, ok := l.levels[level]
	return e, ok
}

// Remove deletes the entry at level. Returns false when no entry existed.
func (l *Ladder) Remove(level int) bool {
	if _, ok := l.levels[level]; !ok {
		return false
	}
	delete(l.levels, level)
	return true
}

// Best returns the entry at the shallowest populated level. The best level is
// usually 0 but may sit deeper while the feed repairs the top of the book.
func (l *Ladder) Best() (models.PriceLevelEntry, bool) {
	best := -1
	for lvl := range l.levels {
		if best == -1 || lvl < best {
			best = lvl
		}
	}
	if best == -1 {
		return models.PriceLevelEntry{}, false
	}
	return l.levels[best], true
}

// Len returns the number of populated levels.
func (l *Ladder) Len() int { return len(l.levels) }

// Snapshot copies up to depth levels into a dense slice indexed by level,
// nil where a level is absent.
func (l *Ladder) Snapshot(depth int) []*models.PriceLevelEntry {
	out := make([]*models.PriceLevelEntry, depth)
	for lvl, e := range l.levels {
		if lvl < depth {
			entry := e
			out[lvl] = &entry
		}
	}
	return out
}

// Levels returns populated level indices in ascending order.
func (l *Ladder) Levels() []int {
	out := make([]int, 0, len(l.levels))
	for lvl := range l.levels {
		out = append(out, lvl)
	}
	sort.Ints(out)
	return out
}

// Book is the state machine for one instrument: a bid ladder, an ask ladder
// and the last applied sequence/event-time. Books never interact with each
// other, so instruments can be processed on independent workers without
// locking.
type Book struct {
	instrumentID  int64
	bids          *Ladder
	asks          *Ladder
	maxDepth      int
	lastSequence  int64
	lastEventTime int64
}

// New creates an empty book for one instrument. maxDepth <= 0 selects the
// auto-detection cap.
func New(instrumentID int64, maxDepth int) *Book {
	if maxDepth <= 0 {
		maxDepth = MaxAutoDepth
	}
	return &Book{
		instrumentID: instrumentID,
		bids:         NewLadder(maxDepth),
		asks:         NewLadder(maxDepth),
		maxDepth:     maxDepth,
	}
}

func (b *Book) InstrumentID() int64 { return b.instrumentID }
func (b *Book) MaxDepth() int       { return b.maxDepth }
func (b *Book) LastSequence() int64 { return b.lastSequence }
func (b *Book) LastEventTime() int64 {
	return b.lastEventTime
}

func (b *Book) ladder(s models.Side) *Ladder {
	if s == models.Bid {
		return b.bids
	}
	return b.asks
}

// Apply mutates the book with one update and reports any quality warnings it
// produced. Anomalies are absorbed, never returned as errors: a malformed
// message is dropped and counted, an orphan Change becomes a defensive Add,
// an orphan Delete is a no-op, and updates beyond the depth bound are
// silently ignored apart from the warning.
func (b *Book) Apply(u models.DepthUpdate) []Warning {
	var warns []Warning

	if u.Action != models.Delete && !u.HasPrice && !u.HasSize {
		return append(warns, Warning{
			Kind:         MalformedMessage,
			InstrumentID: b.instrumentID,
			Sequence:     u.SequenceNumber,
			Level:        u.PriceLevel,
		})
	}
	if u.PriceLevel < 0 || u.PriceLevel >= b.maxDepth {
		// Valid traffic beyond the tracked depth still advances the clock.
		b.advance(u)
		return append(warns, Warning{
			Kind:         DeepLevelDrop,
			InstrumentID: b.instrumentID,
			Sequence:     u.SequenceNumber,
			Level:        u.PriceLevel,
		})
	}

	side := b.ladder(u.Side)

	switch u.Action {
	case models.Add:
		// Add after a snapshot repair may target an occupied slot; the feed
		// is overlay-tolerant so an occupied Add behaves like Change.
		if !u.HasPrice || !u.HasSize {
			return append(warns, Warning{
				Kind:         MalformedMessage,
				InstrumentID: b.instrumentID,
				Sequence:     u.SequenceNumber,
				Level:        u.PriceLevel,
			})
		}
		side.Set(u.PriceLevel, models.PriceLevelEntry{Price: u.Price, Size: u.Size})

	case models.Change:
		entry, ok := side.Get(u.PriceLevel)
		if !ok {
			// Defensive add: create the level from whatever fields arrived.
			warns = append(warns, Warning{
				Kind:         OrphanLevelUpdate,
				InstrumentID: b.instrumentID,
				Sequence:     u.SequenceNumber,
				Level:        u.PriceLevel,
			})
			entry = models.PriceLevelEntry{}
		}
		if u.HasPrice {
			entry.Price = u.Price
		}
		if u.HasSize {
			entry.Size = u.Size
		}
		side.Set(u.PriceLevel, entry)

	case models.Delete:
		if !side.Remove(u.PriceLevel) {
			warns = append(warns, Warning{
				Kind:         OrphanLevelUpdate,
				InstrumentID: b.instrumentID,
				Sequence:     u.SequenceNumber,
				Level:        u.PriceLevel,
			})
		}
	}

	b.advance(u)

	if b.IsCrossed() {
		bid, _ := b.bids.Best()
		ask, _ := b.asks.Best()
		warns = append(warns, Warning{
			Kind:         CrossedMarket,
			InstrumentID: b.instrumentID,
			Sequence:     u.SequenceNumber,
			BidPrice:     bid.Price,
			AskPrice:     ask.Price,
		})
	}

	return warns
}

func (b *Book) advance(u models.DepthUpdate) {
	if u.SequenceNumber > b.lastSequence {
		b.lastSequence = u.SequenceNumber
	}
	if u.EventTime > 0 {
		b.lastEventTime = u.EventTime
	}
}

// IsCrossed reports whether best bid >= best ask. Crossed state is retained,
// never auto-corrected; downstream consumers need to see it.
func (b *Book) IsCrossed() bool {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	return okBid && okAsk && bid.Price >= ask.Price
}

// Midprice returns the simple average of best bid and ask, false when either
// side is empty.
func (b *Book) Midprice() (float64, bool) {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Snapshot materializes the current state up to depth levels per side without
// mutating the book. O(depth) per call.
func (b *Book) Snapshot(depth int) models.BookSnapshot {
	if depth <= 0 || depth > b.maxDepth {
		depth = b.maxDepth
	}
	return models.BookSnapshot{
		InstrumentID:  b.instrumentID,
		LastEventTime: b.lastEventTime,
		LastSequence:  b.lastSequence,
		Bids:          b.bids.Snapshot(depth),
		Asks:          b.asks.Snapshot(depth),
		Crossed:       b.IsCrossed(),
	}
}
