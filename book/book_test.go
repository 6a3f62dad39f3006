package book

import (
	"testing"

	"eurexflow/models"
)

func add(side models.Side, level int, price, size float64, seq int64) models.DepthUpdate {
	return models.DepthUpdate{
		InstrumentID:   1,
		SequenceNumber: seq,
		EventTime:      seq * 1000,
		Side:           side,
		Action:         models.Add,
		PriceLevel:     level,
		Price:          price,
		Size:           size,
		HasPrice:       true,
		HasSize:        true,
	}
}

func hasKind(warns []Warning, kind WarningKind) bool {
	for _, w := range warns {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

func TestLadderBestSkipsGaps(t *testing.T) {
	l := NewLadder(5)
	l.Set(3, models.PriceLevelEntry{Price: 99.0, Size: 10})
	l.Set(1, models.PriceLevelEntry{Price: 99.5, Size: 5})

	best, ok := l.Best()
	if !ok {
		t.Fatalf("expected a best level")
	}
	if best.Price != 99.5 {
		t.Errorf("best price = %v, want 99.5", best.Price)
	}

	l.Remove(1)
	best, ok = l.Best()
	if !ok || best.Price != 99.0 {
		t.Errorf("best after remove = %v ok=%v, want 99.0", best.Price, ok)
	}
}

func TestLadderDeleteKeepsIndices(t *testing.T) {
	l := NewLadder(5)
	l.Set(0, models.PriceLevelEntry{Price: 100, Size: 1})
	l.Set(1, models.PriceLevelEntry{Price: 99, Size: 2})
	l.Set(2, models.PriceLevelEntry{Price: 98, Size: 3})

	l.Remove(1)

	if _, ok := l.Get(1); ok {
		t.Errorf("level 1 should be empty after delete")
	}
	e, ok := l.Get(2)
	if !ok || e.Price != 98 {
		t.Errorf("level 2 shifted after delete: %v ok=%v", e, ok)
	}
	snap := l.Snapshot(5)
	if snap[1] != nil {
		t.Errorf("snapshot level 1 = %v, want nil", snap[1])
	}
}

func TestLadderSetBeyondDepth(t *testing.T) {
	l := NewLadder(3)
	if l.Set(3, models.PriceLevelEntry{Price: 1, Size: 1}) {
		t.Errorf("set beyond depth should report false")
	}
	if l.Len() != 0 {
		t.Errorf("ladder should be empty, got %d levels", l.Len())
	}
}

func TestBookApplyAddChangeDelete(t *testing.T) {
	b := New(1, 5)

	if warns := b.Apply(add(models.Bid, 0, 99.5, 10, 1)); len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if warns := b.Apply(add(models.Ask, 0, 100.0, 8, 2)); len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}

	// Size-only change keeps the existing price.
	change := models.DepthUpdate{
		InstrumentID:   1,
		SequenceNumber: 3,
		EventTime:      3000,
		Side:           models.Bid,
		Action:         models.Change,
		PriceLevel:     0,
		Size:           15,
		HasSize:        true,
	}
	if warns := b.Apply(change); len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	e, ok := b.bids.Get(0)
	if !ok || e.Price != 99.5 || e.Size != 15 {
		t.Errorf("bid after change = %+v ok=%v, want price 99.5 size 15", e, ok)
	}

	del := models.DepthUpdate{
		InstrumentID:   1,
		SequenceNumber: 4,
		Side:           models.Ask,
		Action:         models.Delete,
		PriceLevel:     0,
	}
	if warns := b.Apply(del); len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if b.asks.Len() != 0 {
		t.Errorf("ask ladder should be empty after delete")
	}
	if b.LastSequence() != 4 {
		t.Errorf("last sequence = %d, want 4", b.LastSequence())
	}
}

func TestBookOrphanChangeBecomesDefensiveAdd(t *testing.T) {
	b := New(1, 5)
	change := models.DepthUpdate{
		InstrumentID:   1,
		SequenceNumber: 1,
		Side:           models.Bid,
		Action:         models.Change,
		PriceLevel:     2,
		Price:          98.0,
		Size:           7,
		HasPrice:       true,
		HasSize:        true,
	}
	warns := b.Apply(change)
	if !hasKind(warns, OrphanLevelUpdate) {
		t.Fatalf("expected orphan level warning, got %v", warns)
	}
	e, ok := b.bids.Get(2)
	if !ok || e.Price != 98.0 || e.Size != 7 {
		t.Errorf("defensive add missing: %+v ok=%v", e, ok)
	}
}

func TestBookOrphanDeleteIsNoop(t *testing.T) {
	b := New(1, 5)
	b.Apply(add(models.Bid, 0, 99.5, 10, 1))

	del := models.DepthUpdate{
		InstrumentID:   1,
		SequenceNumber: 2,
		Side:           models.Bid,
		Action:         models.Delete,
		PriceLevel:     3,
	}
	warns := b.Apply(del)
	if !hasKind(warns, OrphanLevelUpdate) {
		t.Fatalf("expected orphan level warning, got %v", warns)
	}
	if b.bids.Len() != 1 {
		t.Errorf("existing levels must survive an orphan delete")
	}
}

func TestBookMalformedUpdateDropped(t *testing.T) {
	b := New(1, 5)
	u := models.DepthUpdate{
		InstrumentID:   1,
		SequenceNumber: 1,
		Side:           models.Bid,
		Action:         models.Add,
		PriceLevel:     0,
	}
	warns := b.Apply(u)
	if !hasKind(warns, MalformedMessage) {
		t.Fatalf("expected malformed warning, got %v", warns)
	}
	if b.bids.Len() != 0 {
		t.Errorf("malformed add must not mutate the book")
	}
}

func TestBookDeepLevelDropped(t *testing.T) {
	b := New(1, 3)
	warns := b.Apply(add(models.Bid, 3, 97.0, 4, 1))
	if !hasKind(warns, DeepLevelDrop) {
		t.Fatalf("expected deep level warning, got %v", warns)
	}
	if b.bids.Len() != 0 {
		t.Errorf("deep update must not mutate the book")
	}
	if b.LastSequence() != 1 {
		t.Errorf("sequence must still advance on a deep drop, got %d", b.LastSequence())
	}
}

func TestBookCrossedDetectedAndRetained(t *testing.T) {
	b := New(1, 5)
	b.Apply(add(models.Bid, 0, 100.0, 10, 1))
	warns := b.Apply(add(models.Ask, 0, 99.0, 5, 2))
	if !hasKind(warns, CrossedMarket) {
		t.Fatalf("expected crossed market warning, got %v", warns)
	}
	if !b.IsCrossed() {
		t.Errorf("crossed state must be retained")
	}

	// Equal prices are locked and count as crossed too.
	b2 := New(2, 5)
	b2.Apply(add(models.Bid, 0, 100.0, 10, 1))
	if warns := b2.Apply(add(models.Ask, 0, 100.0, 5, 2)); !hasKind(warns, CrossedMarket) {
		t.Errorf("locked book should report crossed, got %v", warns)
	}
}

func TestBookMidprice(t *testing.T) {
	b := New(1, 5)
	if _, ok := b.Midprice(); ok {
		t.Fatalf("empty book must have no midprice")
	}
	b.Apply(add(models.Bid, 0, 99.5, 10, 1))
	if _, ok := b.Midprice(); ok {
		t.Fatalf("one-sided book must have no midprice")
	}
	b.Apply(add(models.Ask, 0, 100.0, 8, 2))
	mid, ok := b.Midprice()
	if !ok || mid != 99.75 {
		t.Errorf("midprice = %v ok=%v, want 99.75", mid, ok)
	}
}

func TestBookSnapshotIsolated(t *testing.T) {
	b := New(7, 5)
	b.Apply(add(models.Bid, 0, 99.5, 10, 1))
	snap := b.Snapshot(5)

	b.Apply(add(models.Bid, 0, 99.6, 12, 2))

	if snap.Bids[0].Price != 99.5 || snap.Bids[0].Size != 10 {
		t.Errorf("snapshot mutated by later update: %+v", snap.Bids[0])
	}
	if snap.InstrumentID != 7 || snap.LastSequence != 1 {
		t.Errorf("snapshot header = %+v", snap)
	}
}
