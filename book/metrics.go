package book

import (
	"math"

	"eurexflow/models"
)

// Aggregator turns closed buckets into metric rows. It is stateless, so the
// same bucket always produces the same row; reruns over identical input are
// byte-identical.
type Aggregator struct {
	depth int
}

// NewAggregator creates an aggregator emitting depth levels per side.
func NewAggregator(depth int) *Aggregator {
	if depth <= 0 {
		depth = MaxAutoDepth
	}
	return &Aggregator{depth: depth}
}

func ptr(v float64) *float64 { return &v }

// Row computes the published metric set for one bucket.
func (a *Aggregator) Row(bkt Bucket) models.MetricsRow {
	snap := bkt.Snapshot
	row := models.MetricsRow{
		InstrumentID: snap.InstrumentID,
		BucketStart:  snap.BucketStart,
		MsgCount:     bkt.Stats.MsgCount,
		UpdateCount:  bkt.Stats.UpdateCount,
		CancelCount:  bkt.Stats.CancelCount,
		Crossed:      snap.Crossed || bkt.Stats.CrossedSeen,
	}

	bid := snap.BestBid()
	ask := snap.BestAsk()
	if bid != nil {
		row.BestBid = ptr(bid.Price)
		row.BestBidSize = ptr(bid.Size)
	}
	if ask != nil {
		row.BestAsk = ptr(ask.Price)
		row.BestAskSize = ptr(ask.Size)
	}

	// Price formation metrics are defined only when both sides are quoted.
	if bid != nil && ask != nil {
		mid := (bid.Price + ask.Price) / 2
		spread := ask.Price - bid.Price
		row.Midprice = ptr(mid)
		row.Spread = ptr(spread)
		if mid != 0 {
			row.RelSpread = ptr(spread / mid)
		}
		if denom := bid.Size + ask.Size; denom != 0 {
			// Weighted by the opposing side's size: pressure from a heavy
			// bid pushes the microprice toward the ask.
			row.Microprice = ptr((bid.Price*ask.Size + ask.Price*bid.Size) / denom)
		}
	}

	row.BidVolumes = make([]*float64, a.depth)
	row.AskVolumes = make([]*float64, a.depth)
	row.Imbalances = make([]*float64, a.depth)

	var cumBid, cumAsk float64
	for k := 0; k < a.depth; k++ {
		if k < len(snap.Bids) && snap.Bids[k] != nil {
			row.BidVolumes[k] = ptr(snap.Bids[k].Size)
			cumBid += snap.Bids[k].Size
		}
		if k < len(snap.Asks) && snap.Asks[k] != nil {
			row.AskVolumes[k] = ptr(snap.Asks[k].Size)
			cumAsk += snap.Asks[k].Size
		}
		// Imbalance at cumulative depth k+1. Defined only when both sides
		// contribute volume; a one-sided book stays null, not +/-1.
		if cumBid > 0 && cumAsk > 0 {
			row.Imbalances[k] = ptr((cumBid - cumAsk) / (cumBid + cumAsk))
		}
	}
	row.CumBidVolume = cumBid
	row.CumAskVolume = cumAsk

	if vol, ok := stddev(bkt.Stats.Mids); ok {
		row.Volatility = ptr(vol)
	}

	return row
}

// stddev is the population standard deviation of the samples. A single
// sample yields zero; no samples yields no value.
func stddev(samples []float64) (float64, bool) {
	n := len(samples)
	if n == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n)), true
}
