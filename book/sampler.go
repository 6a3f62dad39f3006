package book

import (
	"time"

	"eurexflow/models"
)

// Bucket is one closed sampling window: the book state carried to the bucket
// boundary plus the message activity observed inside the window.
type Bucket struct {
	Snapshot models.BookSnapshot
	Stats    models.BucketStats
}

// Sampler folds one instrument's applied updates into fixed-granularity
// buckets keyed by event time. Buckets carry the last known state before the
// boundary: price levels are durable state, not events, so a window without
// updates repeats the prior state. By default only non-empty buckets are
// emitted; dense mode synthesizes the skipped ones with zero message counts.
type Sampler struct {
	granularity int64 // ns
	depth       int
	dense       bool

	bucketStart int64
	stats       models.BucketStats
	primed      bool
}

// NewSampler creates a sampler. granularity defaults to one second when zero.
func NewSampler(granularity time.Duration, depth int, dense bool) *Sampler {
	if granularity <= 0 {
		granularity = time.Second
	}
	return &Sampler{
		granularity: granularity.Nanoseconds(),
		depth:       depth,
		dense:       dense,
	}
}

func (s *Sampler) truncate(ts int64) int64 {
	return ts - ts%s.granularity
}

// Roll closes every bucket that ends at or before eventTime and returns them,
// oldest first. Call it before applying the update that carries eventTime so
// the emitted snapshots reflect the state as of the boundary.
func (s *Sampler) Roll(eventTime int64, b *Book) []Bucket {
	if !s.primed {
		s.bucketStart = s.truncate(eventTime)
		s.primed = true
		return nil
	}
	if eventTime < s.bucketStart+s.granularity {
		return nil
	}

	out := []Bucket{s.emit(b)}

	next := s.truncate(eventTime)
	if s.dense {
		for t := s.bucketStart + s.granularity; t < next; t += s.granularity {
			s.bucketStart = t
			out = append(out, s.emit(b))
		}
	}
	s.bucketStart = next
	return out
}

func (s *Sampler) emit(b *Book) Bucket {
	snap := b.Snapshot(s.depth)
	snap.BucketStart = s.bucketStart
	bkt := Bucket{Snapshot: snap, Stats: s.stats}
	s.stats = models.BucketStats{}
	return bkt
}

// Record accumulates the activity of one applied update into the current
// bucket. Midprice is sampled after every update so the aggregator can
// compute intra-bucket volatility.
func (s *Sampler) Record(b *Book, u models.DepthUpdate) {
	s.stats.MsgCount++
	if u.Action == models.Delete {
		s.stats.CancelCount++
	} else {
		s.stats.UpdateCount++
	}
	if mid, ok := b.Midprice(); ok {
		s.stats.Mids = append(s.stats.Mids, mid)
	}
	if b.IsCrossed() {
		s.stats.CrossedSeen = true
	}
}

// Flush emits the trailing partial bucket at end of stream. The sampler is
// reset and can be reused for a fresh stream afterwards.
func (s *Sampler) Flush(b *Book) []Bucket {
	if !s.primed {
		return nil
	}
	out := []Bucket{s.emit(b)}
	s.primed = false
	return out
}
