package book

// Sequencer tracks per-instrument sequence numbers ahead of the book state
// machine. This is a bounded historical batch, so neither gaps nor
// regressions block the stream: both are surfaced as warnings and the message
// is applied best-effort. The counter never moves backward.
type Sequencer struct {
	instrumentID int64
	lastApplied  int64
	started      bool
}

// NewSequencer creates a sequencer for one instrument.
func NewSequencer(instrumentID int64) *Sequencer {
	return &Sequencer{instrumentID: instrumentID}
}

// LastApplied returns the highest sequence number observed so far.
func (s *Sequencer) LastApplied() int64 { return s.lastApplied }

// Observe checks one incoming sequence number and advances the counter.
// It returns at most one warning: a SequenceGap carrying the missing range,
// or an OutOfOrder for a stale/duplicate arrival.
func (s *Sequencer) Observe(seq int64) []Warning {
	if !s.started {
		s.started = true
		s.lastApplied = seq
		return nil
	}

	switch {
	case seq == s.lastApplied+1:
		s.lastApplied = seq
		return nil
	case seq > s.lastApplied+1:
		w := Warning{
			Kind:         SequenceGap,
			InstrumentID: s.instrumentID,
			Sequence:     seq,
			GapFrom:      s.lastApplied + 1,
			GapTo:        seq - 1,
		}
		s.lastApplied = seq
		return []Warning{w}
	default:
		return []Warning{{
			Kind:         OutOfOrder,
			InstrumentID: s.instrumentID,
			Sequence:     seq,
		}}
	}
}
