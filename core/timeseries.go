package core

// timeSeriesEntry is one recorded change. A nil height is the series'
// initial value, recorded before any height was known (genesis state).
type timeSeriesEntry struct {
	height *BlockHeight
	value  bool
}

// TimeSeries is an append-only history of a boolean value over block
// height, used for a DID key entry's per-Right validity. Grounded on
// original_source/morpheus-node/src/docs.rs's usage of TimeSeries<bool>
// (HashMap<Right, TimeSeries<bool>>, history.apply/revert).
type TimeSeries struct {
	entries []timeSeriesEntry
}

// NewTimeSeries starts a series at its genesis value, recorded before any
// height (nil), matching TimeSeries::new(initial) in the original.
func NewTimeSeries(initial bool) TimeSeries {
	return TimeSeries{entries: []timeSeriesEntry{{height: nil, value: initial}}}
}

// At returns the value in effect at height: the value of the most recent
// entry whose height is at or before it, treating the genesis (nil height)
// entry as height 0. Grounded on
// original_source/morpheus-core/src/data/diddoc.rs's KeyRightHistory::is_true_at.
func (t TimeSeries) At(height BlockHeight) bool {
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		h := BlockHeight(0)
		if e.height != nil {
			h = *e.height
		}
		if h <= height {
			return e.value
		}
	}
	return false
}

// History returns the full (height, value) history, oldest first, for
// building a DidDocument's KeyRightHistory view.
func (t TimeSeries) History() []struct {
	Height *BlockHeight
	Value  bool
} {
	out := make([]struct {
		Height *BlockHeight
		Value  bool
	}, len(t.entries))
	for i, e := range t.entries {
		out[i].Height = e.height
		out[i].Value = e.value
	}
	return out
}

// Apply records a value change at height. The new value must differ from
// the value already in effect at height, and height must come strictly
// after the series' last recorded height — this is an append-only log of actual
// changes, not a sparse overwrite.
func (t *TimeSeries) Apply(height BlockHeight, value bool) error {
	last := t.entries[len(t.entries)-1]
	if last.height != nil && height <= *last.height {
		return conflictf("time series height must strictly increase: %d not after %d", height, *last.height)
	}
	if t.At(height) == value {
		return conflictf("time series already has value %v at height %d", value, height)
	}
	h := height
	t.entries = append(t.entries, timeSeriesEntry{height: &h, value: value})
	return nil
}

// Clone returns a deep copy, so mutating either copy's future entries never
// aliases the other's backing array.
func (t TimeSeries) Clone() TimeSeries {
	entries := make([]timeSeriesEntry, len(t.entries))
	copy(entries, t.entries)
	return TimeSeries{entries: entries}
}

// Revert undoes the exact change Apply(height, value) made: the series'
// last entry must be precisely (height, value), or revert refuses (exact
// inverse semantics).
func (t *TimeSeries) Revert(height BlockHeight, value bool) error {
	if len(t.entries) <= 1 {
		return conflictf("time series has no applied change to revert")
	}
	last := t.entries[len(t.entries)-1]
	if last.height == nil || *last.height != height || last.value != value {
		return conflictf("time series last change does not match (height=%d, value=%v) being reverted", height, value)
	}
	t.entries = t.entries[:len(t.entries)-1]
	return nil
}
