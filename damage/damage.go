// Package damage implements the damage-interval coalescer: the structure
// that accumulates dirty byte ranges inside a shared buffer and maintains a
// minimal-cardinality list of extended intervals representing their union
// under a configurable merge margin.
//
// Set is single-writer: it is bound to one direction's I/O loop and carries
// no internal locking, matching the concurrency model of the proxy (two
// directions, two independent Sets, never shared).
package damage

import "github.com/wlrelay/wlrelay/interval"

// DefaultMergeMargin is the reference merge margin (spec.md §6): the
// process-wide slack used to coalesce nearby dirty regions. It must be
// strictly greater than 8 or diff sizes grow pathologically.
const DefaultMergeMargin int32 = 1024

// Set holds the coalesced damage state for one buffer. The zero value is an
// empty, non-everything set with a merge margin of DefaultMergeMargin; use
// New to pick a different margin.
type Set struct {
	everything bool
	list       []interval.Ext
	margin     int32

	// AccDamageStat and AccCount are diagnostic-only monotone counters
	// (spec.md §3): the running sum of width*rep over every submission,
	// and the number of submissions, both pre-coalesce. Neither gates
	// correctness; both are reset to zero by Reset.
	AccDamageStat int64
	AccCount      int64

	// scratch queues, reused across Insert calls to avoid reallocating
	// on every frame (geometric growth, per spec.md §5).
	queue []interval.Ext
}

// New returns a Set using the given merge margin. A margin <= 8 is clamped
// up to DefaultMergeMargin, since smaller margins cause the diff size to
// grow pathologically (spec.md §6).
func New(margin int32) *Set {
	if margin <= 8 {
		margin = DefaultMergeMargin
	}
	return &Set{margin: margin}
}

// Margin returns the configured merge margin.
func (s *Set) Margin() int32 {
	if s.margin == 0 {
		return DefaultMergeMargin
	}
	return s.margin
}

// IsEverything reports whether the set is in the absorbing "everything"
// state: the whole buffer is dirty and no further interval bookkeeping
// happens until Reset.
func (s *Set) IsEverything() bool { return s.everything }

// SetEverything releases any owned interval storage and transitions the set
// into the absorbing everything state. Only Reset clears it.
func (s *Set) SetEverything() {
	s.everything = true
	s.list = nil
}

// Reset drops all intervals, clears the everything state, and zeroes the
// counters.
func (s *Set) Reset() {
	s.everything = false
	s.list = s.list[:0]
	s.queue = s.queue[:0]
	s.AccDamageStat = 0
	s.AccCount = 0
}

// Insert feeds newList through the coalescer. Counters update first and
// unconditionally (spec.md §4.2); if the set is already in the everything
// state, insertion is then a no-op — everything absorbs.
func (s *Set) Insert(newList []interval.Ext) {
	for _, e := range newList {
		s.AccDamageStat += e.Area()
		s.AccCount++
	}
	if s.everything || len(newList) == 0 {
		return
	}

	margin := s.Margin()
	queue := s.queue[:0]
	for _, e := range newList {
		queue = append(queue, interval.SmoothGaps(e, margin))
	}

	for len(queue) > 0 {
		x := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		writeIdx := 0
		changed := false
		readIdx := 0
		for readIdx < len(s.list) {
			y := s.list[readIdx]
			readIdx++

			products := interval.Merge(x, y, margin)
			if len(products) == 0 {
				s.list[writeIdx] = y
				writeIdx++
				continue
			}

			existingUnchanged := false
			xUnchanged := false
			kept := products[:0:0]
			for _, p := range products {
				switch {
				case p == y:
					existingUnchanged = true
				case p == x:
					xUnchanged = true
				default:
					kept = append(kept, p)
				}
			}
			if existingUnchanged {
				s.list[writeIdx] = y
				writeIdx++
			}
			queue = append(queue, kept...)

			if !xUnchanged {
				changed = true
				break
			}
		}

		if changed {
			// x was consumed into the list's contents; the remainder of
			// the (unread) list entries must be preserved as-is.
			copy(s.list[writeIdx:], s.list[readIdx:])
			s.list = s.list[:writeIdx+len(s.list)-readIdx]
		} else {
			s.list = append(s.list[:writeIdx], x)
		}

		s.queue = queue
	}
	s.queue = queue[:0]
}

// Bounding returns the inclusive low end, exclusive high end, and total
// covered area (sum of rep*width, not deduplicated for overlaps) of the
// damage set. If the set is in the everything state it returns the
// saturated range. If the set is empty it returns inverted sentinels
// (low > high) so callers can detect "nothing to do" without a separate
// empty check.
func (s *Set) Bounding() (low, high int32, area int64) {
	if s.everything {
		return minInt32, maxInt32, maxArea
	}
	if len(s.list) == 0 {
		return maxInt32, minInt32, 0
	}
	low = maxInt32
	high = minInt32
	for _, e := range s.list {
		if e.Low() < low {
			low = e.Low()
		}
		if e.High() > high {
			high = e.High()
		}
		area += e.Area()
	}
	return low, high, area
}

// Intervals returns the retained, pairwise-disjoint interval list. The
// returned slice is owned by the Set and must not be retained or mutated
// past the next Insert/Reset/SetEverything call.
func (s *Set) Intervals() []interval.Ext { return s.list }

const (
	minInt32 = int32(-1 << 31)
	maxInt32 = int32(1<<31 - 1)
	maxArea  = int64(1<<31 - 1)
)
