package feed

import (
	"live-auction/internal/domain"
	"sort"
	"time"
)

// sequencer restores per-auction version order. It drops versions already
// delivered and holds early arrivals until the gap fills or the gap timer
// fires.
type sequencer struct {
	last    int64
	pending map[int64]domain.Event
	timer   *time.Timer
	gen     uint64
}

func newSequencer(last int64) *sequencer {
	return &sequencer{last: last, pending: make(map[int64]domain.Event)}
}

// offer returns the events that are now deliverable, in order. gap reports
// that events are being held.
func (s *sequencer) offer(e domain.Event) (ready []domain.Event, gap bool) {
	if s.last != 0 && e.Version <= s.last {
		return nil, len(s.pending) > 0
	}
	if _, held := s.pending[e.Version]; held {
		return nil, true
	}
	if s.last != 0 && e.Version > s.last+1 {
		s.pending[e.Version] = e
		return nil, true
	}

	ready = append(ready, e)
	s.last = e.Version
	ready = append(ready, s.drain()...)
	return ready, len(s.pending) > 0
}

// skip gives up on the missing versions and releases everything held.
func (s *sequencer) skip() []domain.Event {
	if len(s.pending) == 0 {
		return nil
	}
	versions := make([]int64, 0, len(s.pending))
	for v := range s.pending {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	out := make([]domain.Event, 0, len(versions))
	for _, v := range versions {
		out = append(out, s.pending[v])
		delete(s.pending, v)
	}
	s.last = versions[len(versions)-1]
	return out
}

func (s *sequencer) drain() []domain.Event {
	var out []domain.Event
	for {
		next, ok := s.pending[s.last+1]
		if !ok {
			return out
		}
		delete(s.pending, s.last+1)
		s.last++
		out = append(out, next)
	}
}

// arm returns the generation for a new gap timer.
func (s *sequencer) arm() uint64 {
	s.gen++
	return s.gen
}

func (s *sequencer) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.gen++
	}
}
