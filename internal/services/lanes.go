package services

import (
	"context"
	"sync"
)

// laneSet hands out one exclusive lane per auction. Lanes are reference
// counted and dropped once nobody holds or waits on them.
type laneSet struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	slot chan struct{}
	refs int
}

func newLaneSet() *laneSet {
	return &laneSet{lanes: make(map[string]*lane)}
}

// acquire blocks until the lane for key is free or ctx is done. The returned
// release func must be called exactly once.
func (s *laneSet) acquire(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{slot: make(chan struct{}, 1)}
		s.lanes[key] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		s.unref(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.slot
			s.unref(key, l)
		})
	}, nil
}

func (s *laneSet) unref(key string, l *lane) {
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.lanes, key)
	}
	s.mu.Unlock()
}

func (s *laneSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}
