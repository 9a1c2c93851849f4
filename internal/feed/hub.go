// Package feed fans committed auction events out to live subscribers.
//
// Every subscription owns a buffered channel. Publish never blocks: a
// subscriber whose buffer is full is dropped with ErrSlowConsumer. Events
// for one auction are delivered in version order even when they arrive out
// of order from other instances.
package feed

import (
	"context"
	"fmt"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultBufferSize    = 64
	DefaultGapTimeout    = 2 * time.Second
	DefaultSequencerSize = 10000
)

type Options struct {
	BufferSize         int
	GapTimeout         time.Duration
	SequencerCacheSize int
}

type Hub struct {
	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextID     uint64
	sequencers *lru.Cache
	bufferSize int
	gapTimeout time.Duration
	closed     bool
	log        logger.Logger
}

func NewHub(opts Options, log logger.Logger) (*Hub, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.GapTimeout <= 0 {
		opts.GapTimeout = DefaultGapTimeout
	}
	if opts.SequencerCacheSize <= 0 {
		opts.SequencerCacheSize = DefaultSequencerSize
	}

	h := &Hub{
		subs:       make(map[uint64]*Subscription),
		bufferSize: opts.BufferSize,
		gapTimeout: opts.GapTimeout,
		log:        log,
	}
	cache, err := lru.NewWithEvict(opts.SequencerCacheSize, h.onEvict)
	if err != nil {
		return nil, fmt.Errorf("sequencer cache: %w", err)
	}
	h.sequencers = cache
	return h, nil
}

// Subscribe registers a subscription. It ends when ctx is done, when Close
// is called, or, for an auction filter, after the auction's ended event.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		filter: filter,
		ch:     make(chan domain.Event, h.bufferSize),
		hub:    h,
		watch:  make(map[string]struct{}, len(filter.Seed)),
	}
	for _, id := range filter.Seed {
		sub.watch[id] = struct{}{}
	}
	h.subs[sub.id] = sub
	sub.stop = context.AfterFunc(ctx, sub.Close)

	h.log.Debug("Subscription opened", "subscription_id", sub.id, "auction_id", filter.AuctionID, "user_id", filter.UserID, "scope", string(filter.Scope))
	return sub, nil
}

// Publish delivers event to matching subscribers. It implements
// domain.EventPublisher and never blocks on a subscriber.
func (h *Hub) Publish(ctx context.Context, event domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	seq := h.sequencerLocked(event.AuctionID)
	ready, gap := seq.offer(event)
	h.deliverLocked(ready)

	if !gap {
		seq.stopTimer()
	} else if seq.timer == nil {
		auctionID, gen := event.AuctionID, seq.arm()
		seq.timer = time.AfterFunc(h.gapTimeout, func() { h.flushGap(auctionID, gen) })
	}
	return nil
}

// Prime sets the delivered version for an auction the hub has not seen
// yet, so later events are ordered relative to a snapshot.
func (h *Hub) Prime(auctionID string, version int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sequencers.Contains(auctionID) {
		h.sequencers.Add(auctionID, newSequencer(version))
	}
}

// Close ends every subscription with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		h.closeLocked(sub, ErrHubClosed)
	}
	for _, key := range h.sequencers.Keys() {
		if v, ok := h.sequencers.Peek(key); ok {
			v.(*sequencer).stopTimer()
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) flushGap(auctionID string, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.sequencers.Peek(auctionID)
	if !ok {
		return
	}
	seq := v.(*sequencer)
	if seq.gen != gen {
		// the gap filled and the timer was replaced while we waited
		return
	}
	seq.timer = nil
	skipped := seq.skip()
	if len(skipped) > 0 {
		h.log.Warn("Gap timeout, skipping missing versions", "auction_id", auctionID, "resumed_at", skipped[0].Version)
	}
	h.deliverLocked(skipped)
}

// onEvict runs inside sequencers.Add, which is only called with h.mu held.
func (h *Hub) onEvict(key, value interface{}) {
	seq := value.(*sequencer)
	seq.stopTimer()
	h.deliverLocked(seq.skip())
}

func (h *Hub) sequencerLocked(auctionID string) *sequencer {
	if v, ok := h.sequencers.Get(auctionID); ok {
		return v.(*sequencer)
	}
	seq := newSequencer(0)
	h.sequencers.Add(auctionID, seq)
	return seq
}

func (h *Hub) deliverLocked(events []domain.Event) {
	for _, e := range events {
		for _, sub := range h.subs {
			if !sub.matches(e) {
				continue
			}
			select {
			case sub.ch <- e:
			default:
				h.log.Warn("Dropping slow subscriber", "subscription_id", sub.id, "auction_id", e.AuctionID, "version", e.Version)
				h.closeLocked(sub, ErrSlowConsumer)
				continue
			}
			if sub.completes(e) {
				h.closeLocked(sub, nil)
			}
		}
	}
}

func (h *Hub) closeLocked(sub *Subscription, err error) {
	if sub.closed {
		return
	}
	sub.closed = true
	sub.err = err
	delete(h.subs, sub.id)
	close(sub.ch)
	if sub.stop != nil {
		sub.stop()
	}
}
