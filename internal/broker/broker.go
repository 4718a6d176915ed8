// Package broker multiplexes delta events from one generation executor
// to any number of subscribers, including late and reconnecting ones
// within a resumption window.
package broker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/draftwell-ai/artifact-platform/internal/model"
	"github.com/draftwell-ai/artifact-platform/pkg/logger"
	"github.com/draftwell-ai/artifact-platform/pkg/metrics"
)

var (
	// ErrStreamNotFound means the broker has no record of the stream,
	// either because it never existed or because it was evicted after
	// its resumption window elapsed. Callers that can distinguish the
	// two (via the stream registry) should do so.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrResumeExpired means the stream finished and its resumption
	// window has elapsed. This is an empty-success condition, not a
	// failure.
	ErrResumeExpired = errors.New("resumption window elapsed")

	// ErrStreamExists is returned when opening a producer for a stream
	// ID that is already registered.
	ErrStreamExists = errors.New("stream already exists")

	// ErrDone is returned by Next after the terminal event has been
	// delivered or the subscription was closed.
	ErrDone = errors.New("subscription done")
)

// Broker fans out delta events per stream. Single producer, any number
// of consumers; all consumers observe the same ordered sequence.
type Broker struct {
	mu      sync.Mutex
	streams map[string]*stream

	window    time.Duration
	bufferCap int
	logger    *logger.Logger

	// now is replaceable in tests to pin the resumption boundary.
	now func() time.Time
}

// New creates a broker with the given resumption window and replay
// buffer capacity per stream.
func New(window time.Duration, bufferCap int, log *logger.Logger) *Broker {
	if bufferCap <= 0 {
		bufferCap = 4096
	}
	return &Broker{
		streams:   make(map[string]*stream),
		window:    window,
		bufferCap: bufferCap,
		logger:    log,
		now:       time.Now,
	}
}

type stream struct {
	id string

	mu       sync.Mutex
	buffer   []model.DeltaEvent // retained events; buffer[0].Sequence == firstSeq
	firstSeq uint64
	nextSeq  uint64
	acc      strings.Builder // full accumulated content, survives buffer eviction

	subs map[*Subscription]struct{}

	done        bool
	failed      bool
	final       string // complete final content once done
	lastEventAt time.Time
}

// Producer is the write side of one stream. Exactly one producer per
// stream; Publish calls must not be concurrent with each other.
type Producer struct {
	b  *Broker
	st *stream
}

// Subscription is the read side. Not safe for concurrent Next calls.
type Subscription struct {
	b  *Broker
	st *stream

	cursor    uint64
	snapshot  *model.DeltaEvent // pending synthesized event, delivered first
	exhausted bool
	closed    bool

	wake chan struct{}
}

// OpenStream registers a new stream and returns its producer.
func (b *Broker) OpenStream(streamID string) (*Producer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepLocked()

	if _, ok := b.streams[streamID]; ok {
		return nil, ErrStreamExists
	}
	st := &stream{
		id:          streamID,
		subs:        make(map[*Subscription]struct{}),
		lastEventAt: b.now(),
	}
	b.streams[streamID] = st
	return &Producer{b: b, st: st}, nil
}

// Publish appends one delta event and wakes all subscribers. Returns
// the assigned sequence number.
func (p *Producer) Publish(deltaType model.DeltaType, payload string) uint64 {
	st := p.st
	st.mu.Lock()
	seq := st.nextSeq
	st.nextSeq++
	evt := model.DeltaEvent{
		StreamID:  st.id,
		Sequence:  seq,
		Type:      deltaType,
		Payload:   payload,
		CreatedAt: p.b.now(),
	}
	st.buffer = append(st.buffer, evt)
	st.acc.WriteString(payload)
	st.lastEventAt = evt.CreatedAt

	// Bounded replay buffer: drop oldest. Subscribers that fall behind
	// the retained range recover via an accumulated-content snapshot.
	for len(st.buffer) > p.b.bufferCap {
		st.buffer = st.buffer[1:]
		st.firstSeq++
		metrics.BrokerBufferEvictionsTotal.Inc()
	}
	st.notifyLocked()
	st.mu.Unlock()
	return seq
}

// Accumulated returns everything published so far, concatenated. The
// executor uses it to decide what to do with partial content on failure.
func (p *Producer) Accumulated() string {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return p.st.acc.String()
}

// Close ends the stream with its final content and emits the terminal
// event. failed marks the generation as unsuccessful; the terminal
// event still carries whatever content the caller decided to keep.
func (p *Producer) Close(finalContent string, failed bool) {
	st := p.st
	st.mu.Lock()
	if st.done {
		st.mu.Unlock()
		return
	}
	seq := st.nextSeq
	st.nextSeq++
	evt := model.DeltaEvent{
		StreamID:  st.id,
		Sequence:  seq,
		Type:      model.DeltaText,
		Payload:   finalContent,
		Terminal:  true,
		CreatedAt: p.b.now(),
	}
	st.buffer = append(st.buffer, evt)
	st.done = true
	st.failed = failed
	st.final = finalContent
	st.lastEventAt = evt.CreatedAt
	st.notifyLocked()
	st.mu.Unlock()
}

func (st *stream) notifyLocked() {
	for sub := range st.subs {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Subscribe attaches a consumer at fromSeq (0 for a first subscriber).
//
// Live stream: the subscription yields retained and future events in
// order, ending with the terminal event. A completed stream within the
// resumption window yields a single synthesized terminal event with the
// complete final content. A completed stream past the window returns
// ErrResumeExpired; an unknown stream returns ErrStreamNotFound.
func (b *Broker) Subscribe(ctx context.Context, streamID string, fromSeq uint64) (*Subscription, error) {
	b.mu.Lock()
	st, ok := b.streams[streamID]
	if !ok {
		b.mu.Unlock()
		return nil, ErrStreamNotFound
	}

	st.mu.Lock()
	if st.done && b.now().Sub(st.lastEventAt) > b.window {
		st.mu.Unlock()
		delete(b.streams, streamID)
		b.mu.Unlock()
		return nil, ErrResumeExpired
	}
	b.mu.Unlock()
	defer st.mu.Unlock()

	if st.done {
		// Spare the late subscriber a token-by-token replay: one
		// synthesized terminal event with the complete content.
		sub := &Subscription{
			b:  b,
			st: st,
			snapshot: &model.DeltaEvent{
				StreamID:  st.id,
				Sequence:  st.nextSeq - 1,
				Type:      model.DeltaText,
				Payload:   st.final,
				Terminal:  true,
				CreatedAt: st.lastEventAt,
			},
			exhausted: true,
			wake:      make(chan struct{}, 1),
		}
		metrics.BrokerSubscribersActive.Inc()
		return sub, nil
	}

	sub := &Subscription{
		b:      b,
		st:     st,
		cursor: fromSeq,
		wake:   make(chan struct{}, 1),
	}
	if fromSeq > st.nextSeq {
		sub.cursor = st.nextSeq
	}
	if fromSeq < st.firstSeq {
		// Attach point already evicted from the replay buffer: hand
		// over everything accumulated so far as a snapshot, then
		// continue live from the present.
		sub.snapshot = &model.DeltaEvent{
			StreamID:  st.id,
			Sequence:  st.nextSeq - 1,
			Type:      model.DeltaText,
			Payload:   st.acc.String(),
			CreatedAt: st.lastEventAt,
		}
		sub.cursor = st.nextSeq
	}
	st.subs[sub] = struct{}{}
	metrics.BrokerSubscribersActive.Inc()
	return sub, nil
}

// Next blocks until the next delta event is available and returns it.
// After the terminal event has been delivered, Next returns ErrDone.
func (s *Subscription) Next(ctx context.Context) (model.DeltaEvent, error) {
	for {
		s.st.mu.Lock()
		if s.closed {
			s.st.mu.Unlock()
			return model.DeltaEvent{}, ErrDone
		}
		if s.snapshot != nil {
			evt := *s.snapshot
			s.snapshot = nil
			s.st.mu.Unlock()
			return evt, nil
		}
		if s.exhausted {
			s.st.mu.Unlock()
			return model.DeltaEvent{}, ErrDone
		}
		if s.cursor < s.st.firstSeq {
			// Fell behind a buffer eviction mid-subscription.
			evt := model.DeltaEvent{
				StreamID:  s.st.id,
				Sequence:  s.st.nextSeq - 1,
				Type:      model.DeltaText,
				Payload:   s.st.acc.String(),
				CreatedAt: s.st.lastEventAt,
			}
			s.cursor = s.st.nextSeq
			s.st.mu.Unlock()
			return evt, nil
		}
		if s.cursor < s.st.nextSeq {
			evt := s.st.buffer[s.cursor-s.st.firstSeq]
			s.cursor++
			if evt.Terminal {
				s.exhausted = true
			}
			s.st.mu.Unlock()
			return evt, nil
		}
		if s.st.done {
			// Terminal already consumed via the buffer, nothing more.
			s.exhausted = true
			s.st.mu.Unlock()
			return model.DeltaEvent{}, ErrDone
		}
		s.st.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.DeltaEvent{}, ctx.Err()
		case <-s.wake:
		}
	}
}

// Close detaches the subscription. Detaching never cancels the
// producer; generation runs to completion regardless.
func (s *Subscription) Close() {
	s.st.mu.Lock()
	if !s.closed {
		s.closed = true
		delete(s.st.subs, s)
		metrics.BrokerSubscribersActive.Dec()
	}
	s.st.mu.Unlock()
}

// sweepLocked evicts completed streams whose resumption window has
// elapsed. Events are retained only for the window's duration; there
// is no persistent replay log beyond that horizon.
func (b *Broker) sweepLocked() {
	cutoff := b.now().Add(-b.window)
	for id, st := range b.streams {
		st.mu.Lock()
		expired := st.done && st.lastEventAt.Before(cutoff)
		st.mu.Unlock()
		if expired {
			delete(b.streams, id)
		}
	}
}

// SetNow overrides the broker's clock. Test hook.
func (b *Broker) SetNow(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}
