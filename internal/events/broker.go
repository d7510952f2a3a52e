// Package events forwards stage activities of a run to live subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
)

// Event kinds.
const (
	TypeConnected = "connected"
	TypeActivity  = "activity"
	TypeFinished  = "finished"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Event is one message on a run channel.
type Event struct {
	Channel   string          `json:"channel"`
	RunID     string          `json:"run_id"`
	Type      string          `json:"type"`
	Activity  *agent.Activity `json:"activity,omitempty"`
	Status    agent.Status    `json:"status,omitempty"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
}

// Channel names the stream of a run.
func Channel(runID string) string { return "analysis_events:" + runID }

// Sink receives activities of a run. Implementations must not block and
// must not panic into the caller.
type Sink interface {
	Publish(runID string, act agent.Activity)
}

// Broker fans activities out to per-run subscribers. Publishing never
// blocks: an event is dropped for a subscriber whose buffer is full.
type Broker struct {
	log    *zap.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewBroker creates a broker. buffer <= 0 selects DefaultBuffer.
func NewBroker(buffer int, log *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{
		log:    log.Named("events"),
		buffer: buffer,
		subs:   map[string]map[*Subscription]struct{}{},
	}
}

// Subscription is a live view of one run channel.
type Subscription struct {
	runID string
	ch    chan Event
	b     *Broker
	once  sync.Once
}

// C returns the event channel. It is closed when the run finishes, the
// subscription is closed or the broker shuts down.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.detachLocked(s)
}

// Subscribe attaches to a run channel. The first event delivered is a
// connected marker.
func (b *Broker) Subscribe(runID string) *Subscription {
	s := &Subscription{runID: runID, ch: make(chan Event, b.buffer), b: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	set, ok := b.subs[runID]
	if !ok {
		set = map[*Subscription]struct{}{}
		b.subs[runID] = set
	}
	set[s] = struct{}{}
	s.ch <- b.event(runID, TypeConnected)
	return s
}

// Publish implements Sink.
func (b *Broker) Publish(runID string, act agent.Activity) {
	ev := b.event(runID, TypeActivity)
	ev.Activity = &act
	b.dispatch(runID, ev, false)
}

// Finish sends a final event to the run's subscribers and closes them.
func (b *Broker) Finish(runID string, status agent.Status) {
	ev := b.event(runID, TypeFinished)
	ev.Status = status
	b.dispatch(runID, ev, true)
}

// Dropped returns the number of events discarded because a subscriber was
// not keeping up.
func (b *Broker) Dropped() uint64 { return b.dropped.Load() }

// Close detaches every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			b.detachLocked(s)
		}
	}
}

func (b *Broker) event(runID, typ string) Event {
	return Event{
		Channel:   Channel(runID),
		RunID:     runID,
		Type:      typ,
		Seq:       b.seq.Add(1),
		Timestamp: time.Now(),
	}
}

func (b *Broker) dispatch(runID string, ev Event, last bool) {
	if last {
		b.mu.Lock()
		defer b.mu.Unlock()
	} else {
		b.mu.RLock()
		defer b.mu.RUnlock()
	}
	for s := range b.subs[runID] {
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
			b.log.Debug("subscriber buffer full, event dropped",
				zap.String("channel", ev.Channel),
				zap.String("type", ev.Type))
		}
		if last {
			b.detachLocked(s)
		}
	}
}

func (b *Broker) detachLocked(s *Subscription) {
	if set, ok := b.subs[s.runID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.runID)
		}
	}
	s.once.Do(func() { close(s.ch) })
}
