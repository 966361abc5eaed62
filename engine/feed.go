package engine

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Publisher accepts committed state transitions.
type Publisher interface {
	Publish(kind EventKind, pairID common.Hash, pool common.Address, data any) Event
}

// Feed stamps events with a monotonically increasing sequence number and fans
// them out to every subscribed channel. Publish blocks until all subscribers
// have received the event, so subscribers should drain their channels promptly.
//
// Sequence assignment and delivery happen under one mutex, so subscribers
// receive events in strictly increasing Seq order even when pools publish
// concurrently.
type Feed struct {
	mu   sync.Mutex
	feed event.Feed
	seq  uint64
	now  func() time.Time
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{now: time.Now}
}

// Publish implements Publisher.
func (f *Feed) Publish(kind EventKind, pairID common.Hash, pool common.Address, data any) Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	ev := Event{
		Seq:       f.seq,
		Kind:      kind,
		PairID:    pairID,
		Pool:      pool,
		Timestamp: f.now().UnixNano(),
		Data:      data,
	}
	f.feed.Send(ev)
	return ev
}

// Subscribe registers ch to receive every subsequently published event.
func (f *Feed) Subscribe(ch chan<- Event) event.Subscription {
	return f.feed.Subscribe(ch)
}
