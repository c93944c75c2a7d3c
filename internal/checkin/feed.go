package checkin

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/gateway"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/render"
)

type EventType string

const (
	EventStarted EventType = "started"
	EventUpdated EventType = "updated"
	EventCycle   EventType = "cycle"
	EventEvicted EventType = "evicted"
	EventEnded   EventType = "ended"
)

// Event is a session state change published to live subscribers.
type Event struct {
	Type      EventType           `json:"type"`
	SessionID string              `json:"session_id"`
	State     render.CheckinState `json:"state"`
	Actor     *gateway.User       `json:"actor,omitempty"`
	Evicted   []gateway.User      `json:"evicted,omitempty"`
	Reason    render.EndReason    `json:"reason,omitempty"`
	At        time.Time           `json:"at"`
}

const defaultFeedBuffer = 64

// Feed fans session events out to subscribers. Publishing never blocks;
// a subscriber that falls behind loses events.
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	log    logrus.FieldLogger
}

func NewFeed(log logrus.FieldLogger) *Feed {
	return &Feed{subs: make(map[int]chan Event), log: log}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Feed) Publish(ev Event) {
	if f == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.log.WithFields(logrus.Fields{
				"subscriber": id,
				"session_id": ev.SessionID,
				"event":      string(ev.Type),
			}).Debug("feed subscriber full, dropping event")
		}
	}
}

func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
