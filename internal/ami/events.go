package ami

import (
	"sync"
	"time"
)

// EventName is a manager event type as sent in the "Event:" header.
type EventName string

const (
	EventPeerStatus        EventName = "PeerStatus"
	EventRegistry          EventName = "Registry"
	EventNewchannel        EventName = "Newchannel"
	EventHangup            EventName = "Hangup"
	EventNewstate          EventName = "Newstate"
	EventQueueMemberStatus EventName = "QueueMemberStatus"
	EventQueueCallerJoin   EventName = "QueueCallerJoin"
	EventQueueCallerLeave  EventName = "QueueCallerLeave"
	EventDial              EventName = "Dial"
	EventVarSet            EventName = "VarSet"
)

// DefaultEvents is the set of manager events re-published by a Client.
var DefaultEvents = []EventName{
	EventPeerStatus,
	EventRegistry,
	EventNewchannel,
	EventHangup,
	EventNewstate,
	EventQueueMemberStatus,
	EventQueueCallerJoin,
	EventQueueCallerLeave,
	EventDial,
	EventVarSet,
}

type Event struct {
	Name     EventName         `json:"type"`
	Fields   map[string]string `json:"data"`
	Received time.Time         `json:"received"`
}

// Subject is the peer, channel or queue the event is about.
func (e Event) Subject() string {
	for _, k := range []string{"Peer", "Channel", "Queue"} {
		if v := e.Fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// Topic names a stream on the Bus.
type Topic string

// TopicAll carries every published event.
const TopicAll Topic = "event"

func TopicFor(name EventName) Topic { return Topic(name) }

type Handler func(Event)

// Bus fans events out to subscribers. Every event is delivered on TopicAll
// and on its own name topic. Handlers run on the publishing goroutine and
// must not block.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[Topic]map[uint64]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[uint64]Handler)}
}

// Subscribe registers h on topic and returns a func that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[TopicAll])+len(b.subs[TopicFor(ev.Name)]))
	for _, h := range b.subs[TopicAll] {
		handlers = append(handlers, h)
	}
	for _, h := range b.subs[TopicFor(ev.Name)] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of handlers on topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
