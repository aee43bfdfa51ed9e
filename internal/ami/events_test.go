package ami

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversOnGenericAndNamedTopics(t *testing.T) {
	bus := NewBus()

	var all, hangups, dials []Event
	bus.Subscribe(TopicAll, func(ev Event) { all = append(all, ev) })
	bus.Subscribe(TopicFor(EventHangup), func(ev Event) { hangups = append(hangups, ev) })
	unsubscribe := bus.Subscribe(TopicFor(EventDial), func(ev Event) { dials = append(dials, ev) })

	bus.Publish(Event{Name: EventHangup})
	bus.Publish(Event{Name: EventDial})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Name: EventDial})

	assert.Len(t, all, 3)
	assert.Len(t, hangups, 1)
	assert.Len(t, dials, 1)
	assert.Equal(t, 0, bus.Subscribers(TopicFor(EventDial)))
	assert.Equal(t, 1, bus.Subscribers(TopicAll))
}

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "PJSIP/1001", Event{Fields: map[string]string{"Peer": "PJSIP/1001", "Channel": "x"}}.Subject())
	assert.Equal(t, "support", Event{Fields: map[string]string{"Queue": "support"}}.Subject())
	assert.Equal(t, "", Event{}.Subject())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "reconnect_failed", NotifyReconnectFailed.String())
}
