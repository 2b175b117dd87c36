package turnevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var seen []Kind
	b.Subscribe(func(ev Event) { seen = append(seen, ev.Kind) })
	b.Subscribe(func(ev Event) { seen = append(seen, ev.Kind+"-again") })

	b.Publish(Event{Kind: TurnStarted, TurnID: "t1"})

	assert.Equal(t, []Kind{TurnStarted, TurnStarted + "-again"}, seen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	var count int
	unsub := b.Subscribe(func(Event) { count++ })
	b.Publish(Event{Kind: TurnStarted})
	unsub()
	b.Publish(Event{Kind: TurnStarted})

	assert.Equal(t, 1, count)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := New()
	var count int
	b.Subscribe(func(Event) { count++ })
	assert.NoError(t, b.Close())
	b.Publish(Event{Kind: TurnStarted})
	assert.Equal(t, 0, count)
}
