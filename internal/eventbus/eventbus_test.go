package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusFanOut(t *testing.T) {
	bus := New()
	a, b := bus.Subscribe(), bus.Subscribe()
	bus.Publish("drafted")
	assert.Equal(t, Event("drafted"), <-a)
	assert.Equal(t, Event("drafted"), <-b)

	bus.Unsubscribe(a)
	_, ok := <-a
	assert.False(t, ok)
	bus.Publish("finalized")
	assert.Equal(t, Event("finalized"), <-b)
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	_, ok := <-ch
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		bus.Unsubscribe(ch)
		bus.Publish("late")
		bus.Close()
	})
	_, ok = <-bus.Subscribe()
	assert.False(t, ok, "subscriptions on a closed bus are closed")
}
