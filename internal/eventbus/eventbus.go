// Package eventbus carries planning events from the planner to the
// collectors and publishers that observe it.
package eventbus

// Event is any value published on a Bus.
type Event any

// EventBus is the publish/subscribe contract shared by producers and
// consumers of planning events.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the untyped bus used for planning events.
type Bus = TypedBus[Event]

var _ EventBus = (*Bus)(nil)

// New creates a Bus with DefaultBuffer per subscriber.
func New() *Bus { return NewTyped[Event](DefaultBuffer) }
