package mqtt

// Client publishes schedule messages to depot displays and other
// subscribers of the planning topics.
type Client interface {
	// Publish sends payload to topic. Implementations retry transient
	// failures before returning an error.
	Publish(topic string, payload []byte) error
}
