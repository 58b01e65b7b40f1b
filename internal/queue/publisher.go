package queue

type Publisher interface {
	Publish(topic string, body []byte) error
}

// NopPublisher drops everything; used when no nsqd is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, []byte) error { return nil }
