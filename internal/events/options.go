package events

type ProducerOptions func(e *EventProducer)

func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

// WithBufferSize bounds the number of undelivered events. Zero means unbounded.
func WithBufferSize(size int) ProducerOptions {
	return func(e *EventProducer) {
		e.buffer = newBuffer(size)
	}
}
