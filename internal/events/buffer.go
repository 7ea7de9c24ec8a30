package events

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when the producer holds too many undelivered events.
var ErrBufferFull = errors.New("event buffer is full")

const defaultBufferSize = 1000

type message struct {
	Kind string
	Data []byte
}

// buffer is a bounded FIFO of the events waiting for the writer.
type buffer struct {
	lock     sync.Mutex
	pending  []*message
	capacity int
}

func newBuffer(capacity int) *buffer {
	return &buffer{capacity: capacity}
}

func (b *buffer) PushBack(msg *message) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.capacity > 0 && len(b.pending) >= b.capacity {
		return ErrBufferFull
	}
	b.pending = append(b.pending, msg)
	return nil
}

func (b *buffer) Pop() *message {
	b.lock.Lock()
	defer b.lock.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	msg := b.pending[0]
	b.pending[0] = nil
	b.pending = b.pending[1:]
	return msg
}

// Drain empties the buffer and returns what it held, oldest first.
func (b *buffer) Drain() []*message {
	b.lock.Lock()
	defer b.lock.Unlock()

	msgs := b.pending
	b.pending = nil
	return msgs
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.pending)
}
