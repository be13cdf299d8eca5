package pubsub

import "sync"

// mailbox is an unbounded FIFO in front of an unbuffered channel. push never blocks,
// a single pump goroutine hands values to the consumer in order.
type mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool
	signal chan struct{}
	done   chan struct{}
	out    chan T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan T),
	}
	go m.pump()
	return m
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}

func (m *mailbox[T]) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *mailbox[T]) pump() {
	defer close(m.out)
	var zero T
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.signal:
			case <-m.done:
				return
			}
			continue
		}
		v := m.queue[0]
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.done:
			return
		}
	}
}
