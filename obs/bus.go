package obs

import "sync"

const defaultBufferSize = 100

// Bus is a buffered channel sink for consumers that want to process events
// on their own goroutine (experiment trackers, metrics exporters).
//
// Emit is non-blocking: if the buffer is full the event is dropped, so a slow
// consumer can never stall a call.
type Bus struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Events returns the consumption channel. It is closed by Close.
func (b *Bus) Events() <-chan Event { return b.ch }

func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- ev:
	default:
		// buffer full: drop rather than block the call
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
