package session

import "sync"

// mailbox is an unbounded FIFO. Producers (channel readers, peer callbacks,
// API calls, the dispatcher itself) never block on push.
type mailbox struct {
	mu     sync.Mutex
	items  []any
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(item any) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest item, reporting false when the box is empty.
func (m *mailbox) pop() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil, false
	}
	item := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	return item, true
}

// ready is signalled after every push.
func (m *mailbox) ready() <-chan struct{} { return m.notify }
