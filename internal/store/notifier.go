package store

import "sync"

// notifier fans committed changes out to subscribers. Sends never block: a
// subscriber whose buffer is full already has a notification pending, and
// consumers reconcile whole tables, so the extra change is coalesced into it.
// publish is called with the backend's write lock held, which keeps per-row
// order.
type notifier struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Change
	closed bool
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan Change)}
}

func (n *notifier) subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Change, buffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.next
	n.next++
	n.subs[id] = ch

	// closeAll may already have closed ch; only the path that removes it
	// from subs closes it.
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[id]; !ok {
			return
		}
		delete(n.subs, id)
		close(ch)
	}
}

func (n *notifier) publish(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
