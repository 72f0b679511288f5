package sync

import "sync"

// EventKind is the type of an engine notification.
type EventKind int

const (
	// EventStateChanged fires on every sync state transition.
	EventStateChanged EventKind = iota
	// EventDataChanged fires when a pull or merge modified local data.
	EventDataChanged
	// EventSyncError reports a non-fatal push/pull failure. The next
	// scheduled pass retries the same work.
	EventSyncError
	// EventPeerSync is the "peer, you should sync too" notice emitted
	// after a force sync.
	EventPeerSync
)

// Event is a typed engine notification.
type Event struct {
	Kind   EventKind
	State  State
	Err    error
	Pushed int
	Pulled int
}

// Notifier fans engine events out to subscribers. Sends never block: a
// subscriber that stops draining misses events rather than stalling the
// sync loop.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be
// called to release the channel.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Event, 16)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to all subscribers without blocking.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
