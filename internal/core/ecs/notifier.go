package ecs

import "sync"

// Listener receives notifications for an entity. Implementations must be
// comparable (typically pointers) so they can be unsubscribed.
type Listener interface {
	Notify(e *Entity)
}

// ListenerFunc adapts a function. Wrap it in a pointer before subscribing if
// it has to be removed later; func values are not comparable.
type ListenerFunc func(e *Entity)

func (f *ListenerFunc) Notify(e *Entity) { (*f)(e) }

// Notifier is a multicast notification point. Subscribe and Fire are safe from
// any goroutine; listeners run on the firing goroutine.
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (n *Notifier) Subscribe(l Listener) {
	n.mu.Lock()
	n.listeners = append(n.listeners, l)
	n.mu.Unlock()
}

// Unsubscribe removes one registration of l. Removing a listener that was
// never subscribed is a no-op.
func (n *Notifier) Unsubscribe(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, cur := range n.listeners {
		if cur == l {
			last := len(n.listeners) - 1
			n.listeners[i] = n.listeners[last]
			n.listeners[last] = nil
			n.listeners = n.listeners[:last]
			return
		}
	}
}

func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Fire calls every listener with e. The listener list is copied first so a
// listener may subscribe or unsubscribe without deadlocking.
func (n *Notifier) Fire(e *Entity) {
	n.mu.RLock()
	if len(n.listeners) == 0 {
		n.mu.RUnlock()
		return
	}
	ls := make([]Listener, len(n.listeners))
	copy(ls, n.listeners)
	n.mu.RUnlock()
	for _, l := range ls {
		l.Notify(e)
	}
}
