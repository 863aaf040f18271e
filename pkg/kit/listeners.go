package kit

import "sync"

// Listeners is a set of callbacks notified with values of T. Notify runs
// callbacks synchronously on the caller's goroutine, in subscription order.
type Listeners[T any] struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(T)
	ord  []uint64
}

// Subscribe registers fn and returns a function that removes it. The cancel
// function is safe to call more than once.
func (l *Listeners[T]) Subscribe(fn func(T)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.ord = append(l.ord, id)

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *Listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.fns, id)
	for i, v := range l.ord {
		if v == id {
			l.ord = append(l.ord[:i], l.ord[i+1:]...)
			break
		}
	}
}

func (l *Listeners[T]) Notify(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.ord))
	for _, id := range l.ord {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ord)
}
