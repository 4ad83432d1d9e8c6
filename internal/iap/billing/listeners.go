package billing

import (
	"sync"

	"matchBack/internal/models"
)

// listeners keeps registered purchase callbacks for adapters.
type listeners struct {
	mu      sync.RWMutex
	nextID  int
	updated map[int]func(models.PurchaseEvent)
	failed  map[int]func(error)
}

func newListeners() *listeners {
	return &listeners{
		updated: make(map[int]func(models.PurchaseEvent)),
		failed:  make(map[int]func(error)),
	}
}

func (l *listeners) addUpdated(fn func(models.PurchaseEvent)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.updated[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.updated, id)
		l.mu.Unlock()
	}
}

func (l *listeners) addFailed(fn func(error)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.failed[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.failed, id)
		l.mu.Unlock()
	}
}

func (l *listeners) emitUpdated(ev models.PurchaseEvent) {
	l.mu.RLock()
	fns := make([]func(models.PurchaseEvent), 0, len(l.updated))
	for _, fn := range l.updated {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (l *listeners) emitFailed(err error) {
	l.mu.RLock()
	fns := make([]func(error), 0, len(l.failed))
	for _, fn := range l.failed {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (l *listeners) count() (int, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.updated), len(l.failed)
}
