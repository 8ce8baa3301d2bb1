package thread

import "sync"

// lockSet hands out one mutex per thread id and forgets it when no one holds it.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *lockSet) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*lockEntry)
	}
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *lockSet) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
