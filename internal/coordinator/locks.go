package coordinator

import "sync"

// lockTable serializes work per room. Entries are dropped once no goroutine
// holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{rooms: make(map[string]*roomLock)}
}

// lock blocks until room is free and returns the matching unlock.
func (t *lockTable) lock(room string) func() {
	t.mu.Lock()
	l, ok := t.rooms[room]
	if !ok {
		l = &roomLock{}
		t.rooms[room] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.rooms, room)
		}
		t.mu.Unlock()
	}
}

// lockPair locks two distinct rooms in a fixed order.
func (t *lockTable) lockPair(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	unlockA := t.lock(a)
	unlockB := t.lock(b)
	return func() {
		unlockB()
		unlockA()
	}
}

func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}
