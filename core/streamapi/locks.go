package streamapi

import "sync"

// lockTable hands out the per-stream exclusive locks that linearize
// mutations on the same id. Operations on different ids proceed
// independently; two operations on the same id never observe the same
// pre-mutation balance.
//
// Entries are reference counted and dropped once the last holder
// releases, so the table does not grow with the total number of
// streams ever created.
type lockTable struct {
	mu    sync.Mutex
	locks map[uint64]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uint64]*lockEntry)}
}

// acquire blocks until the lock for id is held and returns the release
// function. The lock must be held for the whole
// validate-compute-transfer-commit sequence.
func (t *lockTable) acquire(id uint64) (release func()) {
	t.mu.Lock()
	entry, ok := t.locks[id]
	if !ok {
		entry = &lockEntry{}
		t.locks[id] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
