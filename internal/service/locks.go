package service

import "sync"

// LockRegistry provides per-agent-name mutual exclusion for lifecycle
// operations. Operations on the same agent are strictly serialized;
// operations on different agents run in parallel. Locks are created
// lazily and never released back, which is fine at fleet scale.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty LockRegistry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *LockRegistry) lock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Do runs fn while holding the lock for name.
func (r *LockRegistry) Do(name string, fn func() error) error {
	l := r.lock(name)
	l.Lock()
	defer l.Unlock()
	return fn()
}
