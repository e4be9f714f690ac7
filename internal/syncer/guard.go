package syncer

import "sync"

// Guard is a set of held keys. A key can be held by one caller at a time;
// other callers fail fast instead of waiting.
type Guard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{held: make(map[string]struct{})}
}

// TryLock acquires key and reports whether it was free.
func (g *Guard) TryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

// Unlock releases key.
func (g *Guard) Unlock(key string) {
	g.mu.Lock()
	delete(g.held, key)
	g.mu.Unlock()
}

// Held reports whether key is currently held.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.held[key]
	return busy
}

func userKey(id string) string  { return "user:" + id }
func eventKey(id string) string { return "event:" + id }
