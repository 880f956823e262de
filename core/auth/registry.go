package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusdesk/portal/core"
)

const (
	sweepInterval = time.Minute
	idleTTL       = 12 * time.Hour
	// sessions that never authenticated are dropped much sooner
	anonIdleTTL = 15 * time.Minute
)

type registryEntry struct {
	mgr      *Manager
	lastSeen time.Time
}

// Registry provides one Manager per browser session, keyed by an opaque
// session id carried in a cookie. Idle managers are swept out and closed.
type Registry struct {
	newStore func() Store
	logger   core.Logger

	mu      sync.Mutex
	entries map[string]*registryEntry
	done    chan struct{}
	once    sync.Once
}

func NewRegistry(newStore func() Store, logger core.Logger) *Registry {
	r := &Registry{
		newStore: newStore,
		logger:   logger,
		entries:  make(map[string]*registryEntry),
		done:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Create constructs and starts a fresh Manager backed by its own store
// client, and returns its session id.
func (r *Registry) Create(ctx context.Context) (string, *Manager) {
	mgr := NewManager(r.newStore(), r.logger)
	mgr.Start(ctx)

	sid := uuid.New().String()
	r.mu.Lock()
	r.entries[sid] = &registryEntry{mgr: mgr, lastSeen: time.Now()}
	r.mu.Unlock()
	return sid, mgr
}

func (r *Registry) Get(sid string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[sid]
	if !ok {
		return nil, false
	}
	entry.lastSeen = time.Now()
	return entry.mgr, true
}

// Remove closes and drops the manager for sid, if any.
func (r *Registry) Remove(sid string) {
	r.mu.Lock()
	entry, ok := r.entries[sid]
	delete(r.entries, sid)
	r.mu.Unlock()
	if ok {
		entry.mgr.Close()
	}
}

func (r *Registry) Close() {
	r.once.Do(func() { close(r.done) })

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.mgr.Close()
	}
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.sweepOnce(now)
		}
	}
}

func (r *Registry) sweepOnce(now time.Time) {
	var stale []*registryEntry

	r.mu.Lock()
	for sid, entry := range r.entries {
		_, sess, _ := entry.mgr.Current()
		ttl := idleTTL
		if sess == nil {
			ttl = anonIdleTTL
		}
		if now.Sub(entry.lastSeen) > ttl {
			stale = append(stale, entry)
			delete(r.entries, sid)
		}
	}
	r.mu.Unlock()

	for _, entry := range stale {
		entry.mgr.Close()
	}
}
