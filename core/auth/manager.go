package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/campusdesk/portal/core"
)

// Manager is the single source of truth for "who is currently
// authenticated" within one browser session. It mirrors {user, session,
// loading} from its Store and keeps the mirror fresh through the store's
// session-change stream. State is mutated only by its own operation
// wrappers and its own listener.
type Manager struct {
	store  Store
	logger core.Logger

	mu          sync.RWMutex
	user        *User
	session     *Session
	loading     bool
	started     bool
	unsubscribe func()
}

func NewManager(store Store, logger core.Logger) *Manager {
	return &Manager{
		store:   store,
		logger:  logger,
		loading: true,
	}
}

// Start performs the one-time initial session fetch and registers the
// session-change listener. A failed initial fetch is logged, not surfaced:
// the manager simply starts unauthenticated.
func (m *Manager) Start(ctx context.Context) {
	sess, err := m.store.CurrentSession(ctx)
	if err != nil {
		m.logger.Error(fmt.Sprintf("fetching initial session: %v", err), err)
	}

	var usr *User
	if sess != nil {
		if usr, err = m.store.CurrentUser(ctx); err != nil {
			m.logger.Error(fmt.Sprintf("fetching initial user: %v", err), err)
		}
	}

	m.mu.Lock()
	m.session = sess
	m.user = usr
	m.loading = false
	m.started = true
	m.unsubscribe = m.store.Subscribe(m.onSessionChange)
	m.mu.Unlock()
}

// Close unregisters the session-change listener.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// onSessionChange overwrites the mirror on every store event (sign-in,
// sign-out, token refresh) and clears the loading flag.
func (m *Manager) onSessionChange(evt Event) {
	m.mu.Lock()
	m.session = evt.Session
	m.user = evt.User
	m.loading = false
	m.mu.Unlock()
}

// Current returns the mirrored {user, session, loading} triple. Reading it
// before Start is a programming error and fails fast.
func (m *Manager) Current() (*User, *Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		panic("auth: Manager.Current called before Start")
	}
	return m.user, m.session, m.loading
}

func (m *Manager) Store() Store { return m.store }

func (m *Manager) setLoading(loading bool) {
	m.mu.Lock()
	m.loading = loading
	m.mu.Unlock()
}

// SignUp delegates to the store and returns its payload and error
// verbatim. The loading flag is set for the duration of the call.
func (m *Manager) SignUp(ctx context.Context, email, password string, meta ProfileMeta) (*SignUpResult, error) {
	m.setLoading(true)
	defer m.setLoading(false)
	return m.store.SignUp(ctx, email, password, meta)
}

// SignIn delegates to the store and returns its error verbatim. The
// loading flag is set for the duration of the call; the mirror itself is
// updated by the session-change listener.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.setLoading(true)
	defer m.setLoading(false)
	_, err := m.store.SignIn(ctx, email, password)
	return err
}

// SignOut delegates to the store and returns its error verbatim.
func (m *Manager) SignOut(ctx context.Context) error {
	return m.store.SignOut(ctx)
}
