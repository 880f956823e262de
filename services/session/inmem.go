package sessionsvc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
)

// in-process session store stand-in for DEV|TEST; accounts are shared
// across sessions the way the hosted service shares them across browsers.

type account struct {
	id           string
	email        string
	passwordHash []byte
	meta         auth.ProfileMeta
	confirmed    bool
	createdAt    time.Time
}

func (a *account) toUser() *auth.User {
	return &auth.User{
		ID:             a.id,
		Email:          a.email,
		FirstName:      a.meta.FirstName,
		LastName:       a.meta.LastName,
		EmailConfirmed: a.confirmed,
		CreatedAt:      a.createdAt,
	}
}

// Counts tracks store invocations; tests assert on it to prove validation
// failures never reach the store.
type Counts struct {
	SignUp      int
	SignIn      int
	SignOut     int
	CurrentUser int
}

// Backend is the shared account directory behind every in-memory session.
type Backend struct {
	mu         sync.RWMutex
	accounts   map[string]*account // keyed by lowercased email
	byID       map[string]*account
	onSignUp   []func(userID string)
	counts     Counts
	sessionTTL time.Duration
}

func NewBackend() *Backend {
	return &Backend{
		accounts:   make(map[string]*account),
		byID:       make(map[string]*account),
		sessionTTL: time.Hour,
	}
}

// OnSignUp registers a hook run after account creation; the DEV wiring
// uses it to mimic the store-side profile trigger. Hooks run
// asynchronously, like the trigger they stand in for.
func (b *Backend) OnSignUp(fn func(userID string)) {
	b.mu.Lock()
	b.onSignUp = append(b.onSignUp, fn)
	b.mu.Unlock()
}

func (b *Backend) Counts() Counts {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.counts
}

// CreateAccount inserts a confirmed account directly; a test/seed helper.
func (b *Backend) CreateAccount(email, password string, meta auth.ProfileMeta) (*auth.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	acct := &account{
		id:           uuid.New().String(),
		email:        core.CleanString(email, true /* lower */),
		passwordHash: hash,
		meta:         meta,
		confirmed:    true,
		createdAt:    time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[acct.email]; exists {
		return nil, &auth.StoreError{Code: http.StatusUnprocessableEntity, Message: "User already registered"}
	}
	b.accounts[acct.email] = acct
	b.byID[acct.id] = acct
	return acct.toUser(), nil
}

// NewSession returns a store bound to this backend for one browser
// session.
func (b *Backend) NewSession() auth.Store {
	return &inmemStore{
		backend:   b,
		listeners: make(map[int]func(auth.Event)),
	}
}

// Admin surface

var _ auth.Admin = (*Backend)(nil)

func (b *Backend) ListUsers(ctx context.Context) ([]auth.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	users := make([]auth.User, 0, len(b.byID))
	for _, acct := range b.byID {
		users = append(users, *acct.toUser())
	}
	return users, nil
}

func (b *Backend) DeleteUser(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.byID[id]
	if !ok {
		return &auth.StoreError{Code: http.StatusNotFound, Message: "User not found"}
	}
	delete(b.byID, id)
	delete(b.accounts, acct.email)
	return nil
}

type inmemStore struct {
	backend *Backend

	mu           sync.RWMutex
	session      *auth.Session
	user         *auth.User
	listeners    map[int]func(auth.Event)
	nextListener int
}

var _ auth.Store = (*inmemStore)(nil)

func (s *inmemStore) SignUp(ctx context.Context, email, password string, meta auth.ProfileMeta) (*auth.SignUpResult, error) {
	b := s.backend
	b.mu.Lock()
	b.counts.SignUp++

	email = core.CleanString(email, true /* lower */)
	if _, exists := b.accounts[email]; exists {
		b.mu.Unlock()
		return nil, &auth.StoreError{Code: http.StatusUnprocessableEntity, Message: "User already registered"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}

	acct := &account{
		id:           uuid.New().String(),
		email:        email,
		passwordHash: hash,
		meta:         meta,
		createdAt:    time.Now().UTC(),
	}
	b.accounts[email] = acct
	b.byID[acct.id] = acct
	hooks := make([]func(string), len(b.onSignUp))
	copy(hooks, b.onSignUp)
	b.mu.Unlock()

	for _, fn := range hooks {
		go fn(acct.id)
	}

	// email verification pending: no session until the address is confirmed
	return &auth.SignUpResult{User: acct.toUser()}, nil
}

func (s *inmemStore) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	b := s.backend
	b.mu.Lock()
	b.counts.SignIn++
	acct, ok := b.accounts[core.CleanString(email, true /* lower */)]
	ttl := b.sessionTTL
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
		return nil, &auth.StoreError{Code: http.StatusBadRequest, Message: "Invalid login credentials"}
	}

	sess := &auth.Session{
		AccessToken:  uuid.New().String(),
		RefreshToken: uuid.New().String(),
		ExpiresAt:    time.Now().Add(ttl).UTC(),
		UserID:       acct.id,
	}
	usr := acct.toUser()

	s.mu.Lock()
	s.session = sess
	s.user = usr
	s.mu.Unlock()

	s.emit(auth.Event{Type: auth.SignedIn, Session: sess, User: usr})
	return sess, nil
}

func (s *inmemStore) SignOut(ctx context.Context) error {
	s.backend.mu.Lock()
	s.backend.counts.SignOut++
	s.backend.mu.Unlock()

	s.mu.Lock()
	s.session = nil
	s.user = nil
	s.mu.Unlock()

	s.emit(auth.Event{Type: auth.SignedOut})
	return nil
}

func (s *inmemStore) CurrentSession(ctx context.Context) (*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, nil
}

func (s *inmemStore) CurrentUser(ctx context.Context) (*auth.User, error) {
	s.backend.mu.Lock()
	s.backend.counts.CurrentUser++
	s.backend.mu.Unlock()

	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess == nil {
		return nil, nil
	}

	s.backend.mu.RLock()
	acct, ok := s.backend.byID[sess.UserID]
	s.backend.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return acct.toUser(), nil
}

func (s *inmemStore) Subscribe(fn func(auth.Event)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *inmemStore) emit(evt auth.Event) {
	s.mu.RLock()
	fns := make([]func(auth.Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}
