package auth

import (
	"context"
	"time"
)

// Session is the opaque token bundle minted by the session store. It is
// never created locally; the store owns its lifecycle.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"` // UTC
	UserID       string    `json:"user_id"`
}

func (s *Session) Expired() bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// User is the account record owned by the session store. ID is stable for
// the account's lifetime.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"` // UTC
}

// ProfileMeta is the profile metadata attached to an account at sign-up.
type ProfileMeta struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SignUpResult is the store's sign-up payload. Session is nil until the
// email address is verified.
type SignUpResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

type EventType string

const (
	SignedIn       EventType = "SIGNED_IN"
	SignedOut      EventType = "SIGNED_OUT"
	TokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is a session-change notification emitted by the store on sign-in,
// sign-out and token refresh.
type Event struct {
	Type    EventType
	Session *Session
	User    *User
}

// Store is the session store client surface: one instance per signed-in
// browser session, holding that session's credentials.
type Store interface {
	// CurrentSession returns the session held by this client, or nil.
	CurrentSession(ctx context.Context) (*Session, error)
	// CurrentUser re-fetches the authenticated user from the store, or nil
	// when unauthenticated.
	CurrentUser(ctx context.Context) (*User, error)
	SignUp(ctx context.Context, email, password string, meta ProfileMeta) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// Subscribe registers a session-change listener and returns its
	// unsubscribe func.
	Subscribe(fn func(Event)) func()
}

// Admin is the privileged (service key) surface of the session store, used
// by reconciliation tooling only.
type Admin interface {
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// StoreError is an error reported by the session store; Message is passed
// through to the end user verbatim.
type StoreError struct {
	Code    int // HTTP status reported by the service; 0 when unknown
	Message string
}

func (e *StoreError) Error() string { return e.Message }
