package sessionsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
)

// Client talks to the hosted auth service's REST API (GoTrue-style). It is
// shared across browser sessions; per-session state lives in the stores it
// hands out via NewSession.
type Client struct {
	baseURL       string
	anonKey       string
	serviceKey    string
	refreshMargin time.Duration
	http          *http.Client
	logger        core.Logger
}

var _ auth.Admin = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(conf.SessionStore.URL, "/"),
		anonKey:       conf.SessionStore.AnonKey,
		serviceKey:    conf.SessionStore.ServiceKey,
		refreshMargin: conf.SessionStore.RefreshMargin,
		http:          &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// NewSession returns a store holding the credentials of one browser
// session.
func (c *Client) NewSession() auth.Store {
	return &gotrueStore{
		client:    c,
		listeners: make(map[int]func(auth.Event)),
	}
}

// wire types

type gotrueUser struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	UserMetadata     userMetadata `json:"user_metadata"`
	ConfirmedAt      string       `json:"confirmed_at"`
	EmailConfirmedAt string       `json:"email_confirmed_at"`
	CreatedAt        time.Time    `json:"created_at"`

	// autoconfirm sign-up responses carry the session at the top level
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         *gotrueUser `json:"user"`
}

type userMetadata struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	User         *gotrueUser `json:"user"`
}

type apiError struct {
	Err            string `json:"error"`
	ErrDescription string `json:"error_description"`
	Msg            string `json:"msg"`
	Message        string `json:"message"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrDescription, e.Msg, e.Message, e.Err} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (u *gotrueUser) toUser() *auth.User {
	if u == nil {
		return nil
	}
	return &auth.User{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.UserMetadata.FirstName,
		LastName:       u.UserMetadata.LastName,
		EmailConfirmed: u.ConfirmedAt != "" || u.EmailConfirmedAt != "",
		CreatedAt:      u.CreatedAt.UTC(),
	}
}

// do performs one API call. token is the bearer credential; the anon key
// is used when it is empty.
func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshalling request body")
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling session store")
	}
	defer func() { _ = res.Body.Close() }()

	data, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "reading session store response")
	}

	if res.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.text()
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return &auth.StoreError{Code: res.StatusCode, Message: msg}
	}

	if out != nil && len(data) > 0 {
		if err = json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decoding session store response")
		}
	}
	return nil
}

// parseClaims decodes the access token without verifying it; the store
// owns the signature, we only need subject and expiry for the mirror.
func parseClaims(token string) *jwt.StandardClaims {
	claims := new(jwt.StandardClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

func sessionFromToken(accessToken, refreshToken string, expiresIn int, usr *gotrueUser) *auth.Session {
	sess := &auth.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if expiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second).UTC()
	}
	if usr != nil {
		sess.UserID = usr.ID
	}
	if sess.UserID == "" || sess.ExpiresAt.IsZero() {
		if claims := parseClaims(accessToken); claims != nil {
			if sess.UserID == "" {
				sess.UserID = claims.Subject
			}
			if sess.ExpiresAt.IsZero() && claims.ExpiresAt > 0 {
				sess.ExpiresAt = time.Unix(claims.ExpiresAt, 0).UTC()
			}
		}
	}
	return sess
}

// Admin surface (service key)

func (c *Client) admin(ctx context.Context, method, path string, body, out interface{}) error {
	if c.serviceKey == "" {
		return errors.New("session store service key not configured")
	}
	return c.do(ctx, method, path, c.serviceKey, body, out)
}

func (c *Client) ListUsers(ctx context.Context) ([]auth.User, error) {
	var res struct {
		Users []gotrueUser `json:"users"`
	}
	if err := c.admin(ctx, http.MethodGet, "/admin/users", nil, &res); err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	users := make([]auth.User, 0, len(res.Users))
	for i := range res.Users {
		users = append(users, *res.Users[i].toUser())
	}
	return users, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return errors.Wrap(c.admin(ctx, http.MethodDelete, "/admin/users/"+id, nil, nil), "deleting user")
}

// gotrueStore holds one browser session's credentials and keeps them fresh
// through a background refresh loop.
type gotrueStore struct {
	client *Client

	mu           sync.RWMutex
	session      *auth.Session
	user         *auth.User
	listeners    map[int]func(auth.Event)
	nextListener int
	refreshStop  chan struct{}
}

var _ auth.Store = (*gotrueStore)(nil)

func (s *gotrueStore) SignUp(ctx context.Context, email, password string, meta auth.ProfileMeta) (*auth.SignUpResult, error) {
	body := struct {
		Email    string       `json:"email"`
		Password string       `json:"password"`
		Data     userMetadata `json:"data"`
	}{email, password, userMetadata{FirstName: meta.FirstName, LastName: meta.LastName}}

	var res gotrueUser
	if err := s.client.do(ctx, http.MethodPost, "/signup", "", body, &res); err != nil {
		return nil, err
	}

	// with email confirmation disabled the store returns a session instead
	// of the bare user
	if res.AccessToken != "" {
		sess := sessionFromToken(res.AccessToken, res.RefreshToken, res.ExpiresIn, res.User)
		usr := res.User.toUser()
		s.adopt(sess, usr, auth.SignedIn)
		return &auth.SignUpResult{User: usr, Session: sess}, nil
	}
	return &auth.SignUpResult{User: res.toUser()}, nil
}

func (s *gotrueStore) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}

	var res tokenResponse
	if err := s.client.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &res); err != nil {
		return nil, err
	}

	sess := sessionFromToken(res.AccessToken, res.RefreshToken, res.ExpiresIn, res.User)
	s.adopt(sess, res.User.toUser(), auth.SignedIn)
	return sess, nil
}

func (s *gotrueStore) SignOut(ctx context.Context) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	var err error
	if sess != nil {
		err = s.client.do(ctx, http.MethodPost, "/logout", sess.AccessToken, nil, nil)
	}
	// the local session is dropped even if the revocation call failed
	s.adopt(nil, nil, auth.SignedOut)
	return err
}

func (s *gotrueStore) CurrentSession(ctx context.Context) (*auth.Session, error) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess != nil && sess.Expired() && sess.RefreshToken != "" {
		return s.refresh(ctx)
	}
	return sess, nil
}

func (s *gotrueStore) CurrentUser(ctx context.Context) (*auth.User, error) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess == nil {
		return nil, nil
	}

	var res gotrueUser
	if err := s.client.do(ctx, http.MethodGet, "/user", sess.AccessToken, nil, &res); err != nil {
		return nil, err
	}
	usr := res.toUser()
	s.mu.Lock()
	s.user = usr
	s.mu.Unlock()
	return usr, nil
}

func (s *gotrueStore) Subscribe(fn func(auth.Event)) func() {
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

// adopt swaps the held session, (re)schedules the refresh loop and emits
// the change event.
func (s *gotrueStore) adopt(sess *auth.Session, usr *auth.User, event auth.EventType) {
	s.mu.Lock()
	s.session = sess
	s.user = usr
	if s.refreshStop != nil {
		close(s.refreshStop)
		s.refreshStop = nil
	}
	if sess != nil && sess.RefreshToken != "" && !sess.ExpiresAt.IsZero() {
		s.refreshStop = make(chan struct{})
		go s.refreshLoop(sess.ExpiresAt, s.refreshStop)
	}
	s.mu.Unlock()

	s.emit(auth.Event{Type: event, Session: sess, User: usr})
}

func (s *gotrueStore) emit(evt auth.Event) {
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

func (s *gotrueStore) refreshLoop(expiresAt time.Time, stop chan struct{}) {
	wait := time.Until(expiresAt) - s.client.refreshMargin
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-stop:
		return
	case <-timer.C:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.refresh(ctx); err != nil {
		s.client.logger.Error(fmt.Sprintf("refreshing session: %v", err), err)
	}
}

func (s *gotrueStore) refresh(ctx context.Context) (*auth.Session, error) {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess == nil || sess.RefreshToken == "" {
		return nil, nil
	}

	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{sess.RefreshToken}

	var res tokenResponse
	if err := s.client.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &res); err != nil {
		// a dead refresh token ends the session
		s.adopt(nil, nil, auth.SignedOut)
		return nil, err
	}

	usr := res.User.toUser()
	if usr == nil {
		s.mu.RLock()
		usr = s.user
		s.mu.RUnlock()
	}
	fresh := sessionFromToken(res.AccessToken, res.RefreshToken, res.ExpiresIn, res.User)
	s.adopt(fresh, usr, auth.TokenRefreshed)
	return fresh, nil
}
