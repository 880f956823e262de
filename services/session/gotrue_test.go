package sessionsvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"

	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
	sessionsvc "github.com/campusdesk/portal/services/session"
	testutil "github.com/campusdesk/portal/tests"
)

func newTestClient(t *testing.T, handler http.Handler) *sessionsvc.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conf := &core.Config{
		SessionStore: core.SessionStoreConfig{
			URL:           srv.URL,
			AnonKey:       "anon-key",
			ServiceKey:    "service-key",
			RefreshMargin: time.Second,
		},
	}
	return sessionsvc.NewClient(conf, testutil.Logger{})
}

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   sub,
		ExpiresAt: exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signToken() failed: %v", err)
	}
	return token
}

func Test_gotrueStore_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("password grant", func(t *testing.T) {
		var gotAuth, gotAPIKey string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/token", r.URL.Path)
			assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
			gotAuth = r.Header.Get("Authorization")
			gotAPIKey = r.Header.Get("apikey")

			var body struct{ Email, Password string }
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "s@bmsit.in", body.Email)

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
				"expires_in":    3600,
				"user":          map[string]interface{}{"id": "u1", "email": "s@bmsit.in", "confirmed_at": "2026-01-01T00:00:00Z"},
			})
		}))

		store := client.NewSession()
		var events []auth.Event
		defer store.Subscribe(func(evt auth.Event) { events = append(events, evt) })()

		sess, err := store.SignIn(ctx, "s@bmsit.in", "Passw0rd!")
		assert.NoError(t, err)
		assert.Equal(t, "anon-key", gotAPIKey)
		assert.Equal(t, "Bearer anon-key", gotAuth) // unauthenticated call uses the anon key
		assert.Equal(t, "at-1", sess.AccessToken)
		assert.Equal(t, "u1", sess.UserID)
		assert.False(t, sess.Expired())

		if assert.Len(t, events, 1) {
			assert.Equal(t, auth.SignedIn, events[0].Type)
			assert.Equal(t, "u1", events[0].User.ID)
			assert.True(t, events[0].User.EmailConfirmed)
		}
	})

	t.Run("store error surfaced verbatim", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_description": "Invalid login credentials"})
		}))

		_, err := client.NewSession().SignIn(ctx, "s@bmsit.in", "wrong")
		var sErr *auth.StoreError
		if assert.True(t, errors.As(err, &sErr)) {
			assert.Equal(t, http.StatusBadRequest, sErr.Code)
			assert.Equal(t, "Invalid login credentials", sErr.Message)
		}
	})

	t.Run("user id and expiry fall back to token claims", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		token := signToken(t, "u-claims", exp)
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  token,
				"refresh_token": "rt-1",
			})
		}))

		sess, err := client.NewSession().SignIn(ctx, "s@bmsit.in", "Passw0rd!")
		assert.NoError(t, err)
		assert.Equal(t, "u-claims", sess.UserID)
		assert.True(t, sess.ExpiresAt.Equal(exp))
	})
}

func Test_gotrueStore_SignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("email confirmation pending", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/signup", r.URL.Path)

			var body struct {
				Email string `json:"email"`
				Data  struct {
					FirstName string `json:"first_name"`
				} `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "Asha", body.Data.FirstName)

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":    "u1",
				"email": body.Email,
				"user_metadata": map[string]string{
					"first_name": "Asha", "last_name": "Rao",
				},
			})
		}))

		res, err := client.NewSession().SignUp(ctx, "s@bmsit.in", "Passw0rd!", auth.ProfileMeta{FirstName: "Asha", LastName: "Rao"})
		assert.NoError(t, err)
		assert.Nil(t, res.Session)
		if assert.NotNil(t, res.User) {
			assert.Equal(t, "u1", res.User.ID)
			assert.False(t, res.User.EmailConfirmed)
			assert.Equal(t, "Asha", res.User.FirstName)
		}
	})

	t.Run("autoconfirm returns a live session", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
				"expires_in":    3600,
				"user":          map[string]interface{}{"id": "u1", "email": "s@bmsit.in", "confirmed_at": "2026-01-01T00:00:00Z"},
			})
		}))

		store := client.NewSession()
		res, err := store.SignUp(ctx, "s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})
		assert.NoError(t, err)
		if assert.NotNil(t, res.Session) {
			assert.Equal(t, "u1", res.Session.UserID)
		}

		sess, err := store.CurrentSession(ctx)
		assert.NoError(t, err)
		assert.Equal(t, res.Session, sess)
	})

	t.Run("duplicate registration surfaced verbatim", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"msg": "User already registered"})
		}))

		_, err := client.NewSession().SignUp(ctx, "s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})
		var sErr *auth.StoreError
		if assert.True(t, errors.As(err, &sErr)) {
			assert.Equal(t, "User already registered", sErr.Message)
		}
	})
}

func Test_gotrueStore_SignOut(t *testing.T) {
	ctx := context.Background()

	calls := make(map[string]int)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls[r.URL.Path]++
		switch r.URL.Path {
		case "/token":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
				"expires_in":    3600,
				"user":          map[string]interface{}{"id": "u1"},
			})
		case "/logout":
			assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
			// revocation fails server side
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"msg": "invalid token"})
		}
	}))

	store := client.NewSession()
	_, err := store.SignIn(ctx, "s@bmsit.in", "Passw0rd!")
	assert.NoError(t, err)

	// the local session is dropped even though revocation failed
	err = store.SignOut(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, calls["/logout"])

	sess, err := store.CurrentSession(ctx)
	assert.NoError(t, err)
	assert.Nil(t, sess)
}

func Test_gotrueStore_refresh(t *testing.T) {
	ctx := context.Background()

	var grants []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		grant := r.URL.Query().Get("grant_type")
		grants = append(grants, grant)

		res := map[string]interface{}{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			// already expired: the next CurrentSession must refresh
			"expires_in": 0,
			"user":       map[string]interface{}{"id": "u1"},
		}
		if grant == "refresh_token" {
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "rt-1", body.RefreshToken)
			res["access_token"] = "at-2"
			res["refresh_token"] = "rt-2"
			res["expires_in"] = 3600
		}
		_ = json.NewEncoder(w).Encode(res)
	}))

	store := client.NewSession()
	var events []auth.Event
	defer store.Subscribe(func(evt auth.Event) { events = append(events, evt) })()

	sess, err := store.SignIn(ctx, "s@bmsit.in", "Passw0rd!")
	assert.NoError(t, err)
	// no expiry recorded: token is opaque, expires_in was 0
	assert.True(t, sess.ExpiresAt.IsZero())

	// force an expired session to exercise the synchronous refresh path
	sess.ExpiresAt = time.Now().Add(-time.Minute)

	fresh, err := store.CurrentSession(ctx)
	assert.NoError(t, err)
	if assert.NotNil(t, fresh) {
		assert.Equal(t, "at-2", fresh.AccessToken)
		assert.Equal(t, "rt-2", fresh.RefreshToken)
		assert.False(t, fresh.Expired())
	}
	assert.Equal(t, []string{"password", "refresh_token"}, grants)

	last := events[len(events)-1]
	assert.Equal(t, auth.TokenRefreshed, last.Type)
	assert.Equal(t, "u1", last.User.ID)
}

func Test_Client_Admin(t *testing.T) {
	ctx := context.Background()

	t.Run("list and delete use the service key", func(t *testing.T) {
		var deleted string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/admin/users":
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"users": []map[string]interface{}{
						{"id": "u1", "email": "s@bmsit.in"},
						{"id": "u2", "email": "t@bmsit.in"},
					},
				})
			case r.Method == http.MethodDelete:
				deleted = r.URL.Path
				w.WriteHeader(http.StatusOK)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		users, err := client.ListUsers(ctx)
		assert.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "u1", users[0].ID)

		assert.NoError(t, client.DeleteUser(ctx, "u1"))
		assert.Equal(t, "/admin/users/u1", deleted)
	})

	t.Run("missing service key", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		sessionsvc.SetServiceKey(client, "")
		_, err := client.ListUsers(ctx)
		assert.Error(t, err)
	})
}
