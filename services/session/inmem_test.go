package sessionsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campusdesk/portal/core/auth"
)

func Test_inmemStore_SignUp(t *testing.T) {
	ctx := context.Background()
	backend := NewBackend()
	store := backend.NewSession()

	profiles := make(chan string, 1)
	backend.OnSignUp(func(userID string) { profiles <- userID })

	res, err := store.SignUp(ctx, " S@bmsit.IN ", "Passw0rd!", auth.ProfileMeta{FirstName: "Asha", LastName: "Rao"})
	assert.NoError(t, err)
	if assert.NotNil(t, res.User) {
		assert.Equal(t, "s@bmsit.in", res.User.Email)
		assert.Equal(t, "Asha", res.User.FirstName)
		assert.False(t, res.User.EmailConfirmed)
	}
	// email verification pending
	assert.Nil(t, res.Session)

	// sign-up hook fired with the new account id
	select {
	case id := <-profiles:
		assert.Equal(t, res.User.ID, id)
	case <-time.After(time.Second):
		t.Fatal("sign-up hook not called")
	}

	// duplicate email
	_, err = store.SignUp(ctx, "s@bmsit.in", "Other1!", auth.ProfileMeta{})
	var sErr *auth.StoreError
	if assert.True(t, errors.As(err, &sErr)) {
		assert.Equal(t, "User already registered", sErr.Message)
	}

	assert.Equal(t, 2, backend.Counts().SignUp)
}

func Test_inmemStore_SignIn(t *testing.T) {
	ctx := context.Background()
	backend := NewBackend()
	usr, err := backend.CreateAccount("s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})
	assert.NoError(t, err)

	store := backend.NewSession()

	var events []auth.Event
	unsubscribe := store.Subscribe(func(evt auth.Event) { events = append(events, evt) })
	defer unsubscribe()

	t.Run("wrong credentials", func(t *testing.T) {
		for _, creds := range [][2]string{
			{"s@bmsit.in", "wrong"},
			{"nobody@bmsit.in", "Passw0rd!"},
		} {
			_, err := store.SignIn(ctx, creds[0], creds[1])
			var sErr *auth.StoreError
			if assert.True(t, errors.As(err, &sErr)) {
				assert.Equal(t, "Invalid login credentials", sErr.Message)
			}
		}
		assert.Empty(t, events)
	})

	t.Run("success emits SIGNED_IN and binds the session", func(t *testing.T) {
		sess, err := store.SignIn(ctx, "s@bmsit.in", "Passw0rd!")
		assert.NoError(t, err)
		assert.Equal(t, usr.ID, sess.UserID)
		assert.False(t, sess.Expired())

		if assert.Len(t, events, 1) {
			assert.Equal(t, auth.SignedIn, events[0].Type)
			assert.Equal(t, usr.ID, events[0].User.ID)
		}

		cur, err := store.CurrentSession(ctx)
		assert.NoError(t, err)
		assert.Equal(t, sess, cur)

		curUsr, err := store.CurrentUser(ctx)
		assert.NoError(t, err)
		assert.Equal(t, usr.ID, curUsr.ID)
	})

	t.Run("sign-out emits SIGNED_OUT and clears the session", func(t *testing.T) {
		assert.NoError(t, store.SignOut(ctx))
		last := events[len(events)-1]
		assert.Equal(t, auth.SignedOut, last.Type)
		assert.Nil(t, last.Session)

		cur, err := store.CurrentSession(ctx)
		assert.NoError(t, err)
		assert.Nil(t, cur)

		curUsr, err := store.CurrentUser(ctx)
		assert.NoError(t, err)
		assert.Nil(t, curUsr)
	})
}

func Test_inmemStore_sessionsShareAccounts(t *testing.T) {
	ctx := context.Background()
	backend := NewBackend()
	_, err := backend.CreateAccount("s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})
	assert.NoError(t, err)

	s1 := backend.NewSession()
	s2 := backend.NewSession()

	_, err = s1.SignIn(ctx, "s@bmsit.in", "Passw0rd!")
	assert.NoError(t, err)

	// a second browser session starts unauthenticated against the same
	// account directory
	sess, err := s2.CurrentSession(ctx)
	assert.NoError(t, err)
	assert.Nil(t, sess)

	_, err = s2.SignIn(ctx, "s@bmsit.in", "Passw0rd!")
	assert.NoError(t, err)
}

func Test_Backend_Admin(t *testing.T) {
	ctx := context.Background()
	backend := NewBackend()
	usr, err := backend.CreateAccount("s@bmsit.in", "Passw0rd!", auth.ProfileMeta{})
	assert.NoError(t, err)

	users, err := backend.ListUsers(ctx)
	assert.NoError(t, err)
	assert.Len(t, users, 1)

	assert.NoError(t, backend.DeleteUser(ctx, usr.ID))
	users, _ = backend.ListUsers(ctx)
	assert.Empty(t, users)

	err = backend.DeleteUser(ctx, usr.ID)
	var sErr *auth.StoreError
	if assert.True(t, errors.As(err, &sErr)) {
		assert.Equal(t, 404, sErr.Code)
	}
}
