package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/api"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	tokens map[string]string
	err    error
}

func (f *fakeAuth) SignIn(_ context.Context, username, _ string) (*api.SignInResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.SignInResponse{AccessToken: f.tokens[username]}, nil
}

func makeToken(t *testing.T, userID, username string, ttl time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, api.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Username: username,
	})
	s, err := tok.SignedString([]byte("client-does-not-know-this"))
	require.NoError(t, err)
	return s
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(common.LocalUserID)
	id, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, common.LocalUserID, id)

	ch, cancel := s.Subscribe()
	defer cancel()

	s.SignOut(context.Background())
	assert.Equal(t, Event{Kind: SignedOut}, next(t, ch))
	_, ok = s.Current()
	assert.False(t, ok)

	_, ok = NewStatic("").Current()
	assert.False(t, ok)
}

func TestSession_SignInAndOut(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{tokens: map[string]string{"alice": makeToken(t, "uid-alice", "alice", time.Hour)}}
	s := NewSession(auth, nil)

	_, ok := s.Current()
	assert.False(t, ok)
	_, err := s.Token()
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.SignIn(ctx, "alice", "pw"))
	assert.Equal(t, Event{Kind: SignedIn, UserID: "uid-alice"}, next(t, ch))

	id, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, "uid-alice", id)
	assert.Equal(t, "alice", s.Username())

	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, auth.tokens["alice"], tok)

	s.SignOut(ctx)
	assert.Equal(t, Event{Kind: SignedOut}, next(t, ch))
	_, ok = s.Current()
	assert.False(t, ok)
}

func TestSession_UserSwitchEmitsSignOutFirst(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{tokens: map[string]string{
		"alice": makeToken(t, "uid-alice", "alice", time.Hour),
		"bob":   makeToken(t, "uid-bob", "bob", time.Hour),
	}}
	s := NewSession(auth, nil)
	require.NoError(t, s.SignIn(ctx, "alice", "pw"))

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.SignIn(ctx, "bob", "pw"))
	assert.Equal(t, SignedOut, next(t, ch).Kind)
	assert.Equal(t, Event{Kind: SignedIn, UserID: "uid-bob"}, next(t, ch))
}

func TestSession_Expiry(t *testing.T) {
	s := NewSession(&fakeAuth{}, nil)
	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Restore(context.Background(), makeToken(t, "uid", "u", 1500*time.Millisecond)))
	assert.Equal(t, SignedIn, next(t, ch).Kind)

	assert.Equal(t, SignedOut, next(t, ch).Kind)
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSession_RejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	s := NewSession(&fakeAuth{}, nil)

	assert.ErrorIs(t, s.Restore(ctx, "not-a-jwt"), common.ErrInvalidToken)
	assert.ErrorIs(t, s.Restore(ctx, makeToken(t, "", "u", time.Hour)), common.ErrInvalidToken)
	assert.ErrorIs(t, s.Restore(ctx, makeToken(t, "uid", "u", -time.Minute)), common.ErrTokenExpired)

	boom := errors.New("unavailable")
	assert.ErrorIs(t, NewSession(&fakeAuth{err: boom}, nil).SignIn(ctx, "a", "b"), boom)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	s := NewStatic("x")
	ch, cancel := s.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	s.SignOut(context.Background())
}

func TestHub_FullSubscriberStillGetsSignOut(t *testing.T) {
	var h hub
	events, cancel := h.subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		h.publish(Event{Kind: SignedIn, UserID: "alice"})
	}
	h.publish(Event{Kind: SignedOut})

	var last Event
	n := 0
	for len(events) > 0 {
		last = <-events
		n++
	}
	assert.Equal(t, 8, n)
	assert.Equal(t, SignedOut, last.Kind)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "signed_in", SignedIn.String())
	assert.Equal(t, "signed_out", SignedOut.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
