package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrag/opsconsole/internal/session"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def", "abc.def", nil},
		{"lowercase scheme", "bearer abc", "abc", nil},
		{"missing", "", "", session.ErrMissingToken},
		{"wrong scheme", "Basic dXNlcg==", "", session.ErrMalformedHeader},
		{"empty token", "Bearer   ", "", session.ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := session.BearerToken(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.False(t, session.FromContext(ctx).Active())

	_, err := session.Require(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)

	sess := session.Context{
		Token:     "tok",
		Principal: session.Principal{ID: "u1", Username: "root", Role: session.RoleAdmin},
	}
	got, err := session.Require(session.WithContext(ctx, sess))
	require.NoError(t, err)
	assert.Equal(t, sess, got)
	assert.True(t, got.HasRole(session.RoleAdmin))
	assert.False(t, got.HasRole(session.RoleUser))
}

func TestContext_IsSelf(t *testing.T) {
	sess := session.Context{Token: "tok", Principal: session.Principal{ID: "u1", Username: "root"}}

	assert.True(t, sess.IsSelf("u1", ""))
	assert.True(t, sess.IsSelf("", "root"))
	assert.True(t, sess.IsSelf("other-id", "root"))
	assert.False(t, sess.IsSelf("u2", "alice"))
	assert.False(t, sess.IsSelf("", ""))

	anonymous := session.Context{Token: "tok"}
	assert.False(t, anonymous.IsSelf("", ""))
}

type countingLookup struct {
	calls atomic.Int32
	err   error
}

func (l *countingLookup) Me(ctx context.Context) (session.Principal, error) {
	l.calls.Add(1)
	if l.err != nil {
		return session.Principal{}, l.err
	}
	return session.Principal{Username: "token:" + session.FromContext(ctx).Token, Role: session.RoleAdmin}, nil
}

func TestResolver_CachesByToken(t *testing.T) {
	lookup := &countingLookup{}
	resolver := session.NewResolver(session.ResolverConfig{
		Lookup: lookup,
		Logger: zerolog.Nop(),
		TTL:    time.Minute,
	})

	sess, err := resolver.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "token:abc", sess.Principal.Username, "lookup must see the token in its context")
	assert.Equal(t, "abc", sess.Token)

	_, err = resolver.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), lookup.calls.Load())

	_, err = resolver.Resolve(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, int32(2), lookup.calls.Load())

	resolver.Forget("abc")
	_, err = resolver.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(3), lookup.calls.Load())
}

func TestResolver_NoCacheWithoutTTL(t *testing.T) {
	lookup := &countingLookup{}
	resolver := session.NewResolver(session.ResolverConfig{Lookup: lookup, Logger: zerolog.Nop()})

	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), "abc")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), lookup.calls.Load())
}

func TestResolver_LookupError(t *testing.T) {
	lookup := &countingLookup{err: assert.AnError}
	resolver := session.NewResolver(session.ResolverConfig{Lookup: lookup, Logger: zerolog.Nop(), TTL: time.Minute})

	_, err := resolver.Resolve(context.Background(), "abc")
	assert.ErrorIs(t, err, assert.AnError)

	_, err = resolver.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrMissingToken)
}
