package server

import (
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetachedSession(t *testing.T) *Session {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})
	return newSession(serverConn, 8, zerolog.Nop())
}

func TestPresenceRegisterAndLookup(t *testing.T) {
	p := NewPresence()
	s := newDetachedSession(t)

	require.Nil(t, p.Register("alice", s))

	got, ok := p.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = p.Lookup("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, p.Len())
}

func TestPresenceSupersede(t *testing.T) {
	p := NewPresence()
	first := newDetachedSession(t)
	second := newDetachedSession(t)

	require.Nil(t, p.Register("alice", first))
	displaced := p.Register("alice", second)
	assert.Same(t, first, displaced)

	got, ok := p.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestPresenceReleaseOnlyMatchingSession(t *testing.T) {
	p := NewPresence()
	stale := newDetachedSession(t)
	current := newDetachedSession(t)

	p.Register("alice", stale)
	p.Register("alice", current)

	// The stale session closing must not unregister the reconnection.
	assert.False(t, p.Release("alice", stale))
	got, ok := p.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, current, got)

	assert.True(t, p.Release("alice", current))
	_, ok = p.Lookup("alice")
	assert.False(t, ok)
}

func TestPresenceUsersSorted(t *testing.T) {
	p := NewPresence()
	p.Register("carol", newDetachedSession(t))
	p.Register("alice", newDetachedSession(t))
	p.Register("bob", newDetachedSession(t))

	assert.Equal(t, []string{"alice", "bob", "carol"}, p.Users())
	assert.Len(t, p.Snapshot(), 3)
}
