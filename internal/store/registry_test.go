package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castrelay/castrelay/internal/domain"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()

	conn := domain.NewConnection("conn-a")
	r.Add(conn)
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get("conn-a")
	require.True(t, ok)
	assert.Same(t, conn, got)

	removed, ok := r.Remove("conn-a")
	require.True(t, ok)
	assert.Same(t, conn, removed)
	assert.Equal(t, 0, r.Count())

	_, ok = r.Remove("conn-a")
	assert.False(t, ok)
}

func TestSameRoom(t *testing.T) {
	r := NewRegistry()

	a := domain.NewConnection("conn-a")
	b := domain.NewConnection("conn-b")
	c := domain.NewConnection("conn-c")
	r.Add(a)
	r.Add(b)
	r.Add(c)

	a.SetRoom("room-1", domain.RoleBroadcaster, "alice")
	b.SetRoom("room-1", domain.RoleViewer, "bob")
	c.SetRoom("room-2", domain.RoleViewer, "carol")

	assert.True(t, r.SameRoom("conn-a", "conn-b"))
	assert.False(t, r.SameRoom("conn-a", "conn-c"))
	assert.False(t, r.SameRoom("conn-a", "unknown"))

	// Connections outside any room never share one.
	d := domain.NewConnection("conn-d")
	e := domain.NewConnection("conn-e")
	r.Add(d)
	r.Add(e)
	assert.False(t, r.SameRoom("conn-d", "conn-e"))
}
