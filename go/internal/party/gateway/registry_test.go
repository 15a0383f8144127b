package gateway

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndMembersOf(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeMember("a"), newFakeMember("b")

	r.Register("ROOM1", a)
	r.Register("ROOM1", b)
	r.Register("ROOM2", newFakeMember("c"))

	assert.ElementsMatch(t, []Member{a, b}, r.MembersOf("ROOM1"))
	assert.Len(t, r.MembersOf("ROOM2"), 1)
	assert.Empty(t, r.MembersOf("NOPE"))

	stats := r.Stats()
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveParties)
	assert.Equal(t, 2, stats.PartyConnections["ROOM1"])
}

func TestDeregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := newFakeMember("a")
	r.Register("ROOM1", a)

	assert.True(t, r.Deregister("ROOM1", a))
	assert.False(t, r.Deregister("ROOM1", a))
	assert.False(t, r.Deregister("OTHER", a))
	assert.Empty(t, r.MembersOf("ROOM1"))
}

func TestDeregisterChecksIdentity(t *testing.T) {
	r := NewRegistry()
	a := newFakeMember("same")
	impostor := newFakeMember("same")
	r.Register("ROOM1", a)

	assert.False(t, r.Deregister("ROOM1", impostor))
	assert.Equal(t, []Member{a}, r.MembersOf("ROOM1"))
}

func TestEmptyPartyIsPruned(t *testing.T) {
	r := NewRegistry()
	a := newFakeMember("a")
	r.Register("ROOM1", a)
	r.Deregister("ROOM1", a)

	r.mu.RLock()
	_, exists := r.parties["ROOM1"]
	r.mu.RUnlock()
	assert.False(t, exists)
	assert.Zero(t, r.Stats().ActiveParties)

	// The party comes back on the next join
	r.Register("ROOM1", a)
	assert.Len(t, r.MembersOf("ROOM1"), 1)
}

func TestMembersOfIsASnapshot(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeMember("a"), newFakeMember("b")
	r.Register("ROOM1", a)

	snapshot := r.MembersOf("ROOM1")
	r.Register("ROOM1", b)
	r.Deregister("ROOM1", a)

	assert.Equal(t, []Member{a}, snapshot)
	assert.Equal(t, []Member{b}, r.MembersOf("ROOM1"))
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			party := fmt.Sprintf("P%d", w%3)
			for i := 0; i < rounds; i++ {
				m := newFakeMember(fmt.Sprintf("%d-%d", w, i))
				r.Register(party, m)
				_ = r.MembersOf(party)
				assert.True(t, r.Deregister(party, m))
			}
		}(w)
	}
	wg.Wait()

	stats := r.Stats()
	assert.Zero(t, stats.TotalConnections)
	assert.Zero(t, stats.ActiveParties)
}
