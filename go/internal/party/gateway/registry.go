package gateway

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Member is a live party connection as seen by the registry and the relay
type Member interface {
	// ID uniquely identifies the connection
	ID() string
	// Enqueue hands a frame to the member's outbound queue without blocking.
	// It returns false when the frame could not be queued.
	Enqueue(frame []byte) bool
	// Close tears down the underlying transport
	Close()
}

// Registry maps party codes to their live connections.
// Each party has its own lock so churn in one party does not hold up
// fan-out enumeration in another; the outer lock only guards the map of groups.
type Registry struct {
	mu      sync.RWMutex
	parties map[string]*partyGroup
}

type partyGroup struct {
	mu      sync.RWMutex
	members map[string]Member
	// dead is set once the group has been emptied and is being pruned
	dead bool
}

// RegistryStats is a point-in-time view of the registry
type RegistryStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveParties    int            `json:"active_parties"`
	PartyConnections map[string]int `json:"party_connections"`
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		parties: make(map[string]*partyGroup),
	}
}

// Register adds a member to a party, creating the party group on first join
func (r *Registry) Register(party string, m Member) {
	for {
		g := r.groupFor(party, true)

		g.mu.Lock()
		if g.dead {
			// Lost a race with the last member leaving; drop the stale group and retry
			g.mu.Unlock()
			r.prune(party, g)
			continue
		}
		g.members[m.ID()] = m
		count := len(g.members)
		g.mu.Unlock()

		log.Debug().
			Str("connection_id", m.ID()).
			Str("party", party).
			Int("total_connections", count).
			Msg("connection registered")
		return
	}
}

// Deregister removes a member from a party. It reports whether the member was present;
// removing an absent member is a no-op.
func (r *Registry) Deregister(party string, m Member) bool {
	g := r.groupFor(party, false)
	if g == nil {
		return false
	}

	g.mu.Lock()
	current, exists := g.members[m.ID()]
	if !exists || current != m {
		g.mu.Unlock()
		return false
	}
	delete(g.members, m.ID())
	empty := len(g.members) == 0
	if empty {
		g.dead = true
	}
	g.mu.Unlock()

	if empty {
		r.prune(party, g)
	}

	log.Debug().
		Str("connection_id", m.ID()).
		Str("party", party).
		Msg("connection deregistered")
	return true
}

// MembersOf returns a snapshot of the party's members. The slice is owned by the caller
// and is not affected by later joins or leaves.
func (r *Registry) MembersOf(party string) []Member {
	g := r.groupFor(party, false)
	if g == nil {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	members := make([]Member, 0, len(g.members))
	for _, m := range g.members {
		members = append(members, m)
	}
	return members
}

// Stats returns statistics about active connections
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	groups := make(map[string]*partyGroup, len(r.parties))
	for party, g := range r.parties {
		groups[party] = g
	}
	r.mu.RUnlock()

	stats := RegistryStats{
		PartyConnections: make(map[string]int, len(groups)),
	}
	for party, g := range groups {
		g.mu.RLock()
		count := len(g.members)
		g.mu.RUnlock()
		if count == 0 {
			continue
		}
		stats.PartyConnections[party] = count
		stats.TotalConnections += count
	}
	stats.ActiveParties = len(stats.PartyConnections)
	return stats
}

func (r *Registry) groupFor(party string, create bool) *partyGroup {
	r.mu.RLock()
	g, ok := r.parties[party]
	r.mu.RUnlock()
	if ok || !create {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.parties[party]; ok {
		return g
	}
	g = &partyGroup{members: make(map[string]Member)}
	r.parties[party] = g
	return g
}

// prune removes an emptied group unless it has already been replaced
func (r *Registry) prune(party string, g *partyGroup) {
	r.mu.Lock()
	if r.parties[party] == g {
		delete(r.parties, party)
	}
	r.mu.Unlock()
}
