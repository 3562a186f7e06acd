package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/core"
	"github.com/dkeye/Hearing/internal/domain"
)

type GroupName string

type connEntry struct {
	Identity domain.Identity
	Conn     core.SignalConnection
	groups   map[GroupName]struct{}
}

// Member is a point-in-time view of one group member.
type Member struct {
	ID       core.ConnectionID
	Identity domain.Identity
	Conn     core.SignalConnection
}

// Directory maps live connections to identities and group memberships.
// Membership changes and snapshot reads are serialised by one lock; the
// snapshot is taken under the lock and fan-out happens outside it.
type Directory struct {
	mu     sync.RWMutex
	conns  map[core.ConnectionID]*connEntry
	groups map[GroupName]map[core.ConnectionID]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		conns:  make(map[core.ConnectionID]*connEntry),
		groups: make(map[GroupName]map[core.ConnectionID]struct{}),
	}
}

// Attach registers a connection with no group memberships.
// Re-attaching an id replaces its transport and keeps its groups.
func (d *Directory) Attach(id core.ConnectionID, identity domain.Identity, conn core.SignalConnection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.conns[id]; ok {
		e.Identity = identity
		e.Conn = conn
		return
	}
	d.conns[id] = &connEntry{
		Identity: identity,
		Conn:     conn,
		groups:   make(map[GroupName]struct{}),
	}
	log.Info().Str("module", "app.directory").Str("conn", string(id)).Str("identity", identity.Name).Msg("attached connection")
}

// Detach removes the connection and releases every group it belongs to.
// It returns the released groups.
func (d *Directory) Detach(id core.ConnectionID) []GroupName {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.conns[id]
	if !ok {
		return nil
	}
	released := make([]GroupName, 0, len(e.groups))
	for g := range e.groups {
		d.leaveLocked(id, g)
		released = append(released, g)
	}
	delete(d.conns, id)
	log.Info().Str("module", "app.directory").Str("conn", string(id)).Int("groups", len(released)).Msg("detached connection")
	return released
}

// Join adds the connection to group. Joining twice is a no-op; joining
// with an unknown connection id is ignored. It reports whether
// membership changed.
func (d *Directory) Join(id core.ConnectionID, group GroupName) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.conns[id]
	if !ok {
		return false
	}
	if _, ok := e.groups[group]; ok {
		return false
	}
	members := d.groups[group]
	if members == nil {
		members = make(map[core.ConnectionID]struct{})
		d.groups[group] = members
	}
	members[id] = struct{}{}
	e.groups[group] = struct{}{}
	log.Debug().Str("module", "app.directory").Str("conn", string(id)).Str("group", string(group)).Msg("joined group")
	return true
}

// Leave removes the connection from group. Leaving a group the connection
// is not in is a no-op. It reports whether membership changed.
func (d *Directory) Leave(id core.ConnectionID, group GroupName) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leaveLocked(id, group)
}

func (d *Directory) leaveLocked(id core.ConnectionID, group GroupName) bool {
	e, ok := d.conns[id]
	if !ok {
		return false
	}
	if _, ok := e.groups[group]; !ok {
		return false
	}
	delete(e.groups, group)
	members := d.groups[group]
	delete(members, id)
	if len(members) == 0 {
		delete(d.groups, group)
	}
	return true
}

// MembersOf returns a snapshot of the group's members.
func (d *Directory) MembersOf(group GroupName) []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members := d.groups[group]
	out := make([]Member, 0, len(members))
	for id := range members {
		e := d.conns[id]
		out = append(out, Member{ID: id, Identity: e.Identity, Conn: e.Conn})
	}
	return out
}

// GroupsOf returns the sorted group names the connection belongs to.
func (d *Directory) GroupsOf(id core.ConnectionID) []GroupName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.conns[id]
	if !ok {
		return nil
	}
	out := make([]GroupName, 0, len(e.groups))
	for g := range e.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Directory) Identity(id core.ConnectionID) (domain.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.conns[id]
	if !ok {
		return domain.Identity{}, false
	}
	return e.Identity, true
}

func (d *Directory) ConnectionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
