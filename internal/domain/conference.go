package domain

import (
	"fmt"
	"time"
)

type ConferenceStatus string

const (
	ConferenceNotStarted ConferenceStatus = "NotStarted"
	ConferenceInSession  ConferenceStatus = "InSession"
	ConferencePaused     ConferenceStatus = "Paused"
	ConferenceSuspended  ConferenceStatus = "Suspended"
	ConferenceClosed     ConferenceStatus = "Closed"
)

func (s ConferenceStatus) Valid() bool {
	switch s {
	case ConferenceNotStarted, ConferenceInSession, ConferencePaused, ConferenceSuspended, ConferenceClosed:
		return true
	}
	return false
}

// Conference is the root aggregate of a hearing.
// There is exactly one *Room per distinct label; participants and
// endpoints share it by pointer.
type Conference struct {
	ID           string           `json:"id"`
	Status       ConferenceStatus `json:"status"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	Participants []*Participant   `json:"participants"`
	Endpoints    []*Endpoint      `json:"endpoints"`

	rooms map[string]*Room
}

// NewConference builds an aggregate and folds the room references of the
// given participants and endpoints into one room per label.
func NewConference(id string, status ConferenceStatus, participants []*Participant, endpoints []*Endpoint) *Conference {
	c := &Conference{
		ID:           id,
		Status:       status,
		Participants: participants,
		Endpoints:    endpoints,
		rooms:        make(map[string]*Room),
	}
	for _, p := range participants {
		p.Room = c.adoptRoom(p.Room)
	}
	for _, e := range endpoints {
		e.Room = c.adoptRoom(e.Room)
	}
	return c
}

func (c *Conference) adoptRoom(r *Room) *Room {
	if r == nil || r.Label == "" {
		return nil
	}
	if existing, ok := c.rooms[r.Label]; ok {
		return existing
	}
	room := &Room{Label: r.Label, Locked: r.Locked}
	c.rooms[r.Label] = room
	return room
}

func (c *Conference) IsActive() bool {
	return c.Status != ConferenceClosed
}

func (c *Conference) Participant(id string) (*Participant, bool) {
	for _, p := range c.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (c *Conference) Endpoint(id string) (*Endpoint, bool) {
	for _, e := range c.Endpoints {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Room returns the room with the given label, if one is referenced.
func (c *Conference) Room(label string) (*Room, bool) {
	r, ok := c.rooms[label]
	return r, ok
}

// RoomFor returns the room for label, creating an unlocked one on first reference.
func (c *Conference) RoomFor(label string) *Room {
	if c.rooms == nil {
		c.rooms = make(map[string]*Room)
	}
	if r, ok := c.rooms[label]; ok {
		return r
	}
	r := &Room{Label: label}
	c.rooms[label] = r
	return r
}

func (c *Conference) RoomCount() int { return len(c.rooms) }

// PruneRooms drops rooms no participant or endpoint references.
func (c *Conference) PruneRooms() {
	used := make(map[string]struct{}, len(c.rooms))
	for _, p := range c.Participants {
		if p.Room != nil {
			used[p.Room.Label] = struct{}{}
		}
	}
	for _, e := range c.Endpoints {
		if e.Room != nil {
			used[e.Room.Label] = struct{}{}
		}
	}
	for label := range c.rooms {
		if _, ok := used[label]; !ok {
			delete(c.rooms, label)
		}
	}
}

// LinkedParticipantsOf resolves p's linked references against this conference,
// in link order. Unknown references are skipped.
func (c *Conference) LinkedParticipantsOf(p *Participant) []*Participant {
	out := make([]*Participant, 0, len(p.LinkedParticipants))
	for _, l := range p.LinkedParticipants {
		if lp, ok := c.Participant(l.LinkedID); ok {
			out = append(out, lp)
		}
	}
	return out
}

// Close marks the conference closed at the given time.
func (c *Conference) Close(at time.Time) {
	c.Status = ConferenceClosed
	c.ClosedAt = &at
}

// PastClosedThreshold reports whether the conference closed more than
// threshold before now.
func (c *Conference) PastClosedThreshold(now time.Time, threshold time.Duration) bool {
	if c.Status != ConferenceClosed || c.ClosedAt == nil {
		return false
	}
	return now.Sub(*c.ClosedAt) > threshold
}

func (c *Conference) String() string {
	return fmt.Sprintf("conference %s (%s)", c.ID, c.Status)
}
