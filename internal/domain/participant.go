package domain

import "strings"

type ParticipantStatus string

const (
	ParticipantNotSignedIn    ParticipantStatus = "NotSignedIn"
	ParticipantJoining        ParticipantStatus = "Joining"
	ParticipantAvailable      ParticipantStatus = "Available"
	ParticipantInConsultation ParticipantStatus = "InConsultation"
	ParticipantInHearing      ParticipantStatus = "InHearing"
	ParticipantDisconnected   ParticipantStatus = "Disconnected"
)

func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantNotSignedIn, ParticipantJoining, ParticipantAvailable,
		ParticipantInConsultation, ParticipantInHearing, ParticipantDisconnected:
		return true
	}
	return false
}

type LinkType string

const LinkInterpreter LinkType = "Interpreter"

const HearingRoleWitness = "Witness"

// LinkedParticipant references another participant of the same conference.
type LinkedParticipant struct {
	LinkedID string   `json:"linked_id"`
	Type     LinkType `json:"type"`
}

// Participant is a person or quick-link guest attached to a conference.
// Status and Room are owned by the session presence state machine.
type Participant struct {
	ID                 string              `json:"id"`
	Username           string              `json:"username"`
	DisplayName        string              `json:"display_name"`
	Role               Role                `json:"role"`
	HearingRole        string              `json:"hearing_role,omitempty"`
	Status             ParticipantStatus   `json:"status"`
	Room               *Room               `json:"room,omitempty"`
	LinkedParticipants []LinkedParticipant `json:"linked_participants,omitempty"`
}

// IsWitness reports whether the participant joins the hearing only when called.
func (p *Participant) IsWitness() bool {
	return strings.EqualFold(p.HearingRole, HearingRoleWitness)
}

func (p *Participant) IsLinkedTo(id string) bool {
	for _, l := range p.LinkedParticipants {
		if l.LinkedID == id {
			return true
		}
	}
	return false
}

func (p *Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// SetStatus applies a status transition. A disconnected participant
// cannot remain in a room.
func (p *Participant) SetStatus(s ParticipantStatus) {
	p.Status = s
	if s == ParticipantDisconnected {
		p.Room = nil
	}
}
