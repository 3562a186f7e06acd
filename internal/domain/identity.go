// Package domain contains the hearing entities and events, without transport.
package domain

import (
	"errors"
	"strings"
)

const MaxIdentityNameLen = 256

var (
	ErrIdentityNameEmpty   = errors.New("identity name empty")
	ErrIdentityNameTooLong = errors.New("identity name too long")
)

type Role string

const (
	RoleJudge                Role = "Judge"
	RoleStaffMember          Role = "StaffMember"
	RoleJudicialOfficeHolder Role = "JudicialOfficeHolder"
	RoleIndividual           Role = "Individual"
	RoleRepresentative       Role = "Representative"
	RoleQuickLinkParticipant Role = "QuickLinkParticipant"
	RoleQuickLinkObserver    Role = "QuickLinkObserver"

	// RoleVHOfficer is staff monitoring hearings; not a conference participant.
	RoleVHOfficer Role = "VHOfficer"
	// RoleSystem is an upstream event producer.
	RoleSystem Role = "System"
)

func (r Role) IsHost() bool {
	return r == RoleJudge || r == RoleStaffMember
}

func (r Role) IsJudicial() bool {
	return r == RoleJudicialOfficeHolder
}

func (r Role) Valid() bool {
	switch r {
	case RoleJudge, RoleStaffMember, RoleJudicialOfficeHolder, RoleIndividual,
		RoleRepresentative, RoleQuickLinkParticipant, RoleQuickLinkObserver,
		RoleVHOfficer, RoleSystem:
		return true
	}
	return false
}

// Identity is the authenticated principal behind a connection.
type Identity struct {
	Name          string `json:"name"`
	ParticipantID string `json:"participant_id,omitempty"`
	ConferenceID  string `json:"conference_id,omitempty"`
	Role          Role   `json:"role"`
}

func NewIdentity(name string, role Role) (*Identity, error) {
	if err := validateIdentityName(name); err != nil {
		return nil, err
	}
	return &Identity{Name: name, Role: role}, nil
}

// GroupName is the per-identity group used for direct addressing.
func (i Identity) GroupName() string {
	return strings.ToLower(i.Name)
}

func validateIdentityName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrIdentityNameEmpty
	}
	if len(name) > MaxIdentityNameLen {
		return ErrIdentityNameTooLong
	}
	return nil
}
