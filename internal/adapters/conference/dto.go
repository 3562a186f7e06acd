package conference

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dkeye/Hearing/internal/domain"
)

type roomDTO struct {
	Label  string `json:"label"`
	Locked bool   `json:"locked"`
}

type linkedDTO struct {
	LinkedID string `json:"linkedId"`
	LinkType string `json:"linkType"`
}

type participantDTO struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"displayName"`
	Role        string      `json:"role"`
	HearingRole string      `json:"hearingRole"`
	Status      string      `json:"status"`
	CurrentRoom *roomDTO    `json:"currentRoom"`
	Linked      []linkedDTO `json:"linkedParticipants"`
}

type endpointDTO struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Status      string   `json:"status"`
	CurrentRoom *roomDTO `json:"currentRoom"`
}

// conferenceDTO is the conference API's response body.
type conferenceDTO struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	ClosedDateTime *time.Time       `json:"closedDateTime"`
	Participants   []participantDTO `json:"participants"`
	Endpoints      []endpointDTO    `json:"endpoints"`
}

func (r *roomDTO) toDomain() *domain.Room {
	if r == nil || r.Label == "" {
		return nil
	}
	return &domain.Room{Label: r.Label, Locked: r.Locked}
}

func decodeConference(body []byte) (*domain.Conference, error) {
	var dto conferenceDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("decode conference: %w", err)
	}
	if dto.ID == "" {
		return nil, fmt.Errorf("decode conference: missing id")
	}
	status := domain.ConferenceStatus(dto.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("decode conference %s: unknown status %q", dto.ID, dto.Status)
	}

	participants := make([]*domain.Participant, 0, len(dto.Participants))
	for _, p := range dto.Participants {
		links := make([]domain.LinkedParticipant, 0, len(p.Linked))
		for _, l := range p.Linked {
			links = append(links, domain.LinkedParticipant{LinkedID: l.LinkedID, Type: domain.LinkType(l.LinkType)})
		}
		participants = append(participants, &domain.Participant{
			ID:                 p.ID,
			Username:           p.Username,
			DisplayName:        p.DisplayName,
			Role:               domain.Role(p.Role),
			HearingRole:        p.HearingRole,
			Status:             domain.ParticipantStatus(p.Status),
			Room:               p.CurrentRoom.toDomain(),
			LinkedParticipants: links,
		})
	}
	endpoints := make([]*domain.Endpoint, 0, len(dto.Endpoints))
	for _, e := range dto.Endpoints {
		endpoints = append(endpoints, &domain.Endpoint{
			ID:          e.ID,
			DisplayName: e.DisplayName,
			Status:      domain.EndpointStatus(e.Status),
			Room:        e.CurrentRoom.toDomain(),
		})
	}

	conf := domain.NewConference(dto.ID, status, participants, endpoints)
	conf.ClosedAt = dto.ClosedDateTime
	return conf, nil
}
