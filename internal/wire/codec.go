// Package wire encodes domain events as {"type": ..., "payload": ...} frames.
package wire

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/dkeye/Hearing/internal/domain"
)

type Envelope struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

var factories = map[domain.EventType]func() domain.Event{
	domain.EventParticipantStatusChanged: func() domain.Event { return &domain.ParticipantStatusChanged{} },
	domain.EventEndpointStatusChanged:    func() domain.Event { return &domain.EndpointStatusChanged{} },
	domain.EventConferenceStatusChanged:  func() domain.Event { return &domain.ConferenceStatusChanged{} },
	domain.EventRoomUpdated:              func() domain.Event { return &domain.RoomUpdated{} },
	domain.EventRoomTransfer:             func() domain.Event { return &domain.RoomTransfer{} },
	domain.EventConsultationRequested:    func() domain.Event { return &domain.ConsultationRequested{} },
	domain.EventConsultationResponse:     func() domain.Event { return &domain.ConsultationResponse{} },
	domain.EventHearingTransfer:          func() domain.Event { return &domain.HearingTransfer{} },
	domain.EventHeartbeatReported:        func() domain.Event { return &domain.HeartbeatReported{} },
}

// Encode marshals ev into an envelope frame.
func Encode(ev domain.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{Type: ev.Type(), Payload: payload})
}

// Decode parses an envelope frame into a value-typed domain event.
// Unknown types and undecodable payloads wrap domain.ErrMalformedEvent.
func Decode(data []byte) (domain.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return DecodeEnvelope(env)
}

func DecodeEnvelope(env Envelope) (domain.Event, error) {
	newEvent, ok := factories[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrMalformedEvent, env.Type)
	}
	ptr := newEvent()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ptr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedEvent, env.Type, err)
		}
	}
	return deref(ptr), nil
}

func deref(ev domain.Event) domain.Event {
	switch e := ev.(type) {
	case *domain.ParticipantStatusChanged:
		return *e
	case *domain.EndpointStatusChanged:
		return *e
	case *domain.ConferenceStatusChanged:
		return *e
	case *domain.RoomUpdated:
		return *e
	case *domain.RoomTransfer:
		return *e
	case *domain.ConsultationRequested:
		return *e
	case *domain.ConsultationResponse:
		return *e
	case *domain.HearingTransfer:
		return *e
	case *domain.HeartbeatReported:
		return *e
	}
	return ev
}
