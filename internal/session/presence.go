package session

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/dkeye/Hearing/internal/domain"
)

// state is the conference view shared by the session's capabilities.
type state struct {
	conference      *domain.Conference
	conferenceID    string
	participantID   string
	signalConnected bool
}

func (s *state) self() (*domain.Participant, bool) {
	if s.conference == nil {
		return nil, false
	}
	return s.conference.Participant(s.participantID)
}

func (s *state) selfStatus() domain.ParticipantStatus {
	if p, ok := s.self(); ok {
		return p.Status
	}
	return ""
}

func (s *state) videoInputs() VideoInputs {
	in := VideoInputs{SignalConnected: s.signalConnected}
	if s.conference != nil {
		in.InSession = s.conference.Status == domain.ConferenceInSession
	}
	if p, ok := s.self(); ok {
		in.Witness = p.IsWitness()
		in.Status = p.Status
	}
	return in
}

// StatusReconciler owns status and room assignment of participants and
// endpoints. Events for any other conference never mutate state.
type StatusReconciler struct {
	st    *state
	clock clockwork.Clock
}

// Apply folds one presence event into the local conference.
func (r *StatusReconciler) Apply(ev domain.ConferenceEvent) error {
	conf := r.st.conference
	if conf == nil || ev.Conference() != conf.ID {
		return fmt.Errorf("%w: %s for conference %s", domain.ErrStaleEvent, ev.Type(), ev.Conference())
	}

	switch e := ev.(type) {
	case domain.ParticipantStatusChanged:
		p, ok := conf.Participant(e.ParticipantID)
		if !ok {
			return fmt.Errorf("%w: participant %s", domain.ErrStaleEvent, e.ParticipantID)
		}
		p.SetStatus(e.Status)
	case domain.EndpointStatusChanged:
		ep, ok := conf.Endpoint(e.EndpointID)
		if !ok {
			return fmt.Errorf("%w: endpoint %s", domain.ErrStaleEvent, e.EndpointID)
		}
		ep.SetStatus(e.Status)
	case domain.ConferenceStatusChanged:
		if e.Status == domain.ConferenceClosed {
			if conf.Status != domain.ConferenceClosed {
				conf.Close(r.clock.Now())
			}
		} else {
			conf.Status = e.Status
			conf.ClosedAt = nil
		}
		return nil
	case domain.RoomUpdated:
		room, ok := conf.Room(e.RoomLabel)
		if !ok {
			return fmt.Errorf("%w: room %s", domain.ErrStaleEvent, e.RoomLabel)
		}
		room.Locked = e.Locked
		return nil
	case domain.RoomTransfer:
		if err := r.transfer(conf, e.EntityID, e.ToRoomLabel); err != nil {
			return err
		}
	case domain.HearingTransfer:
		p, ok := conf.Participant(e.ParticipantID)
		if !ok {
			return fmt.Errorf("%w: participant %s", domain.ErrStaleEvent, e.ParticipantID)
		}
		if e.Direction == domain.TransferIn {
			p.Status = domain.ParticipantInHearing
			p.Room = nil
		} else {
			p.Status = domain.ParticipantAvailable
		}
	default:
		return fmt.Errorf("%w: %s is not a presence event", domain.ErrMalformedEvent, ev.Type())
	}
	conf.PruneRooms()
	return nil
}

func (r *StatusReconciler) transfer(conf *domain.Conference, entityID, toLabel string) error {
	if p, ok := conf.Participant(entityID); ok {
		p.Room = roomFor(conf, toLabel)
		return nil
	}
	if ep, ok := conf.Endpoint(entityID); ok {
		ep.Room = roomFor(conf, toLabel)
		return nil
	}
	return fmt.Errorf("%w: entity %s", domain.ErrStaleEvent, entityID)
}

// roomFor resolves a transfer target. Only consultation rooms are tracked;
// the waiting room and any other label clear the assignment.
func roomFor(conf *domain.Conference, label string) *domain.Room {
	if !domain.IsConsultationRoom(label) {
		return nil
	}
	return conf.RoomFor(label)
}
