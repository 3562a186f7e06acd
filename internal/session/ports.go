package session

import (
	"context"

	"github.com/dkeye/Hearing/internal/domain"
)

// ConferenceFetcher performs the authoritative reload of conference state.
type ConferenceFetcher interface {
	GetConference(ctx context.Context, id string) (*domain.Conference, error)
}

// Publisher sends client-originated events upstream over the signalling channel.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// ErrorRouter receives the deliberate fatal signal after which the session is
// unrecoverable.
type ErrorRouter interface {
	Fatal(err error)
}

// CallMedia is the live media call. Dial must not block; the outcome arrives
// later as a CallSignal.
type CallMedia interface {
	Dial() error
	Disconnect()
	SetVideoMuted(muted bool) error
	Stats() domain.HeartbeatMetrics
}

type ConsultationInvite struct {
	ConferenceID string
	InvitationID string
	RoomLabel    string
	RequestedBy  string
	LinkedNames  []string
}

// InviteHandle is the UI affordance shown for one invitation.
type InviteHandle interface {
	Close()
	MarkDeclinedByThirdParty()
}

type DeclinedNotice struct {
	RoomLabel       string
	ParticipantName string
	IsInHearing     bool
}

type ConsultationOutcome struct {
	RoomLabel    string
	InvitationID string
	Answer       domain.ConsultationAnswer
}

// Notifier surfaces consultation state to the user.
type Notifier interface {
	ShowConsultationInvite(invite ConsultationInvite) InviteHandle
	WaitingOnLinkedParticipants(roomLabel string, pending []string)
	LinkedParticipantDeclined(notice DeclinedNotice)
	InviteeDeclined(notice DeclinedNotice)
	ConsultationResolved(outcome ConsultationOutcome)
}
