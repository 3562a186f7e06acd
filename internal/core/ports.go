package core

import (
	"context"
	"time"

	"github.com/dkeye/Hearing/internal/domain"
)

// ConferenceStore is the authoritative conference source.
// Implementations return domain.ErrConferenceNotFound for unknown ids.
type ConferenceStore interface {
	GetConference(ctx context.Context, conferenceID string) (*domain.Conference, error)
}

// Heartbeat is one recorded call-quality sample.
type Heartbeat struct {
	ConferenceID  string
	ParticipantID string
	Metrics       domain.HeartbeatMetrics
	ReceivedAt    time.Time
}

// HeartbeatStore records heartbeats. It is a side effect of routing
// and never gates the broadcast.
type HeartbeatStore interface {
	Record(ctx context.Context, hb Heartbeat) error
}

// ConferenceInvalidator is implemented by stores that cache conferences;
// the hub calls it after routing a state-changing event.
type ConferenceInvalidator interface {
	Invalidate(ctx context.Context, conferenceID string) error
}

// HeartbeatReader lists the most recent heartbeats of a conference, newest first.
type HeartbeatReader interface {
	Recent(ctx context.Context, conferenceID string, limit int) ([]Heartbeat, error)
}
