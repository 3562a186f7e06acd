package heartbeat

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/core"
)

// LogStore only logs samples; used when no database is configured.
type LogStore struct{}

func (LogStore) Record(_ context.Context, hb core.Heartbeat) error {
	log.Debug().
		Str("module", "adapters.heartbeat").
		Str("conference", hb.ConferenceID).
		Str("participant", hb.ParticipantID).
		Uint64("packets_sent", hb.Metrics.OutgoingPacketsSent).
		Int64("packets_lost", hb.Metrics.IncomingPacketsLost).
		Float64("rtt", hb.Metrics.RoundTripTimeSeconds).
		Msg("heartbeat")
	return nil
}
