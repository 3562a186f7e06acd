package hub

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/app"
	"github.com/dkeye/Hearing/internal/core"
	"github.com/dkeye/Hearing/internal/domain"
)

// OnConnect registers the connection and joins its role-appropriate groups.
// An unresolvable conference only skips the conference group.
func (h *Hub) OnConnect(ctx context.Context, id core.ConnectionID, identity domain.Identity, conn core.SignalConnection) []app.GroupName {
	h.Directory.Attach(id, identity, conn)

	var conf *domain.Conference
	if identity.ConferenceID != "" && h.Conferences != nil {
		c, err := h.Conferences.GetConference(ctx, identity.ConferenceID)
		if err != nil {
			log.Warn().Err(err).
				Str("module", "hub").
				Str("conn", string(id)).
				Str("conference", identity.ConferenceID).
				Msg("conference lookup failed on connect")
		} else {
			conf = c
		}
	}

	groups := app.GroupsFor(identity, conf)
	for _, g := range groups {
		h.Directory.Join(id, g)
	}
	log.Info().
		Str("module", "hub").
		Str("conn", string(id)).
		Str("identity", identity.Name).
		Str("role", string(identity.Role)).
		Int("groups", len(groups)).
		Msg("connected")
	return groups
}

// OnDisconnect releases every group membership of the connection.
func (h *Hub) OnDisconnect(id core.ConnectionID, reason string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("module", "hub").Str("conn", string(id)).Interface("panic", r).Msg("group release failed")
		}
	}()
	released := h.Directory.Detach(id)
	log.Info().Str("module", "hub").Str("conn", string(id)).Str("reason", reason).Int("released", len(released)).Msg("disconnected")
}
