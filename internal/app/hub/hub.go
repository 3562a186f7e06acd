package hub

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/app"
	"github.com/dkeye/Hearing/internal/core"
	"github.com/dkeye/Hearing/internal/domain"
	"github.com/dkeye/Hearing/internal/wire"
)

const defaultPersistTimeout = 5 * time.Second

// Hub routes hearing events to the connections subscribed to their target
// groups. Delivery is send-and-forget: TrySend never blocks, and a slow
// connection is handled by Policy without stalling the others.
type Hub struct {
	Directory   *app.Directory
	Conferences core.ConferenceStore
	Heartbeats  core.HeartbeatStore
	Policy      app.Policy
	Clock       clockwork.Clock

	PersistTimeout time.Duration
}

func New(dir *app.Directory, conferences core.ConferenceStore, heartbeats core.HeartbeatStore, policy app.Policy) *Hub {
	return &Hub{
		Directory:      dir,
		Conferences:    conferences,
		Heartbeats:     heartbeats,
		Policy:         policy,
		Clock:          clockwork.NewRealClock(),
		PersistTimeout: defaultPersistTimeout,
	}
}

// PublishResult reports delivery stats for one routed event.
type PublishResult struct {
	SentTo  int
	Dropped []app.Member
}

func (r *PublishResult) merge(other PublishResult) {
	r.SentTo += other.SentTo
	r.Dropped = append(r.Dropped, other.Dropped...)
}

// Publish delivers ev once to every connection in any of groups.
func (h *Hub) Publish(ev domain.Event, groups ...app.GroupName) PublishResult {
	res := PublishResult{}
	frame, err := wire.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("event", string(ev.Type())).Msg("encode event")
		return res
	}
	seen := make(map[core.ConnectionID]struct{})
	for _, g := range groups {
		for _, m := range h.Directory.MembersOf(g) {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			if err := m.Conn.TrySend(frame); err != nil {
				res.Dropped = append(res.Dropped, m)
				h.onBackpressure(g, m, err)
				continue
			}
			res.SentTo++
		}
	}
	log.Debug().
		Str("module", "hub").
		Str("event", string(ev.Type())).
		Int("groups", len(groups)).
		Int("sent_to", res.SentTo).
		Int("dropped", len(res.Dropped)).
		Msg("publish result")
	return res
}

func (h *Hub) onBackpressure(group app.GroupName, m app.Member, cause error) {
	if h.Policy == nil {
		return
	}
	switch h.Policy.OnBackPressure(group, m) {
	case app.KickMember:
		log.Warn().Err(cause).Str("module", "hub").Str("conn", string(m.ID)).Str("group", string(group)).Msg("kicking slow connection")
		m.Conn.Close()
	case app.MarkSlow, app.DropFrame, app.NoAction:
		log.Debug().Err(cause).Str("module", "hub").Str("conn", string(m.ID)).Str("group", string(group)).Msg("dropped frame")
	}
}

func recoverHandler(handler string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	log.Warn().Str("module", "hub").Str("handler", handler).Interface("panic", r).Msg("handler panicked")
	if err != nil {
		*err = fmt.Errorf("%s: handler panic: %v", handler, r)
	}
}
