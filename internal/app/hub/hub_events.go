package hub

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Hearing/internal/app"
	"github.com/dkeye/Hearing/internal/core"
	"github.com/dkeye/Hearing/internal/domain"
)

// OnGroupEvent resolves the targets of ev and broadcasts it. A failed
// resolution makes it a no-op; the returned error is informational.
func (h *Hub) OnGroupEvent(ctx context.Context, ev domain.Event) (res PublishResult, err error) {
	defer recoverHandler("OnGroupEvent", &err)

	if err := domain.Validate(ev); err != nil {
		log.Warn().Err(err).Str("module", "hub").Msg("rejected event")
		return res, err
	}

	switch e := ev.(type) {
	case domain.ConsultationRequested:
		return h.routeConsultationRequest(ctx, e)
	case domain.HeartbeatReported:
		return h.routeHeartbeat(ctx, e), nil
	case domain.ParticipantStatusChanged, domain.EndpointStatusChanged, domain.ConferenceStatusChanged:
		ce := ev.(domain.ConferenceEvent)
		h.invalidate(ctx, ce.Conference())
		return h.Publish(ev, app.ConferenceGroup(ce.Conference()), app.GroupVHOfficers), nil
	case domain.ConsultationResponse:
		return h.Publish(ev, app.ConferenceGroup(e.Conference())), nil
	case domain.ConferenceEvent:
		h.invalidate(ctx, e.Conference())
		return h.Publish(ev, app.ConferenceGroup(e.Conference())), nil
	}
	return res, fmt.Errorf("%w: %s is not routable", domain.ErrMalformedEvent, ev.Type())
}

// invalidate drops a cached snapshot so the next lookup sees the change.
func (h *Hub) invalidate(ctx context.Context, conferenceID string) {
	inv, ok := h.Conferences.(core.ConferenceInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, conferenceID); err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("conference", conferenceID).Msg("conference cache invalidation failed")
	}
}

// OnClientEvent routes an event raised by a connected client after checking
// the client speaks only for itself.
func (h *Hub) OnClientEvent(ctx context.Context, id core.ConnectionID, ev domain.Event) error {
	identity, ok := h.Directory.Identity(id)
	if !ok {
		return fmt.Errorf("%w: connection %s", domain.ErrStaleEvent, id)
	}
	if err := authorize(identity, ev); err != nil {
		log.Warn().Err(err).
			Str("module", "hub").
			Str("conn", string(id)).
			Str("identity", identity.Name).
			Str("event", string(ev.Type())).
			Msg("client event refused")
		return err
	}
	_, err := h.OnGroupEvent(ctx, ev)
	return err
}

func authorize(identity domain.Identity, ev domain.Event) error {
	if identity.ParticipantID == "" {
		return domain.ErrForbiddenEvent
	}
	var self, conference string
	switch e := ev.(type) {
	case domain.HeartbeatReported:
		self, conference = e.ParticipantID, e.ConferenceID
	case domain.ConsultationResponse:
		self, conference = e.ResponseInitiator, e.ConferenceID
	case domain.ConsultationRequested:
		self, conference = e.RequestedBy, e.ConferenceID
	default:
		return fmt.Errorf("%w: %s", domain.ErrForbiddenEvent, ev.Type())
	}
	if self != identity.ParticipantID || conference != identity.ConferenceID {
		return fmt.Errorf("%w: %s on behalf of %s", domain.ErrForbiddenEvent, ev.Type(), self)
	}
	return nil
}

// routeConsultationRequest addresses the invitation to the requested
// participant and one re-addressed copy to each of its linked participants.
func (h *Hub) routeConsultationRequest(ctx context.Context, e domain.ConsultationRequested) (PublishResult, error) {
	res := PublishResult{}
	conf, err := h.Conferences.GetConference(ctx, e.ConferenceID)
	if err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("conference", e.ConferenceID).Msg("consultation request: conference lookup failed")
		return res, err
	}
	target, ok := conf.Participant(e.RequestedFor)
	if !ok {
		log.Warn().Str("module", "hub").Str("conference", e.ConferenceID).Str("participant", e.RequestedFor).Msg("consultation request: unknown participant")
		return res, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, e.RequestedFor)
	}

	res.merge(h.Publish(e, app.IdentityGroup(target.Username)))
	for _, linked := range conf.LinkedParticipantsOf(target) {
		copied := e
		copied.RequestedFor = linked.ID
		res.merge(h.Publish(copied, app.IdentityGroup(linked.Username)))
	}
	log.Info().
		Str("module", "hub").
		Str("conference", e.ConferenceID).
		Str("invitation", e.InvitationID).
		Str("room", e.RoomLabel).
		Int("sent_to", res.SentTo).
		Msg("consultation requested")
	return res, nil
}

// routeHeartbeat broadcasts to VHOfficers and records the sample. The two
// effects run independently; neither failure suppresses the other.
func (h *Hub) routeHeartbeat(ctx context.Context, e domain.HeartbeatReported) PublishResult {
	var res PublishResult
	var wg conc.WaitGroup
	wg.Go(func() {
		res = h.Publish(e, app.GroupVHOfficers)
	})
	wg.Go(func() {
		h.recordHeartbeat(ctx, e)
	})
	if r := wg.WaitAndRecover(); r != nil {
		log.Warn().Err(r.AsError()).Str("module", "hub").Str("conference", e.ConferenceID).Msg("heartbeat routing panicked")
	}
	return res
}

func (h *Hub) recordHeartbeat(ctx context.Context, e domain.HeartbeatReported) {
	if h.Heartbeats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.PersistTimeout)
	defer cancel()
	hb := core.Heartbeat{
		ConferenceID:  e.ConferenceID,
		ParticipantID: e.ParticipantID,
		Metrics:       e.Metrics,
		ReceivedAt:    h.Clock.Now(),
	}
	if err := h.Heartbeats.Record(ctx, hb); err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %v", domain.ErrPersistence, err)).
			Str("module", "hub").
			Str("conference", e.ConferenceID).
			Str("participant", e.ParticipantID).
			Msg("heartbeat not recorded")
	}
}
