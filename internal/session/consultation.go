package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
)

type linkState int

const (
	linkPending linkState = iota
	linkAccepted
	linkDeclined
)

type invitation struct {
	id           string
	roomLabel    string
	requestedBy  string
	linked       map[string]linkState
	linkedOrder  []string
	selfAccepted bool
	handle       InviteHandle
}

func (inv *invitation) consensus() bool {
	if !inv.selfAccepted {
		return false
	}
	for _, s := range inv.linked {
		if s != linkAccepted {
			return false
		}
	}
	return true
}

type outgoingInvite struct {
	roomLabel string
	invitee   string
}

// ConsultationResolver runs the consultation consensus protocol for the
// local participant: at most one active invitation per room label, each
// resolved once, with late events for resolved invitations ignored.
type ConsultationResolver struct {
	st        *state
	notifier  Notifier
	publisher Publisher

	active   map[string]*invitation
	resolved map[string]struct{}
	outgoing map[string]outgoingInvite
}

func newConsultationResolver(st *state, notifier Notifier, publisher Publisher) *ConsultationResolver {
	return &ConsultationResolver{
		st:        st,
		notifier:  notifier,
		publisher: publisher,
		active:    make(map[string]*invitation),
		resolved:  make(map[string]struct{}),
		outgoing:  make(map[string]outgoingInvite),
	}
}

// Pending reports the invitation id active for roomLabel.
func (c *ConsultationResolver) Pending(roomLabel string) (string, bool) {
	inv, ok := c.active[roomLabel]
	if !ok {
		return "", false
	}
	return inv.id, true
}

func (c *ConsultationResolver) checkEvent(conferenceID, invitationID string) error {
	if invitationID == "" {
		return fmt.Errorf("%w: missing invitation id", domain.ErrMalformedEvent)
	}
	if c.st.conference == nil || conferenceID != c.st.conference.ID {
		return fmt.Errorf("%w: conference %s", domain.ErrStaleEvent, conferenceID)
	}
	if _, done := c.resolved[invitationID]; done {
		return fmt.Errorf("%w: invitation %s already resolved", domain.ErrStaleEvent, invitationID)
	}
	return nil
}

// OnRequested opens an invitation addressed to the local participant.
func (c *ConsultationResolver) OnRequested(e domain.ConsultationRequested) error {
	if err := c.checkEvent(e.ConferenceID, e.InvitationID); err != nil {
		return err
	}
	if e.RequestedFor != c.st.participantID {
		return fmt.Errorf("%w: invitation for %s", domain.ErrStaleEvent, e.RequestedFor)
	}
	self, ok := c.st.self()
	if !ok {
		return fmt.Errorf("%w: local participant unknown", domain.ErrStaleEvent)
	}
	if self.Status == domain.ParticipantInHearing {
		log.Debug().Str("module", "session").Str("invitation", e.InvitationID).Msg("ignoring consultation request while in hearing")
		return nil
	}

	if prev, ok := c.active[e.RoomLabel]; ok {
		if prev.id == e.InvitationID {
			return nil
		}
		c.release(prev)
	}

	inv := &invitation{
		id:          e.InvitationID,
		roomLabel:   e.RoomLabel,
		requestedBy: e.RequestedBy,
		linked:      make(map[string]linkState),
	}
	names := make([]string, 0, len(self.LinkedParticipants))
	for _, lp := range c.st.conference.LinkedParticipantsOf(self) {
		inv.linked[lp.ID] = linkPending
		inv.linkedOrder = append(inv.linkedOrder, lp.ID)
		names = append(names, lp.Name())
	}
	requester := e.RequestedBy
	if p, ok := c.st.conference.Participant(e.RequestedBy); ok {
		requester = p.Name()
	}
	inv.handle = c.notifier.ShowConsultationInvite(ConsultationInvite{
		ConferenceID: e.ConferenceID,
		InvitationID: e.InvitationID,
		RoomLabel:    e.RoomLabel,
		RequestedBy:  requester,
		LinkedNames:  names,
	})
	c.active[e.RoomLabel] = inv

	log.Info().
		Str("module", "session").
		Str("invitation", e.InvitationID).
		Str("room", e.RoomLabel).
		Int("linked", len(inv.linked)).
		Msg("consultation invitation opened")
	return nil
}

// OnResponse folds a consultation response into the matching invitation.
func (c *ConsultationResolver) OnResponse(e domain.ConsultationResponse) error {
	if err := c.checkEvent(e.ConferenceID, e.InvitationID); err != nil {
		return err
	}
	if out, ok := c.outgoing[e.InvitationID]; ok {
		return c.onInviteeResponse(e, out)
	}

	inv := c.active[e.RoomLabel]
	if inv != nil && inv.id != e.InvitationID {
		return fmt.Errorf("%w: invitation %s is not active for %s", domain.ErrStaleEvent, e.InvitationID, e.RoomLabel)
	}

	if e.ResponseSubject == c.st.participantID {
		return c.onSelfResponse(e, inv)
	}

	self, ok := c.st.self()
	if !ok || !self.IsLinkedTo(e.ResponseSubject) {
		return fmt.Errorf("%w: response subject %s", domain.ErrStaleEvent, e.ResponseSubject)
	}
	if e.ResponseInitiator != e.ResponseSubject {
		return fmt.Errorf("%w: response for %s relayed by %s", domain.ErrStaleEvent, e.ResponseSubject, e.ResponseInitiator)
	}
	return c.onLinkedResponse(e, self, inv)
}

func (c *ConsultationResolver) onSelfResponse(e domain.ConsultationResponse, inv *invitation) error {
	if inv == nil {
		return fmt.Errorf("%w: no invitation for %s", domain.ErrStaleEvent, e.RoomLabel)
	}
	switch e.Answer {
	case domain.AnswerRejected, domain.AnswerTransferring, domain.AnswerFailed:
		c.resolve(inv, e.Answer)
	case domain.AnswerAccepted:
		c.markSelfAccepted(inv)
	}
	return nil
}

func (c *ConsultationResolver) onLinkedResponse(e domain.ConsultationResponse, self *domain.Participant, inv *invitation) error {
	name := e.ResponseSubject
	if lp, ok := c.st.conference.Participant(e.ResponseSubject); ok {
		name = lp.Name()
	}

	switch {
	case e.Answer == domain.AnswerTransferring:
		return nil
	case e.Answer == domain.AnswerAccepted:
		if inv == nil {
			return fmt.Errorf("%w: no invitation for %s", domain.ErrStaleEvent, e.RoomLabel)
		}
		inv.linked[e.ResponseSubject] = linkAccepted
		if inv.consensus() {
			c.resolve(inv, domain.AnswerAccepted)
			return nil
		}
		c.notifier.WaitingOnLinkedParticipants(inv.roomLabel, c.pendingNames(inv))
	case e.Answer.Declined():
		c.notifier.LinkedParticipantDeclined(DeclinedNotice{
			RoomLabel:       e.RoomLabel,
			ParticipantName: name,
			IsInHearing:     self.Status == domain.ParticipantInHearing,
		})
		if inv != nil {
			inv.linked[e.ResponseSubject] = linkDeclined
			if inv.handle != nil {
				inv.handle.MarkDeclinedByThirdParty()
			}
		}
	}
	return nil
}

func (c *ConsultationResolver) onInviteeResponse(e domain.ConsultationResponse, out outgoingInvite) error {
	if e.ResponseInitiator != e.ResponseSubject {
		return fmt.Errorf("%w: response for %s relayed by %s", domain.ErrStaleEvent, e.ResponseSubject, e.ResponseInitiator)
	}
	if e.Answer == domain.AnswerRejected || e.Answer == domain.AnswerFailed {
		name := e.ResponseSubject
		if p, ok := c.st.conference.Participant(e.ResponseSubject); ok {
			name = p.Name()
		}
		c.notifier.InviteeDeclined(DeclinedNotice{
			RoomLabel:       out.roomLabel,
			ParticipantName: name,
			IsInHearing:     c.st.selfStatus() == domain.ParticipantInHearing,
		})
	}
	if e.ResponseSubject == out.invitee && e.Answer != domain.AnswerNone {
		delete(c.outgoing, e.InvitationID)
		c.resolved[e.InvitationID] = struct{}{}
	}
	return nil
}

func (c *ConsultationResolver) markSelfAccepted(inv *invitation) {
	if inv.selfAccepted {
		return
	}
	inv.selfAccepted = true
	if inv.consensus() {
		c.resolve(inv, domain.AnswerAccepted)
		return
	}
	c.notifier.WaitingOnLinkedParticipants(inv.roomLabel, c.pendingNames(inv))
}

func (c *ConsultationResolver) pendingNames(inv *invitation) []string {
	var names []string
	for _, id := range inv.linkedOrder {
		if inv.linked[id] == linkAccepted {
			continue
		}
		name := id
		if p, ok := c.st.conference.Participant(id); ok {
			name = p.Name()
		}
		names = append(names, name)
	}
	return names
}

// Respond publishes the local participant's answer to the active invitation
// for roomLabel. A failed publish resolves the invitation as Failed.
func (c *ConsultationResolver) Respond(ctx context.Context, roomLabel string, answer domain.ConsultationAnswer) error {
	inv, ok := c.active[roomLabel]
	if !ok {
		return fmt.Errorf("%w: no invitation for %s", domain.ErrStaleEvent, roomLabel)
	}
	if answer != domain.AnswerAccepted && answer != domain.AnswerRejected {
		return fmt.Errorf("%w: cannot answer %s", domain.ErrMalformedEvent, answer)
	}
	err := c.publisher.Publish(ctx, domain.ConsultationResponse{
		ConferenceID:      c.st.conference.ID,
		InvitationID:      inv.id,
		RoomLabel:         roomLabel,
		ResponseSubject:   c.st.participantID,
		Answer:            answer,
		ResponseInitiator: c.st.participantID,
	})
	if err != nil {
		c.resolve(inv, domain.AnswerFailed)
		return fmt.Errorf("%w: publish consultation response: %v", domain.ErrTransientSignaling, err)
	}
	if answer == domain.AnswerRejected {
		c.resolve(inv, domain.AnswerRejected)
		return nil
	}
	c.markSelfAccepted(inv)
	return nil
}

// Invite asks participantID to join roomLabel and tracks the answer.
func (c *ConsultationResolver) Invite(ctx context.Context, roomLabel, participantID string) (string, error) {
	if c.st.conference == nil {
		return "", fmt.Errorf("%w: conference not loaded", domain.ErrStaleEvent)
	}
	if _, ok := c.st.conference.Participant(participantID); !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, participantID)
	}
	id := uuid.NewString()
	err := c.publisher.Publish(ctx, domain.ConsultationRequested{
		ConferenceID: c.st.conference.ID,
		InvitationID: id,
		RoomLabel:    roomLabel,
		RequestedBy:  c.st.participantID,
		RequestedFor: participantID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: publish consultation request: %v", domain.ErrTransientSignaling, err)
	}
	for prev, out := range c.outgoing {
		if out.roomLabel == roomLabel {
			delete(c.outgoing, prev)
			c.resolved[prev] = struct{}{}
		}
	}
	c.outgoing[id] = outgoingInvite{roomLabel: roomLabel, invitee: participantID}
	return id, nil
}

func (c *ConsultationResolver) resolve(inv *invitation, answer domain.ConsultationAnswer) {
	c.release(inv)
	c.notifier.ConsultationResolved(ConsultationOutcome{
		RoomLabel:    inv.roomLabel,
		InvitationID: inv.id,
		Answer:       answer,
	})
	log.Info().
		Str("module", "session").
		Str("invitation", inv.id).
		Str("room", inv.roomLabel).
		Str("answer", string(answer)).
		Msg("consultation resolved")
}

func (c *ConsultationResolver) release(inv *invitation) {
	if cur, ok := c.active[inv.roomLabel]; ok && cur == inv {
		delete(c.active, inv.roomLabel)
	}
	c.resolved[inv.id] = struct{}{}
	if inv.handle != nil {
		inv.handle.Close()
	}
}

// closeAll releases every open invitation without resolving it.
func (c *ConsultationResolver) closeAll() {
	for _, inv := range c.active {
		if inv.handle != nil {
			inv.handle.Close()
		}
	}
	clear(c.active)
	clear(c.outgoing)
}
