package session

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Hearing/internal/domain"
)

func request(id, room string) domain.ConsultationRequested {
	return domain.ConsultationRequested{
		ConferenceID: "conf-1", InvitationID: id, RoomLabel: room, RequestedBy: "j1", RequestedFor: "p1",
	}
}

func response(id, room, subject, initiator string, answer domain.ConsultationAnswer) domain.ConsultationResponse {
	return domain.ConsultationResponse{
		ConferenceID: "conf-1", InvitationID: id, RoomLabel: room,
		ResponseSubject: subject, ResponseInitiator: initiator, Answer: answer,
	}
}

func (h *harness) respond(t *testing.T, room string, answer domain.ConsultationAnswer) error {
	t.Helper()
	reply := make(chan error, 1)
	h.s.dispatch(context.Background(), respondCmd{roomLabel: room, answer: answer, reply: reply})
	return <-reply
}

func TestConsultation_LinkedAcceptThenLocalAcceptResolves(t *testing.T) {
	h := newHarness(t, false)

	h.send(request("inv-1", "C1"))
	if len(h.notes.invites) != 1 {
		t.Fatalf("invites = %d", len(h.notes.invites))
	}
	if got := h.notes.invites[0].LinkedNames; len(got) != 1 || got[0] != "Ivy" {
		t.Fatalf("linked names = %v", got)
	}
	if got := h.notes.invites[0].RequestedBy; got != "Judge Judy" {
		t.Fatalf("requested by = %q", got)
	}

	h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerAccepted))
	if len(h.notes.outcomes) != 0 {
		t.Fatal("resolved before the local participant answered")
	}
	if id, ok := h.s.consult.Pending("C1"); !ok || id != "inv-1" {
		t.Fatal("invitation no longer active")
	}

	if err := h.respond(t, "C1", domain.AnswerAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(h.notes.outcomes) != 1 || h.notes.outcomes[0].Answer != domain.AnswerAccepted {
		t.Fatalf("outcomes = %+v", h.notes.outcomes)
	}
	if !h.notes.handles[0].closed {
		t.Fatal("invite affordance not released")
	}
	pub := h.pub.published()
	if len(pub) != 1 {
		t.Fatalf("published %d events", len(pub))
	}
	resp := pub[0].(domain.ConsultationResponse)
	if resp.ResponseSubject != "p1" || resp.ResponseInitiator != "p1" || resp.InvitationID != "inv-1" {
		t.Fatalf("published %+v", resp)
	}
}

func TestConsultation_LocalAcceptWaitsForLinked(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))

	if err := h.respond(t, "C1", domain.AnswerAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(h.notes.outcomes) != 0 {
		t.Fatal("resolved without linked acceptance")
	}
	last := h.notes.waiting[len(h.notes.waiting)-1]
	if len(last) != 1 || last[0] != "Ivy" {
		t.Fatalf("waiting on %v", last)
	}

	h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerAccepted))
	if len(h.notes.outcomes) != 1 || h.notes.outcomes[0].Answer != domain.AnswerAccepted {
		t.Fatalf("outcomes = %+v", h.notes.outcomes)
	}
}

func TestConsultation_SelfRejectResolvesRegardlessOfLinked(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerAccepted))
	h.send(response("inv-1", "C1", "p1", "j1", domain.AnswerRejected))

	if len(h.notes.outcomes) != 1 || h.notes.outcomes[0].Answer != domain.AnswerRejected {
		t.Fatalf("outcomes = %+v", h.notes.outcomes)
	}
	if _, ok := h.s.consult.Pending("C1"); ok {
		t.Fatal("invitation still active")
	}
}

func TestConsultation_LocalRejectPublishesAndResolves(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	if err := h.respond(t, "C1", domain.AnswerRejected); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(h.notes.outcomes) != 1 || h.notes.outcomes[0].Answer != domain.AnswerRejected {
		t.Fatalf("outcomes = %+v", h.notes.outcomes)
	}
	if len(h.pub.published()) != 1 {
		t.Fatal("rejection not published")
	}
}

func TestConsultation_PublishFailureResolvesFailed(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.pub.err = errUnavailable

	err := h.respond(t, "C1", domain.AnswerAccepted)
	if !errors.Is(err, domain.ErrTransientSignaling) {
		t.Fatalf("err = %v", err)
	}
	if len(h.notes.outcomes) != 1 || h.notes.outcomes[0].Answer != domain.AnswerFailed {
		t.Fatalf("outcomes = %+v", h.notes.outcomes)
	}
}

func TestConsultation_RespondWithoutInvitation(t *testing.T) {
	h := newHarness(t, false)
	if err := h.respond(t, "C1", domain.AnswerAccepted); !errors.Is(err, domain.ErrStaleEvent) {
		t.Fatalf("err = %v", err)
	}
	if len(h.pub.published()) != 0 {
		t.Fatal("published without an invitation")
	}
}

func TestConsultation_LinkedDeclineNotifies(t *testing.T) {
	tests := []struct {
		name        string
		status      domain.ParticipantStatus
		withInvite  bool
		wantHearing bool
	}{
		{"available with invitation", domain.ParticipantAvailable, true, false},
		{"in hearing", domain.ParticipantInHearing, false, true},
		{"available without invitation", domain.ParticipantAvailable, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			if tt.withInvite {
				h.send(request("inv-1", "C1"))
			}
			h.participant(t, "p1").Status = tt.status

			h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerRejected))

			if len(h.notes.declined) != 1 {
				t.Fatalf("declined notices = %d", len(h.notes.declined))
			}
			got := h.notes.declined[0]
			if got.IsInHearing != tt.wantHearing || got.ParticipantName != "Ivy" || got.RoomLabel != "C1" {
				t.Fatalf("notice = %+v", got)
			}
			if tt.withInvite {
				if !h.notes.handles[0].declinedByLinkage {
					t.Fatal("invite not marked declined by third party")
				}
				if _, ok := h.s.consult.Pending("C1"); !ok {
					t.Fatal("linked decline resolved the whole invitation")
				}
			}
		})
	}
}

func TestConsultation_LinkedDeclineThenAcceptCanStillResolve(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerNone))
	if err := h.respond(t, "C1", domain.AnswerAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(h.notes.outcomes) != 0 {
		t.Fatal("resolved while linked participant declined")
	}
	h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerAccepted))
	if len(h.notes.outcomes) != 1 {
		t.Fatal("not resolved after linked participant accepted")
	}
}

func TestConsultation_RelayedLinkedResponseIgnored(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.send(response("inv-1", "C1", "i1", "j1", domain.AnswerRejected))
	h.send(response("inv-1", "C1", "i1", "j1", domain.AnswerAccepted))
	if err := h.respond(t, "C1", domain.AnswerAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(h.notes.declined) != 0 || len(h.notes.outcomes) != 0 {
		t.Fatalf("relayed response applied: declined=%d outcomes=%d", len(h.notes.declined), len(h.notes.outcomes))
	}
}

func TestConsultation_LinkedTransferringIsQuiet(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerTransferring))
	if len(h.notes.declined)+len(h.notes.waiting)+len(h.notes.outcomes) != 0 {
		t.Fatal("transferring produced a notification")
	}
}

func TestConsultation_SelfTransferringClearsInvite(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.send(response("inv-1", "C1", "p1", "j1", domain.AnswerTransferring))
	if !h.notes.handles[0].closed {
		t.Fatal("invite not cleared")
	}
	if h.notes.outcomes[0].Answer != domain.AnswerTransferring {
		t.Fatalf("outcome = %s", h.notes.outcomes[0].Answer)
	}
}

func TestConsultation_StaleEventsAreNoops(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))

	h.send(response("inv-other", "C1", "p1", "p1", domain.AnswerRejected))
	if len(h.notes.outcomes) != 0 {
		t.Fatal("mismatched invitation id resolved the invitation")
	}

	h.send(response("inv-1", "C1", "p1", "p1", domain.AnswerRejected))
	h.send(response("inv-1", "C1", "i1", "i1", domain.AnswerRejected))
	h.send(request("inv-1", "C1"))
	if len(h.notes.outcomes) != 1 || len(h.notes.declined) != 0 || len(h.notes.invites) != 1 {
		t.Fatalf("resolved invitation reacted: outcomes=%d declined=%d invites=%d",
			len(h.notes.outcomes), len(h.notes.declined), len(h.notes.invites))
	}
}

func TestConsultation_MissingInvitationIDShortCircuits(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("", "C1"))
	h.send(response("", "C1", "i1", "i1", domain.AnswerRejected))
	if len(h.notes.invites) != 0 || len(h.notes.declined) != 0 {
		t.Fatal("event without invitation id mutated state")
	}
	if _, ok := h.s.consult.Pending("C1"); ok {
		t.Fatal("invitation created")
	}
}

func TestConsultation_UnknownSubjectIgnored(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.send(response("inv-1", "C1", "r1", "r1", domain.AnswerRejected))
	if len(h.notes.declined) != 0 || len(h.notes.outcomes) != 0 {
		t.Fatal("unrelated response applied")
	}
}

func TestConsultation_RequestIgnoredWhileInHearing(t *testing.T) {
	h := newHarness(t, false)
	h.participant(t, "p1").Status = domain.ParticipantInHearing
	h.send(request("inv-1", "C1"))
	if len(h.notes.invites) != 0 {
		t.Fatal("invite surfaced during hearing")
	}
}

func TestConsultation_NewInvitationSupersedesOld(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	h.send(request("inv-1", "C1"))
	if len(h.notes.invites) != 1 {
		t.Fatal("duplicate request surfaced twice")
	}
	h.send(request("inv-2", "C1"))
	if !h.notes.handles[0].closed {
		t.Fatal("superseded invite not released")
	}
	if id, _ := h.s.consult.Pending("C1"); id != "inv-2" {
		t.Fatalf("active invitation = %s", id)
	}
	h.send(response("inv-1", "C1", "p1", "p1", domain.AnswerRejected))
	if len(h.notes.outcomes) != 0 {
		t.Fatal("superseded invitation resolved")
	}
}

func TestConsultation_InviterHearsInviteeDecline(t *testing.T) {
	h := newHarness(t, false)
	reply := make(chan inviteResult, 1)
	h.s.dispatch(context.Background(), inviteCmd{roomLabel: "C2", participantID: "r1", reply: reply})
	res := <-reply
	if res.err != nil || res.invitationID == "" {
		t.Fatalf("invite = %+v", res)
	}
	req := h.pub.published()[0].(domain.ConsultationRequested)
	if req.RequestedBy != "p1" || req.RequestedFor != "r1" || req.InvitationID != res.invitationID {
		t.Fatalf("published %+v", req)
	}

	h.send(response(res.invitationID, "C2", "r1", "r1", domain.AnswerRejected))
	if len(h.notes.invitee) != 1 || h.notes.invitee[0].ParticipantName != "Rob" || h.notes.invitee[0].IsInHearing {
		t.Fatalf("invitee notices = %+v", h.notes.invitee)
	}
	h.send(response(res.invitationID, "C2", "r1", "r1", domain.AnswerRejected))
	if len(h.notes.invitee) != 1 {
		t.Fatal("answered invitation notified twice")
	}
}

func TestConsultation_InviteUnknownParticipant(t *testing.T) {
	h := newHarness(t, false)
	reply := make(chan inviteResult, 1)
	h.s.dispatch(context.Background(), inviteCmd{roomLabel: "C2", participantID: "ghost", reply: reply})
	if res := <-reply; !errors.Is(res.err, domain.ErrParticipantNotFound) {
		t.Fatalf("err = %v", res.err)
	}
}

func TestConsultation_AcceptEchoDoesNotRepeatWaitingNotice(t *testing.T) {
	h := newHarness(t, false)
	h.send(request("inv-1", "C1"))
	if err := h.respond(t, "C1", domain.AnswerAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(h.notes.waiting) != 1 {
		t.Fatalf("waiting notices = %d", len(h.notes.waiting))
	}
	h.send(response("inv-1", "C1", "p1", "p1", domain.AnswerAccepted))
	if len(h.notes.waiting) != 1 {
		t.Fatalf("waiting notices after echo = %d", len(h.notes.waiting))
	}
	if len(h.notes.outcomes) != 0 {
		t.Fatal("resolved without linked acceptance")
	}
}

func TestConsultation_ReinviteReplacesOutgoing(t *testing.T) {
	h := newHarness(t, false)
	var ids []string
	for range 3 {
		reply := make(chan inviteResult, 1)
		h.s.dispatch(context.Background(), inviteCmd{roomLabel: "C2", participantID: "r1", reply: reply})
		res := <-reply
		if res.err != nil {
			t.Fatalf("invite: %v", res.err)
		}
		ids = append(ids, res.invitationID)
	}
	if n := len(h.s.consult.outgoing); n != 1 {
		t.Fatalf("outgoing = %d", n)
	}
	h.send(response(ids[0], "C2", "r1", "r1", domain.AnswerRejected))
	if len(h.notes.invitee) != 0 {
		t.Fatal("superseded invite raised a decline")
	}
	h.send(response(ids[2], "C2", "r1", "r1", domain.AnswerRejected))
	if len(h.notes.invitee) != 1 {
		t.Fatalf("invitee notices = %d", len(h.notes.invitee))
	}

	reply := make(chan inviteResult, 1)
	h.s.dispatch(context.Background(), inviteCmd{roomLabel: "C3", participantID: "r1", reply: reply})
	<-reply
	h.s.consult.closeAll()
	if n := len(h.s.consult.outgoing); n != 0 {
		t.Fatalf("outgoing after close = %d", n)
	}
}
