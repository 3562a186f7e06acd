package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Hearing/internal/domain"
)

func TestSignal_DisconnectBelowThresholdReloads(t *testing.T) {
	h := newHarness(t, false)
	for attempt := 1; attempt <= 6; attempt++ {
		h.send(domain.ServiceDisconnected{AttemptNumber: attempt})
		if got := h.fetch.count(); got != attempt {
			t.Fatalf("attempt %d: reloads = %d", attempt, got)
		}
	}
	if h.router.count() != 0 {
		t.Fatal("fatal raised below threshold")
	}
}

func TestSignal_DisconnectAtThresholdIsFatal(t *testing.T) {
	for _, attempt := range []int{7, 8, 20} {
		h := newHarness(t, false)
		h.send(domain.ServiceDisconnected{AttemptNumber: attempt})
		if got := h.fetch.count(); got != 0 {
			t.Fatalf("attempt %d: reloads = %d, want 0", attempt, got)
		}
		if h.router.count() != 1 || !errors.Is(h.router.errs[0], domain.ErrFatalConnectivity) {
			t.Fatalf("attempt %d: fatal errors = %v", attempt, h.router.errs)
		}
	}
}

func TestSignal_ReconnectReloadsExactlyOnce(t *testing.T) {
	h := newHarness(t, false)
	h.send(domain.ServiceDisconnected{AttemptNumber: 1})
	h.send(domain.ServiceReconnected{})
	if got := h.fetch.count(); got != 2 {
		t.Fatalf("reloads = %d, want one per disconnect and one per reconnect", got)
	}
	if !h.s.st.signalConnected {
		t.Fatal("signal flag not restored")
	}
}

func TestSignal_ReloadOverwritesLocalDeltas(t *testing.T) {
	h := newHarness(t, false)
	h.send(domain.ParticipantStatusChanged{ParticipantID: "r1", ConferenceID: "conf-1", Status: domain.ParticipantDisconnected})
	if h.participant(t, "r1").Room != nil {
		t.Fatal("delta not applied")
	}
	h.send(domain.ServiceReconnected{})
	rob := h.participant(t, "r1")
	if rob.Status != domain.ParticipantInConsultation || rob.Room == nil {
		t.Fatalf("reload did not restore authoritative state: %s/%v", rob.Status, rob.Room)
	}
}

func TestSignal_FailedReloadKeepsState(t *testing.T) {
	h := newHarness(t, false)
	before := h.s.Conference()
	h.fetch.err = errUnavailable
	h.send(domain.ServiceReconnected{})
	if h.s.Conference() != before {
		t.Fatal("conference replaced by a failed reload")
	}
}

func TestSignal_DisconnectMutesVideo(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")
	h.send(domain.ServiceDisconnected{AttemptNumber: 1})
	if !h.s.call.VideoMuted() {
		t.Fatal("video shown without signalling")
	}
	h.send(domain.ServiceReconnected{})
	if h.s.call.VideoMuted() {
		t.Fatal("video not restored after reconnect")
	}
}

func TestNew_RequiresIdentityAndCollaborators(t *testing.T) {
	deps := Deps{Conferences: &fakeFetcher{build: buildConference}, Publisher: &fakePublisher{}, Notifier: &fakeNotifier{}}
	if _, err := New(domain.Identity{Name: "x", ParticipantID: "p1"}, DefaultConfig(), deps); err == nil {
		t.Fatal("expected error without conference")
	}
	if _, err := New(domain.Identity{Name: "x", ParticipantID: "p1", ConferenceID: "c"}, DefaultConfig(), Deps{}); err == nil {
		t.Fatal("expected error without collaborators")
	}
}

func TestRun_ProcessesInboxUntilTeardown(t *testing.T) {
	fetch := &fakeFetcher{build: buildConference}
	notes := &fakeNotifier{}
	pub := &fakePublisher{}
	s, err := New(domain.Identity{Name: "pat@court", ParticipantID: "p1", ConferenceID: "conf-1"}, DefaultConfig(), Deps{
		Conferences: fetch,
		Publisher:   pub,
		Notifier:    notes,
		Errors:      &fakeRouter{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Post(request("inv-1", "C1"))
	s.Post(response("inv-1", "C1", "i1", "i1", domain.AnswerAccepted))
	if err := s.RespondToConsultation(ctx, "C1", domain.AnswerAccepted); err != nil {
		t.Fatalf("respond: %v", err)
	}

	s.Teardown()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notes.outcomes) != 1 || notes.outcomes[0].Answer != domain.AnswerAccepted {
		t.Fatalf("outcomes = %+v", notes.outcomes)
	}
	if fetch.count() != 1 {
		t.Fatalf("initial loads = %d", fetch.count())
	}
	if _, err := s.InviteToConsultation(ctx, "C2", "r1"); err == nil {
		t.Fatal("command accepted after teardown")
	}
}

func TestRun_ReturnsFatalError(t *testing.T) {
	router := &fakeRouter{}
	s, err := New(domain.Identity{Name: "pat@court", ParticipantID: "p1", ConferenceID: "conf-1"}, DefaultConfig(), Deps{
		Conferences: &fakeFetcher{build: buildConference},
		Publisher:   &fakePublisher{},
		Notifier:    &fakeNotifier{},
		Errors:      router,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Post(domain.ServiceDisconnected{AttemptNumber: 7})
	if err := <-done; !errors.Is(err, domain.ErrFatalConnectivity) {
		t.Fatalf("Run = %v", err)
	}
	if router.count() != 1 {
		t.Fatalf("fatal routed %d times", router.count())
	}
}

func TestRun_InitialLoadFailure(t *testing.T) {
	s, err := New(domain.Identity{Name: "pat@court", ParticipantID: "p1", ConferenceID: "conf-1"}, DefaultConfig(), Deps{
		Conferences: &fakeFetcher{build: buildConference, err: domain.ErrConferenceNotFound},
		Publisher:   &fakePublisher{},
		Notifier:    &fakeNotifier{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, domain.ErrTransientSignaling) {
		t.Fatalf("Run = %v", err)
	}
}

func TestDispatch_RecoversPanics(t *testing.T) {
	h := newHarness(t, false)
	h.s.st.conference = nil
	h.s.dispatch(context.Background(), callMsg{sig: CallSignal{State: CallConnected}})
}
