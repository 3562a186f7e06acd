package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dkeye/Hearing/internal/domain"
)

type fakeFetcher struct {
	mu    sync.Mutex
	build func() *domain.Conference
	calls int
	err   error
}

func (f *fakeFetcher) GetConference(_ context.Context, id string) (*domain.Conference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.build(), nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) published() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

type fakeHandle struct {
	closed            bool
	declinedByLinkage bool
}

func (h *fakeHandle) Close()                    { h.closed = true }
func (h *fakeHandle) MarkDeclinedByThirdParty() { h.declinedByLinkage = true }

type fakeNotifier struct {
	invites  []ConsultationInvite
	handles  []*fakeHandle
	waiting  [][]string
	declined []DeclinedNotice
	invitee  []DeclinedNotice
	outcomes []ConsultationOutcome
}

func (n *fakeNotifier) ShowConsultationInvite(invite ConsultationInvite) InviteHandle {
	h := &fakeHandle{}
	n.invites = append(n.invites, invite)
	n.handles = append(n.handles, h)
	return h
}

func (n *fakeNotifier) WaitingOnLinkedParticipants(_ string, pending []string) {
	n.waiting = append(n.waiting, pending)
}

func (n *fakeNotifier) LinkedParticipantDeclined(notice DeclinedNotice) {
	n.declined = append(n.declined, notice)
}

func (n *fakeNotifier) InviteeDeclined(notice DeclinedNotice) {
	n.invitee = append(n.invitee, notice)
}

func (n *fakeNotifier) ConsultationResolved(outcome ConsultationOutcome) {
	n.outcomes = append(n.outcomes, outcome)
}

type fakeRouter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeRouter) Fatal(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *fakeRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

type fakeMedia struct {
	dials      int
	dialErr    error
	mutes      []bool
	disconnect int
}

func (m *fakeMedia) Dial() error {
	m.dials++
	return m.dialErr
}

func (m *fakeMedia) Disconnect() { m.disconnect++ }

func (m *fakeMedia) SetVideoMuted(muted bool) error {
	m.mutes = append(m.mutes, muted)
	return nil
}

func (m *fakeMedia) Stats() domain.HeartbeatMetrics {
	return domain.HeartbeatMetrics{OutgoingPacketsSent: 42, RoundTripTimeSeconds: 0.05}
}

var errUnavailable = errors.New("unavailable")

// buildConference: Pat (p1, local) is linked to interpreter Ivy (i1);
// Rob (r1) and endpoint e1 share ConsultationRoom1.
func buildConference() *domain.Conference {
	pat := &domain.Participant{
		ID: "p1", Username: "pat@court", DisplayName: "Pat", Role: domain.RoleIndividual,
		Status:             domain.ParticipantAvailable,
		LinkedParticipants: []domain.LinkedParticipant{{LinkedID: "i1", Type: domain.LinkInterpreter}},
	}
	ivy := &domain.Participant{
		ID: "i1", Username: "ivy@court", DisplayName: "Ivy", Role: domain.RoleIndividual,
		Status:             domain.ParticipantAvailable,
		LinkedParticipants: []domain.LinkedParticipant{{LinkedID: "p1", Type: domain.LinkInterpreter}},
	}
	judge := &domain.Participant{
		ID: "j1", Username: "judge@court", DisplayName: "Judge Judy", Role: domain.RoleJudge,
		Status: domain.ParticipantInHearing,
	}
	rob := &domain.Participant{
		ID: "r1", Username: "rob@court", DisplayName: "Rob", Role: domain.RoleRepresentative,
		Status: domain.ParticipantInConsultation,
		Room:   &domain.Room{Label: "ConsultationRoom1", Locked: true},
	}
	ep := &domain.Endpoint{
		ID: "e1", DisplayName: "Court 1", Status: domain.EndpointInConsultation,
		Room: &domain.Room{Label: "ConsultationRoom1", Locked: true},
	}
	return domain.NewConference("conf-1", domain.ConferenceInSession,
		[]*domain.Participant{pat, ivy, judge, rob}, []*domain.Endpoint{ep})
}

type harness struct {
	s      *Session
	fetch  *fakeFetcher
	pub    *fakePublisher
	notes  *fakeNotifier
	router *fakeRouter
	media  *fakeMedia
	clock  *clockwork.FakeClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconnectDelay = 10 * time.Second
	cfg.HeartbeatInterval = 5 * time.Second
	return cfg
}

func newHarness(t *testing.T, withMedia bool) *harness {
	t.Helper()
	h := &harness{
		fetch:  &fakeFetcher{build: buildConference},
		pub:    &fakePublisher{},
		notes:  &fakeNotifier{},
		router: &fakeRouter{},
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}
	deps := Deps{
		Conferences: h.fetch,
		Publisher:   h.pub,
		Notifier:    h.notes,
		Errors:      h.router,
		Clock:       h.clock,
	}
	if withMedia {
		h.media = &fakeMedia{}
		deps.Media = h.media
	}
	s, err := New(domain.Identity{Name: "pat@court", ParticipantID: "p1", ConferenceID: "conf-1", Role: domain.RoleIndividual}, testConfig(), deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	s.st.signalConnected = true
	h.fetch.calls = 0
	h.s = s
	t.Cleanup(s.shutdown)
	return h
}

func (h *harness) send(ev domain.Event) {
	h.s.dispatch(context.Background(), eventMsg{ev: ev})
}

func (h *harness) signal(state CallState, reason string) {
	h.s.dispatch(context.Background(), callMsg{sig: CallSignal{State: state, Reason: reason}})
}

// fireNext waits for the next timer firing to reach the inbox and handles it.
func (h *harness) fireNext(t *testing.T) {
	t.Helper()
	select {
	case m := <-h.s.inbox:
		h.s.dispatch(context.Background(), m)
	case <-time.After(time.Second):
		t.Fatal("no timer fired")
	}
}

func (h *harness) participant(t *testing.T, id string) *domain.Participant {
	t.Helper()
	p, ok := h.s.Conference().Participant(id)
	if !ok {
		t.Fatalf("participant %s missing", id)
	}
	return p
}
