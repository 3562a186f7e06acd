// Package session runs the client side of a hearing: presence, the
// consultation protocol and the call lifecycle, driven by one inbox that is
// processed one message at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
)

type Config struct {
	ReconnectDelay    time.Duration
	MaxSignalAttempts int
	MaxCallRetries    int
	HeartbeatInterval time.Duration
	ClosedThreshold   time.Duration
	InboxSize         int
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    10 * time.Second,
		MaxSignalAttempts: 7,
		MaxCallRetries:    3,
		HeartbeatInterval: 5 * time.Second,
		ClosedThreshold:   30 * time.Minute,
		InboxSize:         64,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxSignalAttempts <= 0 {
		c.MaxSignalAttempts = def.MaxSignalAttempts
	}
	if c.MaxCallRetries < 0 {
		c.MaxCallRetries = 0
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.ClosedThreshold <= 0 {
		c.ClosedThreshold = def.ClosedThreshold
	}
	if c.InboxSize <= 0 {
		c.InboxSize = def.InboxSize
	}
	return c
}

// Deps are the session's collaborators. Media and Clock are optional.
type Deps struct {
	Conferences ConferenceFetcher
	Publisher   Publisher
	Notifier    Notifier
	Errors      ErrorRouter
	Media       CallMedia
	Clock       clockwork.Clock
}

type message interface{ isMessage() }

type eventMsg struct{ ev domain.Event }

type callMsg struct{ sig CallSignal }

type timerFired struct {
	kind   timerKind
	ticket uint64
}

type respondCmd struct {
	roomLabel string
	answer    domain.ConsultationAnswer
	reply     chan error
}

type inviteResult struct {
	invitationID string
	err          error
}

type inviteCmd struct {
	roomLabel     string
	participantID string
	reply         chan inviteResult
}

func (eventMsg) isMessage()   {}
func (callMsg) isMessage()    {}
func (timerFired) isMessage() {}
func (respondCmd) isMessage() {}
func (inviteCmd) isMessage()  {}

// fatalLatch forwards the first fatal error and remembers it.
type fatalLatch struct {
	router ErrorRouter
	err    error
}

func (f *fatalLatch) Fatal(err error) {
	if f.err != nil {
		return
	}
	f.err = err
	log.Error().Err(err).Str("module", "session").Msg("session unrecoverable")
	if f.router != nil {
		f.router.Fatal(err)
	}
}

type Session struct {
	cfg         Config
	conferences ConferenceFetcher
	clock       clockwork.Clock

	st       *state
	presence *StatusReconciler
	consult  *ConsultationResolver
	call     *CallLifecycle
	latch    *fatalLatch

	inbox     chan message
	done      chan struct{}
	closeOnce sync.Once
}

func New(identity domain.Identity, cfg Config, deps Deps) (*Session, error) {
	if identity.ConferenceID == "" || identity.ParticipantID == "" {
		return nil, fmt.Errorf("session needs a conference and participant, got %q/%q", identity.ConferenceID, identity.ParticipantID)
	}
	if deps.Conferences == nil || deps.Publisher == nil || deps.Notifier == nil {
		return nil, errors.New("session needs a conference fetcher, publisher and notifier")
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:         cfg,
		conferences: deps.Conferences,
		clock:       clock,
		st: &state{
			conferenceID:  identity.ConferenceID,
			participantID: identity.ParticipantID,
		},
		latch: &fatalLatch{router: deps.Errors},
		inbox: make(chan message, cfg.InboxSize),
		done:  make(chan struct{}),
	}
	sched := &scheduler{clock: clock, post: s.post}
	s.presence = &StatusReconciler{st: s.st, clock: clock}
	s.consult = newConsultationResolver(s.st, deps.Notifier, deps.Publisher)
	s.call = &CallLifecycle{
		st:        s.st,
		cfg:       cfg,
		media:     deps.Media,
		publisher: deps.Publisher,
		errors:    s.latch,
		clock:     clock,
		sched:     sched,
	}
	return s, nil
}

func (s *Session) post(m message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

// Post queues an inbound event. It reports false once the session is torn down.
func (s *Session) Post(ev domain.Event) bool {
	return s.post(eventMsg{ev: ev})
}

// CallSignal queues a state report from the media call.
func (s *Session) CallSignal(sig CallSignal) bool {
	return s.post(callMsg{sig: sig})
}

// RespondToConsultation answers the active invitation for roomLabel.
func (s *Session) RespondToConsultation(ctx context.Context, roomLabel string, answer domain.ConsultationAnswer) error {
	reply := make(chan error, 1)
	if !s.post(respondCmd{roomLabel: roomLabel, answer: answer, reply: reply}) {
		return errors.New("session closed")
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("session closed")
	}
}

// InviteToConsultation invites participantID into roomLabel and returns the
// invitation id.
func (s *Session) InviteToConsultation(ctx context.Context, roomLabel, participantID string) (string, error) {
	reply := make(chan inviteResult, 1)
	if !s.post(inviteCmd{roomLabel: roomLabel, participantID: participantID, reply: reply}) {
		return "", errors.New("session closed")
	}
	select {
	case res := <-reply:
		return res.invitationID, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", errors.New("session closed")
	}
}

// Run loads the conference, starts the call and processes the inbox until
// ctx ends, Teardown is called, or the session hits a fatal error.
// The signalling channel is expected to be connected when Run starts.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	if err := s.reload(ctx); err != nil {
		return fmt.Errorf("initial conference load: %w", err)
	}
	s.st.signalConnected = true
	s.call.Start()

	for {
		if err := s.latch.err; err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case m := <-s.inbox:
			s.dispatch(ctx, m)
		}
	}
}

// Teardown stops the session. Pending timers are cancelled by the loop on
// its way out; firings after this point are discarded.
func (s *Session) Teardown() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) shutdown() {
	s.Teardown()
	s.call.stopTimers()
	s.consult.closeAll()
	if s.call.media != nil {
		s.call.media.Disconnect()
	}
	log.Info().Str("module", "session").Str("conference", s.st.conferenceID).Msg("session closed")
}

func (s *Session) dispatch(ctx context.Context, m message) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("module", "session").Interface("panic", r).Msg("handler panicked")
		}
	}()

	switch m := m.(type) {
	case eventMsg:
		s.handleEvent(ctx, m.ev)
	case callMsg:
		s.call.OnSignal(m.sig)
	case timerFired:
		s.call.onTimer(ctx, m.kind, m.ticket)
	case respondCmd:
		err := s.consult.Respond(ctx, m.roomLabel, m.answer)
		s.logHandlerError("respond", err)
		m.reply <- err
	case inviteCmd:
		id, err := s.consult.Invite(ctx, m.roomLabel, m.participantID)
		s.logHandlerError("invite", err)
		m.reply <- inviteResult{invitationID: id, err: err}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev domain.Event) {
	if err := domain.Validate(ev); err != nil {
		s.logHandlerError(string(ev.Type()), err)
		return
	}

	var err error
	switch e := ev.(type) {
	case domain.ServiceDisconnected:
		s.onSignalDisconnected(ctx, e.AttemptNumber)
	case domain.ServiceReconnected:
		s.onSignalReconnected(ctx)
	case domain.ConsultationRequested:
		err = s.consult.OnRequested(e)
	case domain.ConsultationResponse:
		err = s.consult.OnResponse(e)
	case domain.HeartbeatReported:
		// officer telemetry, nothing to apply locally
	case domain.ConferenceEvent:
		if err = s.presence.Apply(e); err == nil {
			s.call.Reconcile()
		}
	}
	s.logHandlerError(string(ev.Type()), err)
}

func (s *Session) onSignalDisconnected(ctx context.Context, attempt int) {
	s.st.signalConnected = false
	s.call.Reconcile()
	if attempt >= s.cfg.MaxSignalAttempts {
		s.latch.Fatal(fmt.Errorf("%w: signalling lost after %d attempts", domain.ErrFatalConnectivity, attempt))
		return
	}
	if err := s.reload(ctx); err != nil {
		s.logHandlerError("reload", err)
	}
}

func (s *Session) onSignalReconnected(ctx context.Context) {
	s.st.signalConnected = true
	if err := s.reload(ctx); err != nil {
		s.logHandlerError("reload", err)
	}
	s.call.Reconcile()
}

// reload replaces the local conference with the authoritative copy.
func (s *Session) reload(ctx context.Context) error {
	conf, err := s.conferences.GetConference(ctx, s.st.conferenceID)
	if err != nil {
		return fmt.Errorf("%w: reload %s: %v", domain.ErrTransientSignaling, s.st.conferenceID, err)
	}
	s.st.conference = conf
	log.Debug().Str("module", "session").Str("conference", conf.ID).Str("status", string(conf.Status)).Msg("conference reloaded")
	return nil
}

func (s *Session) logHandlerError(handler string, err error) {
	if err == nil {
		return
	}
	switch domain.Classify(err) {
	case domain.ClassStale:
		log.Debug().Err(err).Str("module", "session").Str("handler", handler).Msg("dropped stale event")
	default:
		log.Warn().Err(err).Str("module", "session").Str("handler", handler).Msg("handler failed")
	}
}

// Conference returns the locally tracked conference. Only safe to call from
// the goroutine running the session, or after Run has returned.
func (s *Session) Conference() *domain.Conference { return s.st.conference }

// CallState reports the call lifecycle state, under the same rule as Conference.
func (s *Session) CallState() CallState { return s.call.State() }
