package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
)

type CallState int

const (
	CallIdle CallState = iota
	CallSetup
	CallConnected
	CallError
	CallDisconnected
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "Idle"
	case CallSetup:
		return "Setup"
	case CallConnected:
		return "Connected"
	case CallError:
		return "Error"
	case CallDisconnected:
		return "Disconnected"
	}
	return fmt.Sprintf("CallState(%d)", int(s))
}

// CallSignal is a state report from the media call.
type CallSignal struct {
	State  CallState
	Reason string
}

var transientCallReasons = []string{
	"failed to gather ip addresses",
	"ice gathering",
}

func isTransientCallError(reason string) bool {
	r := strings.ToLower(reason)
	for _, t := range transientCallReasons {
		if strings.Contains(r, t) {
			return true
		}
	}
	return false
}

// CallLifecycle drives the media call through Idle, Setup, Connected, Error
// and Disconnected, owning the heartbeat and reconnect timers.
type CallLifecycle struct {
	st        *state
	cfg       Config
	media     CallMedia
	publisher Publisher
	errors    ErrorRouter
	clock     clockwork.Clock
	sched     *scheduler

	state      CallState
	errorCount int
	videoMuted bool
	heartbeat  timer
	reconnect  timer
}

func (c *CallLifecycle) State() CallState { return c.state }

// Start dials the call. Without media the lifecycle stays Idle.
func (c *CallLifecycle) Start() {
	if c.media == nil {
		return
	}
	c.dial()
}

func (c *CallLifecycle) dial() {
	for {
		c.state = CallSetup
		err := c.media.Dial()
		if err == nil || !c.fail(err.Error()) {
			return
		}
	}
}

func (c *CallLifecycle) OnSignal(sig CallSignal) {
	prev := c.state
	switch sig.State {
	case CallSetup:
		c.state = CallSetup
	case CallConnected:
		c.onConnected()
	case CallError:
		c.onError(sig.Reason)
	case CallDisconnected:
		c.onDisconnected()
	case CallIdle:
		c.stopTimers()
		c.state = CallIdle
	}
	log.Debug().
		Str("module", "session").
		Str("from", prev.String()).
		Str("to", c.state.String()).
		Str("reason", sig.Reason).
		Msg("call state")
}

func (c *CallLifecycle) onConnected() {
	c.state = CallConnected
	c.errorCount = 0
	c.reconnect.stop()
	c.heartbeat.stop()
	c.heartbeat = c.sched.after(c.cfg.HeartbeatInterval, timerHeartbeat)
	c.videoMuted = false
	if !ShouldShowVideo(c.st.videoInputs()) {
		c.setMuted(true)
	}
}

func (c *CallLifecycle) onError(reason string) {
	if c.fail(reason) {
		c.dial()
	}
}

// fail records a call error and reports whether a silent retry is due.
// Errors outside the retry budget go to the error router.
func (c *CallLifecycle) fail(reason string) bool {
	c.state = CallError
	c.errorCount++
	if isTransientCallError(reason) && c.errorCount <= c.cfg.MaxCallRetries {
		log.Warn().
			Err(fmt.Errorf("%w: %s", domain.ErrTransientSignaling, reason)).
			Str("module", "session").
			Int("attempt", c.errorCount).
			Msg("retrying call setup")
		return true
	}
	c.heartbeat.stop()
	c.errors.Fatal(fmt.Errorf("%w: call error: %s", domain.ErrFatalConnectivity, reason))
	return false
}

func (c *CallLifecycle) onDisconnected() {
	if c.state != CallConnected && c.state != CallError {
		c.state = CallDisconnected
		return
	}
	c.state = CallDisconnected
	c.heartbeat.stop()
	if c.st.conference != nil && c.st.conference.PastClosedThreshold(c.clock.Now(), c.cfg.ClosedThreshold) {
		log.Info().Str("module", "session").Str("conference", c.st.conferenceID).Msg("conference closed; not reconnecting call")
		return
	}
	if c.reconnect.active() {
		return
	}
	c.reconnect = c.sched.after(c.cfg.ReconnectDelay, timerReconnect)
}

// onTimer handles a timer firing that still matches its handle.
func (c *CallLifecycle) onTimer(ctx context.Context, kind timerKind, ticket uint64) {
	switch kind {
	case timerHeartbeat:
		if !c.heartbeat.matches(ticket) || c.state != CallConnected {
			return
		}
		c.sendHeartbeat(ctx)
		c.heartbeat = c.sched.after(c.cfg.HeartbeatInterval, timerHeartbeat)
	case timerReconnect:
		if !c.reconnect.matches(ticket) {
			return
		}
		c.reconnect = timer{}
		log.Info().Str("module", "session").Str("conference", c.st.conferenceID).Msg("reconnecting call")
		c.dial()
	}
}

func (c *CallLifecycle) sendHeartbeat(ctx context.Context) {
	ev := domain.HeartbeatReported{
		ConferenceID:  c.st.conferenceID,
		ParticipantID: c.st.participantID,
		Metrics:       c.media.Stats(),
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("heartbeat not sent")
	}
}

// Reconcile re-applies the show-video decision to the outgoing track.
func (c *CallLifecycle) Reconcile() {
	if c.state != CallConnected {
		return
	}
	c.setMuted(!ShouldShowVideo(c.st.videoInputs()))
}

func (c *CallLifecycle) setMuted(muted bool) {
	if c.videoMuted == muted {
		return
	}
	if err := c.media.SetVideoMuted(muted); err != nil {
		log.Warn().Err(err).Str("module", "session").Bool("muted", muted).Msg("toggle outgoing video")
		return
	}
	c.videoMuted = muted
}

func (c *CallLifecycle) VideoMuted() bool { return c.videoMuted }

func (c *CallLifecycle) stopTimers() {
	c.heartbeat.stop()
	c.reconnect.stop()
}
