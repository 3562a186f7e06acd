package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Hearing/internal/domain"
)

func TestCall_ConnectedStartsHeartbeatAndKeepsVideoWhenShown(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	if h.media.dials != 1 || h.s.CallState() != CallSetup {
		t.Fatalf("dials=%d state=%s", h.media.dials, h.s.CallState())
	}

	h.signal(CallConnected, "")
	if h.s.CallState() != CallConnected {
		t.Fatalf("state = %s", h.s.CallState())
	}
	if len(h.media.mutes) != 0 {
		t.Fatalf("mutes = %v, video is shown in session", h.media.mutes)
	}

	h.clock.Advance(5 * time.Second)
	h.fireNext(t)
	pub := h.pub.published()
	if len(pub) != 1 {
		t.Fatalf("published %d heartbeats", len(pub))
	}
	hb := pub[0].(domain.HeartbeatReported)
	if hb.ParticipantID != "p1" || hb.ConferenceID != "conf-1" || hb.Metrics.OutgoingPacketsSent != 42 {
		t.Fatalf("heartbeat = %+v", hb)
	}

	h.clock.Advance(5 * time.Second)
	h.fireNext(t)
	if len(h.pub.published()) != 2 {
		t.Fatal("heartbeat not re-armed")
	}
}

func TestCall_MutesUntilVideoShouldShow(t *testing.T) {
	h := newHarness(t, true)
	h.s.Conference().Status = domain.ConferencePaused
	h.s.call.Start()
	h.signal(CallConnected, "")
	if len(h.media.mutes) != 1 || !h.media.mutes[0] {
		t.Fatalf("mutes = %v, want [true]", h.media.mutes)
	}

	h.send(domain.ConferenceStatusChanged{ConferenceID: "conf-1", Status: domain.ConferenceInSession})
	if len(h.media.mutes) != 2 || h.media.mutes[1] {
		t.Fatalf("mutes = %v, want unmute after session resumed", h.media.mutes)
	}
	if h.s.call.VideoMuted() {
		t.Fatal("video still muted")
	}
}

func TestCall_TransientErrorRetriesSilently(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")

	for i := 0; i < 3; i++ {
		h.signal(CallError, "Failed to gather IP addresses")
	}
	if h.router.count() != 0 {
		t.Fatal("transient error surfaced within budget")
	}
	if h.media.dials != 4 {
		t.Fatalf("dials = %d, want 4", h.media.dials)
	}

	h.signal(CallError, "failed to gather ip addresses")
	if h.router.count() != 1 {
		t.Fatal("error past budget not surfaced")
	}
	if !errors.Is(h.router.errs[0], domain.ErrFatalConnectivity) {
		t.Fatalf("err = %v", h.router.errs[0])
	}
}

func TestCall_ConnectResetsErrorBudget(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	for i := 0; i < 3; i++ {
		h.signal(CallError, "ICE gathering timed out")
	}
	h.signal(CallConnected, "")
	h.signal(CallError, "ICE gathering timed out")
	if h.router.count() != 0 {
		t.Fatal("budget was not reset by a successful connect")
	}
}

func TestCall_OtherErrorsAreFatal(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")
	h.signal(CallError, "dtls handshake failed")
	if h.router.count() != 1 {
		t.Fatal("fatal call error not surfaced")
	}
}

func TestCall_DialFailureWithinBudgetRedials(t *testing.T) {
	h := newHarness(t, true)
	h.media.dialErr = errors.New("failed to gather IP addresses")
	h.s.call.Start()
	if h.media.dials != 4 {
		t.Fatalf("dials = %d, want initial plus three retries", h.media.dials)
	}
	if h.router.count() != 1 {
		t.Fatalf("fatal count = %d", h.router.count())
	}
}

func TestCall_DisconnectSchedulesSingleReconnect(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")
	h.signal(CallDisconnected, "")

	if h.s.call.heartbeat.active() {
		t.Fatal("heartbeat still running after disconnect")
	}
	if !h.s.call.reconnect.active() {
		t.Fatal("no reconnect scheduled")
	}
	first := h.s.call.reconnect.ticket
	h.signal(CallDisconnected, "")
	if h.s.call.reconnect.ticket != first {
		t.Fatal("second reconnect scheduled")
	}

	h.clock.Advance(9 * time.Second)
	if h.media.dials != 1 {
		t.Fatal("reconnected before the delay")
	}
	h.clock.Advance(time.Second)
	h.fireNext(t)
	if h.media.dials != 2 || h.s.CallState() != CallSetup {
		t.Fatalf("dials=%d state=%s", h.media.dials, h.s.CallState())
	}
}

func TestCall_NoReconnectPastClosedThreshold(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")
	h.s.Conference().Close(h.clock.Now().Add(-time.Hour))

	h.signal(CallDisconnected, "")
	if h.s.call.reconnect.active() {
		t.Fatal("reconnect scheduled for a long-closed conference")
	}
}

func TestCall_ReconnectWithinClosedThreshold(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")
	h.s.Conference().Close(h.clock.Now().Add(-time.Minute))

	h.signal(CallDisconnected, "")
	if !h.s.call.reconnect.active() {
		t.Fatal("reconnect not scheduled for a recently closed conference")
	}
}

func TestCall_CancelledTimerFiringIsIgnored(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")
	h.signal(CallDisconnected, "")
	ticket := h.s.call.reconnect.ticket

	h.signal(CallConnected, "")
	h.s.dispatch(context.Background(), timerFired{kind: timerReconnect, ticket: ticket})
	if h.media.dials != 1 {
		t.Fatalf("cancelled reconnect dialled, dials = %d", h.media.dials)
	}
}

func TestCall_TeardownCancelsTimers(t *testing.T) {
	h := newHarness(t, true)
	h.s.call.Start()
	h.signal(CallConnected, "")
	h.signal(CallDisconnected, "")

	h.s.shutdown()
	if h.s.call.heartbeat.active() || h.s.call.reconnect.active() {
		t.Fatal("timers left running after teardown")
	}
	h.clock.Advance(time.Minute)
	select {
	case m := <-h.s.inbox:
		t.Fatalf("timer delivered %T after teardown", m)
	case <-time.After(50 * time.Millisecond):
	}
	if h.media.disconnect != 1 {
		t.Fatal("media not disconnected")
	}
	if h.s.Post(domain.ServiceReconnected{}) {
		t.Fatal("post accepted after teardown")
	}
}

func TestIsTransientCallError(t *testing.T) {
	tests := map[string]bool{
		"Failed to gather IP addresses": true,
		"ice gathering state failed":    true,
		"ICE Gathering":                 true,
		"peer connection closed":        false,
		"":                              false,
	}
	for reason, want := range tests {
		if got := isTransientCallError(reason); got != want {
			t.Errorf("isTransientCallError(%q) = %v, want %v", reason, got, want)
		}
	}
}
