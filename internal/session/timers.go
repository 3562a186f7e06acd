package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type timerKind int

const (
	timerHeartbeat timerKind = iota + 1
	timerReconnect
)

func (k timerKind) String() string {
	switch k {
	case timerHeartbeat:
		return "heartbeat"
	case timerReconnect:
		return "reconnect"
	}
	return "unknown"
}

// timer is a cancellable handle; a firing whose ticket no longer matches
// the handle is ignored by the session loop.
type timer struct {
	t      clockwork.Timer
	ticket uint64
}

func (t *timer) active() bool { return t.t != nil }

func (t *timer) matches(ticket uint64) bool { return t.t != nil && t.ticket == ticket }

func (t *timer) stop() {
	if t.t != nil {
		t.t.Stop()
	}
	*t = timer{}
}

type scheduler struct {
	clock clockwork.Clock
	post  func(message) bool
	next  uint64
}

func (s *scheduler) after(d time.Duration, kind timerKind) timer {
	s.next++
	ticket := s.next
	t := s.clock.AfterFunc(d, func() {
		s.post(timerFired{kind: kind, ticket: ticket})
	})
	return timer{t: t, ticket: ticket}
}
