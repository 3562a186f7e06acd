package domain

import "errors"

var (
	ErrConferenceNotFound  = errors.New("conference not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrForbiddenEvent      = errors.New("event not permitted for this identity")
	ErrMalformedEvent      = errors.New("malformed event")

	ErrStaleEvent         = errors.New("stale event")
	ErrTransientSignaling = errors.New("transient signalling failure")
	ErrFatalConnectivity  = errors.New("fatal connectivity failure")
	ErrPersistence        = errors.New("persistence side effect failed")
)

type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassStale
	ClassTransient
	ClassFatal
	ClassPersistence
)

func (c ErrorClass) String() string {
	switch c {
	case ClassStale:
		return "stale"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	case ClassPersistence:
		return "persistence"
	}
	return "unknown"
}

// Classify maps err onto the handler error taxonomy. Only ClassFatal may
// end a session; everything else is logged and dropped.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrFatalConnectivity):
		return ClassFatal
	case errors.Is(err, ErrStaleEvent), errors.Is(err, ErrConferenceNotFound), errors.Is(err, ErrParticipantNotFound):
		return ClassStale
	case errors.Is(err, ErrTransientSignaling):
		return ClassTransient
	case errors.Is(err, ErrPersistence):
		return ClassPersistence
	}
	return ClassUnknown
}
