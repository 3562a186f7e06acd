package session

import "github.com/dkeye/Hearing/internal/domain"

type VideoInputs struct {
	SignalConnected bool
	InSession       bool
	Witness         bool
	Status          domain.ParticipantStatus
}

// ShouldShowVideo decides whether the live hearing video is rendered.
func ShouldShowVideo(in VideoInputs) bool {
	if !in.SignalConnected {
		return false
	}
	return (in.InSession && !in.Witness) ||
		(in.Witness && in.Status == domain.ParticipantInHearing) ||
		in.Status == domain.ParticipantInConsultation
}
