package domain

type EndpointStatus string

const (
	EndpointNotYetJoined   EndpointStatus = "NotYetJoined"
	EndpointConnected      EndpointStatus = "Connected"
	EndpointInConsultation EndpointStatus = "InConsultation"
	EndpointDisconnected   EndpointStatus = "Disconnected"
)

func (s EndpointStatus) Valid() bool {
	switch s {
	case EndpointNotYetJoined, EndpointConnected, EndpointInConsultation, EndpointDisconnected:
		return true
	}
	return false
}

// Endpoint is a non-human video endpoint attached to a conference.
type Endpoint struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Status      EndpointStatus `json:"status"`
	Room        *Room          `json:"room,omitempty"`
}

func (e *Endpoint) SetStatus(s EndpointStatus) {
	e.Status = s
	if s == EndpointDisconnected {
		e.Room = nil
	}
}
