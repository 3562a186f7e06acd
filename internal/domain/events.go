package domain

type EventType string

const (
	EventParticipantStatusChanged EventType = "participant_status_changed"
	EventEndpointStatusChanged    EventType = "endpoint_status_changed"
	EventConferenceStatusChanged  EventType = "conference_status_changed"
	EventRoomUpdated              EventType = "room_updated"
	EventRoomTransfer             EventType = "room_transfer"
	EventConsultationRequested    EventType = "consultation_requested"
	EventConsultationResponse     EventType = "consultation_response"
	EventHearingTransfer          EventType = "hearing_transfer"
	EventHeartbeatReported        EventType = "heartbeat_reported"
	EventServiceDisconnected      EventType = "service_disconnected"
	EventServiceReconnected       EventType = "service_reconnected"
)

// Event is a hearing-lifecycle event routed by the hub.
type Event interface {
	Type() EventType
}

// ConferenceEvent is an event scoped to one conference.
type ConferenceEvent interface {
	Event
	Conference() string
}

type ParticipantStatusChanged struct {
	ParticipantID string            `json:"participant_id" validate:"required"`
	ConferenceID  string            `json:"conference_id" validate:"required"`
	Status        ParticipantStatus `json:"status" validate:"required"`
}

type EndpointStatusChanged struct {
	EndpointID   string         `json:"endpoint_id" validate:"required"`
	ConferenceID string         `json:"conference_id" validate:"required"`
	Status       EndpointStatus `json:"status" validate:"required"`
}

type ConferenceStatusChanged struct {
	ConferenceID string           `json:"conference_id" validate:"required"`
	Status       ConferenceStatus `json:"status" validate:"required"`
}

type RoomUpdated struct {
	ConferenceID string `json:"conference_id" validate:"required"`
	RoomLabel    string `json:"room_label" validate:"required"`
	Locked       bool   `json:"locked"`
}

type RoomTransfer struct {
	ConferenceID  string `json:"conference_id" validate:"required"`
	EntityID      string `json:"entity_id" validate:"required"`
	FromRoomLabel string `json:"from_room_label"`
	ToRoomLabel   string `json:"to_room_label"`
}

type ConsultationRequested struct {
	ConferenceID string `json:"conference_id" validate:"required"`
	InvitationID string `json:"invitation_id" validate:"required"`
	RoomLabel    string `json:"room_label" validate:"required"`
	RequestedBy  string `json:"requested_by" validate:"required"`
	RequestedFor string `json:"requested_for" validate:"required"`
}

type ConsultationResponse struct {
	ConferenceID      string             `json:"conference_id" validate:"required"`
	InvitationID      string             `json:"invitation_id" validate:"required"`
	RoomLabel         string             `json:"room_label" validate:"required"`
	ResponseSubject   string             `json:"response_subject" validate:"required"`
	Answer            ConsultationAnswer `json:"answer"`
	ResponseInitiator string             `json:"response_initiator" validate:"required"`
}

type TransferDirection string

const (
	TransferIn  TransferDirection = "In"
	TransferOut TransferDirection = "Out"
)

type HearingTransfer struct {
	ConferenceID  string            `json:"conference_id" validate:"required"`
	ParticipantID string            `json:"participant_id" validate:"required"`
	Direction     TransferDirection `json:"direction" validate:"required,oneof=In Out"`
}

// HeartbeatMetrics is call-quality telemetry sampled from the media call.
type HeartbeatMetrics struct {
	OutgoingPacketsSent  uint64  `json:"outgoing_packets_sent"`
	OutgoingBytesSent    uint64  `json:"outgoing_bytes_sent"`
	IncomingPacketsRecv  uint64  `json:"incoming_packets_received"`
	IncomingPacketsLost  int64   `json:"incoming_packets_lost"`
	IncomingJitter       float64 `json:"incoming_jitter"`
	RoundTripTimeSeconds float64 `json:"round_trip_time_seconds"`
	UserAgent            string  `json:"user_agent,omitempty"`
}

type HeartbeatReported struct {
	ConferenceID  string           `json:"conference_id" validate:"required"`
	ParticipantID string           `json:"participant_id" validate:"required"`
	Metrics       HeartbeatMetrics `json:"metrics"`
}

// ServiceDisconnected and ServiceReconnected describe the signalling
// channel itself; they are raised locally and never routed by the hub.
type ServiceDisconnected struct {
	AttemptNumber int `json:"attempt_number"`
}

type ServiceReconnected struct{}

func (ParticipantStatusChanged) Type() EventType { return EventParticipantStatusChanged }
func (EndpointStatusChanged) Type() EventType    { return EventEndpointStatusChanged }
func (ConferenceStatusChanged) Type() EventType  { return EventConferenceStatusChanged }
func (RoomUpdated) Type() EventType              { return EventRoomUpdated }
func (RoomTransfer) Type() EventType             { return EventRoomTransfer }
func (ConsultationRequested) Type() EventType    { return EventConsultationRequested }
func (ConsultationResponse) Type() EventType     { return EventConsultationResponse }
func (HearingTransfer) Type() EventType          { return EventHearingTransfer }
func (HeartbeatReported) Type() EventType        { return EventHeartbeatReported }
func (ServiceDisconnected) Type() EventType      { return EventServiceDisconnected }
func (ServiceReconnected) Type() EventType       { return EventServiceReconnected }

func (e ParticipantStatusChanged) Conference() string { return e.ConferenceID }
func (e EndpointStatusChanged) Conference() string    { return e.ConferenceID }
func (e ConferenceStatusChanged) Conference() string  { return e.ConferenceID }
func (e RoomUpdated) Conference() string              { return e.ConferenceID }
func (e RoomTransfer) Conference() string             { return e.ConferenceID }
func (e ConsultationRequested) Conference() string    { return e.ConferenceID }
func (e ConsultationResponse) Conference() string     { return e.ConferenceID }
func (e HearingTransfer) Conference() string          { return e.ConferenceID }
func (e HeartbeatReported) Conference() string        { return e.ConferenceID }
