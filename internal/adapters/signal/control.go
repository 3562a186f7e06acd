package signal

import (
	"errors"

	"github.com/dkeye/Hearing/internal/domain"
)

// Control frames travel beside domain events and are never routed.
const (
	typePing  domain.EventType = "ping"
	typePong  domain.EventType = "pong"
	typeError domain.EventType = "error"
)

var errRateLimited = errors.New("rate limited")

type controlFrame struct {
	Type  domain.EventType `json:"type"`
	Error string           `json:"error,omitempty"`
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, controlFrame{Type: typePong})
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, err error) {
	ctl.sendJSON(conn, controlFrame{Type: typeError, Error: err.Error()})
}
