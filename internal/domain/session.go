package domain

import (
	"errors"
	"strings"
)

type RoomID string

var (
	ErrEndpointEmpty = errors.New("endpoint empty")
	ErrRoomEmpty     = errors.New("room id empty")
)

// SessionState is the lifecycle of one call.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionParams are the arguments of start_voice_session.
type SessionParams struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
	Room     RoomID `json:"room_id"`
}

func (p SessionParams) Validate() error {
	if strings.TrimSpace(p.Endpoint) == "" {
		return ErrEndpointEmpty
	}
	if strings.TrimSpace(string(p.Room)) == "" {
		return ErrRoomEmpty
	}
	return nil
}
