// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxUserIDLen = 64

var (
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUserIDEmpty   = errors.New("user id empty")
)

// UserID identifies a remote or local session member as issued by the relay.
type UserID string

// ParseUserID trims and validates an identifier received from the client
// edge or the relay before it is used as a map key.
func ParseUserID(raw string) (UserID, error) {
	id := strings.TrimSpace(raw)
	if len(id) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(id), nil
}
