package types

import (
	"github.com/google/uuid"
)

type SessionID string
type CallID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// NewCallID returns an identifier for a tool call whose upstream item carried
// none.
func NewCallID() CallID {
	return CallID("call_" + uuid.New().String())
}
