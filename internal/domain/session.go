package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SessionID uniquely identifies a conversation session.
type SessionID uuid.UUID

// NewSessionID returns a fresh random session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID parses the canonical string form of a session ID.
func ParseSessionID(s string) (SessionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("parse session id %q: %w", s, err)
	}
	return SessionID(id), nil
}

// String returns the canonical lowercase hex form.
func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

// MarshalJSON encodes the ID as its string form.
func (id SessionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes the string form.
func (id *SessionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSessionID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
