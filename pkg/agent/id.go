package agent

import "github.com/google/uuid"

// Type tags the kind of an agent. Component factories are registered per Type.
type Type string

// ID identifies a single agent. IDs are comparable, usable as map keys and
// never reused: every call to NewID draws a fresh random instance.
type ID struct {
	Type     Type
	Instance uuid.UUID
}

// NewID creates a new identity for an agent of the given type.
func NewID(t Type) ID {
	return ID{Type: t, Instance: uuid.New()}
}

// IsZero reports whether the ID was never assigned.
func (id ID) IsZero() bool {
	return id.Instance == uuid.Nil
}

func (id ID) String() string {
	if id.Type == "" {
		return id.Instance.String()
	}
	return string(id.Type) + "/" + id.Instance.String()
}

// MarshalText lets IDs act as JSON object keys.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
