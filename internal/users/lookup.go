package users

import (
	"strings"

	"github.com/google/uuid"
)

type lookupKind int

const (
	lookupByID lookupKind = iota + 1
	lookupByHandle
)

// Lookup identifies a user either by primary key or by handle (username or email).
type Lookup struct {
	kind   lookupKind
	id     uuid.UUID
	handle string
}

func ByID(id uuid.UUID) Lookup {
	return Lookup{kind: lookupByID, id: id}
}

func ByHandle(handle string) Lookup {
	return Lookup{kind: lookupByHandle, handle: strings.TrimSpace(handle)}
}

// ParseLookup treats UUID-shaped input as an id and anything else as a handle.
func ParseLookup(raw string) Lookup {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil {
		return ByID(id)
	}
	return ByHandle(raw)
}

func (l Lookup) IsZero() bool {
	switch l.kind {
	case lookupByID:
		return l.id == uuid.Nil
	case lookupByHandle:
		return l.handle == ""
	}
	return true
}

func (l Lookup) String() string {
	switch l.kind {
	case lookupByID:
		return "id:" + l.id.String()
	case lookupByHandle:
		return "handle:" + l.handle
	}
	return "empty"
}
