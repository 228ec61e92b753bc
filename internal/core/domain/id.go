package domain

import (
	"strings"

	"github.com/google/uuid"
)

type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.New().String())
}

func (id PeerID) String() string {
	return string(id)
}

func (id PeerID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// ClientID identifies a UI client attached to the event stream.
type ClientID uuid.UUID

func NewClientID() ClientID {
	return ClientID(uuid.New())
}

func (id ClientID) String() string {
	return uuid.UUID(id).String()
}

type EntryID uuid.UUID

func NewEntryID() EntryID {
	return EntryID(uuid.New())
}

func (id EntryID) String() string {
	return uuid.UUID(id).String()
}

func (id EntryID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
