// ABOUTME: Identifier type separating client-side pending records from persisted ones
// ABOUTME: Pending IDs are ULIDs minted locally; persisted IDs are assigned by the backend
package models

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// pendingTextPrefix marks a pending ID in its text form (CLI, MCP, JSON).
// Inside the process the distinction is carried by the type, never by the string.
const pendingTextPrefix = "pending/"

// ID identifies a prospect or reminder. The zero value is an empty persisted ID.
type ID struct {
	value   string
	pending bool
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewPendingID mints a fresh local identifier for a record that has not reached the backend.
func NewPendingID() ID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return PendingID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// PendingID wraps a local identifier.
func PendingID(local string) ID {
	return ID{value: local, pending: true}
}

// PersistedID wraps a backend-assigned identifier.
func PersistedID(server string) ID {
	return ID{value: server}
}

// ParseID is the inverse of ID.String.
func ParseID(s string) ID {
	if local, ok := strings.CutPrefix(s, pendingTextPrefix); ok {
		return PendingID(local)
	}
	return PersistedID(s)
}

// IsPending reports whether the record has not been confirmed by the backend yet.
func (id ID) IsPending() bool { return id.pending }

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id.value == "" }

// Value returns the raw identifier without any pending marker.
func (id ID) Value() string { return id.value }

func (id ID) String() string {
	if id.pending {
		return pendingTextPrefix + id.value
	}
	return id.value
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	*id = ParseID(string(text))
	return nil
}

// Equal reports whether two IDs name the same record.
func (id ID) Equal(other ID) bool { return id == other }
