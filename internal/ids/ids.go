package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier. Used for audit rows and token ids.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Entity returns a random UUID used as the primary key of tenants, users, projects and tasks.
func Entity() string {
	return uuid.NewString()
}

// IsEntity reports whether s parses as an entity id.
func IsEntity(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
