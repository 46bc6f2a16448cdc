package approval

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// newRequestID returns a time ordered request id such as REQ-01J9Z3....
func newRequestID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "REQ-" + ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
