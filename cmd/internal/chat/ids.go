package chat

import (
	"strconv"
	"sync"
	"time"

	"unimatch/cmd/internal/ids"
)

const tempIDPrefix = "temp-"

// tempIDs hands out temp-<unix-millis> ids, bumping the millisecond when two
// sends land in the same one.
type tempIDs struct {
	mu   sync.Mutex
	last int64
}

func (g *tempIDs) next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return tempIDPrefix + strconv.FormatInt(ms, 10)
}

// NewClientMsgID returns a ULID used as the idempotency key of a send.
func NewClientMsgID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
