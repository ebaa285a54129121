// Package ids generates the ULIDs used for client message ids, envelope ids
// and dev-server message ids.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars). A zero now means time.Now.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustULID is NewULID for call sites that cannot return an error. The entropy
// source is crypto/rand, so a failure means the process is unusable anyway.
func MustULID(now time.Time) string {
	id, err := NewULID(now)
	if err != nil {
		panic("ids: " + err.Error())
	}
	return id
}
