package outbound

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProvisionalPrefix marks ids the client made up before confirmation.
const ProvisionalPrefix = "tmp-"

// NewProvisionalID returns "tmp-" followed by a fresh ULID, so provisional
// ids sort by creation time and never collide with storage UUIDs.
func NewProvisionalID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return ProvisionalPrefix + id.String(), nil
}

// IsProvisionalID reports whether id was produced by NewProvisionalID.
func IsProvisionalID(id string) bool {
	if !strings.HasPrefix(id, ProvisionalPrefix) {
		return false
	}
	_, err := ulid.Parse(strings.TrimPrefix(id, ProvisionalPrefix))
	return err == nil
}

// ProvisionalTime returns the creation time encoded in a provisional id.
func ProvisionalTime(id string) (time.Time, error) {
	parsed, err := ulid.Parse(strings.TrimPrefix(id, ProvisionalPrefix))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid provisional id: %w", err)
	}
	return ulid.Time(parsed.Time()), nil
}
