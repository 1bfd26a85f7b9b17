package usecase

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a ULID string for t. IDs sort by creation time and stay
// unique for equal timestamps.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
