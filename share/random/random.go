package random

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ULID returns a lexicographically sortable id whose time part is t.
// Ids generated within the same millisecond are monotonic.
var ULID = func(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// UUID4 returns a random generated UUID4.
var UUID4 = func() (string, error) {
	uuid, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return uuid.String(), nil
}
