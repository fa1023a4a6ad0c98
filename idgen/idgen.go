// Package idgen mints the opaque handles the display resolver hands out.
// Components take a Generator so tests can swap in a predictable one.
package idgen

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a new identifier on every call.
type Generator func() string

// UUIDv7 yields RFC 9562 version 7 UUIDs, which sort by creation time.
func UUIDv7() Generator {
	return func() string { return uuid.Must(uuid.NewV7()).String() }
}

// Compact yields UUIDv7 values without dashes, for use as a URL path segment.
func Compact() Generator {
	gen := UUIDv7()
	return func() string { return strings.ReplaceAll(gen(), "-", "") }
}

// Sequence yields prefix1, prefix2, ... and is safe for concurrent use.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s%d", prefix, n.Add(1)) }
}
