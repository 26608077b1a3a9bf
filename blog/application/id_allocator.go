package application

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/dfryer1193/webpress/blog/domain"
)

const idBytes = 3

var _ domain.IDGenerator = (*IDAllocator)(nil)

// IDAllocator draws short hexadecimal ids and redraws on collision.
// The random source is never replaced after construction.
type IDAllocator struct {
	random io.Reader
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{random: rand.Reader}
}

// NewIDAllocatorWithSource is used by tests to make draws predictable.
func NewIDAllocatorWithSource(random io.Reader) *IDAllocator {
	return &IDAllocator{random: random}
}

// Generate returns an id that is not a key of existing. It is safe for concurrent use
// as long as the random source is.
func (a *IDAllocator) Generate(existing map[string]struct{}) string {
	random := a.random
	buf := make([]byte, idBytes)
	for {
		if _, err := io.ReadFull(random, buf); err != nil {
			// crypto/rand does not fail on supported platforms; fall back to the default source.
			random = rand.Reader
			continue
		}
		id := hex.EncodeToString(buf)
		if _, taken := existing[id]; !taken {
			return id
		}
	}
}
