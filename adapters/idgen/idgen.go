// Package idgen provides identifier generators for processor resources.
package idgen

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/artpar/paycore/ports"
	"github.com/google/uuid"
)

// UUID generates compact random ids, the shape the in-memory processor hands
// out after its resource prefix (cus_, sub_, ch_).
type UUID struct{}

// New returns a UUID v4 without dashes.
func (UUID) New() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

var _ ports.IDGenerator = UUID{}

// Sequential generates predictable ids for tests.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential generator: prefix1, prefix2, ...
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next id.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Reset restarts the sequence.
func (s *Sequential) Reset() {
	s.counter.Store(0)
}

var _ ports.IDGenerator = (*Sequential)(nil)
