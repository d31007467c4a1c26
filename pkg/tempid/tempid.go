// Package tempid mints and recognises client-side identifiers for entities
// that have not been confirmed by the remote API yet.
//
// Two families exist:
//
//	temp-{kind}-{unix_ms}-{seq}    entities created optimistically by a domain store
//	local-{kind}-{unix_ms}-{seq}   projects created while offline / unauthenticated
//
// Any id carrying either prefix must never be used as a remote path parameter.
package tempid

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// TempPrefix marks ids minted for optimistic inserts
	TempPrefix = "temp-"

	// LocalPrefix marks ids of records that only exist in local persistence
	LocalPrefix = "local-"
)

// Source generates ids for a single entity kind.
// It is safe for concurrent use.
type Source struct {
	prefix string
	clock  func() time.Time
	seq    atomic.Uint64
}

// New returns a temp id source for kind, e.g. New("expense", nil) yields
// "temp-expense-1728900000000-1". A nil clock defaults to time.Now.
func New(kind string, clock func() time.Time) *Source {
	return newSource(TempPrefix+kind+"-", clock)
}

// NewLocal returns a source for locally persisted records, e.g. NewLocal("project", nil)
// yields "local-project-1728900000000-1".
func NewLocal(kind string, clock func() time.Time) *Source {
	return newSource(LocalPrefix+kind+"-", clock)
}

func newSource(prefix string, clock func() time.Time) *Source {
	if clock == nil {
		clock = time.Now
	}
	return &Source{prefix: prefix, clock: clock}
}

// Next returns a fresh id. The sequence suffix keeps ids unique even when
// several are minted within the same millisecond.
func (s *Source) Next() string {
	return fmt.Sprintf("%s%d-%d", s.prefix, s.clock().UnixMilli(), s.seq.Add(1))
}

// Prefix returns the prefix shared by every id this source mints.
func (s *Source) Prefix() string {
	return s.prefix
}

// Is reports whether id was minted on the client (temp or local).
func Is(id string) bool {
	return strings.HasPrefix(id, TempPrefix) || strings.HasPrefix(id, LocalPrefix)
}

// IsLocal reports whether id belongs to a local-only record.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}
