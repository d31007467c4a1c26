package filter

import (
	"path"

	"github.com/dyluth/sitesync/pkg/realtime"
)

// Criteria selects realtime events for display.
// All filters are ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	KindGlob string // Glob over the wire name, e.g. "bill.*"; empty = no filter
	Channel  string // Exact logical channel name; empty = no filter
}

// Validate reports a malformed glob.
func (c *Criteria) Validate() error {
	if c.KindGlob == "" {
		return nil
	}
	_, err := path.Match(c.KindGlob, "")
	return err
}

// Matches returns true if the event matches all filter criteria.
// Empty criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(ev realtime.Event) bool {
	if c.KindGlob != "" {
		matched, err := path.Match(c.KindGlob, ev.Kind.String())
		if err != nil || !matched {
			return false
		}
	}
	if c.Channel != "" && ev.Channel != c.Channel {
		return false
	}
	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.KindGlob != "" || c.Channel != ""
}
