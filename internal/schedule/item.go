package schedule

import (
	"errors"
	"strings"
)

// ErrEmptySnapshot is returned when a poll yields no items at all. A page
// that suddenly lists nothing is far more often broken than emptied.
var ErrEmptySnapshot = errors.New("schedule: snapshot is empty")

// Item is one schedule entry. Identity is the link; the label is display
// metadata only.
type Item struct {
	Label string `json:"label"`
	Link  string `json:"link"`
}

// Snapshot is the ordered result of one poll. Links are unique.
type Snapshot []Item

// NewSnapshot collects items in order, dropping entries without a link and
// any later entry whose link was already seen.
func NewSnapshot(items []Item) Snapshot {
	out := make(Snapshot, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it.Link = strings.TrimSpace(it.Link)
		it.Label = strings.TrimSpace(it.Label)
		if it.Link == "" {
			continue
		}
		if _, ok := seen[it.Link]; ok {
			continue
		}
		seen[it.Link] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Links returns the links in snapshot order.
func (s Snapshot) Links() []string {
	out := make([]string, len(s))
	for i, it := range s {
		out[i] = it.Link
	}
	return out
}

func (s Snapshot) Empty() bool { return len(s) == 0 }
