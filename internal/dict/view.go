package dict

import (
	"fmt"

	"github.com/gftdcojp/logvault/internal/types"
)

// View is the read-only side of a dictionary, opened after the owning
// writer has flushed. Views are safe for concurrent use.
type View struct {
	entries   []*Entry
	valueToID map[string]uint64
}

// LoadView reads a dictionary and its segment-index sidecar.
func LoadView(path, segindexPath string, withPositions bool) (*View, error) {
	entries, _, err := load(path, segindexPath, withPositions)
	if err != nil {
		return nil, err
	}
	v := &View{entries: entries, valueToID: make(map[string]uint64, len(entries))}
	for _, e := range entries {
		v.valueToID[e.Value] = e.ID
	}
	return v, nil
}

// NumEntries returns the number of entries.
func (v *View) NumEntries() int {
	return len(v.entries)
}

// Entry returns the entry with the given ID.
func (v *View) Entry(id uint64) (*Entry, error) {
	if id >= uint64(len(v.entries)) {
		return nil, fmt.Errorf("%w: dictionary ID %d", types.ErrOutOfBounds, id)
	}
	return v.entries[id], nil
}

// Get returns the entry holding exactly value.
func (v *View) Get(value string) (*Entry, bool) {
	id, ok := v.valueToID[value]
	if !ok {
		return nil, false
	}
	return v.entries[id], true
}

// EntriesMatchingWildcard returns every entry whose value matches the
// wildcard pattern. Placeholder bytes in entry values are matched
// literally.
func (v *View) EntriesMatchingWildcard(pattern string, ignoreCase bool) []*Entry {
	return entriesMatchingWildcard(v.entries, pattern, ignoreCase)
}
