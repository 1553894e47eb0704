package changes

import (
	"maps"
	"slices"
)

// Registry maps a device guid to the changes other devices committed that
// the device has not merged yet.
type Registry map[string]ChangeSet

func NewRegistry() Registry {
	return make(Registry)
}

// Ensure returns the entry for guid, creating an empty one when absent
func (r Registry) Ensure(guid string) ChangeSet {
	cs, ok := r[guid]
	if !ok {
		cs = NewChangeSet()
		r[guid] = cs
	}
	return cs
}

// Lookup returns the entry for guid and whether the device is known
func (r Registry) Lookup(guid string) (ChangeSet, bool) {
	cs, ok := r[guid]
	return cs, ok
}

// Reset empties the entry for guid, registering the device if needed
func (r Registry) Reset(guid string) {
	r[guid] = NewChangeSet()
}

// Fold records changes committed by device from in every other device's entry
func (r Registry) Fold(from string, changes ChangeSet) {
	if changes.Len() == 0 {
		return
	}
	for guid, cs := range r {
		if guid == from {
			continue
		}
		cs.Merge(changes)
	}
}

// Drop forgets a device
func (r Registry) Drop(guid string) {
	delete(r, guid)
}

// Guids returns the known device guids, sorted
func (r Registry) Guids() []string {
	return slices.Sorted(maps.Keys(r))
}

func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for guid, cs := range r {
		out[guid] = cs.Clone()
	}
	return out
}
