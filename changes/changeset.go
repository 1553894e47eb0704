// Package changes records which objects and attributes each device changed
// since the last baseline it agreed on with the file on disk.
package changes

import (
	"maps"
	"slices"

	"github.com/zenibako/taskdoc-golang/domain"
)

// ChangeSet maps an object id to the attributes changed since the baseline.
// The markers domain.AttrAdded and domain.AttrDeleted record structural changes.
type ChangeSet map[string]map[string]bool

func NewChangeSet() ChangeSet {
	return make(ChangeSet)
}

// Add records a change of attr on id
func (cs ChangeSet) Add(id, attr string) {
	attrs, ok := cs[id]
	if !ok {
		attrs = make(map[string]bool)
		cs[id] = attrs
	}
	switch attr {
	case domain.AttrDeleted:
		if attrs[domain.AttrAdded] {
			// Created and deleted within the same baseline: nobody else ever saw it
			delete(cs, id)
			return
		}
		// Earlier attribute changes stay so that a remove then re-append keeps them
	case domain.AttrAdded:
		delete(attrs, domain.AttrDeleted)
	default:
		if attrs[domain.AttrDeleted] {
			return
		}
	}
	attrs[attr] = true
}

// Has reports whether anything was recorded for id
func (cs ChangeSet) Has(id string) bool {
	_, ok := cs[id]
	return ok
}

func (cs ChangeSet) Added(id string) bool   { return cs[id][domain.AttrAdded] }
func (cs ChangeSet) Deleted(id string) bool { return cs[id][domain.AttrDeleted] }

// Attrs returns every recorded attribute of id, markers included, sorted
func (cs ChangeSet) Attrs(id string) []string {
	return slices.Sorted(maps.Keys(cs[id]))
}

// Changed returns the recorded attributes of id without the structural markers
func (cs ChangeSet) Changed(id string) []string {
	out := make([]string, 0, len(cs[id]))
	for attr := range cs[id] {
		if attr == domain.AttrAdded || attr == domain.AttrDeleted {
			continue
		}
		out = append(out, attr)
	}
	slices.Sort(out)
	return out
}

// IDs returns the ids with recorded changes, sorted
func (cs ChangeSet) IDs() []string {
	return slices.Sorted(maps.Keys(cs))
}

func (cs ChangeSet) Len() int { return len(cs) }

// Merge folds other into cs
func (cs ChangeSet) Merge(other ChangeSet) {
	for _, id := range other.IDs() {
		// markers first so that later attributes respect them
		if other.Added(id) {
			cs.Add(id, domain.AttrAdded)
		}
		for _, attr := range other.Changed(id) {
			cs.Add(id, attr)
		}
		if other.Deleted(id) {
			cs.Add(id, domain.AttrDeleted)
		}
	}
}

func (cs ChangeSet) Clone() ChangeSet {
	out := make(ChangeSet, len(cs))
	for id, attrs := range cs {
		out[id] = maps.Clone(attrs)
	}
	return out
}

// ToMap converts the set to id -> sorted attribute list, the on-disk shape
func (cs ChangeSet) ToMap() map[string][]string {
	out := make(map[string][]string, len(cs))
	for id := range cs {
		out[id] = cs.Attrs(id)
	}
	return out
}

// FromMap is the inverse of ToMap
func FromMap(m map[string][]string) ChangeSet {
	cs := make(ChangeSet, len(m))
	for id, attrs := range m {
		set := make(map[string]bool, len(attrs))
		for _, attr := range attrs {
			set[attr] = true
		}
		cs[id] = set
	}
	return cs
}
