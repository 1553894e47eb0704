package taskdoc

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/zenibako/taskdoc-golang/domain"
)

// Resolution is what reconciliation did with one object
type Resolution string

const (
	ResolutionKeptLocal Resolution = "kept_local" // only this document changed it
	ResolutionTookDisk  Resolution = "took_disk"  // only the disk version changed it
	ResolutionCombined  Resolution = "combined"   // disjoint attributes changed on both sides
	ResolutionConflict  Resolution = "conflict"   // overlapping attributes, decided by policy
	ResolutionAdded     Resolution = "added"      // appeared on disk, appended here
	ResolutionDropped   Resolution = "dropped"    // deleted on disk, removed here
)

// ObjectChangeResult represents the result of reconciling one object
type ObjectChangeResult struct {
	ID         string      // Object id
	Kind       domain.Kind // Object type
	Resolution Resolution  // What was done
	Reason     string      // Explanation of the resolution
	TookFrom   []string    // Attributes copied from disk
}

// MergeReport contains the results of reconciling memory with disk
type MergeReport struct {
	Results     map[string]*ObjectChangeResult // Map of object id -> result, untouched objects are absent
	Conflicts   []ObjectConflict               // Conflicts with the side that was kept
	DiskExists  bool                           // Whether there was a file to merge with
	KnownDevice bool                           // Whether the registry knew this device; false means remote changes were inferred
}

func newMergeReport() *MergeReport {
	return &MergeReport{Results: make(map[string]*ObjectChangeResult)}
}

func (r *MergeReport) record(o domain.Object, res Resolution, reason string, took []string) *ObjectChangeResult {
	result := &ObjectChangeResult{ID: o.ID(), Kind: o.Kind(), Resolution: res, Reason: reason, TookFrom: took}
	r.Results[o.ID()] = result
	return result
}

// Count returns how many objects ended with res
func (r *MergeReport) Count(res Resolution) int {
	n := 0
	for _, result := range r.Results {
		if result.Resolution == res {
			n++
		}
	}
	return n
}

// Changed reports whether reconciliation modified the in-memory document
func (r *MergeReport) Changed() bool {
	for _, result := range r.Results {
		if result.Resolution != ResolutionKeptLocal {
			return true
		}
	}
	return false
}

// IDs returns the ids of all reconciled objects, sorted
func (r *MergeReport) IDs() []string {
	return slices.Sorted(maps.Keys(r.Results))
}

func (r *MergeReport) Summary() string {
	if len(r.Results) == 0 {
		return "no changes"
	}
	var parts []string
	for _, res := range []Resolution{ResolutionAdded, ResolutionDropped, ResolutionTookDisk, ResolutionCombined, ResolutionConflict, ResolutionKeptLocal} {
		if n := r.Count(res); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ReplaceAll(string(res), "_", " ")))
		}
	}
	return strings.Join(parts, ", ")
}

func joinAttrs(attrs []string) string {
	return strings.Join(attrs, ", ")
}
