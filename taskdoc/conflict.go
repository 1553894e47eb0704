package taskdoc

import (
	"fmt"
	"strings"

	"github.com/zenibako/taskdoc-golang/domain"
)

// ConflictType represents the type of conflict detected
type ConflictType string

const (
	ConflictBothChanged ConflictType = "both_changed" // same attribute changed in memory and on disk
	ConflictEditDelete  ConflictType = "edit_delete"  // changed on one side, deleted on the other
)

// Side names where a value comes from
type Side string

const (
	SideMemory Side = "memory" // this document's unsaved version
	SideDisk   Side = "disk"   // the version committed by another writer
)

// ObjectConflict represents an object both sides changed since they last agreed
type ObjectConflict struct {
	ID          string       // Object id
	Kind        domain.Kind  // Object type
	Type        ConflictType // Type of conflict
	Attributes  []string     // Attributes changed on both sides, empty for edit/delete
	DeletedOn   Side         // Side that deleted the object, for edit/delete
	Subject     string       // Subject of the in-memory version, for display
	Description string       // Human-readable description
	Chosen      Side         // Side the policy kept
}

func newBothChanged(mem domain.Object, attrs []string) ObjectConflict {
	return ObjectConflict{
		ID:          mem.ID(),
		Kind:        mem.Kind(),
		Type:        ConflictBothChanged,
		Attributes:  attrs,
		Subject:     subjectOf(mem),
		Description: fmt.Sprintf("%s '%s' changed here and on disk (attributes: %s)", mem.Kind(), subjectOf(mem), strings.Join(attrs, ", ")),
	}
}

func newEditDelete(obj domain.Object, deletedOn Side) ObjectConflict {
	other := SideDisk
	if deletedOn == SideDisk {
		other = SideMemory
	}
	return ObjectConflict{
		ID:          obj.ID(),
		Kind:        obj.Kind(),
		Type:        ConflictEditDelete,
		DeletedOn:   deletedOn,
		Subject:     subjectOf(obj),
		Description: fmt.Sprintf("%s '%s' was deleted on %s but changed on %s", obj.Kind(), subjectOf(obj), deletedOn, other),
	}
}

func subjectOf(o domain.Object) string {
	if s, ok := o.(interface{ Subject() string }); ok && s.Subject() != "" {
		return s.Subject()
	}
	return o.ID()
}
