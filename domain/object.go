// Package domain holds the task manager's persistent objects: tasks, categories,
// notes, attachments and efforts. Every mutation is reported to an Observer as a
// single (object id, attribute) event so change tracking and dirty tracking can
// consume all object types uniformly.
package domain

import (
	"github.com/oklog/ulid/v2"
)

// Kind identifies the concrete type of an Object
type Kind string

const (
	KindTask       Kind = "task"
	KindCategory   Kind = "category"
	KindNote       Kind = "note"
	KindAttachment Kind = "attachment"
	KindEffort     Kind = "effort"
)

// Attribute names reported through Observer.ObjectMutated
const (
	AttrAdded   = "__add__" // object entered a tracked collection
	AttrDeleted = "__del__" // object left a tracked collection

	AttrSubject        = "subject"
	AttrDescription    = "description"
	AttrPriority       = "priority"
	AttrDueDate        = "dueDate"
	AttrCompletionDate = "completionDate"
	AttrCategories     = "categories"
	AttrLocation       = "location"
	AttrStart          = "start"
	AttrStop           = "stop"

	// Nested collection attributes, reported on the owner
	AttrChildren    = "children"
	AttrNotes       = "notes"
	AttrAttachments = "attachments"
	AttrEfforts     = "efforts"
)

// Observer receives every mutation of an observed object.
// Structural changes use AttrAdded and AttrDeleted.
type Observer interface {
	ObjectMutated(id, attribute string)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(id, attribute string)

func (f ObserverFunc) ObjectMutated(id, attribute string) { f(id, attribute) }

// Object is implemented by every persistent domain type.
type Object interface {
	ID() string
	Kind() Kind

	// Attributes lists the scalar attributes that can be merged independently.
	Attributes() []string
	// Equal reports whether attr has the same value on both objects.
	Equal(other Object, attr string) bool
	// CopyAttributes copies the named attributes from src, which must have the same Kind.
	CopyAttributes(src Object, attrs []string)
	// Collections returns the nested collections in a fixed order.
	Collections() []Collection

	setObserver(obs Observer)
}

// NewID returns a fresh, lexically sortable object id
func NewID() string {
	return ulid.Make().String()
}

// Observe attaches obs to o and every object nested below it
func Observe(o Object, obs Observer) {
	o.setObserver(obs)
}

// Walk calls fn for o and every object nested below it, parents first
func Walk(o Object, fn func(Object)) {
	fn(o)
	for _, c := range o.Collections() {
		for _, child := range c.Objects() {
			Walk(child, fn)
		}
	}
}

// Find searches roots and their nested objects for id
func Find[T Object](roots []T, id string) (Object, bool) {
	var found Object
	for _, r := range roots {
		Walk(r, func(o Object) {
			if found == nil && o.ID() == id {
				found = o
			}
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// base carries the identity and the text attributes shared by most types
type base struct {
	id          string
	subject     string
	description string
	obs         Observer
}

func (b *base) ID() string          { return b.id }
func (b *base) Subject() string     { return b.subject }
func (b *base) Description() string { return b.description }

func (b *base) SetSubject(subject string) {
	if b.subject == subject {
		return
	}
	b.subject = subject
	b.changed(AttrSubject)
}

func (b *base) SetDescription(description string) {
	if b.description == description {
		return
	}
	b.description = description
	b.changed(AttrDescription)
}

func (b *base) changed(attr string) {
	if b.obs != nil {
		b.obs.ObjectMutated(b.id, attr)
	}
}

func (b *base) equalText(other *base, attr string) (equal, handled bool) {
	switch attr {
	case AttrSubject:
		return b.subject == other.subject, true
	case AttrDescription:
		return b.description == other.description, true
	}
	return false, false
}

func (b *base) copyText(src *base, attr string) {
	switch attr {
	case AttrSubject:
		b.SetSubject(src.subject)
	case AttrDescription:
		b.SetDescription(src.description)
	}
}

func newBase(id, subject string) base {
	if id == "" {
		id = NewID()
	}
	return base{id: id, subject: subject}
}
