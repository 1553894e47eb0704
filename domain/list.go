package domain

import (
	"fmt"
)

// Collection is the type-erased view of a List used by code that walks
// heterogeneous object trees.
type Collection interface {
	Attribute() string
	Objects() []Object
	Lookup(id string) (Object, bool)
	AppendObject(o Object) error
	RemoveObject(id string) bool
}

// List is an ordered collection of domain objects. Roots and nested children
// both use List; a nested list reports its own membership changes on its owner.
type List[T Object] struct {
	owner *base // nil for root collections
	attr  string
	items []T
	obs   Observer
}

// NewList creates an empty root collection
func NewList[T Object]() *List[T] {
	return &List[T]{}
}

func newNestedList[T Object](owner *base, attr string) *List[T] {
	return &List[T]{owner: owner, attr: attr}
}

func (l *List[T]) Attribute() string { return l.attr }

func (l *List[T]) Len() int { return len(l.items) }

// Items returns a copy of the list contents in order
func (l *List[T]) Items() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List[T]) Objects() []Object {
	out := make([]Object, len(l.items))
	for i, item := range l.items {
		out[i] = item
	}
	return out
}

// Get returns the direct member with the given id
func (l *List[T]) Get(id string) (T, bool) {
	for _, item := range l.items {
		if item.ID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func (l *List[T]) Lookup(id string) (Object, bool) {
	item, ok := l.Get(id)
	if !ok {
		return nil, false
	}
	return item, true
}

// Append adds items at the end of the list, attaching the list's observer
func (l *List[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	for _, item := range items {
		l.items = append(l.items, item)
		if l.obs != nil {
			item.setObserver(l.obs)
			Walk(item, func(o Object) {
				l.obs.ObjectMutated(o.ID(), AttrAdded)
			})
		}
	}
	l.ownerChanged()
}

func (l *List[T]) AppendObject(o Object) error {
	item, ok := o.(T)
	if !ok {
		return fmt.Errorf("cannot append %s %s to %T", o.Kind(), o.ID(), l)
	}
	l.Append(item)
	return nil
}

// Remove drops the direct members with the given ids and reports whether any
// were removed.
func (l *List[T]) Remove(ids ...string) bool {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := l.items[:0]
	var removed []T
	for _, item := range l.items {
		if drop[item.ID()] {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	clear(l.items[len(kept):])
	l.items = kept
	if len(removed) == 0 {
		return false
	}
	for _, item := range removed {
		if l.obs != nil {
			Walk(item, func(o Object) {
				l.obs.ObjectMutated(o.ID(), AttrDeleted)
			})
		}
		item.setObserver(nil)
	}
	l.ownerChanged()
	return true
}

func (l *List[T]) RemoveObject(id string) bool {
	return l.Remove(id)
}

// Clear empties the list without reporting deletions
func (l *List[T]) Clear() {
	for _, item := range l.items {
		item.setObserver(nil)
	}
	l.items = nil
}

// Observe attaches obs to the list and everything in it
func (l *List[T]) Observe(obs Observer) {
	l.setObserver(obs)
}

func (l *List[T]) setObserver(obs Observer) {
	l.obs = obs
	for _, item := range l.items {
		item.setObserver(obs)
	}
}

func (l *List[T]) ownerChanged() {
	if l.owner != nil {
		l.owner.changed(l.attr)
	}
}
