// Package events carries document notifications to whoever is interested,
// typically a user interface.
package events

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

// Type is the closed set of document notifications
type Type string

const (
	AboutToRead     Type = "about_to_read"
	JustRead        Type = "just_read"
	AboutToSave     Type = "about_to_save"
	JustSaved       Type = "just_saved"
	AboutToClear    Type = "about_to_clear"
	JustCleared     Type = "just_cleared"
	Dirty           Type = "dirty"
	Clean           Type = "clean"
	FilenameChanged Type = "filename_changed"
	ChangedOnDisk   Type = "changed_on_disk"
	Merged          Type = "merged" // Detail holds the merge report
)

// All lists every Type in emission order of a typical load and save
var All = []Type{
	AboutToRead, JustRead, AboutToSave, JustSaved, AboutToClear, JustCleared,
	Dirty, Clean, FilenameChanged, ChangedOnDisk, Merged,
}

// Event is one notification
type Event struct {
	Type     Type
	Filename string
	Detail   any
}

func (e Event) String() string {
	if e.Filename == "" {
		return string(e.Type)
	}
	return fmt.Sprintf("%s %s", e.Type, e.Filename)
}

// Listener receives events. It runs on the publishing goroutine.
type Listener func(Event)

type subscription struct {
	id     int
	fn     Listener
	filter []Type
}

func (s subscription) wants(t Type) bool {
	return len(s.filter) == 0 || slices.Contains(s.filter, t)
}

// Bus delivers events to subscribers in subscription order
type Bus struct {
	mu   sync.Mutex
	next int
	subs []subscription
}

// Subscribe registers fn for the given types, or for every type when none
// are given. The returned function removes the subscription.
func (b *Bus) Subscribe(fn Listener, types ...Type) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, fn: fn, filter: slices.Clone(types)})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// Publish delivers e synchronously. A panicking listener is logged and
// does not stop delivery to the others.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.wants(e.Type) {
			deliver(s.fn, e)
		}
	}
}

func deliver(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Event listener panicked", "event", e.Type, "panic", r)
		}
	}()
	fn(e)
}
