package changes

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/zenibako/taskdoc-golang/domain"
)

// Observable is anything that accepts a mutation observer, typically a domain.List
type Observable interface {
	Observe(obs domain.Observer)
}

// Log is the change monitor of one device. It records every mutation of the
// collections it monitors into the live ChangeSet unless frozen.
type Log struct {
	mu      sync.Mutex
	guid    string
	changes ChangeSet
	frozen  int
}

// NewLog creates a log with a fresh device guid
func NewLog() *Log {
	return &Log{guid: newGuid(), changes: NewChangeSet()}
}

func newGuid() string {
	return uuid.NewString()
}

func (l *Log) Guid() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.guid
}

// Changes returns a copy of the live change set
func (l *Log) Changes() ChangeSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changes.Clone()
}

// Monitor subscribes the log to target. Extra observers receive every
// mutation as well, frozen or not.
func (l *Log) Monitor(target Observable, also ...domain.Observer) {
	if len(also) == 0 {
		target.Observe(l)
		return
	}
	target.Observe(tee(append([]domain.Observer{l}, also...)))
}

// ObjectMutated implements domain.Observer
func (l *Log) ObjectMutated(id, attribute string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen > 0 {
		return
	}
	l.changes.Add(id, attribute)
}

// Freeze stops recording until the returned thaw function is called.
// Freezes nest; calling thaw more than once has no further effect.
func (l *Log) Freeze() (thaw func()) {
	l.mu.Lock()
	l.frozen++
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.frozen--
			l.mu.Unlock()
		})
	}
}

func (l *Log) Frozen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frozen > 0
}

// ResetAllChanges starts a new, empty baseline
func (l *Log) ResetAllChanges() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = NewChangeSet()
}

// Merge folds other into the live change set
func (l *Log) Merge(other ChangeSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes.Merge(other)
}

// Regenerate gives the device a new identity and an empty baseline
func (l *Log) Regenerate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.guid
	l.guid = newGuid()
	l.changes = NewChangeSet()
	log.Debug("Regenerated device guid", "old", old, "new", l.guid)
}

type tee []domain.Observer

func (t tee) ObjectMutated(id, attribute string) {
	for _, obs := range t {
		obs.ObjectMutated(id, attribute)
	}
}
