package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenibako/taskdoc-golang/domain"
)

func TestChangeSetMarkers(t *testing.T) {
	tests := []struct {
		name    string
		record  [][2]string
		want    map[string][]string
		deleted []string
	}{
		{
			name:   "attributes accumulate",
			record: [][2]string{{"a", "subject"}, {"a", "priority"}, {"a", "subject"}},
			want:   map[string][]string{"a": {"priority", "subject"}},
		},
		{
			name:   "created then deleted leaves no trace",
			record: [][2]string{{"a", domain.AttrAdded}, {"a", "subject"}, {"a", domain.AttrDeleted}},
			want:   map[string][]string{},
		},
		{
			name:    "attributes after a deletion are ignored",
			record:  [][2]string{{"a", "subject"}, {"a", domain.AttrDeleted}, {"a", "priority"}},
			want:    map[string][]string{"a": {domain.AttrDeleted, "subject"}},
			deleted: []string{"a"},
		},
		{
			name:   "re-adding clears the deletion",
			record: [][2]string{{"a", domain.AttrDeleted}, {"a", domain.AttrAdded}},
			want:   map[string][]string{"a": {domain.AttrAdded}},
		},
		{
			name:   "remove and re-append keeps earlier edits",
			record: [][2]string{{"a", "subject"}, {"a", domain.AttrDeleted}, {"a", domain.AttrAdded}},
			want:   map[string][]string{"a": {domain.AttrAdded, "subject"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := NewChangeSet()
			for _, r := range tt.record {
				cs.Add(r[0], r[1])
			}
			assert.Equal(t, tt.want, cs.ToMap())
			for _, id := range tt.deleted {
				assert.True(t, cs.Deleted(id))
			}
		})
	}
}

func TestChangeSetMergeAndRoundTrip(t *testing.T) {
	a := NewChangeSet()
	a.Add("x", "subject")
	b := NewChangeSet()
	b.Add("x", "priority")
	b.Add("y", domain.AttrAdded)

	a.Merge(b)
	assert.Equal(t, []string{"priority", "subject"}, a.Changed("x"))
	assert.True(t, a.Added("y"))
	assert.Equal(t, []string{"x", "y"}, a.IDs())

	assert.Equal(t, a, FromMap(a.ToMap()))
}

func TestRegistryFoldSkipsTheAuthor(t *testing.T) {
	reg := NewRegistry()
	reg.Ensure("device-a")
	reg.Ensure("device-b")
	reg.Ensure("device-c")

	committed := NewChangeSet()
	committed.Add("task-1", "subject")
	reg.Fold("device-a", committed)

	assert.Equal(t, 0, reg["device-a"].Len())
	assert.True(t, reg["device-b"].Has("task-1"))
	assert.True(t, reg["device-c"].Has("task-1"))

	reg.Reset("device-b")
	assert.Equal(t, 0, reg["device-b"].Len())

	reg.Drop("device-c")
	assert.Equal(t, []string{"device-a", "device-b"}, reg.Guids())
}

func TestLogFreezeSuppressesRecording(t *testing.T) {
	l := NewLog()
	tasks := domain.NewList[*domain.Task]()
	var seen int
	l.Monitor(tasks, domain.ObserverFunc(func(id, attr string) { seen++ }))

	thaw := l.Freeze()
	inner := l.Freeze()
	task := domain.NewTask("Loaded from disk")
	tasks.Append(task)
	inner()
	assert.True(t, l.Frozen(), "freezes nest")
	task.SetPriority(1)
	thaw()
	thaw()
	assert.False(t, l.Frozen(), "a second thaw is a no-op")
	assert.Equal(t, 0, l.Changes().Len())
	assert.Equal(t, 2, seen, "extra observers see frozen mutations")

	task.SetSubject("Edited by the user")
	require.True(t, l.Changes().Has(task.ID()))
	assert.Equal(t, []string{domain.AttrSubject}, l.Changes().Changed(task.ID()))

	l.ResetAllChanges()
	assert.Equal(t, 0, l.Changes().Len())
}

func TestLogMergeRecordsWhileFrozen(t *testing.T) {
	l := NewLog()
	l.ObjectMutated("x", "subject")

	imported := NewChangeSet()
	imported.Add("x", "priority")
	imported.Add("y", domain.AttrAdded)
	imported.Add("z", domain.AttrDeleted)

	thaw := l.Freeze()
	l.Merge(imported)
	l.ObjectMutated("w", "subject")
	thaw()

	got := l.Changes()
	assert.Equal(t, []string{"priority", "subject"}, got.Changed("x"))
	assert.True(t, got.Added("y"))
	assert.True(t, got.Deleted("z"))
	assert.False(t, got.Has("w"), "observed mutations stay suppressed while frozen")

	imported.Add("q", "subject")
	assert.False(t, l.Changes().Has("q"), "the log keeps its own copy")
}

func TestLogRegenerate(t *testing.T) {
	l := NewLog()
	first := l.Guid()
	l.ObjectMutated("x", "subject")
	l.Regenerate()
	assert.NotEqual(t, first, l.Guid())
	assert.Equal(t, 0, l.Changes().Len())
}
