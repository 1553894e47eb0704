package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutation struct {
	id   string
	attr string
}

type recorder struct {
	seen []mutation
}

func (r *recorder) ObjectMutated(id, attribute string) {
	r.seen = append(r.seen, mutation{id, attribute})
}

func (r *recorder) has(id, attr string) bool {
	for _, m := range r.seen {
		if m.id == id && m.attr == attr {
			return true
		}
	}
	return false
}

func TestListReportsStructuralChanges(t *testing.T) {
	rec := &recorder{}
	tasks := NewList[*Task]()
	tasks.Observe(rec)

	parent := NewTask("Parent")
	child := NewTask("Child")
	parent.Children().Append(child)

	tasks.Append(parent)
	assert.True(t, rec.has(parent.ID(), AttrAdded))
	assert.True(t, rec.has(child.ID(), AttrAdded), "nested objects are reported as added")

	rec.seen = nil
	grandchild := NewTask("Grandchild")
	child.Children().Append(grandchild)
	assert.True(t, rec.has(grandchild.ID(), AttrAdded))
	assert.True(t, rec.has(child.ID(), AttrChildren), "owner reports its nested list changed")

	rec.seen = nil
	require.True(t, tasks.Remove(parent.ID()))
	assert.True(t, rec.has(parent.ID(), AttrDeleted))
	assert.True(t, rec.has(grandchild.ID(), AttrDeleted))

	rec.seen = nil
	parent.SetSubject("Detached")
	assert.Empty(t, rec.seen, "removed objects are no longer observed")
}

func TestSettersReportOnlyRealChanges(t *testing.T) {
	rec := &recorder{}
	task := NewTask("Buy milk")
	Observe(task, rec)

	task.SetSubject("Buy milk")
	task.SetPriority(0)
	assert.Empty(t, rec.seen)

	task.SetSubject("Buy oat milk")
	task.SetPriority(3)
	task.AddCategory("errands")
	task.AddCategory("errands")
	assert.Equal(t, []mutation{
		{task.ID(), AttrSubject},
		{task.ID(), AttrPriority},
		{task.ID(), AttrCategories},
	}, rec.seen)
}

func TestCopyAttributesAndEqual(t *testing.T) {
	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := NewTaskWithID("t1", "Report")
	b := NewTaskWithID("t1", "Quarterly report")
	b.SetPriority(2)
	b.SetDueDate(due)

	assert.False(t, a.Equal(b, AttrSubject))
	assert.False(t, a.Equal(b, AttrPriority))

	a.CopyAttributes(b, []string{AttrPriority})
	assert.Equal(t, 2, a.Priority())
	assert.Equal(t, "Report", a.Subject(), "attributes not named are left alone")

	a.CopyAttributes(b, a.Attributes())
	for _, attr := range a.Attributes() {
		assert.True(t, a.Equal(b, attr), attr)
	}
}

func TestFindAndEfforts(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	root := NewTask("Root")
	sub := NewTask("Sub")
	root.Children().Append(sub)
	e1 := NewEffort(start)
	e1.SetStop(start.Add(time.Hour))
	e2 := NewEffort(start.Add(2 * time.Hour))
	root.Efforts().Append(e1)
	sub.Efforts().Append(e2)

	found, ok := Find([]*Task{root}, e2.ID())
	require.True(t, ok)
	assert.Equal(t, KindEffort, found.Kind())

	efforts := Efforts([]*Task{root})
	assert.Len(t, efforts, 2)
	assert.Equal(t, time.Hour, e1.Duration())
	assert.True(t, e2.IsTracking())
}

func TestAppendObjectRejectsWrongKind(t *testing.T) {
	notes := NewList[*Note]()
	err := notes.AppendObject(NewTask("Not a note"))
	assert.Error(t, err)
	assert.Equal(t, 0, notes.Len())
}
