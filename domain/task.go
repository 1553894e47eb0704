package domain

import (
	"slices"
	"time"
)

// Task is a to-do item. Tasks nest (subtasks) and own their notes,
// attachments and tracked efforts.
type Task struct {
	base
	priority       int
	dueDate        time.Time
	completionDate time.Time
	categories     []string // category ids

	children    *List[*Task]
	notes       *List[*Note]
	attachments *List[*Attachment]
	efforts     *List[*Effort]
}

// NewTask creates a task with a fresh id
func NewTask(subject string) *Task {
	return NewTaskWithID("", subject)
}

// NewTaskWithID creates a task with a known id, as read from disk
func NewTaskWithID(id, subject string) *Task {
	t := &Task{base: newBase(id, subject)}
	t.children = newNestedList[*Task](&t.base, AttrChildren)
	t.notes = newNestedList[*Note](&t.base, AttrNotes)
	t.attachments = newNestedList[*Attachment](&t.base, AttrAttachments)
	t.efforts = newNestedList[*Effort](&t.base, AttrEfforts)
	return t
}

func (t *Task) Kind() Kind { return KindTask }

func (t *Task) Priority() int                   { return t.priority }
func (t *Task) DueDate() time.Time              { return t.dueDate }
func (t *Task) CompletionDate() time.Time       { return t.completionDate }
func (t *Task) Completed() bool                 { return !t.completionDate.IsZero() }
func (t *Task) Categories() []string            { return slices.Clone(t.categories) }
func (t *Task) Children() *List[*Task]          { return t.children }
func (t *Task) Notes() *List[*Note]             { return t.notes }
func (t *Task) Attachments() *List[*Attachment] { return t.attachments }
func (t *Task) Efforts() *List[*Effort]         { return t.efforts }

func (t *Task) SetPriority(priority int) {
	if t.priority == priority {
		return
	}
	t.priority = priority
	t.changed(AttrPriority)
}

func (t *Task) SetDueDate(due time.Time) {
	if t.dueDate.Equal(due) {
		return
	}
	t.dueDate = due
	t.changed(AttrDueDate)
}

func (t *Task) SetCompletionDate(done time.Time) {
	if t.completionDate.Equal(done) {
		return
	}
	t.completionDate = done
	t.changed(AttrCompletionDate)
}

func (t *Task) SetCategories(ids []string) {
	next := normalizeIDs(ids)
	if slices.Equal(t.categories, next) {
		return
	}
	t.categories = next
	t.changed(AttrCategories)
}

func (t *Task) AddCategory(id string) {
	t.SetCategories(append(t.Categories(), id))
}

func (t *Task) RemoveCategory(id string) {
	t.SetCategories(slices.DeleteFunc(t.Categories(), func(c string) bool { return c == id }))
}

func (t *Task) Attributes() []string {
	return []string{AttrSubject, AttrDescription, AttrPriority, AttrDueDate, AttrCompletionDate, AttrCategories}
}

func (t *Task) Equal(other Object, attr string) bool {
	o, ok := other.(*Task)
	if !ok {
		return false
	}
	if equal, handled := t.equalText(&o.base, attr); handled {
		return equal
	}
	switch attr {
	case AttrPriority:
		return t.priority == o.priority
	case AttrDueDate:
		return t.dueDate.Equal(o.dueDate)
	case AttrCompletionDate:
		return t.completionDate.Equal(o.completionDate)
	case AttrCategories:
		return slices.Equal(t.categories, o.categories)
	}
	return true
}

func (t *Task) CopyAttributes(src Object, attrs []string) {
	o, ok := src.(*Task)
	if !ok {
		return
	}
	for _, attr := range attrs {
		switch attr {
		case AttrSubject, AttrDescription:
			t.copyText(&o.base, attr)
		case AttrPriority:
			t.SetPriority(o.priority)
		case AttrDueDate:
			t.SetDueDate(o.dueDate)
		case AttrCompletionDate:
			t.SetCompletionDate(o.completionDate)
		case AttrCategories:
			t.SetCategories(o.categories)
		}
	}
}

func (t *Task) Collections() []Collection {
	return []Collection{t.children, t.notes, t.attachments, t.efforts}
}

func (t *Task) setObserver(obs Observer) {
	t.obs = obs
	t.children.setObserver(obs)
	t.notes.setObserver(obs)
	t.attachments.setObserver(obs)
	t.efforts.setObserver(obs)
}

// Efforts returns the derived effort view: every effort of every task and subtask
func Efforts(tasks []*Task) []*Effort {
	var out []*Effort
	for _, t := range tasks {
		out = append(out, t.efforts.Items()...)
		out = append(out, Efforts(t.children.Items())...)
	}
	return out
}

// normalizeIDs returns a sorted, de-duplicated copy without empty ids
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
