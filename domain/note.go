package domain

import (
	"slices"
)

// Note is free text, either at the top level of a document or owned by a task
type Note struct {
	base
	categories  []string
	children    *List[*Note]
	attachments *List[*Attachment]
}

func NewNote(subject string) *Note {
	return NewNoteWithID("", subject)
}

func NewNoteWithID(id, subject string) *Note {
	n := &Note{base: newBase(id, subject)}
	n.children = newNestedList[*Note](&n.base, AttrChildren)
	n.attachments = newNestedList[*Attachment](&n.base, AttrAttachments)
	return n
}

func (n *Note) Kind() Kind                      { return KindNote }
func (n *Note) Categories() []string            { return slices.Clone(n.categories) }
func (n *Note) Children() *List[*Note]          { return n.children }
func (n *Note) Attachments() *List[*Attachment] { return n.attachments }

func (n *Note) SetCategories(ids []string) {
	next := normalizeIDs(ids)
	if slices.Equal(n.categories, next) {
		return
	}
	n.categories = next
	n.changed(AttrCategories)
}

func (n *Note) AddCategory(id string) {
	n.SetCategories(append(n.Categories(), id))
}

func (n *Note) Attributes() []string {
	return []string{AttrSubject, AttrDescription, AttrCategories}
}

func (n *Note) Equal(other Object, attr string) bool {
	o, ok := other.(*Note)
	if !ok {
		return false
	}
	if equal, handled := n.equalText(&o.base, attr); handled {
		return equal
	}
	if attr == AttrCategories {
		return slices.Equal(n.categories, o.categories)
	}
	return true
}

func (n *Note) CopyAttributes(src Object, attrs []string) {
	o, ok := src.(*Note)
	if !ok {
		return
	}
	for _, attr := range attrs {
		if attr == AttrCategories {
			n.SetCategories(o.categories)
			continue
		}
		n.copyText(&o.base, attr)
	}
}

func (n *Note) Collections() []Collection {
	return []Collection{n.children, n.attachments}
}

func (n *Note) setObserver(obs Observer) {
	n.obs = obs
	n.children.setObserver(obs)
	n.attachments.setObserver(obs)
}
