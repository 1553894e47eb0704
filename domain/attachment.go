package domain

// Attachment references an external file or URL
type Attachment struct {
	base
	location string
}

func NewAttachment(subject, location string) *Attachment {
	return NewAttachmentWithID("", subject, location)
}

func NewAttachmentWithID(id, subject, location string) *Attachment {
	return &Attachment{base: newBase(id, subject), location: location}
}

func (a *Attachment) Kind() Kind       { return KindAttachment }
func (a *Attachment) Location() string { return a.location }

func (a *Attachment) SetLocation(location string) {
	if a.location == location {
		return
	}
	a.location = location
	a.changed(AttrLocation)
}

func (a *Attachment) Attributes() []string {
	return []string{AttrSubject, AttrDescription, AttrLocation}
}

func (a *Attachment) Equal(other Object, attr string) bool {
	o, ok := other.(*Attachment)
	if !ok {
		return false
	}
	if equal, handled := a.equalText(&o.base, attr); handled {
		return equal
	}
	if attr == AttrLocation {
		return a.location == o.location
	}
	return true
}

func (a *Attachment) CopyAttributes(src Object, attrs []string) {
	o, ok := src.(*Attachment)
	if !ok {
		return
	}
	for _, attr := range attrs {
		if attr == AttrLocation {
			a.SetLocation(o.location)
			continue
		}
		a.copyText(&o.base, attr)
	}
}

func (a *Attachment) Collections() []Collection { return nil }

func (a *Attachment) setObserver(obs Observer) { a.obs = obs }
