package domain

// Category groups tasks and notes. Membership is stored on the categorized
// object as a list of category ids.
type Category struct {
	base
	children *List[*Category]
}

func NewCategory(subject string) *Category {
	return NewCategoryWithID("", subject)
}

func NewCategoryWithID(id, subject string) *Category {
	c := &Category{base: newBase(id, subject)}
	c.children = newNestedList[*Category](&c.base, AttrChildren)
	return c
}

func (c *Category) Kind() Kind                 { return KindCategory }
func (c *Category) Children() *List[*Category] { return c.children }

func (c *Category) Attributes() []string {
	return []string{AttrSubject, AttrDescription}
}

func (c *Category) Equal(other Object, attr string) bool {
	o, ok := other.(*Category)
	if !ok {
		return false
	}
	equal, _ := c.equalText(&o.base, attr)
	return equal
}

func (c *Category) CopyAttributes(src Object, attrs []string) {
	o, ok := src.(*Category)
	if !ok {
		return
	}
	for _, attr := range attrs {
		c.copyText(&o.base, attr)
	}
}

func (c *Category) Collections() []Collection {
	return []Collection{c.children}
}

func (c *Category) setObserver(obs Observer) {
	c.obs = obs
	c.children.setObserver(obs)
}
