package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/zenibako/taskdoc-golang/changes"
	"github.com/zenibako/taskdoc-golang/domain"
)

// JSON is the default Encoder. Indent makes the output readable.
type JSON struct {
	Indent bool
}

type documentData struct {
	Version    int                            `json:"version"`
	Guid       string                         `json:"guid"`
	Tasks      []taskData                     `json:"tasks"`
	Categories []categoryData                 `json:"categories"`
	Notes      []noteData                     `json:"notes"`
	// SyncConfig is kept as text so indenting never rewrites it
	SyncConfig string                         `json:"syncConfig,omitempty"`
	Changes    map[string]map[string][]string `json:"changes,omitempty"`
}

type taskData struct {
	ID             string           `json:"id"`
	Subject        string           `json:"subject"`
	Description    string           `json:"description,omitempty"`
	Priority       int              `json:"priority,omitempty"`
	DueDate        time.Time        `json:"dueDate,omitzero"`
	CompletionDate time.Time        `json:"completionDate,omitzero"`
	Categories     []string         `json:"categories,omitempty"`
	Children       []taskData       `json:"children,omitempty"`
	Notes          []noteData       `json:"notes,omitempty"`
	Attachments    []attachmentData `json:"attachments,omitempty"`
	Efforts        []effortData     `json:"efforts,omitempty"`
}

type categoryData struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description,omitempty"`
	Children    []categoryData `json:"children,omitempty"`
}

type noteData struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	Description string           `json:"description,omitempty"`
	Categories  []string         `json:"categories,omitempty"`
	Children    []noteData       `json:"children,omitempty"`
	Attachments []attachmentData `json:"attachments,omitempty"`
}

type attachmentData struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location"`
}

type effortData struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop,omitzero"`
}

type registryData struct {
	Version  int                            `json:"version"`
	Registry map[string]map[string][]string `json:"registry"`
}

// versionProbe is decoded first so a newer format is reported as such
// instead of as a parse failure.
type versionProbe struct {
	Version int `json:"version"`
}

func (j JSON) Read(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if err := checkVersion(data, "document"); err != nil {
		return nil, err
	}

	var doc documentData
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, corrupt("document", data, err)
	}

	s := &Snapshot{Guid: doc.Guid}
	if doc.SyncConfig != "" {
		s.SyncConfig = json.RawMessage(doc.SyncConfig)
	}
	for _, t := range doc.Tasks {
		s.Tasks = append(s.Tasks, t.toTask())
	}
	for _, c := range doc.Categories {
		s.Categories = append(s.Categories, c.toCategory())
	}
	for _, n := range doc.Notes {
		s.Notes = append(s.Notes, n.toNote())
	}
	if doc.Changes != nil {
		s.Registry = registryFromData(doc.Changes)
	}
	return s, nil
}

func (j JSON) Write(w io.Writer, s *Snapshot) error {
	doc := documentData{
		Version:    Version,
		Guid:       s.Guid,
		Tasks:      make([]taskData, 0, len(s.Tasks)),
		Categories: make([]categoryData, 0, len(s.Categories)),
		Notes:      make([]noteData, 0, len(s.Notes)),
		SyncConfig: string(s.SyncConfig),
	}
	for _, t := range s.Tasks {
		doc.Tasks = append(doc.Tasks, fromTask(t))
	}
	for _, c := range s.Categories {
		doc.Categories = append(doc.Categories, fromCategory(c))
	}
	for _, n := range s.Notes {
		doc.Notes = append(doc.Notes, fromNote(n))
	}
	if s.Registry != nil {
		doc.Changes = registryToData(s.Registry)
	}
	return j.encode(w, doc)
}

func (j JSON) ReadRegistry(r io.Reader) (changes.Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read change registry: %w", err)
	}
	if err := checkVersion(data, "change registry"); err != nil {
		return nil, err
	}
	var reg registryData
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, corrupt("change registry", data, err)
	}
	return registryFromData(reg.Registry), nil
}

func (j JSON) WriteRegistry(w io.Writer, reg changes.Registry) error {
	return j.encode(w, registryData{Version: Version, Registry: registryToData(reg)})
}

func (j JSON) encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if j.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}
	return nil
}

func checkVersion(data []byte, what string) error {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return corrupt(what, data, err)
	}
	if probe.Version > Version {
		return &FormatError{Version: probe.Version, Supported: Version}
	}
	return nil
}

func registryFromData(m map[string]map[string][]string) changes.Registry {
	reg := changes.NewRegistry()
	for guid, cs := range m {
		reg[guid] = changes.FromMap(cs)
	}
	return reg
}

func registryToData(reg changes.Registry) map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(reg))
	for guid, cs := range reg {
		out[guid] = cs.ToMap()
	}
	return out
}

func fromTask(t *domain.Task) taskData {
	d := taskData{
		ID:             t.ID(),
		Subject:        t.Subject(),
		Description:    t.Description(),
		Priority:       t.Priority(),
		DueDate:        t.DueDate(),
		CompletionDate: t.CompletionDate(),
		Categories:     t.Categories(),
	}
	for _, c := range t.Children().Items() {
		d.Children = append(d.Children, fromTask(c))
	}
	for _, n := range t.Notes().Items() {
		d.Notes = append(d.Notes, fromNote(n))
	}
	for _, a := range t.Attachments().Items() {
		d.Attachments = append(d.Attachments, fromAttachment(a))
	}
	for _, e := range t.Efforts().Items() {
		d.Efforts = append(d.Efforts, effortData{ID: e.ID(), Description: e.Description(), Start: e.Start(), Stop: e.Stop()})
	}
	return d
}

func (d taskData) toTask() *domain.Task {
	t := domain.NewTaskWithID(d.ID, d.Subject)
	t.SetDescription(d.Description)
	t.SetPriority(d.Priority)
	t.SetDueDate(d.DueDate)
	t.SetCompletionDate(d.CompletionDate)
	t.SetCategories(d.Categories)
	for _, c := range d.Children {
		t.Children().Append(c.toTask())
	}
	for _, n := range d.Notes {
		t.Notes().Append(n.toNote())
	}
	for _, a := range d.Attachments {
		t.Attachments().Append(a.toAttachment())
	}
	for _, e := range d.Efforts {
		effort := domain.NewEffortWithID(e.ID, e.Start)
		effort.SetDescription(e.Description)
		effort.SetStop(e.Stop)
		t.Efforts().Append(effort)
	}
	return t
}

func fromCategory(c *domain.Category) categoryData {
	d := categoryData{ID: c.ID(), Subject: c.Subject(), Description: c.Description()}
	for _, child := range c.Children().Items() {
		d.Children = append(d.Children, fromCategory(child))
	}
	return d
}

func (d categoryData) toCategory() *domain.Category {
	c := domain.NewCategoryWithID(d.ID, d.Subject)
	c.SetDescription(d.Description)
	for _, child := range d.Children {
		c.Children().Append(child.toCategory())
	}
	return c
}

func fromNote(n *domain.Note) noteData {
	d := noteData{ID: n.ID(), Subject: n.Subject(), Description: n.Description(), Categories: n.Categories()}
	for _, child := range n.Children().Items() {
		d.Children = append(d.Children, fromNote(child))
	}
	for _, a := range n.Attachments().Items() {
		d.Attachments = append(d.Attachments, fromAttachment(a))
	}
	return d
}

func (d noteData) toNote() *domain.Note {
	n := domain.NewNoteWithID(d.ID, d.Subject)
	n.SetDescription(d.Description)
	n.SetCategories(d.Categories)
	for _, child := range d.Children {
		n.Children().Append(child.toNote())
	}
	for _, a := range d.Attachments {
		n.Attachments().Append(a.toAttachment())
	}
	return n
}

func fromAttachment(a *domain.Attachment) attachmentData {
	return attachmentData{ID: a.ID(), Subject: a.Subject(), Description: a.Description(), Location: a.Location()}
}

func (d attachmentData) toAttachment() *domain.Attachment {
	a := domain.NewAttachmentWithID(d.ID, d.Subject, d.Location)
	a.SetDescription(d.Description)
	return a
}
