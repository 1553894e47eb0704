package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zenibako/taskdoc-golang/domain"
	"github.com/zenibako/taskdoc-golang/taskdoc"
)

var (
	headingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	idStyle       = lipgloss.NewStyle().Faint(true)
	doneStyle     = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("8"))
	priorityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dueStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	droppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	conflictStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
)

func renderDocument(doc *taskdoc.Document) string {
	categories := make(map[string]string)
	for _, c := range doc.Categories().Items() {
		domain.Walk(c, func(o domain.Object) {
			categories[o.ID()] = o.(*domain.Category).Subject()
		})
	}

	var b strings.Builder
	fmt.Fprintln(&b, headingStyle.Render(fmt.Sprintf("Tasks (%d)", doc.Tasks().Len())))
	for _, task := range doc.Tasks().Items() {
		renderTask(&b, task, categories, 1)
	}

	fmt.Fprintln(&b, headingStyle.Render(fmt.Sprintf("Categories (%d)", doc.Categories().Len())))
	for _, c := range doc.Categories().Items() {
		renderCategory(&b, c, 1)
	}

	fmt.Fprintln(&b, headingStyle.Render(fmt.Sprintf("Notes (%d)", doc.Notes().Len())))
	for _, n := range doc.Notes().Items() {
		renderNote(&b, n, 1)
	}

	var total time.Duration
	for _, e := range doc.Efforts() {
		total += e.Duration()
	}
	if total > 0 {
		fmt.Fprintf(&b, "%s %s\n", headingStyle.Render("Time spent"), total.Round(time.Minute))
	}
	return b.String()
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}

func renderTask(w io.Writer, t *domain.Task, categories map[string]string, depth int) {
	subject := t.Subject()
	if t.Completed() {
		subject = doneStyle.Render(subject)
	}
	line := indent(depth) + subject
	if t.Priority() != 0 {
		line += " " + priorityStyle.Render(fmt.Sprintf("!%d", t.Priority()))
	}
	if !t.DueDate().IsZero() && !t.Completed() {
		line += " " + dueStyle.Render("due "+t.DueDate().Format(time.DateOnly))
	}
	if ids := t.Categories(); len(ids) > 0 {
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = id
			if name, ok := categories[id]; ok {
				names[i] = name
			}
		}
		line += " [" + strings.Join(names, ", ") + "]"
	}
	fmt.Fprintln(w, line+" "+idStyle.Render(t.ID()))
	for _, n := range t.Notes().Items() {
		renderNote(w, n, depth+1)
	}
	for _, a := range t.Attachments().Items() {
		fmt.Fprintf(w, "%s@ %s %s\n", indent(depth+1), a.Subject(), idStyle.Render(a.Location()))
	}
	for _, child := range t.Children().Items() {
		renderTask(w, child, categories, depth+1)
	}
}

func renderCategory(w io.Writer, c *domain.Category, depth int) {
	fmt.Fprintln(w, indent(depth)+c.Subject()+" "+idStyle.Render(c.ID()))
	for _, child := range c.Children().Items() {
		renderCategory(w, child, depth+1)
	}
}

func renderNote(w io.Writer, n *domain.Note, depth int) {
	fmt.Fprintln(w, indent(depth)+"# "+n.Subject()+" "+idStyle.Render(n.ID()))
	for _, child := range n.Children().Items() {
		renderNote(w, child, depth+1)
	}
}

func renderReport(report *taskdoc.MergeReport) string {
	var b strings.Builder
	if !report.DiskExists {
		fmt.Fprintln(&b, "Nothing on disk to merge with")
		return b.String()
	}
	fmt.Fprintln(&b, headingStyle.Render("Merged: "+report.Summary()))
	if !report.KnownDevice {
		fmt.Fprintln(&b, idStyle.Render("This writer was unknown to the file, changes were inferred"))
	}
	for _, id := range report.IDs() {
		result := report.Results[id]
		label := string(result.Resolution)
		switch result.Resolution {
		case taskdoc.ResolutionAdded:
			label = addedStyle.Render(label)
		case taskdoc.ResolutionDropped:
			label = droppedStyle.Render(label)
		case taskdoc.ResolutionConflict:
			label = conflictStyle.Render(label)
		}
		fmt.Fprintf(&b, "  %s %s %s %s\n", label, result.Kind, idStyle.Render(id), result.Reason)
	}
	for _, c := range report.Conflicts {
		fmt.Fprintf(&b, "  %s %s, kept %s\n", conflictStyle.Render("conflict"), c.Description, c.Chosen)
	}
	return b.String()
}
