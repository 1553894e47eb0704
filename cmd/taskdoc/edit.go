package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zenibako/taskdoc-golang/domain"
	"github.com/zenibako/taskdoc-golang/taskdoc"
)

// edit opens filename, applies change and saves
func edit(filename string, change func(doc *taskdoc.Document) error) error {
	doc, err := openDocument(filename)
	if err != nil {
		return err
	}
	defer closeDocument(doc)

	if err := change(doc); err != nil {
		return err
	}
	return doc.Save()
}

func runAddTask(cmd *cobra.Command, args []string) error {
	return edit(args[0], func(doc *taskdoc.Document) error {
		task := domain.NewTask(args[1])
		task.SetPriority(priority)
		task.SetDescription(description)
		doc.Tasks().Append(task)
		fmt.Fprintln(cmd.OutOrStdout(), task.ID())
		return nil
	})
}

func runAddCategory(cmd *cobra.Command, args []string) error {
	return edit(args[0], func(doc *taskdoc.Document) error {
		category := domain.NewCategory(args[1])
		doc.Categories().Append(category)
		fmt.Fprintln(cmd.OutOrStdout(), category.ID())
		return nil
	})
}

func runAddNote(cmd *cobra.Command, args []string) error {
	return edit(args[0], func(doc *taskdoc.Document) error {
		note := domain.NewNote(args[1])
		note.SetDescription(description)
		doc.Notes().Append(note)
		fmt.Fprintln(cmd.OutOrStdout(), note.ID())
		return nil
	})
}

func runSet(cmd *cobra.Command, args []string) error {
	filename, id, attr, value := args[0], args[1], args[2], args[3]
	return edit(filename, func(doc *taskdoc.Document) error {
		o, ok := findObject(doc, id)
		if !ok {
			return fmt.Errorf("no object with id %s in %s", id, filename)
		}
		return setAttribute(o, attr, value)
	})
}

func runMerge(cmd *cobra.Command, args []string) error {
	return edit(args[0], func(doc *taskdoc.Document) error {
		return doc.Merge(args[1])
	})
}

func findObject(doc *taskdoc.Document, id string) (domain.Object, bool) {
	if o, ok := domain.Find(doc.Tasks().Items(), id); ok {
		return o, true
	}
	if o, ok := domain.Find(doc.Categories().Items(), id); ok {
		return o, true
	}
	return domain.Find(doc.Notes().Items(), id)
}

// setAttribute parses value for attr and applies it to o
func setAttribute(o domain.Object, attr, value string) error {
	if !slices.Contains(o.Attributes(), attr) {
		return fmt.Errorf("%s has no attribute %q (have: %s)", o.Kind(), attr, strings.Join(o.Attributes(), ", "))
	}
	log.Debug("Setting attribute", "id", o.ID(), "attribute", attr, "value", value)

	switch attr {
	case domain.AttrSubject:
		o.(interface{ SetSubject(string) }).SetSubject(value)
	case domain.AttrDescription:
		o.(interface{ SetDescription(string) }).SetDescription(value)
	case domain.AttrPriority:
		p, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("priority must be a number: %w", err)
		}
		o.(*domain.Task).SetPriority(p)
	case domain.AttrDueDate, domain.AttrCompletionDate, domain.AttrStart, domain.AttrStop:
		t, err := parseDate(value)
		if err != nil {
			return err
		}
		return setDate(o, attr, t)
	case domain.AttrCategories:
		var ids []string
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		o.(interface{ SetCategories([]string) }).SetCategories(ids)
	case domain.AttrLocation:
		o.(*domain.Attachment).SetLocation(value)
	default:
		return fmt.Errorf("attribute %q cannot be set from the command line", attr)
	}
	return nil
}

func setDate(o domain.Object, attr string, t time.Time) error {
	switch v := o.(type) {
	case *domain.Task:
		if attr == domain.AttrDueDate {
			v.SetDueDate(t)
		} else {
			v.SetCompletionDate(t)
		}
	case *domain.Effort:
		if attr == domain.AttrStart {
			v.SetStart(t)
		} else {
			v.SetStop(t)
		}
	default:
		return fmt.Errorf("%s has no date attribute %q", o.Kind(), attr)
	}
	return nil
}

// parseDate accepts RFC 3339, a plain date, or nothing to clear
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", value)
	}
	return t, nil
}
