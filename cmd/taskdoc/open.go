package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/zenibako/taskdoc-golang/backup"
	"github.com/zenibako/taskdoc-golang/lockfile"
	"github.com/zenibako/taskdoc-golang/taskdoc"
)

// Lock recovery choices
const (
	recoverBreak    = "break"
	recoverUnlocked = "unlocked"
	recoverCancel   = "cancel"
)

func interactiveTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newDocument() *taskdoc.Document {
	doc := taskdoc.NewDocument()
	doc.ApplyConfig(cfg)
	return doc
}

// openDocument loads filename. With a terminal attached, lock and load
// failures are offered to the user instead of failing straight away.
func openDocument(filename string) (*taskdoc.Document, error) {
	doc := newDocument()
	opts := doc.LoadOptions()
	ask := interactiveTerminal()

	for {
		err := doc.Load(filename, opts)
		if err == nil {
			return doc, nil
		}

		var loadErr *taskdoc.LoadError
		switch {
		case errors.Is(err, lockfile.ErrLockTimeout) && ask:
			choice, promptErr := promptLockRecovery(filename, err)
			if promptErr != nil {
				return nil, promptErr
			}
			switch choice {
			case recoverBreak:
				opts.BreakLock = true
			case recoverUnlocked:
				opts.Lock = false
			default:
				return nil, err
			}
		case errors.Is(err, lockfile.ErrLockUnsupported) && ask:
			unlocked, promptErr := confirmUnlocked(filename, err)
			if promptErr != nil {
				return nil, promptErr
			}
			if !unlocked {
				return nil, err
			}
			opts.Lock = false
		case errors.As(err, &loadErr) && len(loadErr.Backups) > 0 && ask:
			b, promptErr := promptBackup(filename, loadErr.Backups, err)
			if promptErr != nil {
				return nil, promptErr
			}
			if b == nil {
				return nil, err
			}
			if err := doc.RestoreBackup(filename, *b, opts); err != nil {
				return nil, err
			}
			return doc, nil
		default:
			return nil, err
		}
	}
}

func promptLockRecovery(filename string, cause error) (string, error) {
	var timeout *lockfile.TimeoutError
	holder := "another writer"
	if errors.As(cause, &timeout) && timeout.Holder != nil {
		holder = timeout.Holder.String()
	}
	log.Warnf("%s is locked by %s", filename, holder)

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("%s is locked", filename)).
				Description(fmt.Sprintf("Held by %s. Break the lock only if that writer is gone.", holder)).
				Options(
					huh.NewOption("Break the lock and retry", recoverBreak),
					huh.NewOption("Open without locking", recoverUnlocked),
					huh.NewOption("Cancel", recoverCancel),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("failed to get user input for lock recovery: %v", err)
	}
	log.Infof("User chose %s for %s", choice, filename)
	return choice, nil
}

func confirmUnlocked(filename string, cause error) (bool, error) {
	var unlocked bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s cannot be locked", filename)).
				Description(fmt.Sprintf("%v\nOther writers will not be kept out while this file is open.", cause)).
				Affirmative("Open without locking").
				Negative("Cancel").
				Value(&unlocked),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to get user input for unlocked access: %v", err)
	}
	return unlocked, nil
}

// promptBackup returns nil when the user declines to restore
func promptBackup(filename string, backups []backup.Backup, cause error) (*backup.Backup, error) {
	log.Warnf("Cannot load %s: %v", filename, cause)

	choice := -1
	options := []huh.Option[int]{huh.NewOption("Cancel", -1)}
	for i, b := range backups {
		options = append(options, huh.NewOption(describeBackup(b), i))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(fmt.Sprintf("%s could not be read. Restore a backup?", filename)).
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("failed to get user input for backup restore: %v", err)
	}
	if choice < 0 {
		return nil, nil
	}
	return &backups[choice], nil
}

func describeBackup(b backup.Backup) string {
	return fmt.Sprintf("%s (%s, %s)", b.Created.Local().Format(time.DateTime), humanize.Time(b.Created), humanize.Bytes(uint64(b.Size)))
}

// closeDocument leaves the file's change registry, logging failures
func closeDocument(doc *taskdoc.Document) {
	if err := doc.Close(); err != nil {
		log.Warn("Failed to close document", "error", err)
	}
}
