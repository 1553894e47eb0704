package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zenibako/taskdoc-golang/backup"
	"github.com/zenibako/taskdoc-golang/lockfile"
)

func runBreakLock(cmd *cobra.Command, args []string) error {
	filename := args[0]
	holder, err := lockfile.Holder(filename)
	if err != nil {
		log.Warn("Lock holder is unreadable", "file", filename, "error", err)
	}
	if holder == nil && err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not locked\n", filename)
		return nil
	}
	if holder != nil && holder.Alive {
		log.Warnf("Lock on %s belongs to %s, which may still be running", filename, holder)
	}
	if err := lockfile.Break(filename); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed the lock on %s (%s)\n", filename, holder)
	return nil
}

func backupStore() *backup.Store {
	return &backup.Store{Dir: cfg.Backup.Dir, Keep: cfg.Backup.Keep}
}

func runBackups(cmd *cobra.Command, args []string) error {
	backups, err := backupStore().List(args[0])
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No backups of %s\n", args[0])
		return nil
	}
	for _, b := range backups {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", describeBackup(b), idStyle.Render(b.Path))
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	filename := args[0]
	store := backupStore()

	var chosen *backup.Backup
	switch {
	case latest:
		b, err := store.MostRecent(filename)
		if err != nil {
			return err
		}
		chosen = b
	case interactiveTerminal():
		backups, err := store.List(filename)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			return backup.ErrNoBackups
		}
		chosen, err = promptBackup(filename, backups, errors.New("restore requested"))
		if err != nil {
			return err
		}
		if chosen == nil {
			return nil
		}
	default:
		return errors.New("no terminal to choose a backup, use --latest")
	}

	doc := newDocument()
	if doc.BackupStore() == nil {
		doc.SetBackupStore(store)
	}
	if err := doc.RestoreBackup(filename, *chosen, doc.LoadOptions()); err != nil {
		return err
	}
	defer closeDocument(doc)
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n", filename, chosen.Path)
	return nil
}
