package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zenibako/taskdoc-golang/config"
)

// --- Global Command Variables ---
var (
	configPath  string
	verbose     bool
	noLock      bool
	priority    int
	description string
	prefer      string
	interactive bool
	latest      bool

	cfg = config.Default()

	rootCmd = &cobra.Command{
		Use:           "taskdoc",
		Short:         "Inspect and edit task files shared by several writers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			if noLock {
				cfg.Lock = false
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
			}
			if verbose {
				level = log.DebugLevel
			}
			log.SetLevel(level)
			log.Debug("Configuration loaded", "path", configPath, "lock", cfg.Lock, "backups", cfg.Backup.Keep)
			return nil
		},
	}

	// --- Reading ---
	showCmd = &cobra.Command{
		Use:   "show FILE",
		Short: "Print the tasks, categories and notes of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	diffCmd = &cobra.Command{
		Use:   "diff FILE OTHER",
		Short: "Show how two task files differ",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff,
	}

	// --- Editing ---
	addTaskCmd = &cobra.Command{
		Use:   "add-task FILE SUBJECT",
		Short: "Add a task and save",
		Args:  cobra.ExactArgs(2),
		RunE:  runAddTask,
	}
	addCategoryCmd = &cobra.Command{
		Use:   "add-category FILE SUBJECT",
		Short: "Add a category and save",
		Args:  cobra.ExactArgs(2),
		RunE:  runAddCategory,
	}
	addNoteCmd = &cobra.Command{
		Use:   "add-note FILE SUBJECT",
		Short: "Add a note and save",
		Args:  cobra.ExactArgs(2),
		RunE:  runAddNote,
	}
	setCmd = &cobra.Command{
		Use:   "set FILE ID ATTRIBUTE VALUE",
		Short: "Change one attribute of an object and save",
		Long: `Change one attribute of an object and save.

Attributes: subject, description, priority, dueDate, completionDate,
categories (comma separated ids), location. Dates are RFC 3339 or
YYYY-MM-DD; an empty value clears them.`,
		Args: cobra.ExactArgs(4),
		RunE: runSet,
	}
	mergeCmd = &cobra.Command{
		Use:   "merge FILE OTHER",
		Short: "Import the objects of another task file and save",
		Args:  cobra.ExactArgs(2),
		RunE:  runMerge,
	}

	// --- Synchronization ---
	syncCmd = &cobra.Command{
		Use:   "sync FILE",
		Short: "Merge changes other writers made to a file and report them",
		Args:  cobra.ExactArgs(1),
		RunE:  runSync,
	}
	watchCmd = &cobra.Command{
		Use:   "watch FILE",
		Short: "Follow a file and merge changes as other writers save them",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}

	// --- Recovery ---
	breakLockCmd = &cobra.Command{
		Use:   "break-lock FILE",
		Short: "Remove a stale lock left behind by a crashed writer",
		Args:  cobra.ExactArgs(1),
		RunE:  runBreakLock,
	}
	backupsCmd = &cobra.Command{
		Use:   "backups FILE",
		Short: "List the backups of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackups,
	}
	restoreCmd = &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace a file with one of its backups",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestore,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "taskdoc.yaml", "settings file, defaults apply when missing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	rootCmd.PersistentFlags().BoolVar(&noLock, "no-lock", false, "do not lock the file while reading and writing")

	addTaskCmd.Flags().IntVarP(&priority, "priority", "p", 0, "task priority")
	addTaskCmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	addNoteCmd.Flags().StringVarP(&description, "description", "d", "", "note text")

	syncCmd.Flags().StringVar(&prefer, "prefer", "disk", "side kept when both changed the same attribute: disk or local")
	syncCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask for every conflicting object")
	restoreCmd.Flags().BoolVar(&latest, "latest", false, "restore the newest backup without asking")

	rootCmd.AddCommand(showCmd, diffCmd)
	rootCmd.AddCommand(addTaskCmd, addCategoryCmd, addNoteCmd, setCmd, mergeCmd)
	rootCmd.AddCommand(syncCmd, watchCmd)
	rootCmd.AddCommand(breakLockCmd, backupsCmd, restoreCmd)
}
