// Package backup keeps timestamped copies of a data file so a corrupt file can
// be rolled back.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zenibako/taskdoc-golang/safewrite"
)

// DefaultDirName is created next to the data file when Store.Dir is empty
const DefaultDirName = ".taskdoc-backups"

const (
	timestampFormat = "2006-01-02T15-04-05.000000000"
	backupExt       = ".bak"
)

// ErrNoBackups is returned by MostRecent when a file has never been backed up
var ErrNoBackups = errors.New("no backups")

// Backup is one stored copy of a data file
type Backup struct {
	Path    string    // location of the copy
	Created time.Time // parsed from the file name
	Size    int64
}

// Store creates and prunes backups
type Store struct {
	Dir  string // empty means DefaultDirName next to the data file
	Keep int    // backups retained per file, 0 disables backups
	// Write is used by Restore
	Write safewrite.Options
}

func (s *Store) dir(filename string) string {
	if s.Dir != "" {
		return s.Dir
	}
	return filepath.Join(filepath.Dir(filename), DefaultDirName)
}

// baseName keeps the extension so todo.tsk and todo.json never share backups
func baseName(filename string) string {
	return filepath.Base(filename)
}

// Create copies filename into the store unless the newest backup already
// holds the same content. It returns nil when no backup was needed.
func (s *Store) Create(filename string) (*Backup, error) {
	if s.Keep <= 0 {
		return nil, nil
	}
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for backup: %w", filename, err)
	}

	if latest, err := s.MostRecent(filename); err == nil {
		if previous, err := os.ReadFile(latest.Path); err == nil && bytes.Equal(previous, data) {
			log.Debug("Backup is current", "path", latest.Path)
			return nil, nil
		}
	}

	dir := s.dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := time.Now().UTC()
	path := filepath.Join(dir, fmt.Sprintf("%s_%s%s", baseName(filename), now.Format(timestampFormat), backupExt))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write backup file: %w", err)
	}
	log.Infof("Backed up %s to %s", filename, path)

	if err := s.prune(filename); err != nil {
		log.Warnf("Failed to prune backups of %s: %v", filename, err)
	}
	return &Backup{Path: path, Created: now, Size: int64(len(data))}, nil
}

// List returns the backups of filename, newest first
func (s *Store) List(filename string) ([]Backup, error) {
	prefix := baseName(filename) + "_"
	pattern := filepath.Join(s.dir(filename), prefix+"*"+backupExt)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search for backups: %w", err)
	}

	var backups []Backup
	for _, match := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(match), prefix), backupExt)
		created, err := time.Parse(timestampFormat, stamp)
		if err != nil {
			// Another file whose base name shares our prefix
			continue
		}
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		backups = append(backups, Backup{Path: match, Created: created, Size: info.Size()})
	}
	slices.SortFunc(backups, func(a, b Backup) int {
		return b.Created.Compare(a.Created)
	})
	return backups, nil
}

// MostRecent returns the newest backup of filename
func (s *Store) MostRecent(filename string) (*Backup, error) {
	backups, err := s.List(filename)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("%w found for %s", ErrNoBackups, filename)
	}
	return &backups[0], nil
}

// Restore replaces filename with the content of b
func (s *Store) Restore(filename string, b Backup) error {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", b.Path, err)
	}
	if err := safewrite.WriteFile(filename, data, s.Write); err != nil {
		return fmt.Errorf("failed to restore %s: %w", filename, err)
	}
	log.Infof("Restored %s from backup %s", filename, b.Path)
	return nil
}

func (s *Store) prune(filename string) error {
	backups, err := s.List(filename)
	if err != nil {
		return err
	}
	if len(backups) <= s.Keep {
		return nil
	}
	for _, b := range backups[s.Keep:] {
		if err := os.Remove(b.Path); err != nil {
			return err
		}
		log.Debug("Pruned backup", "path", b.Path)
	}
	return nil
}
