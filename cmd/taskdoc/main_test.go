package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenibako/taskdoc-golang/domain"
	"github.com/zenibako/taskdoc-golang/taskdoc"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestAddAndShow(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")

	categoryID := strings.TrimSpace(execute(t, "add-category", filename, "Errands"))
	taskID := strings.TrimSpace(execute(t, "add-task", filename, "Buy milk", "--priority", "3"))
	execute(t, "set", filename, taskID, "categories", categoryID)
	execute(t, "add-note", filename, "Shopping list", "--description", "eggs")

	out := execute(t, "show", filename)
	assert.Contains(t, out, "Tasks (1)")
	assert.Contains(t, out, "Buy milk")
	assert.Contains(t, out, "!3")
	assert.Contains(t, out, "[Errands]")
	assert.Contains(t, out, "# Shopping list")
}

func TestSyncReportsOtherWriters(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	execute(t, "add-task", filename, "Buy milk", "--priority", "0")

	out := execute(t, "sync", filename, "--prefer", "local")
	assert.Contains(t, out, "no changes")
}

func TestDiffAndMerge(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.tsk"), filepath.Join(dir, "b.tsk")
	execute(t, "add-task", a, "Only in a", "--priority", "0")
	execute(t, "add-task", b, "Only in b", "--priority", "0")

	out := execute(t, "diff", a, b)
	assert.Contains(t, out, "-")
	assert.Contains(t, out, "Only in a")
	assert.Contains(t, out, "Only in b")

	execute(t, "merge", a, b)
	shown := execute(t, "show", a)
	assert.Contains(t, shown, "Only in a")
	assert.Contains(t, shown, "Only in b")
}

func TestDiffIdenticalFiles(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	execute(t, "add-task", filename, "Same", "--priority", "0")
	patch, err := diffFiles(filename, filename)
	require.NoError(t, err)
	assert.Empty(t, patch)
}

func TestBackupsAndRestoreLatest(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	execute(t, "add-task", filename, "First", "--priority", "0")
	execute(t, "add-task", filename, "Second", "--priority", "0")

	assert.Contains(t, execute(t, "backups", filename), ".bak")

	execute(t, "restore", filename, "--latest")
	shown := execute(t, "show", filename)
	assert.Contains(t, shown, "First")
	assert.NotContains(t, shown, "Second")
}

func TestBreakLockWithoutLock(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	assert.Contains(t, execute(t, "break-lock", filename), "is not locked")
}

func TestSetAttribute(t *testing.T) {
	task := domain.NewTask("Task")
	tests := []struct {
		attr    string
		value   string
		wantErr bool
		check   func(t *testing.T)
	}{
		{attr: "subject", value: "Renamed", check: func(t *testing.T) { assert.Equal(t, "Renamed", task.Subject()) }},
		{attr: "priority", value: "4", check: func(t *testing.T) { assert.Equal(t, 4, task.Priority()) }},
		{attr: "priority", value: "high", wantErr: true},
		{attr: "dueDate", value: "2026-11-01", check: func(t *testing.T) { assert.Equal(t, 2026, task.DueDate().Year()) }},
		{attr: "dueDate", value: "", check: func(t *testing.T) { assert.True(t, task.DueDate().IsZero()) }},
		{attr: "completionDate", value: "yesterday", wantErr: true},
		{attr: "categories", value: "a, b,,", check: func(t *testing.T) { assert.Equal(t, []string{"a", "b"}, task.Categories()) }},
		{attr: "location", value: "/tmp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.attr+"="+tt.value, func(t *testing.T) {
			err := setAttribute(task, tt.attr, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t)
		})
	}

	effort := domain.NewEffort(time.Now())
	require.NoError(t, setAttribute(effort, "stop", "2026-11-01T10:00:00Z"))
	assert.False(t, effort.IsTracking())
}

func TestConflictPolicyFlags(t *testing.T) {
	p, err := conflictPolicy("disk", false)
	require.NoError(t, err)
	assert.NotNil(t, p)

	conflicts := []taskdoc.ObjectConflict{{ID: "x"}}
	got, err := p.ResolveConflicts(conflicts)
	require.NoError(t, err)
	assert.Equal(t, taskdoc.SideDisk, got["x"])

	p, err = conflictPolicy("LOCAL", false)
	require.NoError(t, err)
	got, err = p.ResolveConflicts(conflicts)
	require.NoError(t, err)
	assert.Equal(t, taskdoc.SideMemory, got["x"])

	_, err = conflictPolicy("mine", false)
	assert.Error(t, err)
}
