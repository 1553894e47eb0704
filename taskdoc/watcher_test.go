package taskdoc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenibako/taskdoc-golang/domain"
	"github.com/zenibako/taskdoc-golang/events"
)

func TestWatchNoticesOtherWriters(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTask("One"))
	require.NoError(t, seed.SaveAs(filename))

	a := load(t, filename)
	announced := make(chan events.Event, 4)
	a.Subscribe(func(e events.Event) { announced <- e }, events.ChangedOnDisk)
	handoff := make(chan struct{}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := a.Watch(ctx, 50*time.Millisecond, func() { handoff <- struct{}{} })
	require.NoError(t, err)
	defer w.Stop()

	// Our own save is not a change on disk
	a.Tasks().Append(domain.NewTask("Two"))
	require.NoError(t, a.Save())
	time.Sleep(300 * time.Millisecond)
	assert.False(t, a.ChangedOnDisk())
	assert.Empty(t, handoff)

	b := load(t, filename)
	b.Tasks().Append(domain.NewTask("Three"))
	require.NoError(t, b.Save())

	select {
	case <-handoff:
	case <-time.After(5 * time.Second):
		t.Fatal("change by another writer was not noticed")
	}
	assert.True(t, a.ChangedOnDisk())
	e := <-announced
	assert.Equal(t, filename, e.Filename)

	_, err = a.MergeDiskChanges()
	require.NoError(t, err)
	assert.False(t, a.ChangedOnDisk())
	assert.Equal(t, 3, a.Tasks().Len())
}

func TestWatchAnnouncesOnce(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	require.NoError(t, seed.SaveAs(filename))
	a := load(t, filename)

	b := load(t, filename)
	b.Tasks().Append(domain.NewTask("One"))
	require.NoError(t, b.Save())

	assert.True(t, a.checkDisk(filename))
	assert.False(t, a.checkDisk(filename), "already announced")

	b.Tasks().Append(domain.NewTask("Two"))
	require.NoError(t, b.Save())
	assert.False(t, a.checkDisk(filename), "still pending until the next merge")

	_, err := a.MergeDiskChanges()
	require.NoError(t, err)
	assert.False(t, a.checkDisk(filename))
}

func TestCheckDiskIgnoresSaveStartedDuringStat(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	require.NoError(t, seed.SaveAs(filename))
	a := load(t, filename)

	seed.Tasks().Append(domain.NewTask("Renamed into place"))
	require.NoError(t, seed.Save())

	var release func()
	statDisk = func(path string) fileStamp {
		stamp := statFile(path)
		release = a.suppress()
		return stamp
	}
	defer func() { statDisk = statFile }()

	assert.False(t, a.checkDisk(filename))
	assert.False(t, a.ChangedOnDisk())
	release()
}

func TestWatchRequiresFilename(t *testing.T) {
	_, err := newDoc(t).Watch(context.Background(), time.Second, nil)
	assert.ErrorIs(t, err, ErrNoFilename)
}

func TestWatcherStopsWithContext(t *testing.T) {
	checks := make(chan struct{}, 100)
	w, err := NewWatcher(filepath.Join(t.TempDir(), "todo.tsk"), 10*time.Millisecond, func() bool {
		checks <- struct{}{}
		return false
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	<-checks
	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-w.done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.NoError(t, w.Stop())
}
