package taskdoc

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenibako/taskdoc-golang/backup"
	"github.com/zenibako/taskdoc-golang/codec"
	"github.com/zenibako/taskdoc-golang/domain"
	"github.com/zenibako/taskdoc-golang/events"
	"github.com/zenibako/taskdoc-golang/lockfile"
)

// newDoc returns a document whose lock selection does not depend on the
// machine running the tests
func newDoc(t *testing.T) *Document {
	t.Helper()
	mounts := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(mounts, []byte("/dev/root / ext4 rw,relatime 0 0\n"), 0644))
	d := NewDocument()
	d.SetMountTable(mounts)
	d.SetCloudMarkers([]string{})
	d.SetLockTimeout(time.Second)
	return d
}

func load(t *testing.T, filename string) *Document {
	t.Helper()
	d := newDoc(t)
	require.NoError(t, d.Load(filename, d.LoadOptions()))
	return d
}

func subjects(d *Document) []string {
	var out []string
	for _, task := range d.Tasks().Items() {
		out = append(out, task.Subject())
	}
	for _, c := range d.Categories().Items() {
		out = append(out, c.Subject())
	}
	return out
}

func registryOf(t *testing.T, filename string) map[string][]string {
	t.Helper()
	f, err := os.Open(codec.SidecarPath(filename))
	require.NoError(t, err)
	defer f.Close()
	reg, err := codec.JSON{}.ReadRegistry(f)
	require.NoError(t, err)
	out := make(map[string][]string)
	for _, guid := range reg.Guids() {
		cs, _ := reg.Lookup(guid)
		out[guid] = cs.IDs()
	}
	return out
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")

	a := newDoc(t)
	task := domain.NewTask("Write report")
	task.SetPriority(2)
	task.Efforts().Append(domain.NewEffort(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
	a.Tasks().Append(task)
	a.Notes().Append(domain.NewNote("Ideas"))
	a.SetSyncConfig([]byte(`{"server": "example"}`))
	require.True(t, a.NeedSave())
	require.NoError(t, a.SaveAs(filename))
	assert.False(t, a.IsDirty())

	b := load(t, filename)
	assert.Equal(t, []string{"Write report"}, subjects(b))
	assert.Equal(t, 2, b.Tasks().Items()[0].Priority())
	assert.Len(t, b.Efforts(), 1)
	assert.Equal(t, 1, b.Notes().Len())
	assert.Equal(t, `{"server": "example"}`, string(b.SyncConfig()), "the sync config is stored byte for byte")
	assert.False(t, b.IsDirty(), "loading is not an edit")
	assert.Empty(t, b.Changes())
	assert.Equal(t, filename, b.Filename())
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "new.tsk")
	d := load(t, filename)
	assert.Equal(t, 0, d.Tasks().Len())
	assert.Equal(t, filename, d.Filename())

	require.NoError(t, d.Save(), "saving an unchanged document creates the file")
	_, err := os.Stat(filename)
	assert.NoError(t, err)
}

func TestTwoWritersSeeEachOthersChanges(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")

	a := newDoc(t)
	a.Tasks().Append(domain.NewTask("Buy milk"))
	require.NoError(t, a.SaveAs(filename))

	b := load(t, filename)
	b.Categories().Append(domain.NewCategory("Errands"))
	require.NoError(t, b.Save())

	report, err := a.MergeDiskChanges()
	require.NoError(t, err)
	assert.True(t, report.KnownDevice)
	assert.Equal(t, 1, report.Count(ResolutionAdded))
	assert.ElementsMatch(t, []string{"Buy milk", "Errands"}, subjects(a))
	assert.False(t, a.IsDirty(), "merged changes are already on disk")

	again, err := a.MergeDiskChanges()
	require.NoError(t, err)
	assert.False(t, again.Changed(), "merging twice changes nothing")
}

func TestReorderedEditReachesOtherWriters(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")

	a := newDoc(t)
	a.Tasks().Append(domain.NewTaskWithID("x", "Original"), domain.NewTask("Other"))
	require.NoError(t, a.SaveAs(filename))

	b := load(t, filename)
	x, ok := b.Tasks().Get("x")
	require.True(t, ok)
	x.SetSubject("Renamed by B")
	b.Tasks().Remove("x")
	b.Tasks().Append(x)
	require.NoError(t, b.Save())

	_, err := a.MergeDiskChanges()
	require.NoError(t, err)
	merged, ok := a.Tasks().Get("x")
	require.True(t, ok)
	assert.Equal(t, "Renamed by B", merged.Subject())

	a.Tasks().Append(domain.NewTask("Later"))
	require.NoError(t, a.Save())
	c := load(t, filename)
	onDisk, ok := c.Tasks().Get("x")
	require.True(t, ok)
	assert.Equal(t, "Renamed by B", onDisk.Subject(), "the next save keeps the edit")
}

func TestMergeKeepsUnsavedChanges(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	a := newDoc(t)
	a.Tasks().Append(domain.NewTaskWithID("x", "Buy milk"))
	require.NoError(t, a.SaveAs(filename))

	a.Tasks().Append(domain.NewTaskWithID("y", "Unsaved"))
	b := load(t, filename)
	b.Categories().Append(domain.NewCategory("Errands"))
	require.NoError(t, b.Save())

	_, err := a.MergeDiskChanges()
	require.NoError(t, err)
	assert.True(t, a.Changes().Added("y"), "unsaved changes are still owed to other writers")
	assert.True(t, a.IsDirty())

	require.NoError(t, a.Save())
	_, err = b.MergeDiskChanges()
	require.NoError(t, err)
	_, ok := b.Tasks().Get("y")
	assert.True(t, ok)
}

func TestDisjointEditsCommute(t *testing.T) {
	for _, order := range []string{"a first", "b first"} {
		t.Run(order, func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), "todo.tsk")
			seed := newDoc(t)
			seed.Tasks().Append(domain.NewTaskWithID("x", "Original"))
			require.NoError(t, seed.SaveAs(filename))

			a, b := load(t, filename), load(t, filename)
			ta, _ := a.Tasks().Get("x")
			tb, _ := b.Tasks().Get("x")
			ta.SetSubject("Renamed")
			tb.SetPriority(7)

			first, second := a, b
			if order == "b first" {
				first, second = b, a
			}
			require.NoError(t, first.Save())
			require.NoError(t, second.Save())
			_, err := first.MergeDiskChanges()
			require.NoError(t, err)

			for _, d := range []*Document{a, b, load(t, filename)} {
				task, ok := d.Tasks().Get("x")
				require.True(t, ok)
				assert.Equal(t, "Renamed", task.Subject())
				assert.Equal(t, 7, task.Priority())
			}
		})
	}
}

func TestConflictingEditsKeepCommittedVersion(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTaskWithID("x", "Original"))
	require.NoError(t, seed.SaveAs(filename))

	a, b := load(t, filename), load(t, filename)
	ta, _ := a.Tasks().Get("x")
	tb, _ := b.Tasks().Get("x")
	ta.SetSubject("From A")
	tb.SetSubject("From B")

	var merged *MergeReport
	b.Subscribe(func(e events.Event) { merged = e.Detail.(*MergeReport) }, events.Merged)

	require.NoError(t, a.Save())
	require.NoError(t, b.Save())

	require.NotNil(t, merged)
	require.Len(t, merged.Conflicts, 1)
	assert.Equal(t, SideDisk, merged.Conflicts[0].Chosen)
	assert.Equal(t, []string{"From A"}, subjects(b))
	assert.Equal(t, []string{"From A"}, subjects(load(t, filename)))
}

func TestLocalWinsPolicyOverwritesCommittedVersion(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTaskWithID("x", "Original"))
	require.NoError(t, seed.SaveAs(filename))

	a, b := load(t, filename), load(t, filename)
	b.SetConflictPolicy(LocalWins)
	ta, _ := a.Tasks().Get("x")
	tb, _ := b.Tasks().Get("x")
	ta.SetSubject("From A")
	tb.SetSubject("From B")

	require.NoError(t, a.Save())
	require.NoError(t, b.Save())
	assert.Equal(t, []string{"From B"}, subjects(load(t, filename)))
}

func TestMissingRegistryFallsBackToInference(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTaskWithID("x", "Original"))
	require.NoError(t, seed.SaveAs(filename))

	a, b := load(t, filename), load(t, filename)
	tb, _ := b.Tasks().Get("x")
	tb.SetPriority(4)
	require.NoError(t, b.Save())
	require.NoError(t, os.Remove(codec.SidecarPath(filename)))

	var merged *MergeReport
	a.Subscribe(func(e events.Event) { merged = e.Detail.(*MergeReport) }, events.Merged)
	ta, _ := a.Tasks().Get("x")
	ta.SetSubject("Mine")
	require.NoError(t, a.Save())

	require.NotNil(t, merged)
	assert.False(t, merged.KnownDevice)
	task, _ := load(t, filename).Tasks().Get("x")
	assert.Equal(t, "Mine", task.Subject())
	assert.Equal(t, 4, task.Priority())
}

func TestDirtyTracking(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	d := newDoc(t)
	var seen []events.Type
	d.Subscribe(func(e events.Event) { seen = append(seen, e.Type) })

	d.Tasks().Append(domain.NewTask("One"))
	require.NoError(t, d.SaveAs(filename))
	assert.Equal(t, []events.Type{
		events.Dirty, events.FilenameChanged, events.AboutToSave, events.Clean, events.JustSaved,
	}, seen)

	seen = nil
	require.NoError(t, d.Load(filename, d.LoadOptions()))
	assert.Equal(t, []events.Type{events.AboutToRead, events.JustRead}, seen)
	assert.False(t, d.NeedSave())

	d.Tasks().Items()[0].SetSubject("Uno")
	assert.True(t, d.NeedSave())
	assert.Equal(t, []string{domain.AttrSubject}, d.Changes().Changed(d.Tasks().Items()[0].ID()))
}

func TestCleanSaveDoesNotRewriteFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTask("One"))
	require.NoError(t, seed.SaveAs(filename))
	before, err := os.Stat(filename)
	require.NoError(t, err)

	d := load(t, filename)
	require.NoError(t, d.Save())
	after, err := os.Stat(filename)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "the main file was not replaced")
}

func TestLoadRejectsNewerFormat(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	require.NoError(t, os.WriteFile(filename, []byte(`{"version": 99}`), 0644))

	d := newDoc(t)
	d.Tasks().Append(domain.NewTask("Unsaved"))
	err := d.Load(filename, d.LoadOptions())
	require.ErrorIs(t, err, codec.ErrFormatTooNew)
	var formatErr *codec.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, filename, formatErr.Path)
	assert.Equal(t, 99, formatErr.Version)

	assert.Equal(t, []string{"Unsaved"}, subjects(d), "memory is untouched by a failed load")
	assert.Empty(t, d.Filename())
}

func TestCorruptFileOffersBackups(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "todo.tsk")
	store := &backup.Store{Dir: filepath.Join(dir, "backups"), Keep: 3}

	a := newDoc(t)
	a.SetBackupStore(store)
	a.Tasks().Append(domain.NewTask("First"))
	require.NoError(t, a.SaveAs(filename))
	a.Tasks().Append(domain.NewTask("Second"))
	require.NoError(t, a.Save())

	require.NoError(t, os.WriteFile(filename, []byte("{not json"), 0644))

	b := newDoc(t)
	b.SetBackupStore(&backup.Store{Dir: store.Dir, Keep: 3})
	err := b.Load(filename, b.LoadOptions())
	require.ErrorIs(t, err, codec.ErrCorrupt)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Len(t, loadErr.Backups, 1)

	require.NoError(t, b.RestoreBackup(filename, loadErr.Backups[0], b.LoadOptions()))
	assert.Equal(t, []string{"First"}, subjects(b))
	assert.Equal(t, filename, b.Filename())
}

type failingEncoder struct{ codec.JSON }

func (failingEncoder) Write(io.Writer, *codec.Snapshot) error { return errors.New("disk full") }

func TestFailedSaveKeepsFileAndChanges(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "todo.tsk")
	d := newDoc(t)
	d.Tasks().Append(domain.NewTask("Saved"))
	require.NoError(t, d.SaveAs(filename))
	before, err := os.ReadFile(filename)
	require.NoError(t, err)

	d.Tasks().Append(domain.NewTask("Not saved"))
	d.SetEncoder(failingEncoder{})
	err = d.Save()
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, filename, saveErr.Filename)

	after, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.True(t, d.NeedSave())
	assert.Equal(t, 2, d.Tasks().Len())

	temps, err := filepath.Glob(filepath.Join(dir, "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, temps)
}

func TestSaveAsReplacesExistingFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	other := newDoc(t)
	other.Tasks().Append(domain.NewTask("Theirs"))
	require.NoError(t, other.SaveAs(filename))
	_ = load(t, filename)

	d := newDoc(t)
	d.Tasks().Append(domain.NewTask("Mine"))
	require.NoError(t, d.SaveAs(filename))

	assert.Equal(t, []string{"Mine"}, subjects(load(t, filename)))
	reg := registryOf(t, filename)
	assert.Contains(t, reg, d.Guid())
	assert.NotContains(t, reg, other.Guid())
}

func TestSaveWithoutFilename(t *testing.T) {
	assert.ErrorIs(t, newDoc(t).Save(), ErrNoFilename)
	_, err := newDoc(t).MergeDiskChanges()
	assert.ErrorIs(t, err, ErrNoFilename)
}

func TestCloseLeavesRegistry(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTask("One"))
	require.NoError(t, seed.SaveAs(filename))

	a, b := load(t, filename), load(t, filename)
	guid := a.Guid()
	assert.Contains(t, registryOf(t, filename), guid)
	assert.Contains(t, registryOf(t, filename), b.Guid())

	require.NoError(t, a.Close())
	assert.NotContains(t, registryOf(t, filename), guid)
	assert.Contains(t, registryOf(t, filename), b.Guid())
	assert.Empty(t, a.Filename())
	assert.NotEqual(t, guid, a.Guid(), "a cleared document is a new writer")
	assert.Equal(t, 0, a.Tasks().Len())
}

func TestReadOnlyLoadDoesNotRegister(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTask("One"))
	require.NoError(t, seed.SaveAs(filename))

	d := newDoc(t)
	opts := d.LoadOptions()
	opts.ReadOnly = true
	require.NoError(t, d.Load(filename, opts))
	assert.NotContains(t, registryOf(t, filename), d.Guid())
}

func TestImportKeepsCategoryMemberships(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.tsk")

	incoming := newDoc(t)
	incoming.Tasks().Append(domain.NewTaskWithID("shared", "Imported subject"), domain.NewTaskWithID("fresh", "Brand new"))
	require.NoError(t, incoming.SaveAs(other))

	d := newDoc(t)
	errands := domain.NewCategoryWithID("errands", "Errands")
	d.Categories().Append(errands)
	shared := domain.NewTaskWithID("shared", "Old subject")
	shared.AddCategory("errands")
	d.Tasks().Append(shared, domain.NewTaskWithID("local", "Local only"))
	require.NoError(t, d.SaveAs(filepath.Join(dir, "todo.tsk")))

	require.NoError(t, d.Merge(other))

	assert.ElementsMatch(t, []string{"Imported subject", "Brand new", "Local only", "Errands"}, subjects(d))
	task, ok := d.Tasks().Get("shared")
	require.True(t, ok)
	assert.Equal(t, []string{"errands"}, task.Categories())
	assert.True(t, d.NeedSave())
	assert.Contains(t, d.Changes().Changed("shared"), domain.AttrSubject)
	assert.True(t, d.Changes().Added("fresh"))

	require.NoError(t, d.Save())
	assert.ElementsMatch(t, subjects(d), subjects(load(t, d.Filename())))
}

func TestStaleLockTimesOutUntilBroken(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	seed.Tasks().Append(domain.NewTask("One"))
	require.NoError(t, seed.SaveAs(filename))

	stale := `{"pid": 999999, "host": "elsewhere", "acquired_at": "2026-01-01T00:00:00Z"}`
	require.NoError(t, os.WriteFile(lockfile.LockPath(filename), []byte(stale), 0644))

	d := newDoc(t)
	opts := d.LoadOptions()
	opts.LockTimeout = 100 * time.Millisecond
	err := d.Load(filename, opts)
	require.ErrorIs(t, err, lockfile.ErrLockTimeout)
	var timeout *lockfile.TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.NotNil(t, timeout.Holder)
	assert.Equal(t, 999999, timeout.Holder.PID)
	assert.Empty(t, d.Filename())

	opts.BreakLock = true
	require.NoError(t, d.Load(filename, opts))
	assert.Equal(t, []string{"One"}, subjects(d))
	_, err = os.Stat(lockfile.LockPath(filename))
	assert.True(t, os.IsNotExist(err), "the lock is released after loading")
}

func TestUnlockedDocumentIgnoresLock(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	require.NoError(t, os.WriteFile(lockfile.LockPath(filename), []byte("{}"), 0644))

	d := newDoc(t)
	require.NoError(t, d.Load(filename, LoadOptions{Lock: false}))
	d.Tasks().Append(domain.NewTask("Two"))
	require.NoError(t, d.Save())
	assert.Equal(t, []string{"Two"}, subjects(load2(t, filename)))
}

// load2 reads without locking, for files whose lock is deliberately held
func load2(t *testing.T, filename string) *Document {
	t.Helper()
	d := newDoc(t)
	require.NoError(t, d.Load(filename, LoadOptions{ReadOnly: true}))
	return d
}

func TestSyncConfigSurvivesMerge(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "todo.tsk")
	seed := newDoc(t)
	require.NoError(t, seed.SaveAs(filename))

	a, b := load(t, filename), load(t, filename)
	b.SetSyncConfig([]byte(`{"profile":"b"}`))
	require.NoError(t, b.Save())

	_, err := a.MergeDiskChanges()
	require.NoError(t, err)
	assert.JSONEq(t, `{"profile":"b"}`, string(a.SyncConfig()))
	assert.False(t, a.IsDirty())
}
