package taskdoc

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/zenibako/taskdoc-golang/changes"
	"github.com/zenibako/taskdoc-golang/domain"
)

// Pair couples a collection in memory with the same collection read from disk
type Pair struct {
	Memory domain.Collection
	Disk   domain.Collection
}

// Reconciler merges a freshly read disk copy into the in-memory document.
//
// Local is what this document changed since it last agreed with the file.
// Remote is what other writers committed since then; a nil Remote means the
// registry did not know this document and remote changes are inferred from
// attribute differences instead.
//
// Disk objects are moved into memory as they are, so the disk collections
// must not be used after Reconcile.
type Reconciler struct {
	Policy ConflictPolicy
}

func (rc Reconciler) Reconcile(pairs []Pair, local, remote changes.ChangeSet) (*MergeReport, error) {
	if local == nil {
		local = changes.NewChangeSet()
	}
	p := &planner{
		local:   local,
		remote:  remote,
		report:  newMergeReport(),
		memAll:  make(map[string]domain.Object),
		diskAll: make(map[string]bool),
	}
	p.report.KnownDevice = remote != nil
	for _, pair := range pairs {
		for _, o := range pair.Memory.Objects() {
			domain.Walk(o, func(o domain.Object) { p.memAll[o.ID()] = o })
		}
		for _, o := range pair.Disk.Objects() {
			domain.Walk(o, func(o domain.Object) { p.diskAll[o.ID()] = true })
		}
	}
	for _, pair := range pairs {
		p.collection(pair.Memory, pair.Disk)
	}

	// Nothing has been touched yet, so a failing policy leaves memory intact
	resolutions, err := rc.resolve(p.report.Conflicts)
	if err != nil {
		return nil, fmt.Errorf("resolving merge conflicts: %w", err)
	}
	ApplyResolutions(p.report, resolutions)

	for _, step := range p.steps {
		step(resolutions)
	}
	log.Debug("Reconciled document", "summary", p.report.Summary(), "conflicts", len(p.report.Conflicts), "known_device", p.report.KnownDevice)
	return p.report, nil
}

func (rc Reconciler) resolve(conflicts []ObjectConflict) (map[string]Side, error) {
	var pending []ObjectConflict
	for _, c := range conflicts {
		if c.Type == ConflictBothChanged {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return map[string]Side{}, nil
	}
	policy := rc.Policy
	if policy == nil {
		policy = CommittedWins
	}
	resolutions, err := policy.ResolveConflicts(pending)
	if err != nil {
		return nil, err
	}
	if resolutions == nil {
		resolutions = map[string]Side{}
	}
	return resolutions, nil
}

type step func(resolutions map[string]Side)

// planner decides everything up front and defers mutations to steps
type planner struct {
	local   changes.ChangeSet
	remote  changes.ChangeSet
	report  *MergeReport
	steps   []step
	memAll  map[string]domain.Object
	diskAll map[string]bool
}

func (p *planner) collection(mem, disk domain.Collection) {
	memObjs, diskObjs := mem.Objects(), disk.Objects()
	inMem := make(map[string]bool, len(memObjs))
	for _, m := range memObjs {
		inMem[m.ID()] = true
	}
	inDisk := make(map[string]domain.Object, len(diskObjs))
	for _, d := range diskObjs {
		inDisk[d.ID()] = d
	}

	for _, m := range memObjs {
		if d, ok := inDisk[m.ID()]; ok {
			p.object(m, d)
			continue
		}
		p.missingOnDisk(mem, m)
	}
	for _, d := range diskObjs {
		if !inMem[d.ID()] {
			p.missingInMemory(mem, d)
		}
	}
}

func (p *planner) missingOnDisk(coll domain.Collection, m domain.Object) {
	id := m.ID()
	switch {
	case p.local.Added(id):
		p.report.record(m, ResolutionKeptLocal, "added locally", nil)
	case p.diskAll[id]:
		// Moved elsewhere on disk; the new location appends the disk version
		p.steps = append(p.steps, func(map[string]Side) { coll.RemoveObject(id) })
	case p.touched(p.local, m):
		c := newEditDelete(m, SideDisk)
		c.Chosen = SideMemory
		p.report.Conflicts = append(p.report.Conflicts, c)
		p.report.record(m, ResolutionKeptLocal, "deleted on disk but changed here, keeping it", nil)
	default:
		p.report.record(m, ResolutionDropped, "deleted on disk", nil)
		p.steps = append(p.steps, func(map[string]Side) { coll.RemoveObject(id) })
	}
}

func (p *planner) missingInMemory(coll domain.Collection, d domain.Object) {
	id := d.ID()
	if moved, ok := p.memAll[id]; ok {
		if p.local.Added(id) {
			// Moved away from here locally
			return
		}
		keep := p.localAttrs(moved)
		p.report.record(d, ResolutionTookDisk, "moved on disk", nil)
		p.steps = append(p.steps, func(map[string]Side) {
			d.CopyAttributes(moved, keep)
			p.appendTo(coll, d)
		})
		return
	}

	if p.local.Deleted(id) {
		if p.remote != nil && p.touched(p.remote, d) {
			c := newEditDelete(d, SideMemory)
			c.Chosen = SideDisk
			p.report.Conflicts = append(p.report.Conflicts, c)
			p.report.record(d, ResolutionAdded, "deleted here but changed on disk, restoring it", nil)
			p.steps = append(p.steps, func(map[string]Side) { p.appendTo(coll, d) })
			return
		}
		p.report.record(d, ResolutionKeptLocal, "deleted locally", nil)
		return
	}

	p.report.record(d, ResolutionAdded, "added on disk", nil)
	p.steps = append(p.steps, func(map[string]Side) { p.appendTo(coll, d) })
}

func (p *planner) appendTo(coll domain.Collection, d domain.Object) {
	if err := coll.AppendObject(d); err != nil {
		log.Warn("Skipping object that does not fit its collection", "id", d.ID(), "error", err)
	}
}

func (p *planner) object(m, d domain.Object) {
	local := p.localAttrs(m)
	remote := p.remoteAttrs(m, d, local)
	overlap := intersect(local, remote)

	switch {
	case len(remote) == 0:
		if len(local) > 0 && differs(m, d, local) {
			p.report.record(m, ResolutionKeptLocal, "changed only here: "+joinAttrs(local), nil)
		}
	case len(overlap) == 0:
		res, reason := ResolutionTookDisk, "changed only on disk: "+joinAttrs(remote)
		if len(local) > 0 {
			res, reason = ResolutionCombined, fmt.Sprintf("changed here: %s, on disk: %s", joinAttrs(local), joinAttrs(remote))
		}
		p.report.record(m, res, reason, remote)
		p.steps = append(p.steps, func(map[string]Side) { m.CopyAttributes(d, remote) })
	default:
		p.report.Conflicts = append(p.report.Conflicts, newBothChanged(m, overlap))
		result := p.report.record(m, ResolutionConflict, "", nil)
		p.steps = append(p.steps, func(resolutions map[string]Side) {
			take := remote
			if resolutions[m.ID()] == SideMemory {
				take = subtract(remote, overlap)
			}
			result.TookFrom = take
			m.CopyAttributes(d, take)
		})
	}

	mc, dc := m.Collections(), d.Collections()
	for i := range min(len(mc), len(dc)) {
		p.collection(mc[i], dc[i])
	}
}

func (p *planner) localAttrs(o domain.Object) []string {
	return intersect(o.Attributes(), p.local.Changed(o.ID()))
}

// remoteAttrs returns the attributes to take from disk candidates
func (p *planner) remoteAttrs(m, d domain.Object, local []string) []string {
	var out []string
	if p.remote != nil {
		candidates := p.remote.Changed(m.ID())
		if p.remote.Added(m.ID()) {
			// Re-appended on disk: anything we did not change ourselves comes from there
			for _, attr := range m.Attributes() {
				if !slices.Contains(local, attr) {
					candidates = append(candidates, attr)
				}
			}
		}
		for _, attr := range intersect(m.Attributes(), candidates) {
			if !m.Equal(d, attr) {
				out = append(out, attr)
			}
		}
		return out
	}
	for _, attr := range m.Attributes() {
		if !m.Equal(d, attr) && !slices.Contains(local, attr) {
			out = append(out, attr)
		}
	}
	return out
}

// touched reports whether cs holds a change, other than a deletion, for o or anything below it
func (p *planner) touched(cs changes.ChangeSet, o domain.Object) bool {
	found := false
	domain.Walk(o, func(o domain.Object) {
		if cs.Has(o.ID()) && !cs.Deleted(o.ID()) {
			found = true
		}
	})
	return found
}

func differs(m, d domain.Object, attrs []string) bool {
	for _, attr := range attrs {
		if !m.Equal(d, attr) {
			return true
		}
	}
	return false
}

// intersect keeps the elements of a that are in b, in a's order
func intersect(a, b []string) []string {
	var out []string
	for _, s := range a {
		if slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}

func subtract(a, b []string) []string {
	var out []string
	for _, s := range a {
		if !slices.Contains(b, s) {
			out = append(out, s)
		}
	}
	return out
}
