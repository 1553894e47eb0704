package taskdoc

import (
	"github.com/charmbracelet/log"
)

// ConflictPolicy decides attribute conflicts found while reconciling. It
// returns the side to keep per object id; ids it leaves out fall back to
// CommittedWins.
//
// Edit/delete conflicts are not offered to the policy: the edit always wins
// so no change is silently lost.
type ConflictPolicy interface {
	ResolveConflicts(conflicts []ObjectConflict) (map[string]Side, error)
}

// ConflictPolicyFunc adapts a function to ConflictPolicy
type ConflictPolicyFunc func(conflicts []ObjectConflict) (map[string]Side, error)

func (f ConflictPolicyFunc) ResolveConflicts(conflicts []ObjectConflict) (map[string]Side, error) {
	return f(conflicts)
}

// CommittedWins keeps the version already written to disk. The other writer
// committed first, so its values are the ones everybody else has seen.
var CommittedWins ConflictPolicy = prefer(SideDisk)

// LocalWins keeps this document's version
var LocalWins ConflictPolicy = prefer(SideMemory)

func prefer(side Side) ConflictPolicy {
	return ConflictPolicyFunc(func(conflicts []ObjectConflict) (map[string]Side, error) {
		resolutions := make(map[string]Side, len(conflicts))
		for _, c := range conflicts {
			resolutions[c.ID] = side
		}
		return resolutions, nil
	})
}

// ApplyResolutions records the chosen side on every conflict and its result
func ApplyResolutions(report *MergeReport, resolutions map[string]Side) {
	for i := range report.Conflicts {
		c := &report.Conflicts[i]
		if c.Type != ConflictBothChanged {
			continue
		}
		choice, ok := resolutions[c.ID]
		if !ok || (choice != SideMemory && choice != SideDisk) {
			choice = SideDisk
		}
		c.Chosen = choice

		result, exists := report.Results[c.ID]
		if !exists {
			continue
		}
		switch choice {
		case SideDisk:
			result.Reason = "both sides changed " + joinAttrs(c.Attributes) + ", kept the version on disk"
		case SideMemory:
			result.Reason = "both sides changed " + joinAttrs(c.Attributes) + ", kept the local version"
		}
		log.Debug("Resolved conflict", "id", c.ID, "attributes", c.Attributes, "chosen", choice)
	}
}
