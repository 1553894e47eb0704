package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"

	"github.com/zenibako/taskdoc-golang/taskdoc"
)

// conflictPolicy maps the --prefer and --interactive flags to a policy
func conflictPolicy(prefer string, interactive bool) (taskdoc.ConflictPolicy, error) {
	if interactive {
		return taskdoc.ConflictPolicyFunc(promptConflictResolution), nil
	}
	switch strings.ToLower(prefer) {
	case "", "disk":
		return taskdoc.CommittedWins, nil
	case "local":
		return taskdoc.LocalWins, nil
	default:
		return nil, fmt.Errorf("unknown side %q, expected disk or local", prefer)
	}
}

// promptConflictResolution asks the user which version to keep for each
// object both sides changed
func promptConflictResolution(conflicts []taskdoc.ObjectConflict) (map[string]taskdoc.Side, error) {
	log.Infof("Found %d conflicts that need your input", len(conflicts))
	resolutions := make(map[string]taskdoc.Side, len(conflicts))

	for i, conflict := range conflicts {
		log.Infof("Conflict %d/%d: %s", i+1, len(conflicts), conflict.Description)

		var choice taskdoc.Side
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[taskdoc.Side]().
					Title(fmt.Sprintf("Both sides changed %s %q", conflict.Kind, conflict.Subject)).
					Description(conflict.Description).
					Options(
						huh.NewOption("Keep the version on disk", taskdoc.SideDisk),
						huh.NewOption("Keep my version", taskdoc.SideMemory),
					).
					Value(&choice),
			),
		)
		if err := form.Run(); err != nil {
			return nil, fmt.Errorf("failed to get user input for conflict resolution: %v", err)
		}
		resolutions[conflict.ID] = choice
		log.Infof("User chose %s for %s", choice, conflict.ID)
	}

	log.Info("All conflicts resolved by user")
	return resolutions, nil
}
