// Package update decides whether an install run has anything to do, based
// on the release tag recorded by the previous run.
package update

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"
)

type Decision string

const (
	DecisionProceed   Decision = "proceed"   // install or update to the target tag
	DecisionSkip      Decision = "skip"      // already at the target tag
	DecisionReinstall Decision = "reinstall" // same tag, forced
)

// display keeps the v prefix users expect on tags.
func display(tag string) string {
	if tag == "" {
		return tag
	}
	if tag[0] == 'v' {
		return tag
	}
	return "v" + tag
}

// Decide compares the recorded tag against the target release tag.
//
// current is "" when no previous install left a marker. explicitTag is true
// when the target was pinned on the command line, which permits downgrades.
// Unparsable tags never block: an install we cannot reason about proceeds.
func Decide(current, target string, explicitTag, force bool) (Decision, string) {
	if current == "" {
		return DecisionProceed, fmt.Sprintf("installing %s", display(target))
	}

	cur, errCur := goversion.NewVersion(current)
	tgt, errTgt := goversion.NewVersion(target)
	if errCur != nil || errTgt != nil {
		if current == target {
			if force {
				return DecisionReinstall, fmt.Sprintf("reinstalling %s", display(target))
			}
			return DecisionSkip, fmt.Sprintf("already at %s, use --force to reinstall", display(target))
		}
		return DecisionProceed, fmt.Sprintf("version comparison skipped (installed %q, target %q), proceeding", current, target)
	}

	switch {
	case cur.Equal(tgt):
		if force {
			return DecisionReinstall, fmt.Sprintf("reinstalling %s", display(target))
		}
		return DecisionSkip, fmt.Sprintf("already at %s, use --force to reinstall", display(target))
	case cur.LessThan(tgt):
		return DecisionProceed, fmt.Sprintf("updating %s to %s", display(current), display(target))
	default:
		if explicitTag || force {
			return DecisionProceed, fmt.Sprintf("downgrading %s to %s", display(current), display(target))
		}
		return DecisionSkip, fmt.Sprintf("installed %s is newer than %s, use --tag to downgrade", display(current), display(target))
	}
}
