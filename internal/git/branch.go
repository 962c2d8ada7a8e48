package git

import (
	"regexp"
	"strings"
	"time"
)

// invalidBranchRuns matches every run of characters not allowed in the
// orchestrator's branch names.
var invalidBranchRuns = regexp.MustCompile(`[^A-Za-z0-9._/-]+`)

// SanitizeBranch normalises name to the safe charset [A-Za-z0-9._/-],
// collapsing invalid runs to '-' and trimming leading and trailing '-' and
// '.'. An empty result falls back to a timestamp-based name.
func SanitizeBranch(name string) string {
	clean := invalidBranchRuns.ReplaceAllString(name, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "branch-" + time.Now().Format("20060102-150405")
	}
	return clean
}
