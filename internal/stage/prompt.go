package stage

import (
	"fmt"
	"strings"

	"github.com/orchard-dev/orchard/internal/store"
)

func analyzePrompt(userTask string) string {
	return fmt.Sprintf(`You are preparing a repository for parallel automated work.

Task:
%s

Decide whether a small preparatory refactor would make this task easier to
split into independent parallel subtasks. This is a READ-ONLY analysis: do
not modify any file and do not run any git command.

Respond with a single JSON object as the last thing you print:
{"shouldRefactor": boolean, "reasons": [string], "focusAreas": [{"path": string, "why": string, "suggestedSplit": string?}], "notes": string?}`, userTask)
}

func refactorPrompt(userTask string, analysis *AnalyzeResult) string {
	var focus strings.Builder
	for _, area := range analysis.FocusAreas {
		fmt.Fprintf(&focus, "- %s: %s\n", area.Path, area.Why)
	}
	return fmt.Sprintf(`Perform a minimal, behaviour-preserving refactor that makes the task below
easier to split into independent parallel subtasks. Do NOT implement the
task itself and do NOT run any git command; just edit files.

Task:
%s

Focus areas:
%s
Respond with a single JSON object as the last thing you print:
{"status": "ok"|"skipped"|"failed", "summary": string, "branch": string, "worktreePath": string, "touchedFiles": [string], "notes": string?}`, userTask, focus.String())
}

func planPrompt(userTask string) string {
	return fmt.Sprintf(`Produce a deterministic plan that splits the task below into subtasks. This
is READ-ONLY: do not modify any file and do not run any git command.

Task:
%s

Rules:
- Give every subtask a stable string id, a short title, and a description
  complete enough to execute without the other subtasks.
- Subtasks that can run concurrently share a "parallelGroup" label.
- Set "canParallelize" to false when the subtasks must run one at a time.

Respond with a single JSON object as the last thing you print:
{"canParallelize": boolean, "subtasks": [{"id": string, "title": string, "description": string, "parallelGroup": string, "context": string?, "notes": string?}]}`, userTask)
}

func subtaskPrompt(userTask string, sub store.PlanSubtask) string {
	extra := ""
	if sub.Context != nil && *sub.Context != "" {
		extra = "\nContext:\n" + *sub.Context + "\n"
	}
	return fmt.Sprintf(`You are executing one subtask of a larger job.

Overall task:
%s

Subtask %s: %s
%s
%s
Modify files as needed to complete this subtask only. Do NOT run any git
command; commits are handled for you.

Respond with a single JSON object as the last thing you print:
{"subtaskId": %q, "status": "ok"|"failed", "summary": string, "importantFiles": [string]}`,
		userTask, sub.ID, sub.Title, sub.Description, extra, sub.ID)
}

func conflictPrompt(branch string, files []string) string {
	return fmt.Sprintf(`A git merge of branch %q left the following files with conflict markers:

%s

Resolve every conflict by editing these files so they contain the correct
merged content with no conflict markers. Do NOT run any git command and do
NOT touch the .git or .git-local entries in this directory.

When done, respond with a single JSON object as the last thing you print:
{"status": "ok"|"needs_manual_review", "notes": string}`,
		branch, "- "+strings.Join(files, "\n- "))
}
