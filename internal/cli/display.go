package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/orchard-dev/orchard/internal/pipeline"
	"github.com/orchard-dev/orchard/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// renderReport prints the final job report.
func renderReport(w io.Writer, report *pipeline.Report) {
	fmt.Fprintln(w, titleStyle.Render("job "+report.JobID))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("repo:"), report.RepoRoot)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("base:"), report.BaseBranch)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("status:"), statusStyle(report.Status).Render(string(report.Status)))

	if report.Merge != nil {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("merge:"), report.Merge.Notes)
		if len(report.Merge.TouchedFiles) > 0 {
			fmt.Fprintln(w, labelStyle.Render("touched files:"))
			for _, file := range report.Merge.TouchedFiles {
				fmt.Fprintln(w, detailStyle.Render(file))
			}
		}
	}
	if report.Failure != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("failure:"), failStyle.Render(report.Failure))
	}
}

func statusStyle(status store.JobStatus) lipgloss.Style {
	switch status {
	case store.StatusDone:
		return okStyle
	case store.StatusNeedsManualReview:
		return warnStyle
	case store.StatusFailed:
		return failStyle
	}
	return labelStyle
}
