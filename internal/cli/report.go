package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/drivetidy/drivetidy/internal/core"
	"github.com/drivetidy/drivetidy/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	setStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	keepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	extraStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("147")).
			Italic(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Faint(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)
)

// formatBytes formats bytes as human-readable.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func memberLine(r model.FileRecord) string {
	line := fmt.Sprintf("%s (%s)", r.Name, formatBytes(r.SizeBytes))
	if r.ViewLink != "" {
		line += "  " + linkStyle.Render(r.ViewLink)
	}
	return line
}

// renderDuplicateReport prints every set with its kept and removable
// members, then the reclaimable total.
func renderDuplicateReport(w io.Writer, r *core.DuplicateReport, source string) {
	if r.Empty() {
		fmt.Fprintf(w, "Scanned %d files on %s. No duplicates found.\n", r.Files, source)
		return
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Duplicate sets on %s (%d)", source, len(r.Sets))))
	for i, set := range r.Sets {
		fmt.Fprintf(w, "\n%s %s\n", setStyle.Render(fmt.Sprintf("[%d]", i+1)), hintStyle.Render(set.Fingerprint))
		fmt.Fprintf(w, "  keep   %s\n", keepStyle.Render(memberLine(set.Representative())))
		for _, extra := range set.Extras() {
			fmt.Fprintf(w, "  trash  %s\n", extraStyle.Render(memberLine(extra)))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, summaryBoxStyle.Render(strings.Join([]string{
		fmt.Sprintf("Files scanned:   %d", r.Files),
		fmt.Sprintf("Duplicate sets:  %d", len(r.Sets)),
		fmt.Sprintf("Files to trash:  %d", r.Targets),
		fmt.Sprintf("Reclaimable:     %.2f GB (%s)", r.Gigabytes(), formatBytes(r.ReclaimableBytes)),
		fmt.Sprintf("Batches:         %d (at most %d per batch)", r.Batches, r.Ceiling),
	}, "\n")))
}

// renderDateFixReport prints the planned modification time changes.
func renderDateFixReport(w io.Writer, r *core.DateFixReport, source string, verbose bool) {
	if len(r.Patches) == 0 {
		fmt.Fprintf(w, "Checked %d photos on %s. All modification dates match their capture dates.\n", r.Photos, source)
		return
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Photos with wrong dates on %s (%d)", source, len(r.Patches))))
	shown := r.Patches
	if !verbose && len(shown) > 20 {
		shown = shown[:20]
	}
	for _, p := range shown {
		fmt.Fprintf(w, "  %s  %s -> %s\n",
			keepStyle.Render(p.Name),
			hintStyle.Render(p.From.UTC().Format("2006-01-02 15:04:05")),
			extraStyle.Render(p.To.Format("2006-01-02 15:04:05")))
	}
	if len(shown) < len(r.Patches) {
		fmt.Fprintln(w, hintStyle.Render(fmt.Sprintf("  ... and %d more (use -v to list all)", len(r.Patches)-len(shown))))
	}

	fmt.Fprintln(w)
	lines := []string{
		fmt.Sprintf("Photos checked:  %d", r.Photos),
		fmt.Sprintf("Dates to fix:    %d", len(r.Patches)),
		fmt.Sprintf("Batches:         %d (at most %d per batch)", r.Batches, r.Ceiling),
	}
	if r.Probed > 0 {
		lines = append(lines, fmt.Sprintf("Read from EXIF:  %d", r.Probed))
	}
	fmt.Fprintln(w, summaryBoxStyle.Render(strings.Join(lines, "\n")))
}

// renderBatch prints one line per executed batch.
func renderBatch(w io.Writer, rep core.BatchReport, total int) {
	if rep.Err != nil {
		fmt.Fprintln(w, failureStyle.Render(fmt.Sprintf("  ✗ Batch %d/%d failed: %v", rep.Index+1, total, rep.Err)))
		return
	}
	failed := 0
	for _, err := range rep.Errs {
		if err != nil {
			failed++
		}
	}
	line := fmt.Sprintf("  ✓ Batch %d/%d: %d done", rep.Index+1, total, len(rep.Targets)-failed)
	if failed > 0 {
		fmt.Fprintln(w, failureStyle.Render(fmt.Sprintf("%s, %d failed", line, failed)))
		return
	}
	fmt.Fprintln(w, successStyle.Render(line))
}

// renderOutcome prints the final counters and every failed operation.
func renderOutcome(w io.Writer, verb string, out *core.RemediationOutcome, extra ...string) {
	lines := append([]string{}, extra...)
	lines = append(lines,
		fmt.Sprintf("%-16s %d", verb+":", out.Succeeded),
		fmt.Sprintf("%-16s %d", "Failed:", out.Failed),
		fmt.Sprintf("%-16s %d", "Skipped:", out.Skipped),
		fmt.Sprintf("%-16s %d/%d", "Batches run:", out.BatchesAttempted, out.BatchesPlanned),
	)
	fmt.Fprintln(w)
	fmt.Fprintln(w, summaryBoxStyle.Render(strings.Join(lines, "\n")))

	if len(out.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, failureStyle.Render(fmt.Sprintf("\nFailed operations (%d):", len(out.Failures))))
	for _, f := range out.Failures {
		fmt.Fprintf(w, "  • %s (%s): %v\n", f.Name, f.FileID, f.Err)
	}
}

func renderRuns(w io.Writer, runs []*model.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintln(w, "Run ID                                Kind     State      Started           OK    Failed")
	fmt.Fprintln(w, "─────────────────────────────────────────────────────────────────────────────────────────")
	for _, r := range runs {
		fmt.Fprintf(w, "%-37s %-8s %-10s %-17s %-5d %d\n",
			r.ID, r.Kind, r.State,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Summary.Succeeded, r.Summary.Failed)
	}
}

func renderRun(w io.Writer, r *model.Run, ops []*model.OperationRecord) {
	fmt.Fprintln(w, titleStyle.Render("Run "+r.ID))
	fmt.Fprintf(w, "  Kind:         %s\n", r.Kind)
	fmt.Fprintf(w, "  Provider:     %s\n", r.Provider)
	fmt.Fprintf(w, "  State:        %s\n", r.State)
	fmt.Fprintf(w, "  Started:      %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "  Finished:     %s\n", r.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if r.Kind == model.RunKindDedupe {
		fmt.Fprintf(w, "  Sets:         %d\n", r.Summary.Sets)
		fmt.Fprintf(w, "  Reclaimable:  %s\n", formatBytes(r.Summary.ReclaimableBytes))
	}
	fmt.Fprintf(w, "  Targets:      %d\n", r.Summary.Targets)
	fmt.Fprintf(w, "  Succeeded:    %d\n", r.Summary.Succeeded)
	fmt.Fprintf(w, "  Failed:       %d\n", r.Summary.Failed)
	fmt.Fprintf(w, "  Skipped:      %d\n", r.Summary.Skipped)
	fmt.Fprintf(w, "  Batches:      %d/%d succeeded\n", r.Summary.BatchesSucceeded, r.Summary.BatchesAttempted)

	if len(ops) == 0 {
		return
	}
	fmt.Fprintf(w, "\nOperations (%d):\n", len(ops))
	for _, op := range ops {
		mark := successStyle.Render("✓")
		if op.State == model.OperationStateFailed {
			mark = failureStyle.Render("✗")
		}
		line := fmt.Sprintf("  %s batch %d  %s (%s)", mark, op.BatchIndex+1, op.Name, op.FileID)
		if op.Error != "" {
			line += ": " + op.Error
		}
		fmt.Fprintln(w, line)
	}
}
