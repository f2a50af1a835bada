package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/pandeptwidyaop/modbackup/internal/models"
)

var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F8C8D"))
	styleBold  = lipgloss.NewStyle().Bold(true)
)

func iconFor(status string) string {
	switch status {
	case string(models.ModuleSucceeded), string(models.OutcomeCopied), string(models.StatusSuccess):
		return styleOK.Render("✓")
	// ModulePartial and StatusPartial share the value "partial".
	case string(models.ModulePartial), string(models.OutcomeSkipped), string(models.OutcomeSourceAbsent), string(models.StatusRunning):
		return styleWarn.Render("•")
	default:
		return styleError.Render("✗")
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 1, 2, ' ', 0)
}

func printBackupReport(w io.Writer, report *models.BackupReport) {
	tw := newTable(w)
	for _, m := range report.Modules {
		detail := m.Reason
		if len(m.MissingPaths) > 0 {
			detail = "missing: " + strings.Join(m.MissingPaths, ", ")
		}
		if len(m.Profiles) > 0 && detail == "" {
			detail = "profiles: " + strings.Join(m.Profiles, ", ")
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\n", iconFor(string(m.Status)), m.Module, m.Status, styleMuted.Render(detail))
	}
	tw.Flush()

	if report.Archive != "" {
		fmt.Fprintf(w, "\n%s %s (%s)\n", styleBold.Render("Archive:"), report.Archive, humanize.Bytes(uint64(report.ArchiveSize)))
	}
	if report.Error != "" {
		fmt.Fprintf(w, "\n%s %s\n", styleError.Render("Backup failed:"), report.Error)
	}
}

func printRestoreReport(w io.Writer, report *models.RestoreReport) {
	if report.Module != "" {
		fmt.Fprintf(w, "%s %s (%s restore)\n", styleBold.Render("Module:"), report.Module, report.Mode)
	}
	if report.ScriptRan {
		fmt.Fprintln(w, "Restore script ran.")
	}

	tw := newTable(w)
	for _, p := range report.Paths {
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", iconFor(string(p.Outcome)), p.Name, p.Kind, p.Outcome, styleMuted.Render(pathDetail(p)))
	}
	tw.Flush()

	if len(report.SkippedModules) > 0 {
		fmt.Fprintf(w, "\nOther modules in archive not restored: %s\n", strings.Join(report.SkippedModules, ", "))
	}
	if report.Error != "" {
		fmt.Fprintf(w, "\n%s %s\n", styleError.Render("Restore failed:"), report.Error)
		return
	}
	fmt.Fprintf(w, "\n%d copied, %d skipped, %d absent, %d failed\n",
		report.Count(models.OutcomeCopied),
		report.Count(models.OutcomeSkipped),
		report.Count(models.OutcomeSourceAbsent),
		report.Count(models.OutcomeFailed))
}

func pathDetail(p models.PathResult) string {
	if p.Reason != "" {
		return p.Destination + ": " + p.Reason
	}
	return p.Destination
}

func printRuns(w io.Writer, runs []models.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tSTARTED\tMODULES\tARCHIVE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			r.ID, r.Kind, iconFor(string(r.Status)), r.Status,
			humanize.Time(r.StartedAt), r.Modules, r.Archive)
	}
	tw.Flush()
}

func printRun(w io.Writer, r *models.Run) {
	fmt.Fprintf(w, "%s %s\n", styleBold.Render("Run:"), r.ID)
	fmt.Fprintf(w, "Kind:     %s\n", r.Kind)
	fmt.Fprintf(w, "Status:   %s %s\n", iconFor(string(r.Status)), r.Status)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Local().Format(time.RFC1123))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Finished: %s (%s)\n", r.FinishedAt.Local().Format(time.RFC1123), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Archive != "" {
		fmt.Fprintf(w, "Archive:  %s\n", r.Archive)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", styleError.Render(r.Error))
	}

	if len(r.Items) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := newTable(w)
	for _, item := range r.Items {
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", iconFor(item.Outcome), item.Module, item.Kind, item.Path, styleMuted.Render(item.Reason))
	}
	tw.Flush()
}
