package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/relnote/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

var (
	labelColor = color.New(color.FgCyan, color.Bold)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
)

func writerOf(c *cli.Command) io.Writer {
	if w := c.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func runStatusColor(s model.RunStatus) *color.Color {
	switch s {
	case model.RunStatusSucceeded:
		return okColor
	case model.RunStatusFailed:
		return errColor
	default:
		return warnColor
	}
}

func draftStatusColor(s model.DraftStatus) *color.Color {
	switch s {
	case model.DraftStatusApproved:
		return okColor
	case model.DraftStatusRejected:
		return errColor
	default:
		return warnColor
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func printRun(w io.Writer, run *model.Run) {
	labelColor.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  status:   %s\n", runStatusColor(run.Status).Sprint(run.Status))
	fmt.Fprintf(w, "  trigger:  %s\n", run.Trigger)
	if run.Reason != "" {
		fmt.Fprintf(w, "  reason:   %s\n", run.Reason)
	}
	fmt.Fprintf(w, "  records:  %d\n", run.Records)
	if run.DraftID != "" {
		fmt.Fprintf(w, "  draft:    %s\n", run.DraftID)
	}
	fmt.Fprintf(w, "  started:  %s\n", formatTime(run.StartedAt))
	fmt.Fprintf(w, "  finished: %s\n", formatTime(run.FinishedAt))
}

func printDraftLine(w io.Writer, d *model.Draft) {
	active := ""
	if !d.Active {
		active = " (inactive)"
	}
	fmt.Fprintf(w, "%s  %-9s  %s  %d records%s\n",
		d.ID,
		draftStatusColor(d.Status).Sprint(d.Status),
		formatTime(d.CreatedAt),
		len(d.RecordIDs),
		active,
	)
}

func printDraft(w io.Writer, d *model.Draft) {
	labelColor.Fprintf(w, "Draft %s\n", d.ID)
	fmt.Fprintf(w, "  status:   %s\n", draftStatusColor(d.Status).Sprint(d.Status))
	fmt.Fprintf(w, "  active:   %t\n", d.Active)
	fmt.Fprintf(w, "  records:  %d\n", len(d.RecordIDs))
	fmt.Fprintf(w, "  template: %s\n", d.TemplateVersion)
	if d.RegeneratedFrom != "" {
		fmt.Fprintf(w, "  from:     %s\n", d.RegeneratedFrom)
	}
	if d.RegeneratedTo != "" {
		fmt.Fprintf(w, "  next:     %s\n", d.RegeneratedTo)
	}
	fmt.Fprintf(w, "  edits:    %d\n", len(d.History))
	fmt.Fprintf(w, "  updated:  %s\n", formatTime(d.UpdatedAt))

	labelColor.Fprintln(w, "\n--- internal ---")
	fmt.Fprintln(w, d.Internal)
	labelColor.Fprintln(w, "--- external ---")
	fmt.Fprintln(w, d.External)
}

func printRepository(w io.Writer, r *model.Repository) {
	location := ""
	if r.LocalPath != "" {
		location = "  " + r.LocalPath
	}
	fmt.Fprintf(w, "%s  %s  %s%s\n", r.ID, labelColor.Sprint(r.Name), r.Provider, location)
}
