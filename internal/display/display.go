// Package display renders operation reports and artifact listings for the
// terminal, with color support detected at startup and disabled automatically
// for pipes and dumb terminals.
package display

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"dbguardian/internal/backup"
)

// Printer writes human-facing output. All command output funnels through one
// Printer so color and formatting decisions live in one place.
type Printer struct {
	out      io.Writer
	colored  bool
	profile  termenv.Profile
	okColor  *color.Color
	warn     *color.Color
	fail     *color.Color
	emphasis *color.Color
}

// NewPrinter creates a printer writing to out. Color is used only when out is
// a real terminal and the environment does not disable it.
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{
		out:      out,
		colored:  detectColorSupport(out),
		profile:  termenv.ColorProfile(),
		okColor:  color.New(color.FgGreen),
		warn:     color.New(color.FgYellow),
		fail:     color.New(color.FgRed),
		emphasis: color.New(color.Bold),
	}
	if !p.colored {
		color.NoColor = true
	}
	return p
}

func detectColorSupport(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// Printf writes plain formatted output
func (p *Printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

// Success writes a green success line
func (p *Printer) Success(format string, args ...interface{}) {
	fmt.Fprintf(p.out, "%s %s\n", p.okColor.Sprint("✓"), fmt.Sprintf(format, args...))
}

// Warning writes a yellow warning line
func (p *Printer) Warning(format string, args ...interface{}) {
	fmt.Fprintf(p.out, "%s %s\n", p.warn.Sprint("!"), fmt.Sprintf(format, args...))
}

// Failure writes a red failure line
func (p *Printer) Failure(format string, args ...interface{}) {
	fmt.Fprintf(p.out, "%s %s\n", p.fail.Sprint("✗"), fmt.Sprintf(format, args...))
}

// Report renders a finished operation's report
func (p *Printer) Report(report *backup.Report) {
	p.Printf("%s\n", p.emphasis.Sprintf("%s %s", strings.ToUpper(string(report.Kind)), report.ID))
	p.Printf("  Database:  %s (%s)\n", report.DatabaseName, report.DatabaseType)
	p.Printf("  Status:    %s\n", p.statusText(report.Status))
	if report.StorageLocation != "" {
		p.Printf("  Artifact:  %s\n", report.StorageLocation)
	}
	if report.RawSizeBytes > 0 {
		p.Printf("  Size:      %s", FormatBytes(report.RawSizeBytes))
		if report.CompressedBytes > 0 {
			ratio := float64(report.RawSizeBytes) / float64(report.CompressedBytes)
			p.Printf(" (compressed %s, %.2fx)", FormatBytes(report.CompressedBytes), ratio)
		}
		p.Printf("\n")
	}
	if report.Checksum != "" {
		p.Printf("  Checksum:  %s\n", report.Checksum)
	}
	if report.DurationSeconds > 0 {
		p.Printf("  Duration:  %s\n", (time.Duration(report.DurationSeconds * float64(time.Second))).Round(time.Millisecond))
	}
	if report.SafetyBackupID != "" {
		p.Printf("  Safety:    %s\n", report.SafetyBackupID)
	}
	if len(report.Validations) > 0 {
		names := make([]string, 0, len(report.Validations))
		for name := range report.Validations {
			names = append(names, name)
		}
		sort.Strings(names)
		p.Printf("  Checks:\n")
		for _, name := range names {
			mark := p.okColor.Sprint("✓")
			if !report.Validations[name] {
				mark = p.fail.Sprint("✗")
			}
			p.Printf("    %s %s\n", mark, name)
		}
	}
	if report.ErrorMessage != "" {
		p.Failure("%s", report.ErrorMessage)
	}
}

// Artifacts renders a listing of stored backup artifacts, newest first
func (p *Printer) Artifacts(artifacts []backup.ArtifactInfo) {
	if len(artifacts) == 0 {
		p.Printf("no backup artifacts found\n")
		return
	}
	sorted := make([]backup.ArtifactInfo, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	w := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARTIFACT\tCREATED\tSIZE")
	for _, a := range sorted {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			a.Key,
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			FormatBytes(a.SizeBytes))
	}
	w.Flush()
}

// RetentionDecision renders what a retention sweep would keep and discard
func (p *Printer) RetentionDecision(decision backup.RetentionDecision, dryRun bool) {
	verb := "deleted"
	if dryRun {
		verb = "would delete"
	}
	p.Printf("keeping %d artifact(s), %s %d\n", len(decision.Keep), verb, len(decision.Discard))
	for _, a := range decision.Discard {
		p.Printf("  %s %s (%s)\n", p.warn.Sprint("-"), a.Key, a.CreatedAt.Format("2006-01-02"))
	}
}

func (p *Printer) statusText(status backup.OperationStatus) string {
	switch status {
	case backup.StatusCompleted:
		return p.okColor.Sprint(string(status))
	case backup.StatusRolledBack:
		return p.warn.Sprint(string(status))
	case backup.StatusFailed:
		return p.fail.Sprint(string(status))
	default:
		return string(status)
	}
}

// FormatBytes renders a byte count in human units
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
