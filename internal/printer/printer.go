// Package printer renders CLI output. Colours are forced on unless NO_COLOR
// is set.
package printer

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dyluth/sitesync/pkg/projects"
	"github.com/dyluth/sitesync/pkg/realtime"
	"github.com/dyluth/sitesync/pkg/syncer"
	"github.com/fatih/color"
)

func init() {
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects normal and error output, for tests.
func SetOutput(out, errOut io.Writer) {
	stdout, stderr = out, errOut
}

// Success prints a green line with a checkmark prefix
func Success(format string, a ...any) {
	green.Fprintf(stdout, "✓ %s", fmt.Sprintf(format, a...))
}

// Info prints in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(stdout, format, a...)
}

// Warning prints a yellow line with a warning prefix
func Warning(format string, a ...any) {
	yellow.Fprintf(stdout, "⚠️  %s", fmt.Sprintf(format, a...))
}

// Step prints a step in a multi-step operation
func Step(format string, a ...any) {
	cyan.Fprintf(stdout, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints title, explanation and suggestions to stderr and returns an
// error carrying only the title, for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(stderr, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(stderr, "%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(stderr, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(stderr, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}

// Projects prints one line per project, marking the current one.
func Projects(list []projects.Project, currentID string) {
	if len(list) == 0 {
		Info("No projects.\n")
		return
	}
	for _, p := range list {
		marker := " "
		if p.ID == currentID {
			marker = "*"
		}
		where := "remote"
		if p.IsLocal() {
			where = "local"
		}
		fmt.Fprintf(stdout, "%s %-28s %-24s %s\n", marker, p.ID, p.Name, faint.Sprint(where))
	}
}

// SyncReport prints the outcome of a fan-out sync, one store per line.
func SyncReport(r syncer.Report) {
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := r.Results[name]; err != nil {
			red.Fprintf(stdout, "✗ %-10s", name)
			fmt.Fprintf(stdout, " %v\n", err)
			continue
		}
		green.Fprintf(stdout, "✓ %s\n", name)
	}
	summary := fmt.Sprintf("%d stores synced for %s in %s\n", len(names)-len(r.Failed()), r.ProjectID, r.Duration.Round(time.Millisecond))
	if r.OK() {
		Success("%s", summary)
	} else {
		Warning("%s", summary)
	}
}

// Event prints a realtime event with a timestamp.
func Event(at time.Time, ev realtime.Event) {
	data := strings.TrimSpace(string(ev.Data))
	if len(data) > 120 {
		data = data[:117] + "..."
	}
	fmt.Fprintf(stdout, "%s %s %s\n", faint.Sprint(at.Format(time.TimeOnly)), cyan.Sprint(ev.Kind.String()), data)
}
