// Package progress renders the live progress of one workflow.
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/autorfp/internal/core/domain"
)

const (
	maxLogLines = 8
	maxTail     = 480
)

// Tracker accumulates progress events and renders a bar, a spinner,
// a short event log and the tail of streamed model output.
type Tracker struct {
	styles  *styles.Styles
	bar     progress.Model
	spinner spinner.Model

	percent int
	step    domain.Step
	status  domain.WorkflowStatus
	log     []string
	tail    string
	width   int
}

// NewTracker creates a tracker for a workflow that has not reported yet.
func NewTracker(s *styles.Styles) *Tracker {
	if s == nil {
		s = styles.DefaultStyles()
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = s.Subtitle

	return &Tracker{
		styles:  s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: sp,
		status:  domain.WorkflowPending,
		width:   80,
	}
}

// Init starts the spinner.
func (t *Tracker) Init() tea.Cmd {
	return t.spinner.Tick
}

// Update advances the spinner while the workflow is not terminal.
func (t *Tracker) Update(msg tea.Msg) (*Tracker, tea.Cmd) {
	if _, ok := msg.(spinner.TickMsg); !ok || t.status.IsTerminal() {
		return t, nil
	}
	var cmd tea.Cmd
	t.spinner, cmd = t.spinner.Update(msg)
	return t, cmd
}

// Apply records one progress event. Chunk events only extend the tail.
func (t *Tracker) Apply(ev domain.ProgressEvent) {
	if ev.Chunk != "" {
		t.tail += ev.Chunk
		if len(t.tail) > maxTail {
			t.tail = t.tail[len(t.tail)-maxTail:]
		}
		return
	}

	if ev.Progress > t.percent || ev.Status.IsTerminal() {
		t.percent = ev.Progress
	}
	if ev.Step != "" && ev.Step != t.step {
		t.step = ev.Step
		t.tail = ""
	}
	if ev.Status != "" {
		t.status = ev.Status
	}

	line := fmt.Sprintf("%3d%%  %s", ev.Progress, ev.Step)
	if ev.Message != "" {
		line += "  " + ev.Message
	}
	t.log = append(t.log, line)
	if len(t.log) > maxLogLines {
		t.log = t.log[len(t.log)-maxLogLines:]
	}
}

// Finish sets the final state from the stored workflow.
func (t *Tracker) Finish(wf *domain.Workflow) {
	if wf == nil {
		return
	}
	t.status = wf.Status
	t.percent = wf.Progress
	if wf.CurrentStep != "" {
		t.step = wf.CurrentStep
	}
	if wf.ErrorMessage != "" {
		t.log = append(t.log, "error: "+wf.ErrorMessage)
	}
}

// View renders the tracker.
func (t *Tracker) View() string {
	var b strings.Builder

	head := t.styles.Status(t.status).Render(string(t.status))
	if !t.status.IsTerminal() {
		head = t.spinner.View() + " " + head
	}
	step := string(t.step)
	if step == "" {
		step = "waiting"
	}
	b.WriteString(head + "  " + t.styles.Normal.Render(step) + "\n")
	b.WriteString(t.bar.ViewAs(float64(t.percent)/100) + "\n")

	if len(t.log) > 0 {
		b.WriteString("\n")
		for _, line := range t.log {
			b.WriteString(t.styles.Muted.Render(line) + "\n")
		}
	}

	if t.tail != "" {
		b.WriteString("\n" + t.styles.Subtitle.Render("Model output") + "\n")
		b.WriteString(t.styles.Normal.Width(t.width).Render(strings.TrimSpace(t.tail)) + "\n")
	}
	return b.String()
}

// SetWidth resizes the bar and the stream tail.
func (t *Tracker) SetWidth(width int) {
	t.width = width
	bw := width - 4
	if bw > 60 {
		bw = 60
	}
	if bw < 10 {
		bw = 10
	}
	t.bar.Width = bw
}

// Percent returns the last reported progress.
func (t *Tracker) Percent() int {
	return t.percent
}

// Step returns the last reported step.
func (t *Tracker) Step() domain.Step {
	return t.step
}

// Status returns the last reported status.
func (t *Tracker) Status() domain.WorkflowStatus {
	return t.status
}

// Log returns the retained event lines.
func (t *Tracker) Log() []string {
	return t.log
}

// Tail returns the retained streamed output.
func (t *Tracker) Tail() string {
	return t.tail
}
