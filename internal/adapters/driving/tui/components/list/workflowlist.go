// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// WorkflowList displays workflows in a navigable list.
type WorkflowList struct {
	workflows []domain.Workflow
	selected  int
	styles    *styles.Styles
	width     int
	height    int
}

// NewWorkflowList creates a new workflow list component.
func NewWorkflowList(s *styles.Styles) *WorkflowList {
	if s == nil {
		s = styles.DefaultStyles()
	}

	return &WorkflowList{
		styles: s,
		width:  80,
		height: 10,
	}
}

// Init initialises the workflow list.
func (w *WorkflowList) Init() tea.Cmd {
	return nil
}

// Update handles list navigation messages.
func (w *WorkflowList) Update(msg tea.Msg) (*WorkflowList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			w.MoveUp()
		case "down", "j":
			w.MoveDown()
		case "home", "g":
			w.selected = 0
		case "end", "G":
			if len(w.workflows) > 0 {
				w.selected = len(w.workflows) - 1
			}
		}
	}
	return w, nil
}

// View renders the workflow list.
func (w *WorkflowList) View() string {
	if len(w.workflows) == 0 {
		return w.styles.Muted.Render("No workflows yet. Start one with 'autorfp run <files>'.")
	}

	lines := make([]string, 0, len(w.workflows)+2)
	lines = append(lines,
		w.styles.Subtitle.Render(fmt.Sprintf("Workflows (%d)", len(w.workflows))),
		"",
	)

	visible := w.height - 3
	if visible < 1 {
		visible = 1
	}
	start := 0
	if w.selected >= visible {
		start = w.selected - visible + 1
	}
	end := start + visible
	if end > len(w.workflows) {
		end = len(w.workflows)
	}

	for i := start; i < end; i++ {
		lines = append(lines, w.renderRow(i, &w.workflows[i]))
	}
	return strings.Join(lines, "\n")
}

func (w *WorkflowList) renderRow(index int, wf *domain.Workflow) string {
	indicator := "  "
	if index == w.selected {
		indicator = "> "
	}

	id := wf.ID
	if len(id) > 12 {
		id = id[:12]
	}
	created := wf.CreatedAt.Format("2006-01-02 15:04")
	step := string(wf.CurrentStep)
	if step == "" {
		step = "-"
	}

	if index == w.selected {
		return w.styles.Selected.Render(fmt.Sprintf("%s%-12s  %-10s  %-22s %3d%%  %s",
			indicator, id, wf.Status, step, wf.Progress, created))
	}
	return w.styles.Normal.Render(fmt.Sprintf("%s%-12s  ", indicator, id)) +
		w.styles.Status(wf.Status).Render(fmt.Sprintf("%-10s", wf.Status)) +
		w.styles.Normal.Render(fmt.Sprintf("  %-22s %3d%%  ", step, wf.Progress)) +
		w.styles.Muted.Render(created)
}

// SetWorkflows replaces the listed workflows. The selection follows the
// previously selected workflow when it is still present.
func (w *WorkflowList) SetWorkflows(workflows []domain.Workflow) {
	var keep string
	if cur := w.SelectedWorkflow(); cur != nil {
		keep = cur.ID
	}

	w.workflows = workflows
	w.selected = 0
	for i := range workflows {
		if workflows[i].ID == keep {
			w.selected = i
			break
		}
	}
}

// Workflows returns the listed workflows.
func (w *WorkflowList) Workflows() []domain.Workflow {
	return w.workflows
}

// Selected returns the index of the selected workflow.
func (w *WorkflowList) Selected() int {
	return w.selected
}

// SetSelected sets the selected index.
func (w *WorkflowList) SetSelected(index int) {
	if index >= 0 && index < len(w.workflows) {
		w.selected = index
	}
}

// SelectedWorkflow returns the selected workflow, or nil if none.
func (w *WorkflowList) SelectedWorkflow() *domain.Workflow {
	if len(w.workflows) == 0 || w.selected < 0 || w.selected >= len(w.workflows) {
		return nil
	}
	return &w.workflows[w.selected]
}

// MoveUp moves selection up.
func (w *WorkflowList) MoveUp() {
	if w.selected > 0 {
		w.selected--
	}
}

// MoveDown moves selection down.
func (w *WorkflowList) MoveDown() {
	if w.selected < len(w.workflows)-1 {
		w.selected++
	}
}

// SetDimensions sets the component dimensions.
func (w *WorkflowList) SetDimensions(width, height int) {
	w.width = width
	w.height = height
}

// Count returns the number of workflows.
func (w *WorkflowList) Count() int {
	return len(w.workflows)
}

// IsEmpty returns whether the list is empty.
func (w *WorkflowList) IsEmpty() bool {
	return len(w.workflows) == 0
}
