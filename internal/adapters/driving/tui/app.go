package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/components/progress"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// App is the main TUI application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	// ports provides access to core services via driving ports.
	ports *Ports

	// ctx is the context for cancellation.
	ctx context.Context

	styles *styles.Styles
	keymap *keymap.KeyMap

	workflows *list.WorkflowList
	statusBar *status.Bar
	tracker   *progress.Tracker

	// current is the workflow shown by the detail and answers views.
	current   *domain.Workflow
	documents []domain.Document
	answers   *domain.AnswerSet

	// events is the live subscription of the detail view, nil when idle.
	events      <-chan domain.ProgressEvent
	unsubscribe func()

	currentView  messages.ViewType
	previousView messages.ViewType

	// scroll is the first visible line of the answers view.
	scroll int

	// err holds the last error that occurred.
	err error

	width  int
	height int
	ready  bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a new TUI application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if ports == nil {
		return nil, ErrInvalidPorts
	}
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()

	return &App{
		ports:       ports,
		ctx:         context.Background(),
		styles:      s,
		keymap:      km,
		workflows:   list.NewWorkflowList(s),
		statusBar:   status.NewBar(s, km),
		tracker:     progress.NewTracker(s),
		currentView: messages.ViewWorkflows,
	}, nil
}

// WithContext sets the context for the app.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	a.statusBar.SetState(status.StateLoading)
	return tea.Batch(
		tea.SetWindowTitle("autorfp"),
		a.loadWorkflows(),
	)
}

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // central message handler
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case messages.WorkflowsLoaded:
		if msg.Err != nil {
			return a, a.fail(msg.Err)
		}
		a.workflows.SetWorkflows(msg.Workflows)
		a.statusBar.SetState(status.StateReady)
		a.statusBar.SetMessage("")
		a.statusBar.SetCount(a.workflows.Count())
		return a, nil

	case messages.WorkflowLoaded:
		if msg.Err != nil {
			return a, a.fail(msg.Err)
		}
		return a, a.showWorkflow(msg.Workflow, msg.Documents)

	case messages.ProgressReceived:
		if a.current == nil || msg.Event.WorkflowID != a.current.ID || a.events == nil {
			return a, nil
		}
		a.tracker.Apply(msg.Event)
		a.statusBar.SetMessage(fmt.Sprintf("%s %d%%", a.tracker.Step(), a.tracker.Percent()))
		return a, listen(a.current.ID, a.events)

	case messages.ProgressClosed:
		if a.current == nil || msg.WorkflowID != a.current.ID || a.events == nil {
			return a, nil
		}
		a.stopListening()
		return a, a.loadWorkflow(msg.WorkflowID)

	case messages.AnswersLoaded:
		if msg.Err != nil {
			return a, a.fail(msg.Err)
		}
		a.answers = msg.Answers
		a.scroll = 0
		a.switchView(messages.ViewAnswers)
		return a, nil

	case messages.WorkflowCancelled:
		if msg.Err != nil {
			return a, a.fail(msg.Err)
		}
		if msg.Workflow.Status == domain.WorkflowCancelled {
			a.statusBar.SetMessage("Workflow cancelled")
			return a, a.loadWorkflow(msg.Workflow.ID)
		}
		a.statusBar.SetMessage("Cancellation requested")
		return a, nil

	case messages.ErrorOccurred:
		return a, a.fail(msg.Err)

	case messages.ViewChanged:
		a.switchView(msg.View)
		return a, nil

	case messages.Quit:
		a.stopListening()
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.tracker, cmd = a.tracker.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		a.stopListening()
		return a, tea.Quit
	}

	switch a.currentView {
	case messages.ViewHelp:
		if key.Matches(msg, a.keymap.Back) || key.Matches(msg, a.keymap.Help) {
			a.switchView(a.previousView)
		}
		return a, nil

	case messages.ViewWorkflows:
		switch {
		case key.Matches(msg, a.keymap.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keymap.Help):
			a.switchView(messages.ViewHelp)
		case key.Matches(msg, a.keymap.Refresh):
			a.statusBar.SetState(status.StateLoading)
			return a, a.loadWorkflows()
		case key.Matches(msg, a.keymap.Select):
			if wf := a.workflows.SelectedWorkflow(); wf != nil {
				a.statusBar.SetState(status.StateLoading)
				return a, a.loadWorkflow(wf.ID)
			}
		default:
			a.workflows.Update(msg)
		}
		return a, nil

	case messages.ViewDetail:
		switch {
		case key.Matches(msg, a.keymap.Back):
			a.stopListening()
			a.current = nil
			a.switchView(messages.ViewWorkflows)
			return a, a.loadWorkflows()
		case key.Matches(msg, a.keymap.Help):
			a.switchView(messages.ViewHelp)
		case key.Matches(msg, a.keymap.Refresh):
			return a, a.loadWorkflow(a.current.ID)
		case key.Matches(msg, a.keymap.Answers):
			return a, a.loadAnswers(a.current.ID)
		case key.Matches(msg, a.keymap.CancelRun):
			if a.current.Status.IsTerminal() {
				a.statusBar.SetMessage("Workflow already finished")
				return a, nil
			}
			return a, cancelWorkflow(a.ctx, a.ports.Workflows, a.current.ID)
		}
		return a, nil

	case messages.ViewAnswers:
		switch {
		case key.Matches(msg, a.keymap.Back):
			a.switchView(messages.ViewDetail)
		case key.Matches(msg, a.keymap.Help):
			a.switchView(messages.ViewHelp)
		case key.Matches(msg, a.keymap.Up):
			if a.scroll > 0 {
				a.scroll--
			}
		case key.Matches(msg, a.keymap.Down):
			a.scroll++
		}
		return a, nil
	}
	return a, nil
}

// showWorkflow opens the detail view and subscribes while the workflow runs.
func (a *App) showWorkflow(wf *domain.Workflow, docs []domain.Document) tea.Cmd {
	sameWorkflow := a.current != nil && a.current.ID == wf.ID
	a.current = wf
	a.documents = docs
	a.switchView(messages.ViewDetail)

	if !sameWorkflow {
		a.stopListening()
		a.tracker = progress.NewTracker(a.styles)
		a.tracker.SetWidth(a.width)
	}

	if wf.Status.IsTerminal() {
		a.stopListening()
		a.tracker.Finish(wf)
		a.statusBar.SetState(status.StateReady)
		a.statusBar.SetMessage("")
		return nil
	}

	a.statusBar.SetState(status.StateRunning)
	a.tracker.Apply(domain.ProgressEvent{
		WorkflowID: wf.ID,
		Step:       wf.CurrentStep,
		Progress:   wf.Progress,
		Status:     wf.Status,
	})
	if a.events != nil {
		return nil
	}
	a.events, a.unsubscribe = a.ports.Workflows.Subscribe(wf.ID)
	return tea.Batch(a.tracker.Init(), listen(wf.ID, a.events))
}

func (a *App) stopListening() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.events = nil
	a.unsubscribe = nil
}

func (a *App) switchView(v messages.ViewType) {
	if v == messages.ViewHelp && a.currentView != messages.ViewHelp {
		a.previousView = a.currentView
	}
	a.currentView = v
	a.statusBar.SetView(v)
}

func (a *App) fail(err error) tea.Cmd {
	a.err = err
	a.statusBar.SetState(status.StateError)
	a.statusBar.SetMessage(err.Error())
	return nil
}

func (a *App) loadWorkflows() tea.Cmd {
	svc, ctx := a.ports.Workflows, a.ctx
	return func() tea.Msg {
		wfs, err := svc.List(ctx, domain.ListOptions{})
		return messages.WorkflowsLoaded{Workflows: wfs, Err: err}
	}
}

func (a *App) loadWorkflow(id string) tea.Cmd {
	svc, ctx := a.ports.Workflows, a.ctx
	return func() tea.Msg {
		wf, err := svc.Get(ctx, id)
		if err != nil {
			return messages.WorkflowLoaded{Err: err}
		}
		docs, err := svc.Documents(ctx, id)
		return messages.WorkflowLoaded{Workflow: wf, Documents: docs, Err: err}
	}
}

func (a *App) loadAnswers(id string) tea.Cmd {
	svc, ctx := a.ports.Workflows, a.ctx
	return func() tea.Msg {
		set, err := svc.Answers(ctx, id)
		return messages.AnswersLoaded{WorkflowID: id, Answers: set, Err: err}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	var body string
	switch a.currentView {
	case messages.ViewDetail:
		body = a.viewDetail()
	case messages.ViewAnswers:
		body = a.viewAnswers()
	case messages.ViewHelp:
		body = a.viewHelp()
	default:
		body = a.styles.Title.Render("autorfp") + "\n\n" + a.workflows.View()
	}
	return body + "\n\n" + a.statusBar.View()
}

func (a *App) viewDetail() string {
	wf := a.current
	if wf == nil {
		return a.styles.Muted.Render("No workflow selected")
	}

	var b strings.Builder
	b.WriteString(a.styles.Title.Render("Workflow "+wf.ID) + "\n\n")

	row := func(label, value string) {
		b.WriteString(a.styles.Label.Render(label) + a.styles.Normal.Render(value) + "\n")
	}
	b.WriteString(a.styles.Label.Render("Status") + a.styles.Status(wf.Status).Render(string(wf.Status)) + "\n")
	row("Created", wf.CreatedAt.Format(time.DateTime))
	if wf.StartTime != nil {
		end := time.Now()
		if wf.EndTime != nil {
			end = *wf.EndTime
		}
		row("Duration", end.Sub(*wf.StartTime).Round(time.Second).String())
	}
	if len(wf.ProjectContext) > 0 {
		keys := make([]string, 0, len(wf.ProjectContext))
		for k := range wf.ProjectContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		row("Context", strings.Join(keys, ", "))
	}
	if wf.ErrorMessage != "" {
		b.WriteString(a.styles.Label.Render("Error") + a.styles.Error.Render(wf.ErrorMessage) + "\n")
	}

	b.WriteString("\n" + a.tracker.View())

	if len(a.documents) > 0 {
		b.WriteString("\n" + a.styles.Subtitle.Render(fmt.Sprintf("Documents (%d)", len(a.documents))) + "\n")
		for i := range a.documents {
			d := &a.documents[i]
			b.WriteString(fmt.Sprintf("  %-40s %-10s %s\n", d.Filename, d.Status, d.MIMEType))
		}
	}
	return a.styles.Panel.Render(strings.TrimRight(b.String(), "\n"))
}

func (a *App) viewAnswers() string {
	set := a.answers
	if set == nil {
		return a.styles.Muted.Render("No answers loaded")
	}

	lines := []string{
		a.styles.Title.Render("Answers"),
		"",
		fmt.Sprintf("Answered %d of %d questions (%.0f%% coverage, method: %s)",
			set.Gaps.Answered, set.Gaps.TotalQuestions, set.Gaps.Coverage, set.Method),
		"",
	}
	for i := range set.Answers {
		ans := &set.Answers[i]
		lines = append(lines,
			a.styles.Confidence(ans.Confidence).Render(fmt.Sprintf("[%s] %.2f", ans.QuestionID, ans.Confidence))+
				" "+a.styles.Normal.Render(ans.Text))
	}
	if len(set.Unanswered) > 0 {
		lines = append(lines, "", a.styles.Subtitle.Render("Unanswered"))
		for _, u := range set.Unanswered {
			lines = append(lines, a.styles.Warning.Render(fmt.Sprintf("[%s] ", u.QuestionID))+
				u.Question+a.styles.Muted.Render(" ("+u.Reason+")"))
		}
	}
	if len(set.Gaps.CriticalGaps) > 0 {
		lines = append(lines, "", a.styles.Subtitle.Render("Critical gaps"))
		for _, g := range set.Gaps.CriticalGaps {
			lines = append(lines, a.styles.Error.Render(fmt.Sprintf("[%s] ", g.QuestionID))+g.Question)
		}
	}

	if a.scroll >= len(lines) {
		a.scroll = len(lines) - 1
	}
	visible := lines[a.scroll:]
	if a.height > 4 && len(visible) > a.height-4 {
		visible = visible[:a.height-4]
	}
	return strings.Join(visible, "\n")
}

func (a *App) viewHelp() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render("Help") + "\n\n")
	for _, group := range a.keymap.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(fmt.Sprintf("  %-10s %s\n", h.Key, h.Desc))
		}
		b.WriteString("\n")
	}
	b.WriteString(a.styles.Muted.Render("[esc] back"))
	return b.String()
}

// CurrentView returns the current view type.
func (a *App) CurrentView() messages.ViewType {
	return a.currentView
}

// Current returns the workflow shown by the detail view.
func (a *App) Current() *domain.Workflow {
	return a.current
}

// Workflows returns the listed workflows.
func (a *App) Workflows() []domain.Workflow {
	return a.workflows.Workflows()
}

// Err returns the last error that occurred.
func (a *App) Err() error {
	return a.err
}

// Ready returns whether the app has been initialised.
func (a *App) Ready() bool {
	return a.ready
}

// Subscribed reports whether the detail view follows live progress.
func (a *App) Subscribed() bool {
	return a.events != nil
}

// SetDimensions sets the terminal dimensions.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.workflows.SetDimensions(width, height-4)
	a.statusBar.SetWidth(width)
	a.tracker.SetWidth(width)
}
