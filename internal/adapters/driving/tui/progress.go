package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/components/progress"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driving"
)

// ProgressOptions configures RunProgress.
type ProgressOptions struct {
	// Stream shows streamed model output below the bar.
	Stream bool
}

// workflowDone carries the stored workflow once it stopped running.
type workflowDone struct {
	workflow *domain.Workflow
	err      error
}

// progressModel follows one workflow until it stops running or the user hides it.
type progressModel struct {
	ctx     context.Context
	svc     driving.WorkflowService
	id      string
	opts    ProgressOptions
	events  <-chan domain.ProgressEvent
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	tracker *progress.Tracker

	final      *domain.Workflow
	err        error
	hidden     bool
	cancelling bool
}

func newProgressModel(ctx context.Context, svc driving.WorkflowService, id string,
	events <-chan domain.ProgressEvent, opts ProgressOptions) *progressModel {
	s := styles.DefaultStyles()
	return &progressModel{
		ctx:     ctx,
		svc:     svc,
		id:      id,
		opts:    opts,
		events:  events,
		styles:  s,
		keymap:  keymap.DefaultKeyMap(),
		tracker: progress.NewTracker(s),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.tracker.Init(), listen(m.id, m.events))
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.tracker.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Interrupt):
			if m.cancelling {
				return m, nil
			}
			m.cancelling = true
			return m, cancelWorkflow(m.ctx, m.svc, m.id)
		case key.Matches(msg, m.keymap.Hide):
			m.hidden = true
			return m, tea.Quit
		}
		return m, nil

	case messages.ProgressReceived:
		if msg.Event.Chunk != "" && !m.opts.Stream {
			return m, listen(m.id, m.events)
		}
		m.tracker.Apply(msg.Event)
		return m, listen(m.id, m.events)

	case messages.ProgressClosed:
		return m, waitWorkflow(m.ctx, m.svc, m.id)

	case messages.WorkflowCancelled:
		if msg.Err != nil {
			m.err = msg.Err
			m.cancelling = false
		}
		return m, nil

	case workflowDone:
		m.final, m.err = msg.workflow, msg.err
		m.tracker.Finish(msg.workflow)
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.tracker, cmd = m.tracker.Update(msg)
	return m, cmd
}

func (m *progressModel) View() string {
	out := m.styles.Title.Render("Workflow "+m.id) + "\n\n" + m.tracker.View() + "\n"
	switch {
	case m.err != nil:
		out += m.styles.Error.Render(m.err.Error()) + "\n"
	case m.cancelling:
		out += m.styles.Warning.Render("Cancelling after the current step...") + "\n"
	}
	if m.final == nil {
		hints := m.keymap.ProgressHelp()
		out += m.styles.Help.Render(fmt.Sprintf("%s: %s | %s: %s",
			hints[0].Help().Key, hints[0].Help().Desc, hints[1].Help().Key, hints[1].Help().Desc))
	}
	return out
}

// listen reads the next event from the subscription.
func listen(id string, events <-chan domain.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return messages.ProgressClosed{WorkflowID: id}
		}
		return messages.ProgressReceived{Event: ev}
	}
}

func waitWorkflow(ctx context.Context, svc driving.WorkflowService, id string) tea.Cmd {
	return func() tea.Msg {
		wf, err := svc.Wait(ctx, id)
		return workflowDone{workflow: wf, err: err}
	}
}

func cancelWorkflow(ctx context.Context, svc driving.WorkflowService, id string) tea.Cmd {
	return func() tea.Msg {
		wf, err := svc.Cancel(ctx, id)
		return messages.WorkflowCancelled{Workflow: wf, Err: err}
	}
}

// RunProgress shows a live progress view for one workflow and returns the
// workflow once it stops running. If the user hides the view first, the
// current snapshot is returned and the workflow keeps running.
func RunProgress(ctx context.Context, svc driving.WorkflowService, id string,
	opts ProgressOptions) (*domain.Workflow, error) {
	if svc == nil {
		return nil, ErrMissingWorkflowService
	}

	events, unsubscribe := svc.Subscribe(id)
	defer unsubscribe()

	model := newProgressModel(ctx, svc, id, events, opts)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil &&
		!errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("progress view: %w", err)
	}

	if model.final != nil || model.err != nil {
		return model.final, model.err
	}
	return svc.Get(ctx, id)
}
