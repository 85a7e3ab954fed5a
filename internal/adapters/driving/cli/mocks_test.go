package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// mockWorkflowService implements driving.WorkflowService. Unset funcs fall
// back to a canned completed workflow.
type mockWorkflowService struct {
	SubmitFunc    func(ctx context.Context, uploads []domain.Upload, pc map[string]any) (*domain.Workflow, error)
	RetryFunc     func(ctx context.Context, id string, step domain.Step) (*domain.Workflow, error)
	CancelFunc    func(ctx context.Context, id string) (*domain.Workflow, error)
	GetFunc       func(ctx context.Context, id string) (*domain.Workflow, error)
	ListFunc      func(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error)
	DocumentsFunc func(ctx context.Context, id string) ([]domain.Document, error)
	ResultsFunc   func(ctx context.Context, id string) ([]domain.WorkflowResult, error)
	AnswersFunc   func(ctx context.Context, id string) (*domain.AnswerSet, error)
	ProposalFunc  func(ctx context.Context, id string) (*domain.Proposal, error)
	StatsFunc     func(ctx context.Context) (*domain.WorkflowStats, error)
	WaitFunc      func(ctx context.Context, id string) (*domain.Workflow, error)

	// Events are replayed to subscribers, then the channel is closed.
	Events []domain.ProgressEvent

	submitted      []domain.Upload
	projectContext map[string]any
}

func completedWorkflow(id string) *domain.Workflow {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(42 * time.Second)
	return &domain.Workflow{
		ID:          id,
		Status:      domain.WorkflowCompleted,
		CurrentStep: domain.StepCompileResponse,
		Progress:    100,
		StartTime:   &start,
		EndTime:     &end,
		CreatedAt:   start,
		UpdatedAt:   end,
	}
}

func (m *mockWorkflowService) Submit(ctx context.Context, uploads []domain.Upload, pc map[string]any) (*domain.Workflow, error) {
	m.submitted = uploads
	m.projectContext = pc
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, uploads, pc)
	}
	return &domain.Workflow{ID: "wf-1", Status: domain.WorkflowRunning, CurrentStep: domain.StepIngest}, nil
}

func (m *mockWorkflowService) Retry(ctx context.Context, id string, step domain.Step) (*domain.Workflow, error) {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, id, step)
	}
	return &domain.Workflow{ID: id, Status: domain.WorkflowRunning, CurrentStep: step}, nil
}

func (m *mockWorkflowService) Cancel(ctx context.Context, id string) (*domain.Workflow, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id)
	}
	return &domain.Workflow{ID: id, Status: domain.WorkflowCancelled}, nil
}

func (m *mockWorkflowService) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return completedWorkflow(id), nil
}

func (m *mockWorkflowService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, opts)
	}
	return []domain.Workflow{*completedWorkflow("wf-1")}, nil
}

func (m *mockWorkflowService) Documents(ctx context.Context, id string) ([]domain.Document, error) {
	if m.DocumentsFunc != nil {
		return m.DocumentsFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockWorkflowService) Results(ctx context.Context, id string) ([]domain.WorkflowResult, error) {
	if m.ResultsFunc != nil {
		return m.ResultsFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockWorkflowService) Answers(ctx context.Context, id string) (*domain.AnswerSet, error) {
	if m.AnswersFunc != nil {
		return m.AnswersFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockWorkflowService) Proposal(ctx context.Context, id string) (*domain.Proposal, error) {
	if m.ProposalFunc != nil {
		return m.ProposalFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockWorkflowService) Stats(ctx context.Context) (*domain.WorkflowStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &domain.WorkflowStats{}, nil
}

func (m *mockWorkflowService) Subscribe(_ string) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, len(m.Events))
	for _, ev := range m.Events {
		ch <- ev
	}
	close(ch)
	return ch, func() {}
}

func (m *mockWorkflowService) Wait(ctx context.Context, id string) (*domain.Workflow, error) {
	if m.WaitFunc != nil {
		return m.WaitFunc(ctx, id)
	}
	return completedWorkflow(id), nil
}

// mockRetentionService implements driving.RetentionService.
type mockRetentionService struct {
	removed   int
	err       error
	olderThan time.Duration
}

func (m *mockRetentionService) Sweep(_ context.Context) (int, error) {
	return m.removed, m.err
}

func (m *mockRetentionService) SweepOlderThan(_ context.Context, age time.Duration) (int, error) {
	m.olderThan = age
	return m.removed, m.err
}

// mockSettingsService implements driving.SettingsService over an in-memory copy.
type mockSettingsService struct {
	settings    domain.AppSettings
	set         map[string]string
	validateErr error
	setErr      error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings(), set: make(map[string]string)}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(s *domain.AppSettings) error {
	m.settings = *s
	return nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Value(key string) (string, error) {
	switch key {
	case "model.provider":
		return string(m.settings.Model.Provider), nil
	case "storage.dsn":
		return m.settings.Storage.DSN, nil
	}
	return "", &domain.InvalidInputError{Field: key, Reason: "unknown setting"}
}

func (m *mockSettingsService) Keys() []string {
	return []string{"model.provider", "storage.dsn"}
}

func (m *mockSettingsService) SetModelProvider(provider domain.ModelProvider, model string) error {
	m.settings.Model.Provider = provider
	m.settings.Model.Name = model
	m.settings.Model.APIKeyEnv = ""
	if provider.RequiresAPIKey() {
		m.settings.Model.APIKeyEnv = strings.ToUpper(string(provider)) + "_API_KEY"
	}
	return nil
}

func (m *mockSettingsService) Validate() error {
	return m.validateErr
}

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// mockChecker implements SettingsChecker.
type mockChecker struct {
	modelErr     error
	embeddingErr error
}

func (m *mockChecker) ValidateModel(_ context.Context, _ domain.ModelSettings) error {
	return m.modelErr
}

func (m *mockChecker) ValidateEmbedding(_ context.Context, _ domain.EmbeddingSettings) error {
	return m.embeddingErr
}

// withServices installs services for one test.
func withServices(t *testing.T, s *Services) {
	t.Helper()
	old := &Services{
		Workflows:   workflowService,
		Retention:   retentionService,
		Settings:    settingsService,
		Checker:     settingsChecker,
		Unavailable: unavailable,
	}
	SetServices(s)
	t.Cleanup(func() { SetServices(old) })
}

// execute runs the command tree with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

// executeWithInput runs the command tree reading stdin from input.
func executeWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(bytes.NewBufferString(input))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
