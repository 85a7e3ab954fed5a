package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunCmd_Flags(t *testing.T) {
	assert.Equal(t, "run <files...>", runCmd.Use)
	assert.Equal(t, "c", runCmd.Flags().Lookup("context").Shorthand)
	assert.Equal(t, "w", runCmd.Flags().Lookup("wait").Shorthand)
	assert.NotNil(t, runCmd.Flags().Lookup("stream"))
	assert.NotNil(t, runCmd.Flags().Lookup("json"))
}

func TestRunCmd_RequiresFiles(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{}})

	_, err := execute(t, "run")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestRunCmd_Submits(t *testing.T) {
	svc := &mockWorkflowService{}
	withServices(t, &Services{Workflows: svc})
	path := writeFile(t, "tender.md", "# Tender\n\nThe supplier must be ISO 27001 certified.")

	out, err := execute(t, "run", path, "-c", "client=Acme Council", "-c", "budget=250000")

	require.NoError(t, err)
	assert.Contains(t, out, "Workflow wf-1 started with 1 document(s)")
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, "tender.md", svc.submitted[0].Filename)
	assert.Equal(t, path, svc.submitted[0].Path)
	assert.Empty(t, svc.submitted[0].MIMEType)
	assert.Equal(t, map[string]any{"client": "Acme Council", "budget": float64(250000)}, svc.projectContext)
}

func TestRunCmd_SubmitJSON(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{}})
	path := writeFile(t, "rfp.txt", "Scope of work")

	out, err := execute(t, "run", path, "--json")

	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "wf-1", view["id"])
	assert.Equal(t, "running", view["status"])
}

func TestRunCmd_SubmitError(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{
		SubmitFunc: func(context.Context, []domain.Upload, map[string]any) (*domain.Workflow, error) {
			return nil, &domain.InvalidInputError{Field: "rfp.exe", Reason: "unsupported file type"}
		},
	}})
	path := writeFile(t, "rfp.exe", "MZ")

	_, err := execute(t, "run", path)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "failed to start workflow")
}

func TestRunCmd_MissingFile(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{}})

	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.md"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestRunCmd_WaitPlain(t *testing.T) {
	svc := &mockWorkflowService{Events: []domain.ProgressEvent{
		{Step: domain.StepIngest, Progress: 0, Status: domain.WorkflowRunning},
		{Step: domain.StepIngest, Progress: 20, Status: domain.WorkflowRunning, Message: "1 document"},
		{Step: domain.StepCompileResponse, Chunk: "Draft"},
		{Step: domain.StepCompileResponse, Progress: 100, Status: domain.WorkflowCompleted},
	}}
	withServices(t, &Services{Workflows: svc})
	path := writeFile(t, "rfp.md", "Scope")

	out, err := execute(t, "run", path, "--wait", "--stream")

	require.NoError(t, err)
	assert.Contains(t, out, "[ 20%] ingest")
	assert.Contains(t, out, "1 document")
	assert.Contains(t, out, "Draft\n")
	assert.Contains(t, out, "[100%] compile-response")
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "Duration: 42s")
}

func TestRunCmd_WaitWithoutStreamHidesChunks(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{Events: []domain.ProgressEvent{
		{Step: domain.StepCompileResponse, Chunk: "secret draft"},
	}}})
	path := writeFile(t, "rfp.md", "Scope")

	out, err := execute(t, "run", path, "--wait")

	require.NoError(t, err)
	assert.NotContains(t, out, "secret draft")
}

func TestRunCmd_WaitReportsFailure(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{
		WaitFunc: func(_ context.Context, id string) (*domain.Workflow, error) {
			wf := completedWorkflow(id)
			wf.Status = domain.WorkflowFailed
			wf.ErrorMessage = "model unavailable"
			return wf, nil
		},
	}})
	path := writeFile(t, "rfp.md", "Scope")

	out, err := execute(t, "run", path, "--wait")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Contains(t, out, "Error:    model unavailable")
}

func TestRunCmd_WaitJSONOnlyPrintsResult(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{Events: []domain.ProgressEvent{
		{Step: domain.StepIngest, Progress: 20, Status: domain.WorkflowRunning},
	}}})
	path := writeFile(t, "rfp.md", "Scope")

	out, err := execute(t, "run", path, "--wait", "--json")

	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "completed", view["status"])
}

func TestRunCmd_WaitInteractive(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{}})
	oldTerm, oldWatch := isTerminal, watchInteractive
	t.Cleanup(func() { isTerminal, watchInteractive = oldTerm, oldWatch })

	var gotStream bool
	isTerminal = func(io.Writer) bool { return true }
	watchInteractive = func(_ context.Context, id string, stream bool) (*domain.Workflow, error) {
		gotStream = stream
		return completedWorkflow(id), nil
	}
	path := writeFile(t, "rfp.md", "Scope")

	out, err := execute(t, "run", path, "--wait", "--stream")

	require.NoError(t, err)
	assert.True(t, gotStream)
	assert.Contains(t, out, "Status:   completed")
}

func TestRunCmd_WaitInteractiveError(t *testing.T) {
	withServices(t, &Services{Workflows: &mockWorkflowService{}})
	oldTerm, oldWatch := isTerminal, watchInteractive
	t.Cleanup(func() { isTerminal, watchInteractive = oldTerm, oldWatch })

	isTerminal = func(io.Writer) bool { return true }
	watchInteractive = func(context.Context, string, bool) (*domain.Workflow, error) {
		return nil, errors.New("no tty")
	}
	path := writeFile(t, "rfp.md", "Scope")

	_, err := execute(t, "run", path, "--wait")

	assert.EqualError(t, err, "no tty")
}

func TestParseContext(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{name: "string", pairs: []string{"client=Acme"}, want: map[string]any{"client": "Acme"}},
		{name: "number", pairs: []string{"budget=1500"}, want: map[string]any{"budget": float64(1500)}},
		{name: "bool", pairs: []string{"public=true"}, want: map[string]any{"public": true}},
		{name: "list", pairs: []string{`regions=["EU","UK"]`}, want: map[string]any{"regions": []any{"EU", "UK"}}},
		{name: "value with equals", pairs: []string{"note=a=b"}, want: map[string]any{"note": "a=b"}},
		{name: "empty value", pairs: []string{"tag="}, want: map[string]any{"tag": ""}},
		{name: "trimmed key", pairs: []string{" client =Acme"}, want: map[string]any{"client": "Acme"}},
		{name: "missing equals", pairs: []string{"client"}, wantErr: true},
		{name: "empty key", pairs: []string{"=x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseContext(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadUploads(t *testing.T) {
	a := writeFile(t, "a.md", "alpha")
	b := writeFile(t, "b.html", "<p>beta</p>")

	uploads, err := readUploads([]string{a, b})

	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, "a.md", uploads[0].Filename)
	assert.Equal(t, []byte("alpha"), uploads[0].Content)
	assert.True(t, filepath.IsAbs(uploads[1].Path))
	assert.Equal(t, "b.html", uploads[1].Filename)
}

func TestReadUploads_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "annexes"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o750))
	for name, content := range map[string]string{
		"tender.md":           "main",
		"annexes/pricing.txt": "prices",
		".notes.md":           "hidden",
		".git/config":         "hidden",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	uploads, err := readUploads([]string{dir})

	require.NoError(t, err)
	names := make([]string, len(uploads))
	for i, u := range uploads {
		names[i] = u.Filename
	}
	assert.Equal(t, []string{"pricing.txt", "tender.md"}, names)
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden(".git"))
	assert.True(t, isHidden(".env"))
	assert.False(t, isHidden("."))
	assert.False(t, isHidden(".."))
	assert.False(t, isHidden("file.hidden"))
}
