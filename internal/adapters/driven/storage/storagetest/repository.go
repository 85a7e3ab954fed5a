// Package storagetest holds the behaviour every driven.Repository must share.
// Each storage adapter runs Run against a fresh instance.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// Factory returns an empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) driven.Repository

// base is a fixed instant; stores may truncate below a microsecond.
var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run exercises the full Repository contract.
func Run(t *testing.T, newRepo Factory) {
	t.Run("workflow lifecycle", func(t *testing.T) { workflowLifecycle(t, newRepo(t)) })
	t.Run("create duplicate", func(t *testing.T) { createDuplicate(t, newRepo(t)) })
	t.Run("missing workflow", func(t *testing.T) { missingWorkflow(t, newRepo(t)) })
	t.Run("list order and paging", func(t *testing.T) { listWorkflows(t, newRepo(t)) })
	t.Run("stats", func(t *testing.T) { stats(t, newRepo(t)) })
	t.Run("documents", func(t *testing.T) { documents(t, newRepo(t)) })
	t.Run("completed document is immutable", func(t *testing.T) { immutableDocument(t, newRepo(t)) })
	t.Run("replace batches", func(t *testing.T) { replaceBatches(t, newRepo(t)) })
	t.Run("results upsert", func(t *testing.T) { results(t, newRepo(t)) })
	t.Run("delete cascades", func(t *testing.T) { deleteCascades(t, newRepo(t)) })
	t.Run("delete terminal before", func(t *testing.T) { deleteTerminalBefore(t, newRepo(t)) })
}

// NewWorkflow returns a pending workflow created at base plus offset.
func NewWorkflow(id string, offset time.Duration) *domain.Workflow {
	created := base.Add(offset)
	return &domain.Workflow{
		ID:             id,
		Status:         domain.WorkflowPending,
		CurrentStep:    domain.StepIngest,
		ProjectContext: map[string]any{"client": "Acme"},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// NewDocument returns a pending document of workflowID.
func NewDocument(workflowID, id, filename string) domain.Document {
	return domain.Document{
		ID:           id,
		WorkflowID:   workflowID,
		Filename:     filename,
		StoragePath:  "/uploads/" + filename,
		Size:         42,
		MIMEType:     "text/plain",
		Status:       domain.ProcessingPending,
		Content:      "The supplier shall provide 24/7 support.",
		FileMetadata: map[string]any{"title": filename},
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func finished(w *domain.Workflow, status domain.WorkflowStatus, start, end time.Time) {
	w.Status = status
	w.StartTime = &start
	w.EndTime = &end
	w.Progress = 100
}

func workflowLifecycle(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	w := NewWorkflow("wf-1", 0)
	require.NoError(t, repo.CreateWorkflow(ctx, w))

	got, err := repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowPending, got.Status)
	assert.Equal(t, "Acme", got.ProjectContext["client"])
	assert.Nil(t, got.StartTime)
	assert.True(t, base.Equal(got.CreatedAt))

	start := base.Add(time.Minute)
	w.Status = domain.WorkflowFailed
	w.CurrentStep = domain.StepExtractAnswers
	w.Progress = 55
	w.StartTime = &start
	end := start.Add(90 * time.Second)
	w.EndTime = &end
	w.ErrorMessage = "extract-answers: model unavailable"
	w.UpdatedAt = end
	require.NoError(t, repo.UpdateWorkflow(ctx, w))

	got, err = repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowFailed, got.Status)
	assert.Equal(t, domain.StepExtractAnswers, got.CurrentStep)
	assert.Equal(t, 55, got.Progress)
	assert.Equal(t, "extract-answers: model unavailable", got.ErrorMessage)
	require.NotNil(t, got.StartTime)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, 90*time.Second, got.EndTime.Sub(*got.StartTime))

	// Returned values are copies
	got.ProjectContext["client"] = "changed"
	again, err := repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.ProjectContext["client"])
}

func createDuplicate(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkflow(ctx, NewWorkflow("wf-1", 0)))

	err := repo.CreateWorkflow(ctx, NewWorkflow("wf-1", 0))

	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func missingWorkflow(t *testing.T, repo driven.Repository) {
	ctx := context.Background()

	_, err := repo.GetWorkflow(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, repo.UpdateWorkflow(ctx, NewWorkflow("nope", 0)), domain.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteWorkflow(ctx, "nope"), domain.ErrNotFound)

	_, err = repo.GetResult(ctx, "nope", domain.StepIngest)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	docs, err := repo.ListDocuments(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func listWorkflows(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w := NewWorkflow(fmt.Sprintf("wf-%d", i), time.Duration(i)*time.Minute)
		require.NoError(t, repo.CreateWorkflow(ctx, w))
		if i%2 == 0 {
			finished(w, domain.WorkflowCompleted, w.CreatedAt, w.CreatedAt.Add(time.Second))
			require.NoError(t, repo.UpdateWorkflow(ctx, w))
		}
	}

	all, err := repo.ListWorkflows(ctx, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "wf-4", all[0].ID)
	assert.Equal(t, "wf-0", all[4].ID)

	page, err := repo.ListWorkflows(ctx, domain.ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "wf-3", page[0].ID)
	assert.Equal(t, "wf-2", page[1].ID)

	completed, err := repo.ListWorkflows(ctx, domain.ListOptions{Status: domain.WorkflowCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 3)
	for _, w := range completed {
		assert.Equal(t, domain.WorkflowCompleted, w.Status)
	}

	past, err := repo.ListWorkflows(ctx, domain.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func stats(t *testing.T, repo driven.Repository) {
	ctx := context.Background()

	empty, err := repo.WorkflowStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AverageDuration)

	a := NewWorkflow("a", 0)
	b := NewWorkflow("b", time.Minute)
	c := NewWorkflow("c", 2*time.Minute)
	for _, w := range []*domain.Workflow{a, b, c} {
		require.NoError(t, repo.CreateWorkflow(ctx, w))
	}
	finished(a, domain.WorkflowCompleted, base, base.Add(10*time.Second))
	finished(b, domain.WorkflowFailed, base, base.Add(30*time.Second))
	require.NoError(t, repo.UpdateWorkflow(ctx, a))
	require.NoError(t, repo.UpdateWorkflow(ctx, b))

	got, err := repo.WorkflowStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 1, got.ByStatus[domain.WorkflowCompleted])
	assert.Equal(t, 1, got.ByStatus[domain.WorkflowFailed])
	assert.Equal(t, 1, got.ByStatus[domain.WorkflowPending])
	assert.Equal(t, 20*time.Second, got.AverageDuration)
}

func documents(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkflow(ctx, NewWorkflow("wf-1", 0)))

	docs := []domain.Document{
		NewDocument("wf-1", "doc-b", "rfp.pdf"),
		NewDocument("wf-1", "doc-a", "sla.docx"),
	}
	require.NoError(t, repo.SaveDocuments(ctx, docs))

	got, err := repo.ListDocuments(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "doc-b", got[0].ID, "upload order")
	assert.Equal(t, "doc-a", got[1].ID)
	assert.Equal(t, "rfp.pdf", got[0].FileMetadata["title"])

	doc := got[0]
	doc.Status = domain.ProcessingCompleted
	doc.ExtractedData = map[string]any{"summary": "Managed services tender"}
	require.NoError(t, repo.UpdateDocument(ctx, &doc))

	got, err = repo.ListDocuments(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingCompleted, got[0].Status)
	assert.Equal(t, "Managed services tender", got[0].ExtractedData["summary"])

	dup := []domain.Document{NewDocument("wf-1", "doc-a", "again.txt")}
	assert.ErrorIs(t, repo.SaveDocuments(ctx, dup), domain.ErrAlreadyExists)

	orphan := []domain.Document{NewDocument("missing", "doc-x", "x.txt")}
	assert.Error(t, repo.SaveDocuments(ctx, orphan))

	unknown := NewDocument("wf-1", "doc-zzz", "z.txt")
	assert.ErrorIs(t, repo.UpdateDocument(ctx, &unknown), domain.ErrNotFound)
}

func immutableDocument(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkflow(ctx, NewWorkflow("wf-1", 0)))
	doc := NewDocument("wf-1", "doc-1", "rfp.txt")
	require.NoError(t, repo.SaveDocuments(ctx, []domain.Document{doc}))

	doc.Status = domain.ProcessingCompleted
	require.NoError(t, repo.UpdateDocument(ctx, &doc))

	doc.Status = domain.ProcessingFailed
	assert.ErrorIs(t, repo.UpdateDocument(ctx, &doc), domain.ErrInvalidState)

	got, err := repo.ListDocuments(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingCompleted, got[0].Status)
}

func replaceBatches(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkflow(ctx, NewWorkflow("wf-1", 0)))

	first := []domain.Requirement{
		{WorkflowID: "wf-1", RequirementID: "REQ-002", Category: domain.CategoryTechnical, Description: "SSO", Priority: domain.PriorityHigh, Mandatory: true, CreatedAt: base},
		{WorkflowID: "wf-1", RequirementID: "REQ-001", Category: domain.CategoryBusiness, Description: "Fixed price", Priority: domain.PriorityMedium, CreatedAt: base},
	}
	require.NoError(t, repo.ReplaceRequirements(ctx, "wf-1", first))
	second := first[:1]
	require.NoError(t, repo.ReplaceRequirements(ctx, "wf-1", second))

	reqs, err := repo.ListRequirements(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "REQ-002", reqs[0].RequirementID)
	assert.True(t, reqs[0].Mandatory)

	qs := []domain.Question{
		{WorkflowID: "wf-1", QuestionID: "Q-001", Category: domain.CategoryTechnical, Text: "Which IdP?", Priority: domain.PriorityHigh, RelatedRequirements: []string{"REQ-002"}, CreatedAt: base},
		{WorkflowID: "wf-1", QuestionID: "Q-002", Category: domain.CategoryCompliance, Text: "Start date?", Priority: domain.PriorityLow, CreatedAt: base},
	}
	require.NoError(t, repo.ReplaceQuestions(ctx, "wf-1", qs))
	gotQs, err := repo.ListQuestions(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, gotQs, 2)
	assert.Equal(t, "Q-001", gotQs[0].QuestionID)
	assert.Equal(t, []string{"REQ-002"}, gotQs[0].RelatedRequirements)
	assert.Empty(t, gotQs[1].RelatedRequirements)

	answers := []domain.Answer{
		{WorkflowID: "wf-1", QuestionID: "Q-001", Text: "Azure AD", Confidence: 0.9, Type: domain.AnswerDirect, Completeness: domain.Complete,
			Sources: []domain.Citation{{DocumentName: "rfp.pdf", Excerpt: "Azure AD", Relevance: 0.9}}, CreatedAt: base},
	}
	require.NoError(t, repo.ReplaceAnswers(ctx, "wf-1", answers))
	require.NoError(t, repo.ReplaceAnswers(ctx, "wf-1", []domain.Answer{
		{WorkflowID: "wf-1", QuestionID: "Q-002", Text: "1 June", Confidence: 0.7, Type: domain.AnswerInferred, Completeness: domain.Partial, CreatedAt: base},
	}))

	gotAnswers, err := repo.ListAnswers(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, gotAnswers, 1, "latest run wins")
	assert.Equal(t, "Q-002", gotAnswers[0].QuestionID)
	assert.InDelta(t, 0.7, gotAnswers[0].Confidence, 1e-9)

	require.NoError(t, repo.ReplaceAnswers(ctx, "wf-1", nil))
	gotAnswers, err = repo.ListAnswers(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, gotAnswers)
}

func results(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkflow(ctx, NewWorkflow("wf-1", 0)))

	conf := 0.8
	for _, step := range []domain.Step{domain.StepGenerateQuestions, domain.StepIngest} {
		require.NoError(t, repo.SaveResult(ctx, &domain.WorkflowResult{
			WorkflowID:     "wf-1",
			StepName:       step,
			Data:           json.RawMessage(`{"v":1}`),
			Confidence:     &conf,
			ProcessingTime: 1500 * time.Millisecond,
			CreatedAt:      base,
		}))
	}
	require.NoError(t, repo.SaveResult(ctx, &domain.WorkflowResult{
		WorkflowID: "wf-1",
		StepName:   domain.StepIngest,
		Data:       json.RawMessage(`{"v":2}`),
		CreatedAt:  base.Add(time.Minute),
	}))

	got, err := repo.GetResult(ctx, "wf-1", domain.StepIngest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Data))
	assert.Nil(t, got.Confidence)

	list, err := repo.ListResults(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.StepIngest, list[0].StepName, "pipeline order")
	assert.Equal(t, domain.StepGenerateQuestions, list[1].StepName)
	require.NotNil(t, list[1].Confidence)
	assert.InDelta(t, 0.8, *list[1].Confidence, 1e-9)
	assert.Equal(t, 1500*time.Millisecond, list[1].ProcessingTime)

	_, err = repo.GetResult(ctx, "wf-1", domain.StepCompileResponse)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func seedAll(t *testing.T, repo driven.Repository, id string) {
	ctx := context.Background()
	require.NoError(t, repo.SaveDocuments(ctx, []domain.Document{NewDocument(id, id+"-doc", "rfp.txt")}))
	require.NoError(t, repo.ReplaceRequirements(ctx, id, []domain.Requirement{{WorkflowID: id, RequirementID: "REQ-001", Category: domain.CategoryOther, Priority: domain.PriorityLow, CreatedAt: base}}))
	require.NoError(t, repo.ReplaceQuestions(ctx, id, []domain.Question{{WorkflowID: id, QuestionID: "Q-001", Category: domain.CategoryOther, Priority: domain.PriorityLow, CreatedAt: base}}))
	require.NoError(t, repo.ReplaceAnswers(ctx, id, []domain.Answer{{WorkflowID: id, QuestionID: "Q-001", Type: domain.AnswerInferred, Completeness: domain.Partial, CreatedAt: base}}))
	require.NoError(t, repo.SaveResult(ctx, &domain.WorkflowResult{WorkflowID: id, StepName: domain.StepIngest, Data: json.RawMessage(`[]`), CreatedAt: base}))
}

func assertGone(t *testing.T, repo driven.Repository, id string) {
	ctx := context.Background()
	_, err := repo.GetWorkflow(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	docs, err := repo.ListDocuments(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, docs)
	reqs, err := repo.ListRequirements(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	qs, err := repo.ListQuestions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, qs)
	answers, err := repo.ListAnswers(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, answers)
	res, err := repo.ListResults(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func deleteCascades(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkflow(ctx, NewWorkflow("wf-1", 0)))
	require.NoError(t, repo.CreateWorkflow(ctx, NewWorkflow("wf-2", time.Minute)))
	seedAll(t, repo, "wf-1")
	seedAll(t, repo, "wf-2")

	require.NoError(t, repo.DeleteWorkflow(ctx, "wf-1"))

	assertGone(t, repo, "wf-1")
	docs, err := repo.ListDocuments(ctx, "wf-2")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func deleteTerminalBefore(t *testing.T, repo driven.Repository) {
	ctx := context.Background()
	cutoff := base.Add(24 * time.Hour)

	old := NewWorkflow("old-done", 0)
	oldFailed := NewWorkflow("old-failed", time.Minute)
	recent := NewWorkflow("recent-done", 2*time.Minute)
	running := NewWorkflow("old-running", 3*time.Minute)
	for _, w := range []*domain.Workflow{old, oldFailed, recent, running} {
		require.NoError(t, repo.CreateWorkflow(ctx, w))
		seedAll(t, repo, w.ID)
	}
	finished(old, domain.WorkflowCompleted, base, base.Add(time.Hour))
	finished(oldFailed, domain.WorkflowFailed, base, base.Add(2*time.Hour))
	finished(recent, domain.WorkflowCompleted, base, cutoff.Add(time.Hour))
	running.Status = domain.WorkflowRunning
	start := base
	running.StartTime = &start
	for _, w := range []*domain.Workflow{old, oldFailed, recent, running} {
		require.NoError(t, repo.UpdateWorkflow(ctx, w))
	}

	ids, err := repo.DeleteTerminalBefore(ctx, cutoff)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-done", "old-failed"}, ids)
	assertGone(t, repo, "old-done")
	assertGone(t, repo, "old-failed")
	for _, id := range []string{"recent-done", "old-running"} {
		_, err := repo.GetWorkflow(ctx, id)
		assert.NoError(t, err, id)
	}

	again, err := repo.DeleteTerminalBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, again)
}
