package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// Ensure Repository implements the interface.
var _ driven.Repository = (*Repository)(nil)

// workflowRecords holds everything that belongs to one workflow, so that
// deleting the workflow drops it all.
type workflowRecords struct {
	workflow     domain.Workflow
	documents    []domain.Document
	requirements []domain.Requirement
	questions    []domain.Question
	answers      []domain.Answer
	results      map[domain.Step]domain.WorkflowResult
}

// Repository is an in-memory implementation of driven.Repository.
// Values are copied in and out so callers never share state with the store.
type Repository struct {
	mu        sync.RWMutex
	workflows map[string]*workflowRecords
}

// NewRepository creates a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{workflows: make(map[string]*workflowRecords)}
}

// Close is a no-op.
func (r *Repository) Close() error {
	return nil
}

// records returns the entry for id (caller must hold lock).
func (r *Repository) records(id string) (*workflowRecords, error) {
	rec, ok := r.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

// CreateWorkflow stores a new workflow.
func (r *Repository) CreateWorkflow(_ context.Context, w *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[w.ID]; ok {
		return fmt.Errorf("workflow %s: %w", w.ID, domain.ErrAlreadyExists)
	}
	r.workflows[w.ID] = &workflowRecords{
		workflow: cloneWorkflow(w),
		results:  make(map[domain.Step]domain.WorkflowResult),
	}
	return nil
}

// UpdateWorkflow overwrites the mutable fields of a workflow.
func (r *Repository) UpdateWorkflow(_ context.Context, w *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.records(w.ID)
	if err != nil {
		return err
	}
	created := rec.workflow.CreatedAt
	rec.workflow = cloneWorkflow(w)
	rec.workflow.CreatedAt = created
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (r *Repository) GetWorkflow(_ context.Context, id string) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, err := r.records(id)
	if err != nil {
		return nil, err
	}
	w := cloneWorkflow(&rec.workflow)
	return &w, nil
}

// ListWorkflows returns workflows newest first.
func (r *Repository) ListWorkflows(_ context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Workflow, 0, len(r.workflows))
	for _, rec := range r.workflows {
		if opts.Status != "" && rec.workflow.Status != opts.Status {
			continue
		}
		all = append(all, cloneWorkflow(&rec.workflow))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if opts.Offset >= len(all) {
		return []domain.Workflow{}, nil
	}
	all = all[max(opts.Offset, 0):]
	if limit := opts.EffectiveLimit(); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// DeleteWorkflow removes a workflow and its dependent records.
func (r *Repository) DeleteWorkflow(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.records(id); err != nil {
		return err
	}
	delete(r.workflows, id)
	return nil
}

// DeleteTerminalBefore removes terminal workflows that ended before cutoff.
func (r *Repository) DeleteTerminalBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, rec := range r.workflows {
		w := rec.workflow
		if w.Status.IsTerminal() && w.EndTime != nil && w.EndTime.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(r.workflows, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// WorkflowStats aggregates workflow counts.
func (r *Repository) WorkflowStats(_ context.Context) (*domain.WorkflowStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.WorkflowStats{ByStatus: make(map[domain.WorkflowStatus]int)}
	var total time.Duration
	var timed int
	for _, rec := range r.workflows {
		w := rec.workflow
		stats.Total++
		stats.ByStatus[w.Status]++
		if w.StartTime != nil && w.EndTime != nil {
			total += w.EndTime.Sub(*w.StartTime)
			timed++
		}
	}
	if timed > 0 {
		stats.AverageDuration = total / time.Duration(timed)
	}
	return stats, nil
}

// SaveDocuments stores documents for a workflow.
func (r *Repository) SaveDocuments(_ context.Context, docs []domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check everything first so a failed batch stores nothing
	seen := make(map[string]bool)
	for _, d := range docs {
		rec, err := r.records(d.WorkflowID)
		if err != nil {
			return err
		}
		if seen[d.ID] || indexOfDocument(rec.documents, d.ID) >= 0 {
			return fmt.Errorf("document %s: %w", d.ID, domain.ErrAlreadyExists)
		}
		seen[d.ID] = true
	}
	for _, d := range docs {
		rec := r.workflows[d.WorkflowID]
		rec.documents = append(rec.documents, cloneDocument(&d))
	}
	return nil
}

// UpdateDocument overwrites a document. Completed documents are immutable.
func (r *Repository) UpdateDocument(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.records(doc.WorkflowID)
	if err != nil {
		return err
	}
	i := indexOfDocument(rec.documents, doc.ID)
	if i < 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}
	if rec.documents[i].IsFinal() {
		return fmt.Errorf("document %s is completed: %w", doc.ID, domain.ErrInvalidState)
	}
	rec.documents[i] = cloneDocument(doc)
	return nil
}

// ListDocuments returns a workflow's documents in upload order.
func (r *Repository) ListDocuments(_ context.Context, workflowID string) ([]domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.workflows[workflowID]
	if !ok {
		return []domain.Document{}, nil
	}
	out := make([]domain.Document, len(rec.documents))
	for i := range rec.documents {
		out[i] = cloneDocument(&rec.documents[i])
	}
	return out, nil
}

// ReplaceRequirements swaps the workflow's requirement batch for reqs.
func (r *Repository) ReplaceRequirements(_ context.Context, workflowID string, reqs []domain.Requirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.records(workflowID)
	if err != nil {
		return err
	}
	rec.requirements = append([]domain.Requirement{}, reqs...)
	return nil
}

// ListRequirements returns a workflow's requirements in batch order.
func (r *Repository) ListRequirements(_ context.Context, workflowID string) ([]domain.Requirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.workflows[workflowID]; ok {
		return append([]domain.Requirement{}, rec.requirements...), nil
	}
	return []domain.Requirement{}, nil
}

// ReplaceQuestions swaps the workflow's question batch for qs.
func (r *Repository) ReplaceQuestions(_ context.Context, workflowID string, qs []domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.records(workflowID)
	if err != nil {
		return err
	}
	rec.questions = make([]domain.Question, len(qs))
	for i, q := range qs {
		q.RelatedRequirements = append([]string(nil), q.RelatedRequirements...)
		rec.questions[i] = q
	}
	return nil
}

// ListQuestions returns a workflow's questions in batch order.
func (r *Repository) ListQuestions(_ context.Context, workflowID string) ([]domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.workflows[workflowID]
	if !ok {
		return []domain.Question{}, nil
	}
	out := make([]domain.Question, len(rec.questions))
	for i, q := range rec.questions {
		q.RelatedRequirements = append([]string(nil), q.RelatedRequirements...)
		out[i] = q
	}
	return out, nil
}

// ReplaceAnswers deletes every answer of the workflow, then inserts answers.
func (r *Repository) ReplaceAnswers(_ context.Context, workflowID string, answers []domain.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.records(workflowID)
	if err != nil {
		return err
	}
	rec.answers = make([]domain.Answer, len(answers))
	for i, a := range answers {
		a.Sources = append([]domain.Citation(nil), a.Sources...)
		rec.answers[i] = a
	}
	return nil
}

// ListAnswers returns a workflow's answers in question order.
func (r *Repository) ListAnswers(_ context.Context, workflowID string) ([]domain.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.workflows[workflowID]
	if !ok {
		return []domain.Answer{}, nil
	}
	out := make([]domain.Answer, len(rec.answers))
	for i, a := range rec.answers {
		a.Sources = append([]domain.Citation(nil), a.Sources...)
		out[i] = a
	}
	return out, nil
}

// SaveResult inserts or overwrites the result keyed by (workflow, step).
func (r *Repository) SaveResult(_ context.Context, res *domain.WorkflowResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.records(res.WorkflowID)
	if err != nil {
		return err
	}
	rec.results[res.StepName] = cloneResult(res)
	return nil
}

// GetResult retrieves the result of one step.
func (r *Repository) GetResult(_ context.Context, workflowID string, step domain.Step) (*domain.WorkflowResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, err := r.records(workflowID)
	if err != nil {
		return nil, err
	}
	res, ok := rec.results[step]
	if !ok {
		return nil, fmt.Errorf("result %s/%s: %w", workflowID, step, domain.ErrNotFound)
	}
	out := cloneResult(&res)
	return &out, nil
}

// ListResults returns all step results of a workflow in pipeline order.
func (r *Repository) ListResults(_ context.Context, workflowID string) ([]domain.WorkflowResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.WorkflowResult{}
	rec, ok := r.workflows[workflowID]
	if !ok {
		return out, nil
	}
	for _, step := range domain.Steps() {
		if res, ok := rec.results[step]; ok {
			out = append(out, cloneResult(&res))
		}
	}
	return out, nil
}

func indexOfDocument(docs []domain.Document, id string) int {
	for i := range docs {
		if docs[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneWorkflow(w *domain.Workflow) domain.Workflow {
	c := *w
	c.ProjectContext = maps.Clone(w.ProjectContext)
	if w.StartTime != nil {
		t := *w.StartTime
		c.StartTime = &t
	}
	if w.EndTime != nil {
		t := *w.EndTime
		c.EndTime = &t
	}
	return c
}

func cloneDocument(d *domain.Document) domain.Document {
	c := *d
	c.FileMetadata = maps.Clone(d.FileMetadata)
	c.ExtractedData = maps.Clone(d.ExtractedData)
	return c
}

func cloneResult(r *domain.WorkflowResult) domain.WorkflowResult {
	c := *r
	c.Data = append([]byte(nil), r.Data...)
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	return c
}
