package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// ==================== Workflows ====================

const workflowColumns = `id, status, current_step, progress, project_context,
	start_time, end_time, error_message, created_at, updated_at`

// CreateWorkflow stores a new workflow.
func (s *Store) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	projectJSON, err := marshalJSON(w.ProjectContext, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, string(w.Status), string(w.CurrentStep), w.Progress, projectJSON,
		nullTime(w.StartTime), nullTime(w.EndTime), w.ErrorMessage,
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("workflow %s: %w", w.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("creating workflow: %w", err)
	}
	return nil
}

// UpdateWorkflow overwrites the mutable fields of a workflow.
func (s *Store) UpdateWorkflow(ctx context.Context, w *domain.Workflow) error {
	projectJSON, err := marshalJSON(w.ProjectContext, "{}")
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET
			status = ?, current_step = ?, progress = ?, project_context = ?,
			start_time = ?, end_time = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, string(w.Status), string(w.CurrentStep), w.Progress, projectJSON,
		nullTime(w.StartTime), nullTime(w.EndTime), w.ErrorMessage, formatTime(w.UpdatedAt), w.ID)
	if err != nil {
		return fmt.Errorf("updating workflow: %w", err)
	}
	return requireAffected(res, "workflow "+w.ID)
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	w, err := scanWorkflow(row)
	if err != nil {
		return nil, notFound(err, "workflow "+id)
	}
	return w, nil
}

// ListWorkflows returns workflows newest first.
func (s *Store) ListWorkflows(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.EffectiveLimit(), max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying workflows: %w", err)
	}
	defer rows.Close()

	workflows := []domain.Workflow{}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workflows: %w", err)
	}
	return workflows, nil
}

// DeleteWorkflow removes a workflow. Foreign keys cascade to dependent rows.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	return requireAffected(res, "workflow "+id)
}

// DeleteTerminalBefore removes terminal workflows that ended before cutoff.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM workflows
		WHERE status IN (?, ?, ?) AND end_time IS NOT NULL AND end_time < ?
		ORDER BY id
	`, string(domain.WorkflowCompleted), string(domain.WorkflowFailed), string(domain.WorkflowCancelled),
		formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("querying expired workflows: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expired workflows: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("deleting workflow %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

// WorkflowStats aggregates workflow counts.
func (s *Store) WorkflowStats(ctx context.Context) (*domain.WorkflowStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, start_time, end_time FROM workflows`)
	if err != nil {
		return nil, fmt.Errorf("querying workflow stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.WorkflowStats{ByStatus: make(map[domain.WorkflowStatus]int)}
	var total time.Duration
	var timed int
	for rows.Next() {
		var status string
		var start, end sql.NullString
		if err := rows.Scan(&status, &start, &end); err != nil {
			return nil, fmt.Errorf("scanning workflow stats: %w", err)
		}
		stats.Total++
		stats.ByStatus[domain.WorkflowStatus(status)]++

		startTime, err := parseNullTime(start)
		if err != nil {
			return nil, err
		}
		endTime, err := parseNullTime(end)
		if err != nil {
			return nil, err
		}
		if startTime != nil && endTime != nil {
			total += endTime.Sub(*startTime)
			timed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workflow stats: %w", err)
	}
	if timed > 0 {
		stats.AverageDuration = total / time.Duration(timed)
	}
	return stats, nil
}

func scanWorkflow(row rowScanner) (*domain.Workflow, error) {
	var w domain.Workflow
	var status, step, projectJSON, createdAt, updatedAt string
	var start, end sql.NullString
	if err := row.Scan(&w.ID, &status, &step, &w.Progress, &projectJSON,
		&start, &end, &w.ErrorMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	w.Status = domain.WorkflowStatus(status)
	w.CurrentStep = domain.Step(step)
	if err := unmarshalJSON(projectJSON, &w.ProjectContext); err != nil {
		return nil, err
	}

	var err error
	if w.StartTime, err = parseNullTime(start); err != nil {
		return nil, err
	}
	if w.EndTime, err = parseNullTime(end); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// ==================== Documents ====================

const documentColumns = `id, workflow_id, filename, storage_path, size, mime_type, status,
	content, file_metadata, extracted_data, created_at, updated_at`

// SaveDocuments stores documents in one transaction, after any already
// saved for the same workflow.
func (s *Store) SaveDocuments(ctx context.Context, docs []domain.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	next := make(map[string]int)
	for _, d := range docs {
		pos, ok := next[d.WorkflowID]
		if !ok {
			var exists int
			err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows WHERE id = ?", d.WorkflowID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("checking workflow: %w", err)
			}
			if exists == 0 {
				return fmt.Errorf("workflow %s: %w", d.WorkflowID, domain.ErrNotFound)
			}
			if err := tx.QueryRowContext(ctx,
				"SELECT COALESCE(MAX(position), -1) + 1 FROM documents WHERE workflow_id = ?", d.WorkflowID,
			).Scan(&pos); err != nil {
				return fmt.Errorf("reading document position: %w", err)
			}
		}

		metaJSON, err := marshalJSON(d.FileMetadata, "{}")
		if err != nil {
			return err
		}
		dataJSON, err := marshalJSON(d.ExtractedData, "{}")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.WorkflowID, d.Filename, d.StoragePath, d.Size, d.MIMEType, string(d.Status),
			d.Content, metaJSON, dataJSON, formatTime(d.CreatedAt), formatTime(d.UpdatedAt), pos)
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", d.ID, domain.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		next[d.WorkflowID] = pos + 1
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// UpdateDocument overwrites a document. Completed documents are immutable.
func (s *Store) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var status string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM documents WHERE id = ? AND workflow_id = ?", doc.ID, doc.WorkflowID,
	).Scan(&status)
	if err != nil {
		return notFound(err, "document "+doc.ID)
	}
	if domain.ProcessingStatus(status) == domain.ProcessingCompleted {
		return fmt.Errorf("document %s is completed: %w", doc.ID, domain.ErrInvalidState)
	}

	metaJSON, err := marshalJSON(doc.FileMetadata, "{}")
	if err != nil {
		return err
	}
	dataJSON, err := marshalJSON(doc.ExtractedData, "{}")
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET
			filename = ?, storage_path = ?, size = ?, mime_type = ?, status = ?,
			content = ?, file_metadata = ?, extracted_data = ?, updated_at = ?
		WHERE id = ?
	`, doc.Filename, doc.StoragePath, doc.Size, doc.MIMEType, string(doc.Status),
		doc.Content, metaJSON, dataJSON, formatTime(doc.UpdatedAt), doc.ID); err != nil {
		return fmt.Errorf("updating document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListDocuments returns a workflow's documents in upload order.
func (s *Store) ListDocuments(ctx context.Context, workflowID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE workflow_id = ? ORDER BY position
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		var d domain.Document
		var status, metaJSON, dataJSON, createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.WorkflowID, &d.Filename, &d.StoragePath, &d.Size, &d.MIMEType,
			&status, &d.Content, &metaJSON, &dataJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Status = domain.ProcessingStatus(status)
		if err := unmarshalJSON(metaJSON, &d.FileMetadata); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(dataJSON, &d.ExtractedData); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// ==================== Requirements, questions, answers ====================

// replaceBatch deletes a workflow's rows from table and inserts one row per
// item through insert, all in one transaction.
func (s *Store) replaceBatch(ctx context.Context, table, workflowID string, n int, insert func(tx *sql.Tx, i int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows WHERE id = ?", workflowID).Scan(&exists); err != nil {
		return fmt.Errorf("checking workflow: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE workflow_id = ?", workflowID); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	for i := 0; i < n; i++ {
		if err := insert(tx, i); err != nil {
			return fmt.Errorf("saving %s: %w", strings.TrimSuffix(table, "s"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReplaceRequirements swaps the workflow's requirement batch for reqs.
func (s *Store) ReplaceRequirements(ctx context.Context, workflowID string, reqs []domain.Requirement) error {
	return s.replaceBatch(ctx, "requirements", workflowID, len(reqs), func(tx *sql.Tx, i int) error {
		r := reqs[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO requirements (workflow_id, position, requirement_id, source_document_id,
				category, description, priority, complexity, mandatory, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, workflowID, i, r.RequirementID, r.SourceDocumentID, string(r.Category), r.Description,
			string(r.Priority), r.Complexity, r.Mandatory, formatTime(r.CreatedAt))
		return err
	})
}

// ListRequirements returns a workflow's requirements in batch order.
func (s *Store) ListRequirements(ctx context.Context, workflowID string) ([]domain.Requirement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, requirement_id, source_document_id, category, description,
			priority, complexity, mandatory, created_at
		FROM requirements WHERE workflow_id = ? ORDER BY position
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying requirements: %w", err)
	}
	defer rows.Close()

	reqs := []domain.Requirement{}
	for rows.Next() {
		var r domain.Requirement
		var category, priority, createdAt string
		if err := rows.Scan(&r.WorkflowID, &r.RequirementID, &r.SourceDocumentID, &category,
			&r.Description, &priority, &r.Complexity, &r.Mandatory, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning requirement: %w", err)
		}
		r.Category = domain.Category(category)
		r.Priority = domain.Priority(priority)
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating requirements: %w", err)
	}
	return reqs, nil
}

// ReplaceQuestions swaps the workflow's question batch for qs.
func (s *Store) ReplaceQuestions(ctx context.Context, workflowID string, qs []domain.Question) error {
	return s.replaceBatch(ctx, "questions", workflowID, len(qs), func(tx *sql.Tx, i int) error {
		q := qs[i]
		related, err := marshalJSON(q.RelatedRequirements, "[]")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO questions (workflow_id, position, question_id, category, text,
				rationale, priority, impact, related_requirements, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, workflowID, i, q.QuestionID, string(q.Category), q.Text, q.Rationale,
			string(q.Priority), q.Impact, related, formatTime(q.CreatedAt))
		return err
	})
}

// ListQuestions returns a workflow's questions in batch order.
func (s *Store) ListQuestions(ctx context.Context, workflowID string) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, question_id, category, text, rationale, priority, impact,
			related_requirements, created_at
		FROM questions WHERE workflow_id = ? ORDER BY position
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying questions: %w", err)
	}
	defer rows.Close()

	qs := []domain.Question{}
	for rows.Next() {
		var q domain.Question
		var category, priority, related, createdAt string
		if err := rows.Scan(&q.WorkflowID, &q.QuestionID, &category, &q.Text, &q.Rationale,
			&priority, &q.Impact, &related, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		q.Category = domain.Category(category)
		q.Priority = domain.Priority(priority)
		if err := unmarshalJSON(related, &q.RelatedRequirements); err != nil {
			return nil, err
		}
		if q.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating questions: %w", err)
	}
	return qs, nil
}

// ReplaceAnswers deletes every answer of the workflow, then inserts answers.
// Answers are not versioned; the latest extraction run wins.
func (s *Store) ReplaceAnswers(ctx context.Context, workflowID string, answers []domain.Answer) error {
	return s.replaceBatch(ctx, "answers", workflowID, len(answers), func(tx *sql.Tx, i int) error {
		a := answers[i]
		sources, err := marshalJSON(a.Sources, "[]")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO answers (workflow_id, position, question_id, text, confidence,
				answer_type, completeness, sources, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, workflowID, i, a.QuestionID, a.Text, a.Confidence, string(a.Type),
			string(a.Completeness), sources, formatTime(a.CreatedAt))
		return err
	})
}

// ListAnswers returns a workflow's answers in question order.
func (s *Store) ListAnswers(ctx context.Context, workflowID string) ([]domain.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, question_id, text, confidence, answer_type, completeness, sources, created_at
		FROM answers WHERE workflow_id = ? ORDER BY position
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying answers: %w", err)
	}
	defer rows.Close()

	answers := []domain.Answer{}
	for rows.Next() {
		var a domain.Answer
		var answerType, completeness, sources, createdAt string
		if err := rows.Scan(&a.WorkflowID, &a.QuestionID, &a.Text, &a.Confidence,
			&answerType, &completeness, &sources, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning answer: %w", err)
		}
		a.Type = domain.AnswerType(answerType)
		a.Completeness = domain.Completeness(completeness)
		if err := unmarshalJSON(sources, &a.Sources); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating answers: %w", err)
	}
	return answers, nil
}

// ==================== Results ====================

// SaveResult inserts or overwrites the result keyed by (workflow, step).
func (s *Store) SaveResult(ctx context.Context, r *domain.WorkflowResult) error {
	var confidence sql.NullFloat64
	if r.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_results (workflow_id, step_name, data, confidence, processing_time_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id, step_name) DO UPDATE SET
			data = excluded.data,
			confidence = excluded.confidence,
			processing_time_ns = excluded.processing_time_ns,
			created_at = excluded.created_at
	`, r.WorkflowID, string(r.StepName), string(r.Data), confidence,
		int64(r.ProcessingTime), formatTime(r.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("workflow %s: %w", r.WorkflowID, domain.ErrNotFound)
		}
		return fmt.Errorf("saving result: %w", err)
	}
	return nil
}

const resultColumns = `workflow_id, step_name, data, confidence, processing_time_ns, created_at`

// GetResult retrieves the result of one step.
func (s *Store) GetResult(ctx context.Context, workflowID string, step domain.Step) (*domain.WorkflowResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+` FROM workflow_results WHERE workflow_id = ? AND step_name = ?
	`, workflowID, string(step))
	r, err := scanResult(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("result %s/%s", workflowID, step))
	}
	return r, nil
}

// ListResults returns all step results of a workflow in pipeline order.
func (s *Store) ListResults(ctx context.Context, workflowID string) ([]domain.WorkflowResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resultColumns+` FROM workflow_results WHERE workflow_id = ?
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	results := []domain.WorkflowResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].StepName.Index() < results[j].StepName.Index()
	})
	return results, nil
}

func scanResult(row rowScanner) (*domain.WorkflowResult, error) {
	var r domain.WorkflowResult
	var step, data, createdAt string
	var confidence sql.NullFloat64
	var processing int64
	if err := row.Scan(&r.WorkflowID, &step, &data, &confidence, &processing, &createdAt); err != nil {
		return nil, err
	}
	r.StepName = domain.Step(step)
	r.Data = []byte(data)
	if confidence.Valid {
		c := confidence.Float64
		r.Confidence = &c
	}
	r.ProcessingTime = time.Duration(processing)
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// requireAffected returns ErrNotFound when an update or delete matched no row.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
