// Package postgres provides the PostgreSQL implementation of driven.Repository
// on a pgx connection pool. The schema is applied from embedded migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-labs/autorfp/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// Postgres error codes mapped to domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Ensure Store implements the interface.
var _ driven.Repository = (*Store)(nil)

// Store is the PostgreSQL-backed repository.
type Store struct {
	db *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := NewStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing pool. Call Migrate before first use.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// Migrate applies every embedded migration not yet recorded.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// mapError converts driver errors into domain errors.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", what, domain.ErrAlreadyExists)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func toJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling json: %w", err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func fromJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshalling json: %w", err)
	}
	return nil
}

// ==================== Workflows ====================

const workflowColumns = `id, status, current_step, progress, project_context,
	start_time, end_time, error_message, created_at, updated_at`

// CreateWorkflow stores a new workflow.
func (s *Store) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	project, err := toJSON(w.ProjectContext, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, string(w.Status), string(w.CurrentStep), w.Progress, project,
		w.StartTime, w.EndTime, w.ErrorMessage, w.CreatedAt, w.UpdatedAt)
	return mapError(err, "workflow "+w.ID)
}

// UpdateWorkflow overwrites the mutable fields of a workflow.
func (s *Store) UpdateWorkflow(ctx context.Context, w *domain.Workflow) error {
	project, err := toJSON(w.ProjectContext, "{}")
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `UPDATE workflows SET
			status = $1, current_step = $2, progress = $3, project_context = $4,
			start_time = $5, end_time = $6, error_message = $7, updated_at = $8
		WHERE id = $9`,
		string(w.Status), string(w.CurrentStep), w.Progress, project,
		w.StartTime, w.EndTime, w.ErrorMessage, w.UpdatedAt, w.ID)
	if err != nil {
		return mapError(err, "workflow "+w.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", w.ID, domain.ErrNotFound)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "workflow "+id)
	}
	return w, nil
}

// ListWorkflows returns workflows newest first.
func (s *Store) ListWorkflows(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	args := []any{}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += ` WHERE status = $1`
	}
	args = append(args, opts.EffectiveLimit(), max(opts.Offset, 0))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying workflows: %w", err)
	}
	defer rows.Close()

	out := []domain.Workflow{}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning workflow: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a workflow. Foreign keys cascade to dependent rows.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteTerminalBefore removes terminal workflows that ended before cutoff.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `DELETE FROM workflows
		WHERE status IN ($1, $2, $3) AND end_time IS NOT NULL AND end_time < $4
		RETURNING id`,
		string(domain.WorkflowCompleted), string(domain.WorkflowFailed), string(domain.WorkflowCancelled), cutoff)
	if err != nil {
		return nil, fmt.Errorf("deleting expired workflows: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting deleted ids: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// WorkflowStats aggregates workflow counts.
func (s *Store) WorkflowStats(ctx context.Context) (*domain.WorkflowStats, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM workflows GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying workflow stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.WorkflowStats{ByStatus: make(map[domain.WorkflowStatus]int)}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning workflow stats: %w", err)
		}
		stats.ByStatus[domain.WorkflowStatus(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avgSeconds *float64
	if err := s.db.QueryRow(ctx, `SELECT AVG(EXTRACT(EPOCH FROM (end_time - start_time)))::float8
		FROM workflows WHERE start_time IS NOT NULL AND end_time IS NOT NULL`).Scan(&avgSeconds); err != nil {
		return nil, fmt.Errorf("querying average duration: %w", err)
	}
	if avgSeconds != nil {
		stats.AverageDuration = time.Duration(*avgSeconds * float64(time.Second)).Round(time.Microsecond)
	}
	return stats, nil
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var w domain.Workflow
	var status, step string
	var project []byte
	if err := row.Scan(&w.ID, &status, &step, &w.Progress, &project,
		&w.StartTime, &w.EndTime, &w.ErrorMessage, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = domain.WorkflowStatus(status)
	w.CurrentStep = domain.Step(step)
	if err := fromJSON(project, &w.ProjectContext); err != nil {
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
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		next := make(map[string]int)
		for _, d := range docs {
			pos, ok := next[d.WorkflowID]
			if !ok {
				if err := tx.QueryRow(ctx,
					`SELECT COALESCE(MAX(position), -1) + 1 FROM documents WHERE workflow_id = $1`, d.WorkflowID,
				).Scan(&pos); err != nil {
					return fmt.Errorf("reading document position: %w", err)
				}
			}
			meta, err := toJSON(d.FileMetadata, "{}")
			if err != nil {
				return err
			}
			data, err := toJSON(d.ExtractedData, "{}")
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `INSERT INTO documents (`+documentColumns+`, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				d.ID, d.WorkflowID, d.Filename, d.StoragePath, d.Size, d.MIMEType, string(d.Status),
				d.Content, meta, data, d.CreatedAt, d.UpdatedAt, pos)
			if err != nil {
				return mapError(err, "document "+d.ID)
			}
			next[d.WorkflowID] = pos + 1
		}
		return nil
	})
}

// UpdateDocument overwrites a document. Completed documents are immutable.
func (s *Store) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM documents WHERE id = $1 AND workflow_id = $2 FOR UPDATE`, doc.ID, doc.WorkflowID,
		).Scan(&status)
		if err != nil {
			return mapError(err, "document "+doc.ID)
		}
		if domain.ProcessingStatus(status) == domain.ProcessingCompleted {
			return fmt.Errorf("document %s is completed: %w", doc.ID, domain.ErrInvalidState)
		}
		meta, err := toJSON(doc.FileMetadata, "{}")
		if err != nil {
			return err
		}
		data, err := toJSON(doc.ExtractedData, "{}")
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE documents SET
				filename = $1, storage_path = $2, size = $3, mime_type = $4, status = $5,
				content = $6, file_metadata = $7, extracted_data = $8, updated_at = $9
			WHERE id = $10`,
			doc.Filename, doc.StoragePath, doc.Size, doc.MIMEType, string(doc.Status),
			doc.Content, meta, data, doc.UpdatedAt, doc.ID)
		return mapError(err, "document "+doc.ID)
	})
}

// ListDocuments returns a workflow's documents in upload order.
func (s *Store) ListDocuments(ctx context.Context, workflowID string) ([]domain.Document, error) {
	rows, err := s.db.Query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		var d domain.Document
		var status string
		var meta, data []byte
		if err := rows.Scan(&d.ID, &d.WorkflowID, &d.Filename, &d.StoragePath, &d.Size, &d.MIMEType,
			&status, &d.Content, &meta, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.Status = domain.ProcessingStatus(status)
		if err := fromJSON(meta, &d.FileMetadata); err != nil {
			return nil, err
		}
		if err := fromJSON(data, &d.ExtractedData); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ==================== Requirements, questions, answers ====================

// replaceBatch clears a workflow's rows in table and refills them with a
// single CopyFrom, in one transaction.
func (s *Store) replaceBatch(ctx context.Context, table, workflowID string, columns []string, rows [][]any) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workflows WHERE id = $1)`, workflowID).Scan(&exists); err != nil {
			return fmt.Errorf("checking workflow: %w", err)
		}
		if !exists {
			return fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE workflow_id = $1`, workflowID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("saving %s: %w", table, err)
		}
		return nil
	})
}

// ReplaceRequirements swaps the workflow's requirement batch for reqs.
func (s *Store) ReplaceRequirements(ctx context.Context, workflowID string, reqs []domain.Requirement) error {
	rows := make([][]any, len(reqs))
	for i, r := range reqs {
		rows[i] = []any{workflowID, i, r.RequirementID, r.SourceDocumentID, string(r.Category),
			r.Description, string(r.Priority), r.Complexity, r.Mandatory, r.CreatedAt}
	}
	return s.replaceBatch(ctx, "requirements", workflowID, []string{
		"workflow_id", "position", "requirement_id", "source_document_id", "category",
		"description", "priority", "complexity", "mandatory", "created_at",
	}, rows)
}

// ListRequirements returns a workflow's requirements in batch order.
func (s *Store) ListRequirements(ctx context.Context, workflowID string) ([]domain.Requirement, error) {
	rows, err := s.db.Query(ctx, `SELECT workflow_id, requirement_id, source_document_id, category,
			description, priority, complexity, mandatory, created_at
		FROM requirements WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying requirements: %w", err)
	}
	defer rows.Close()

	reqs := []domain.Requirement{}
	for rows.Next() {
		var r domain.Requirement
		var category, priority string
		if err := rows.Scan(&r.WorkflowID, &r.RequirementID, &r.SourceDocumentID, &category,
			&r.Description, &priority, &r.Complexity, &r.Mandatory, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning requirement: %w", err)
		}
		r.Category = domain.Category(category)
		r.Priority = domain.Priority(priority)
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// ReplaceQuestions swaps the workflow's question batch for qs.
func (s *Store) ReplaceQuestions(ctx context.Context, workflowID string, qs []domain.Question) error {
	rows := make([][]any, len(qs))
	for i, q := range qs {
		related, err := toJSON(q.RelatedRequirements, "[]")
		if err != nil {
			return err
		}
		rows[i] = []any{workflowID, i, q.QuestionID, string(q.Category), q.Text, q.Rationale,
			string(q.Priority), q.Impact, related, q.CreatedAt}
	}
	return s.replaceBatch(ctx, "questions", workflowID, []string{
		"workflow_id", "position", "question_id", "category", "text", "rationale",
		"priority", "impact", "related_requirements", "created_at",
	}, rows)
}

// ListQuestions returns a workflow's questions in batch order.
func (s *Store) ListQuestions(ctx context.Context, workflowID string) ([]domain.Question, error) {
	rows, err := s.db.Query(ctx, `SELECT workflow_id, question_id, category, text, rationale,
			priority, impact, related_requirements, created_at
		FROM questions WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying questions: %w", err)
	}
	defer rows.Close()

	qs := []domain.Question{}
	for rows.Next() {
		var q domain.Question
		var category, priority string
		var related []byte
		if err := rows.Scan(&q.WorkflowID, &q.QuestionID, &category, &q.Text, &q.Rationale,
			&priority, &q.Impact, &related, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		q.Category = domain.Category(category)
		q.Priority = domain.Priority(priority)
		if err := fromJSON(related, &q.RelatedRequirements); err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

// ReplaceAnswers deletes every answer of the workflow, then inserts answers.
// Answers are not versioned; the latest extraction run wins.
func (s *Store) ReplaceAnswers(ctx context.Context, workflowID string, answers []domain.Answer) error {
	rows := make([][]any, len(answers))
	for i, a := range answers {
		sources, err := toJSON(a.Sources, "[]")
		if err != nil {
			return err
		}
		rows[i] = []any{workflowID, i, a.QuestionID, a.Text, a.Confidence, string(a.Type),
			string(a.Completeness), sources, a.CreatedAt}
	}
	return s.replaceBatch(ctx, "answers", workflowID, []string{
		"workflow_id", "position", "question_id", "text", "confidence", "answer_type",
		"completeness", "sources", "created_at",
	}, rows)
}

// ListAnswers returns a workflow's answers in question order.
func (s *Store) ListAnswers(ctx context.Context, workflowID string) ([]domain.Answer, error) {
	rows, err := s.db.Query(ctx, `SELECT workflow_id, question_id, text, confidence, answer_type,
			completeness, sources, created_at
		FROM answers WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying answers: %w", err)
	}
	defer rows.Close()

	answers := []domain.Answer{}
	for rows.Next() {
		var a domain.Answer
		var answerType, completeness string
		var sources []byte
		if err := rows.Scan(&a.WorkflowID, &a.QuestionID, &a.Text, &a.Confidence, &answerType,
			&completeness, &sources, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning answer: %w", err)
		}
		a.Type = domain.AnswerType(answerType)
		a.Completeness = domain.Completeness(completeness)
		if err := fromJSON(sources, &a.Sources); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ==================== Results ====================

// SaveResult inserts or overwrites the result keyed by (workflow, step).
func (s *Store) SaveResult(ctx context.Context, r *domain.WorkflowResult) error {
	_, err := s.db.Exec(ctx, `INSERT INTO workflow_results
			(workflow_id, step_name, data, confidence, processing_time_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id, step_name) DO UPDATE SET
			data = EXCLUDED.data,
			confidence = EXCLUDED.confidence,
			processing_time_ns = EXCLUDED.processing_time_ns,
			created_at = EXCLUDED.created_at`,
		r.WorkflowID, string(r.StepName), string(r.Data), r.Confidence, int64(r.ProcessingTime), r.CreatedAt)
	return mapError(err, fmt.Sprintf("result %s/%s", r.WorkflowID, r.StepName))
}

const resultColumns = `workflow_id, step_name, data, confidence, processing_time_ns, created_at`

// GetResult retrieves the result of one step.
func (s *Store) GetResult(ctx context.Context, workflowID string, step domain.Step) (*domain.WorkflowResult, error) {
	r, err := scanResult(s.db.QueryRow(ctx, `SELECT `+resultColumns+` FROM workflow_results
		WHERE workflow_id = $1 AND step_name = $2`, workflowID, string(step)))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("result %s/%s", workflowID, step))
	}
	return r, nil
}

// ListResults returns all step results of a workflow in pipeline order.
func (s *Store) ListResults(ctx context.Context, workflowID string) ([]domain.WorkflowResult, error) {
	rows, err := s.db.Query(ctx, `SELECT `+resultColumns+` FROM workflow_results WHERE workflow_id = $1`, workflowID)
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
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].StepName.Index() < results[j].StepName.Index()
	})
	return results, nil
}

func scanResult(row pgx.Row) (*domain.WorkflowResult, error) {
	var r domain.WorkflowResult
	var step string
	var data []byte
	var processing int64
	if err := row.Scan(&r.WorkflowID, &step, &data, &r.Confidence, &processing, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.StepName = domain.Step(step)
	r.Data = data
	r.ProcessingTime = time.Duration(processing)
	return &r, nil
}
