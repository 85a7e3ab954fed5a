// Package cached decorates a durable Repository with a read-through cache.
// The durable store is always written first; the cache is then invalidated
// per the Policy. Cache failures are logged and never surface to callers.
package cached

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/logger"
	"github.com/custodia-labs/autorfp/internal/telemetry"
)

// Ensure Repository implements the interface.
var _ driven.Repository = (*Repository)(nil)

// Repository is a driven.Repository that serves reads from a cache.
type Repository struct {
	inner   driven.Repository
	cache   driven.Cache
	policy  Policy
	metrics *telemetry.Metrics
	group   singleflight.Group

	// mu orders cache fills against invalidations. epoch counts
	// invalidations; a fill that started in an older epoch is discarded.
	mu    sync.Mutex
	epoch uint64
}

// Option configures a Repository.
type Option func(*Repository)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(r *Repository) {
		r.policy = p
	}
}

// WithMetrics records cache hits and misses.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// New wraps inner with cache.
func New(inner driven.Repository, cache driven.Cache, opts ...Option) *Repository {
	r := &Repository{
		inner:  inner,
		cache:  cache,
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// read serves key from the cache, falling back to fetch on a miss.
// Concurrent misses for one key in the same epoch share a single fetch;
// each caller decodes its own copy. The shared fetch ignores the first
// caller's cancellation so other waiters are not failed by it.
func read[T any](ctx context.Context, r *Repository, entity Entity, key string, fetch func(context.Context) (T, error)) (T, error) {
	var out T
	ttl := r.policy.TTLFor(entity)
	if ttl <= 0 {
		return fetch(ctx)
	}

	if data, ok := r.cache.Get(ctx, key); ok {
		if err := json.Unmarshal(data, &out); err == nil {
			r.metrics.CacheLookup(ctx, string(entity), true)
			logger.Debug("cache hit %s", key)
			return out, nil
		}
		logger.Warn("cache: dropping undecodable entry %s", key)
		r.drop(ctx, key)
	}
	r.metrics.CacheLookup(ctx, string(entity), false)

	epoch := r.currentEpoch()
	v, err, _ := r.group.Do(fmt.Sprintf("%s@%d", key, epoch), func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		val, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		r.fill(fctx, key, data, ttl, epoch)
		return data, nil
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(v.([]byte), &out); err != nil {
		return out, err
	}
	return out, nil
}

func (r *Repository) currentEpoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// fill caches data unless an invalidation ran after the fetch began.
func (r *Repository) fill(ctx context.Context, key string, data []byte, ttl time.Duration, epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		logger.Debug("cache: skip fill of %s, invalidated during fetch", key)
		return
	}
	if err := r.cache.Set(ctx, key, data, ttl); err != nil {
		logger.Warn("cache: set %s: %v", key, err)
	}
}

// invalidate removes the entries op makes stale for workflowIDs.
func (r *Repository) invalidate(ctx context.Context, op Op, workflowIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++

	var keys []string
	for _, e := range r.policy.Invalidate[op] {
		switch e {
		case EntityList:
			if err := r.cache.DeletePrefix(ctx, listPrefix); err != nil {
				logger.Warn("cache: invalidate list pages: %v", err)
			}
		case EntityStats:
			keys = append(keys, StatsKey())
		default:
			for _, id := range workflowIDs {
				keys = append(keys, keyFor(id, e))
			}
		}
	}
	r.drop(ctx, keys...)
}

func (r *Repository) drop(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		logger.Warn("cache: delete %v: %v", keys, err)
	}
}

// CreateWorkflow stores w in the durable store.
func (r *Repository) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	if err := r.inner.CreateWorkflow(ctx, w); err != nil {
		return err
	}
	r.invalidate(ctx, OpCreateWorkflow, w.ID)
	return nil
}

// UpdateWorkflow updates w in the durable store.
func (r *Repository) UpdateWorkflow(ctx context.Context, w *domain.Workflow) error {
	if err := r.inner.UpdateWorkflow(ctx, w); err != nil {
		return err
	}
	r.invalidate(ctx, OpUpdateWorkflow, w.ID)
	return nil
}

// GetWorkflow serves workflow:{id}. A miss repopulates only that key.
func (r *Repository) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	return read(ctx, r, EntityWorkflow, WorkflowKey(id), func(ctx context.Context) (*domain.Workflow, error) {
		return r.inner.GetWorkflow(ctx, id)
	})
}

// ListWorkflows serves one list page.
func (r *Repository) ListWorkflows(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	return read(ctx, r, EntityList, ListKey(opts), func(ctx context.Context) ([]domain.Workflow, error) {
		return r.inner.ListWorkflows(ctx, opts)
	})
}

// DeleteWorkflow deletes the workflow and every cached entry under it.
func (r *Repository) DeleteWorkflow(ctx context.Context, id string) error {
	if err := r.inner.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, OpDeleteWorkflow, id)
	return nil
}

// DeleteTerminalBefore deletes old terminal workflows and their cache entries.
func (r *Repository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.inner.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		r.invalidate(ctx, OpDeleteWorkflow, ids...)
	}
	return ids, nil
}

// WorkflowStats serves the aggregate statistics.
func (r *Repository) WorkflowStats(ctx context.Context) (*domain.WorkflowStats, error) {
	return read(ctx, r, EntityStats, StatsKey(), r.inner.WorkflowStats)
}

// SaveDocuments stores docs. Documents of several workflows may be mixed.
func (r *Repository) SaveDocuments(ctx context.Context, docs []domain.Document) error {
	if err := r.inner.SaveDocuments(ctx, docs); err != nil {
		return err
	}
	r.invalidate(ctx, OpSaveDocuments, workflowIDsOf(docs)...)
	return nil
}

// UpdateDocument updates doc.
func (r *Repository) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	if err := r.inner.UpdateDocument(ctx, doc); err != nil {
		return err
	}
	r.invalidate(ctx, OpUpdateDocument, doc.WorkflowID)
	return nil
}

// ListDocuments serves workflow:{id}:documents.
func (r *Repository) ListDocuments(ctx context.Context, workflowID string) ([]domain.Document, error) {
	return read(ctx, r, EntityDocuments, WorkflowSubKey(workflowID, EntityDocuments), func(ctx context.Context) ([]domain.Document, error) {
		return r.inner.ListDocuments(ctx, workflowID)
	})
}

// ReplaceRequirements swaps the requirement batch.
func (r *Repository) ReplaceRequirements(ctx context.Context, workflowID string, reqs []domain.Requirement) error {
	if err := r.inner.ReplaceRequirements(ctx, workflowID, reqs); err != nil {
		return err
	}
	r.invalidate(ctx, OpReplaceRequirements, workflowID)
	return nil
}

// ListRequirements serves workflow:{id}:requirements.
func (r *Repository) ListRequirements(ctx context.Context, workflowID string) ([]domain.Requirement, error) {
	return read(ctx, r, EntityRequirements, WorkflowSubKey(workflowID, EntityRequirements), func(ctx context.Context) ([]domain.Requirement, error) {
		return r.inner.ListRequirements(ctx, workflowID)
	})
}

// ReplaceQuestions swaps the question batch.
func (r *Repository) ReplaceQuestions(ctx context.Context, workflowID string, qs []domain.Question) error {
	if err := r.inner.ReplaceQuestions(ctx, workflowID, qs); err != nil {
		return err
	}
	r.invalidate(ctx, OpReplaceQuestions, workflowID)
	return nil
}

// ListQuestions serves workflow:{id}:questions.
func (r *Repository) ListQuestions(ctx context.Context, workflowID string) ([]domain.Question, error) {
	return read(ctx, r, EntityQuestions, WorkflowSubKey(workflowID, EntityQuestions), func(ctx context.Context) ([]domain.Question, error) {
		return r.inner.ListQuestions(ctx, workflowID)
	})
}

// ReplaceAnswers swaps the answer set.
func (r *Repository) ReplaceAnswers(ctx context.Context, workflowID string, answers []domain.Answer) error {
	if err := r.inner.ReplaceAnswers(ctx, workflowID, answers); err != nil {
		return err
	}
	r.invalidate(ctx, OpReplaceAnswers, workflowID)
	return nil
}

// ListAnswers serves workflow:{id}:answers.
func (r *Repository) ListAnswers(ctx context.Context, workflowID string) ([]domain.Answer, error) {
	return read(ctx, r, EntityAnswers, WorkflowSubKey(workflowID, EntityAnswers), func(ctx context.Context) ([]domain.Answer, error) {
		return r.inner.ListAnswers(ctx, workflowID)
	})
}

// SaveResult upserts a step result.
func (r *Repository) SaveResult(ctx context.Context, res *domain.WorkflowResult) error {
	if err := r.inner.SaveResult(ctx, res); err != nil {
		return err
	}
	r.invalidate(ctx, OpSaveResult, res.WorkflowID)
	return nil
}

// GetResult answers from the cached result list when present.
func (r *Repository) GetResult(ctx context.Context, workflowID string, step domain.Step) (*domain.WorkflowResult, error) {
	if data, ok := r.cache.Get(ctx, WorkflowSubKey(workflowID, EntityResults)); ok {
		var results []domain.WorkflowResult
		if err := json.Unmarshal(data, &results); err == nil {
			for i := range results {
				if results[i].StepName == step {
					r.metrics.CacheLookup(ctx, string(EntityResults), true)
					return &results[i], nil
				}
			}
		}
	}
	r.metrics.CacheLookup(ctx, string(EntityResults), false)
	return r.inner.GetResult(ctx, workflowID, step)
}

// ListResults serves workflow:{id}:results.
func (r *Repository) ListResults(ctx context.Context, workflowID string) ([]domain.WorkflowResult, error) {
	return read(ctx, r, EntityResults, WorkflowSubKey(workflowID, EntityResults), func(ctx context.Context) ([]domain.WorkflowResult, error) {
		return r.inner.ListResults(ctx, workflowID)
	})
}

// Close closes the durable store.
func (r *Repository) Close() error {
	return r.inner.Close()
}

func workflowIDsOf(docs []domain.Document) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, d := range docs {
		if !seen[d.WorkflowID] {
			seen[d.WorkflowID] = true
			ids = append(ids, d.WorkflowID)
		}
	}
	return ids
}
