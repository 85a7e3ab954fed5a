package cached

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/custodia-labs/autorfp/internal/adapters/driven/cache/memory"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/storage/storagetest"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// countingRepo counts reads that reach the durable store.
type countingRepo struct {
	driven.Repository
	mu    sync.Mutex
	reads map[string]int
}

func newCountingRepo() *countingRepo {
	return &countingRepo{Repository: memory.NewRepository(), reads: map[string]int{}}
}

func (c *countingRepo) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads[op]++
}

func (c *countingRepo) readsOf(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[op]
}

func (c *countingRepo) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	c.count("workflow")
	return c.Repository.GetWorkflow(ctx, id)
}

func (c *countingRepo) ListWorkflows(ctx context.Context, opts domain.ListOptions) ([]domain.Workflow, error) {
	c.count("list")
	return c.Repository.ListWorkflows(ctx, opts)
}

func (c *countingRepo) ListDocuments(ctx context.Context, id string) ([]domain.Document, error) {
	c.count("documents")
	return c.Repository.ListDocuments(ctx, id)
}

func (c *countingRepo) WorkflowStats(ctx context.Context) (*domain.WorkflowStats, error) {
	c.count("stats")
	return c.Repository.WorkflowStats(ctx)
}

// brokenCache fails every write and never hits.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string) ([]byte, bool)               { return nil, false }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return errCacheDown }
func (brokenCache) Delete(context.Context, ...string) error                  { return errCacheDown }
func (brokenCache) DeletePrefix(context.Context, string) error               { return errCacheDown }

// gatedRepo holds the first GetWorkflow after it has read the store
// until release is closed.
type gatedRepo struct {
	driven.Repository
	once    sync.Once
	fetched chan struct{}
	release chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{
		Repository: memory.NewRepository(),
		fetched:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (g *gatedRepo) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	w, err := g.Repository.GetWorkflow(ctx, id)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.fetched)
		<-g.release
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
	}
	return w, err
}

type fixture struct {
	repo  *Repository
	inner *countingRepo
	cache *memcache.Cache
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{inner: newCountingRepo(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.cache = memcache.New(memcache.WithClock(func() time.Time { return f.now }))
	f.repo = New(f.inner, f.cache)
	return f
}

func (f *fixture) cached(key string) bool {
	_, ok := f.cache.Get(context.Background(), key)
	return ok
}

func TestRepository_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) driven.Repository {
		return New(memory.NewRepository(), memcache.New())
	})
}

func TestRepository_ContractWithBrokenCache(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) driven.Repository {
		return New(memory.NewRepository(), brokenCache{})
	})
}

func TestRepository_GetWorkflowMissRepopulatesOnlyWorkflowKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-1", 0)))

	listKey := ListKey(domain.ListOptions{})
	_, err := f.repo.ListWorkflows(ctx, domain.ListOptions{})
	require.NoError(t, err)
	require.True(t, f.cached(listKey))
	require.Equal(t, 1, f.inner.readsOf("list"))

	got, err := f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.ID)
	assert.True(t, f.cached(WorkflowKey("wf-1")))
	assert.Equal(t, 1, f.inner.readsOf("workflow"))

	again, err := f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, f.inner.readsOf("workflow"), "served from cache")

	_, err = f.repo.ListWorkflows(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.inner.readsOf("list"), "list page untouched by workflow miss")
	assert.Equal(t, 2, f.cache.Len())
}

func TestRepository_TTLExpiryRefetches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-1", 0)))

	_, err := f.repo.WorkflowStats(ctx)
	require.NoError(t, err)
	_, err = f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)

	f.now = f.now.Add(6 * time.Minute)

	_, err = f.repo.WorkflowStats(ctx)
	require.NoError(t, err)
	_, err = f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)

	assert.Equal(t, 2, f.inner.readsOf("stats"), "stats live five minutes")
	assert.Equal(t, 1, f.inner.readsOf("workflow"), "workflows live an hour")
}

func TestRepository_UpdateInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := storagetest.NewWorkflow("wf-1", 0)
	require.NoError(t, f.repo.CreateWorkflow(ctx, w))

	_, err := f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	_, err = f.repo.ListWorkflows(ctx, domain.ListOptions{Limit: 10})
	require.NoError(t, err)
	_, err = f.repo.ListWorkflows(ctx, domain.ListOptions{Status: domain.WorkflowPending})
	require.NoError(t, err)
	_, err = f.repo.WorkflowStats(ctx)
	require.NoError(t, err)
	_, err = f.repo.ListDocuments(ctx, "wf-1")
	require.NoError(t, err)

	w.Status = domain.WorkflowRunning
	w.Progress = 20
	require.NoError(t, f.repo.UpdateWorkflow(ctx, w))

	assert.False(t, f.cached(WorkflowKey("wf-1")))
	assert.False(t, f.cached(ListKey(domain.ListOptions{Limit: 10})))
	assert.False(t, f.cached(ListKey(domain.ListOptions{Status: domain.WorkflowPending})))
	assert.False(t, f.cached(StatsKey()))
	assert.True(t, f.cached(WorkflowSubKey("wf-1", EntityDocuments)), "documents unaffected")

	got, err := f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowRunning, got.Status)
	assert.Equal(t, 20, got.Progress)
}

func TestRepository_SubresourceWritesInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-1", 0)))

	docs, err := f.repo.ListDocuments(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, f.repo.SaveDocuments(ctx, []domain.Document{storagetest.NewDocument("wf-1", "doc-1", "rfp.txt")}))
	docs, err = f.repo.ListDocuments(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, f.inner.readsOf("documents"))

	conf := 0.8
	require.NoError(t, f.repo.SaveResult(ctx, &domain.WorkflowResult{
		WorkflowID: "wf-1", StepName: domain.StepIngest, Data: []byte(`{"n":1}`), Confidence: &conf, CreatedAt: f.now,
	}))
	results, err := f.repo.ListResults(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, results, 1)

	got, err := f.repo.GetResult(ctx, "wf-1", domain.StepIngest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(got.Data))
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.8, *got.Confidence, 1e-9)

	require.NoError(t, f.repo.SaveResult(ctx, &domain.WorkflowResult{
		WorkflowID: "wf-1", StepName: domain.StepIngest, Data: []byte(`{"n":2}`), CreatedAt: f.now,
	}))
	got, err = f.repo.GetResult(ctx, "wf-1", domain.StepIngest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(got.Data), "overwrite visible after invalidation")

	_, err = f.repo.GetResult(ctx, "wf-1", domain.StepCompileResponse)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_DeleteDropsEveryEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-1", 0)))
	require.NoError(t, f.repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-2", time.Minute)))

	for _, id := range []string{"wf-1", "wf-2"} {
		_, err := f.repo.GetWorkflow(ctx, id)
		require.NoError(t, err)
		_, err = f.repo.ListDocuments(ctx, id)
		require.NoError(t, err)
		_, err = f.repo.ListAnswers(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, f.repo.DeleteWorkflow(ctx, "wf-1"))

	assert.False(t, f.cached(WorkflowKey("wf-1")))
	assert.False(t, f.cached(WorkflowSubKey("wf-1", EntityDocuments)))
	assert.False(t, f.cached(WorkflowSubKey("wf-1", EntityAnswers)))
	assert.True(t, f.cached(WorkflowKey("wf-2")))

	_, err := f.repo.GetWorkflow(ctx, "wf-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, f.cached(WorkflowKey("wf-1")), "misses are not cached")
}

func TestRepository_DeleteTerminalBeforeInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := storagetest.NewWorkflow("wf-old", 0)
	start := w.CreatedAt
	end := start.Add(time.Minute)
	w.Status = domain.WorkflowCompleted
	w.StartTime = &start
	w.EndTime = &end
	require.NoError(t, f.repo.CreateWorkflow(ctx, w))

	_, err := f.repo.GetWorkflow(ctx, "wf-old")
	require.NoError(t, err)
	_, err = f.repo.WorkflowStats(ctx)
	require.NoError(t, err)

	ids, err := f.repo.DeleteTerminalBefore(ctx, end.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-old"}, ids)
	assert.False(t, f.cached(WorkflowKey("wf-old")))
	assert.False(t, f.cached(StatsKey()))
}

func TestRepository_UndecodableEntryIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-1", 0)))
	require.NoError(t, f.cache.Set(ctx, WorkflowKey("wf-1"), []byte("{not json"), time.Hour))

	got, err := f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.ID)
	assert.Equal(t, 1, f.inner.readsOf("workflow"))
}

func TestRepository_CallersGetIndependentCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-1", 0)))

	first, err := f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	first.ProjectContext["client"] = "Mutated"

	second, err := f.repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", second.ProjectContext["client"])
}

func TestRepository_UncachedEntityPassesThrough(t *testing.T) {
	f := newFixture(t)
	policy := DefaultPolicy()
	delete(policy.TTL, EntityStats)
	f.repo = New(f.inner, f.cache, WithPolicy(policy))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.repo.WorkflowStats(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.inner.readsOf("stats"))
	assert.False(t, f.cached(StatsKey()))
}

func TestPolicy_Defaults(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Hour, p.TTLFor(EntityWorkflow))
	assert.Equal(t, time.Hour, p.TTLFor(EntityDocuments))
	assert.Equal(t, 30*time.Minute, p.TTLFor(EntityResults))
	assert.Equal(t, time.Hour, p.TTLFor(EntityAnswers))
	assert.Equal(t, 5*time.Minute, p.TTLFor(EntityList))
	assert.Equal(t, 5*time.Minute, p.TTLFor(EntityStats))
	assert.NotContains(t, p.Invalidate[OpCreateWorkflow], EntityWorkflow)
	assert.Contains(t, p.Invalidate[OpDeleteWorkflow], EntityResults)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "workflow:wf-1", WorkflowKey("wf-1"))
	assert.Equal(t, "workflow:wf-1:documents", WorkflowSubKey("wf-1", EntityDocuments))
	assert.Equal(t, "workflows:list:all:50:0", ListKey(domain.ListOptions{}))
	assert.Equal(t, "workflows:list:failed:10:20", ListKey(domain.ListOptions{Status: domain.WorkflowFailed, Limit: 10, Offset: 20}))
	assert.Equal(t, "workflows:stats", StatsKey())
}

func TestRepository_WriteDuringMissIsNotOverwritten(t *testing.T) {
	inner := newGatedRepo()
	repo := New(inner, memcache.New())
	ctx := context.Background()

	w := storagetest.NewWorkflow("wf-1", 0)
	w.Status = domain.WorkflowRunning
	require.NoError(t, repo.CreateWorkflow(ctx, w))

	done := make(chan *domain.Workflow, 1)
	go func() {
		got, err := repo.GetWorkflow(ctx, "wf-1")
		assert.NoError(t, err)
		done <- got
	}()
	<-inner.fetched

	completed := *w
	completed.Status = domain.WorkflowCompleted
	completed.Progress = 100
	require.NoError(t, repo.UpdateWorkflow(ctx, &completed))
	close(inner.release)

	stale := <-done
	assert.Equal(t, domain.WorkflowRunning, stale.Status, "read began before the write")

	got, err := repo.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestRepository_SharedFetchSurvivesCallerCancel(t *testing.T) {
	inner := newGatedRepo()
	repo := New(inner, memcache.New())
	ctx := context.Background()
	require.NoError(t, repo.CreateWorkflow(ctx, storagetest.NewWorkflow("wf-1", 0)))

	first, cancel := context.WithCancel(ctx)
	errs := make(chan error, 2)
	go func() {
		_, err := repo.GetWorkflow(first, "wf-1")
		errs <- err
	}()
	<-inner.fetched

	go func() {
		_, err := repo.GetWorkflow(ctx, "wf-1")
		errs <- err
	}()
	cancel()
	close(inner.release)

	assert.NoError(t, <-errs)
	assert.NoError(t, <-errs)
}
