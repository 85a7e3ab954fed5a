package cached

import (
	"fmt"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// Entity names a family of cache entries.
type Entity string

// Cached entities.
const (
	EntityWorkflow     Entity = "workflow"
	EntityDocuments    Entity = "documents"
	EntityResults      Entity = "results"
	EntityRequirements Entity = "requirements"
	EntityQuestions    Entity = "questions"
	EntityAnswers      Entity = "answers"
	EntityList         Entity = "list"
	EntityStats        Entity = "stats"
)

// Op names a repository write.
type Op string

// Repository writes that invalidate cache entries.
const (
	OpCreateWorkflow      Op = "create_workflow"
	OpUpdateWorkflow      Op = "update_workflow"
	OpDeleteWorkflow      Op = "delete_workflow"
	OpSaveDocuments       Op = "save_documents"
	OpUpdateDocument      Op = "update_document"
	OpReplaceRequirements Op = "replace_requirements"
	OpReplaceQuestions    Op = "replace_questions"
	OpReplaceAnswers      Op = "replace_answers"
	OpSaveResult          Op = "save_result"
)

// Policy is the single source of cache TTLs and write invalidations.
type Policy struct {
	// TTL is how long each entity stays cached. Entities without a
	// positive TTL are not cached.
	TTL map[Entity]time.Duration

	// Invalidate lists the entities each write makes stale. Entities
	// scoped to a workflow are resolved against the written workflow ID.
	Invalidate map[Op][]Entity
}

// workflowScoped are the entities stored under a workflow ID.
var workflowScoped = []Entity{
	EntityWorkflow,
	EntityDocuments,
	EntityResults,
	EntityRequirements,
	EntityQuestions,
	EntityAnswers,
}

// DefaultPolicy returns the standard TTL table and invalidation map.
func DefaultPolicy() Policy {
	return Policy{
		TTL: map[Entity]time.Duration{
			EntityWorkflow:     time.Hour,
			EntityDocuments:    time.Hour,
			EntityResults:      30 * time.Minute,
			EntityRequirements: time.Hour,
			EntityQuestions:    time.Hour,
			EntityAnswers:      time.Hour,
			EntityList:         5 * time.Minute,
			EntityStats:        5 * time.Minute,
		},
		Invalidate: map[Op][]Entity{
			OpCreateWorkflow:      {EntityList, EntityStats},
			OpUpdateWorkflow:      {EntityWorkflow, EntityList, EntityStats},
			OpDeleteWorkflow:      append(append([]Entity{}, workflowScoped...), EntityList, EntityStats),
			OpSaveDocuments:       {EntityDocuments},
			OpUpdateDocument:      {EntityDocuments},
			OpReplaceRequirements: {EntityRequirements},
			OpReplaceQuestions:    {EntityQuestions},
			OpReplaceAnswers:      {EntityAnswers},
			OpSaveResult:          {EntityResults},
		},
	}
}

// TTLFor returns the TTL of entity, zero if it is not cached.
func (p Policy) TTLFor(e Entity) time.Duration {
	return p.TTL[e]
}

// Key prefixes.
const (
	workflowPrefix = "workflow:"
	listPrefix     = "workflows:list:"
	statsKey       = "workflows:stats"
)

// WorkflowKey returns the key of a workflow record: workflow:{id}.
func WorkflowKey(id string) string {
	return workflowPrefix + id
}

// WorkflowSubKey returns the key of a workflow subresource:
// workflow:{id}:{entity}.
func WorkflowSubKey(id string, e Entity) string {
	return workflowPrefix + id + ":" + string(e)
}

// ListKey returns the key of one workflow list page.
func ListKey(opts domain.ListOptions) string {
	status := string(opts.Status)
	if status == "" {
		status = "all"
	}
	return fmt.Sprintf("%s%s:%d:%d", listPrefix, status, opts.EffectiveLimit(), opts.Offset)
}

// StatsKey returns the key of the aggregate statistics.
func StatsKey() string {
	return statsKey
}

// keyFor resolves a workflow-scoped entity to its key.
func keyFor(id string, e Entity) string {
	if e == EntityWorkflow {
		return WorkflowKey(id)
	}
	return WorkflowSubKey(id, e)
}
