package services

import (
	"sync"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

// subscriberBuffer is the per-subscriber event buffer. Events beyond it are dropped.
const subscriberBuffer = 64

// Broadcaster fans progress events out to per-workflow subscribers.
// Publishing never blocks: a subscriber with a full buffer misses events.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan domain.ProgressEvent
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[int]chan domain.ProgressEvent)}
}

// Subscribe registers a listener for one workflow.
func (b *Broadcaster) Subscribe(workflowID string) (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.ProgressEvent, subscriberBuffer)
	if b.subs[workflowID] == nil {
		b.subs[workflowID] = make(map[int]chan domain.ProgressEvent)
	}
	b.subs[workflowID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(workflowID, id) })
	}
}

func (b *Broadcaster) remove(workflowID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[workflowID]
	if ch, ok := subs[id]; ok {
		delete(subs, id)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.subs, workflowID)
	}
}

// Publish delivers ev to every subscriber of its workflow without blocking.
// It reports how many subscribers received it.
func (b *Broadcaster) Publish(ev domain.ProgressEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for _, ch := range b.subs[ev.WorkflowID] {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// CloseWorkflow closes and removes every subscription of a workflow.
func (b *Broadcaster) CloseWorkflow(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[workflowID] {
		close(ch)
	}
	delete(b.subs, workflowID)
}

// Subscribers returns the number of listeners of a workflow.
func (b *Broadcaster) Subscribers(workflowID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[workflowID])
}
