package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/autorfp/internal/core/domain"
)

func TestBroadcaster_DeliversToWorkflowSubscribers(t *testing.T) {
	b := NewBroadcaster()
	a1, unsubA1 := b.Subscribe("wf-a")
	defer unsubA1()
	a2, unsubA2 := b.Subscribe("wf-a")
	defer unsubA2()
	other, unsubOther := b.Subscribe("wf-b")
	defer unsubOther()

	n := b.Publish(domain.ProgressEvent{WorkflowID: "wf-a", Progress: 20})

	assert.Equal(t, 2, n)
	assert.Equal(t, 20, (<-a1).Progress)
	assert.Equal(t, 20, (<-a2).Progress)
	assert.Empty(t, other)
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe("wf-a")

	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers("wf-a"))
	assert.Equal(t, 0, b.Publish(domain.ProgressEvent{WorkflowID: "wf-a"}))
}

func TestBroadcaster_FullSubscriberMissesEvents(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe("wf-a")
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(domain.ProgressEvent{WorkflowID: "wf-a", Progress: i})
	}

	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, 0, (<-ch).Progress, "oldest events are kept")
}

func TestBroadcaster_CloseWorkflow(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe("wf-a")
	b.Publish(domain.ProgressEvent{WorkflowID: "wf-a", Status: domain.WorkflowCompleted})

	b.CloseWorkflow("wf-a")
	unsubscribe()

	ev, open := <-ch
	require.True(t, open, "buffered events survive close")
	assert.Equal(t, domain.WorkflowCompleted, ev.Status)
	_, open = <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers("wf-a"))
}

func TestBroadcaster_ConcurrentUse(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, unsubscribe := b.Subscribe("wf-a")
			b.Publish(domain.ProgressEvent{WorkflowID: "wf-a"})
			unsubscribe()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			b.Publish(domain.ProgressEvent{WorkflowID: "wf-a"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Subscribers("wf-a"))
}
