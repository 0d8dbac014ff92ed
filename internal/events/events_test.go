package events

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	var first, second, other atomic.Int32

	bus.Subscribe(TopicTasksUpdated, func(string) { first.Add(1) })
	unsubscribe := bus.Subscribe(TopicTasksUpdated, func(string) { second.Add(1) })
	bus.Subscribe("other", func(string) { other.Add(1) })

	bus.Publish(TopicTasksUpdated)
	bus.Wait()
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
	assert.Equal(t, int32(0), other.Load())

	unsubscribe()
	bus.Publish(TopicTasksUpdated)
	bus.Wait()
	assert.Equal(t, int32(2), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(TopicTasksUpdated)
		bus.Wait()
	})
}
