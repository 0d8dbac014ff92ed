package taskview

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

func sampleTasks() []model.Task {
	return []model.Task{
		{ID: "1", Title: "Buy MILK", Priority: "HIGH", Tags: []model.TagSummary{{ID: "home"}}},
		{ID: "2", Title: "Call mom", Description: "about the milkshake recipe", Completed: true, Priority: "LOW"},
		{ID: "3", Title: "File taxes", Priority: "MEDIUM", Tags: []model.TagSummary{{ID: "home"}, {ID: "money"}}},
	}
}

func TestReconcileSearchIsCaseInsensitiveSubset(t *testing.T) {
	tasks := sampleTasks()
	got := Reconcile(tasks, model.Filter{Search: "  Milk "}, true)

	assert.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestReconcileSkipsSearchWhenServerSearches(t *testing.T) {
	got := Reconcile(sampleTasks(), model.Filter{Search: "milk"}, false)
	assert.Len(t, got, 3)
}

func TestReconcileIsIdempotentOverServerFilters(t *testing.T) {
	filter := model.Filter{Status: model.StatusPending, Priority: model.PriorityAll, TagIDs: []string{"home"}}
	once := Reconcile(sampleTasks(), filter, true)
	twice := Reconcile(once, filter, true)

	assert.Equal(t, once, twice)
	assert.Len(t, once, 2)
	for _, task := range once {
		assert.False(t, task.Completed)
	}
}

func TestReconcileEmptyIsNotNil(t *testing.T) {
	got := Reconcile(nil, model.Filter{}, true)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStatsAndSplit(t *testing.T) {
	stats := ComputeStats(sampleTasks())
	assert.Equal(t, Stats{Total: 3, Completed: 1, Active: 2, Progress: 33}, stats)
	assert.Equal(t, Stats{}, ComputeStats(nil))

	active, completed := Split(sampleTasks())
	assert.Len(t, active, 2)
	assert.Len(t, completed, 1)
	assert.Equal(t, "2", completed[0].ID)
}
