package taskview

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/db"
	"github.com/Joseda-hg/lazytodo/internal/events"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/session"
)

type fakeBackend struct {
	mu        sync.Mutex
	tasks     []model.Task
	listCalls []api.ListParams
	listErr   error
	toggleErr error
	deleteErr error
	onList    func(call int)
	nextID    int
	tagName   string
	getCalls  int
}

func newFakeBackend(tasks ...model.Task) *fakeBackend {
	return &fakeBackend{tasks: tasks}
}

func (f *fakeBackend) ListTasks(_ context.Context, userID string, params api.ListParams) (model.TaskPage, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, params)
	call := len(f.listCalls)
	hook := f.onList
	err := f.listErr
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return model.TaskPage{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	filter := params.Filter
	filter.Search = ""
	matched := []model.Task{}
	for _, task := range f.tasks {
		if filter.Normalize().Matches(task) {
			matched = append(matched, task)
		}
	}
	return model.TaskPage{Tasks: matched, Total: len(matched), Limit: params.Limit}, nil
}

func (f *fakeBackend) CreateTask(_ context.Context, _ string, req api.CreateTaskRequest) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	task := model.Task{ID: "new-" + string(rune('0'+f.nextID)), Title: req.Title}
	f.tasks = append(f.tasks, task)
	return task, nil
}

func (f *fakeBackend) UpdateTask(_ context.Context, _ string, taskID string, req api.UpdateTaskRequest) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			if req.Title != nil {
				f.tasks[i].Title = *req.Title
			}
			return f.tasks[i], nil
		}
	}
	return model.Task{}, &api.Error{StatusCode: 404, Message: "Task not found"}
}

func (f *fakeBackend) UpdatePriority(_ context.Context, _ string, taskID string, priority model.Priority) (model.Task, error) {
	return f.mutate(taskID, func(task *model.Task) { task.Priority = model.Priority(strings.ToUpper(string(priority))) })
}

func (f *fakeBackend) UpdateDueDate(_ context.Context, _ string, taskID string, dueDate *string) (model.Task, error) {
	return f.mutate(taskID, func(task *model.Task) {
		task.DueDate = ""
		if dueDate != nil {
			task.DueDate = *dueDate
		}
	})
}

func (f *fakeBackend) mutate(taskID string, apply func(*model.Task)) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			apply(&f.tasks[i])
			return f.tasks[i], nil
		}
	}
	return model.Task{}, &api.Error{StatusCode: 404, Message: "Task not found"}
}

func (f *fakeBackend) ToggleTask(_ context.Context, _ string, taskID string) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toggleErr != nil {
		return model.Task{}, f.toggleErr
	}
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			f.tasks[i].Completed = !f.tasks[i].Completed
			return f.tasks[i], nil
		}
	}
	return model.Task{}, &api.Error{StatusCode: 404, Message: "Task not found"}
}

func (f *fakeBackend) DeleteTask(_ context.Context, _ string, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return &api.Error{StatusCode: 404, Message: "Task not found"}
}

func (f *fakeBackend) ListTags(context.Context, string, api.TagListOptions) ([]model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.tagName
	if name == "" {
		name = "home"
	}
	count := 0
	for _, task := range f.tasks {
		if hasTag(task, "home") {
			count++
		}
	}
	if count == 0 {
		count = 2
	}
	return []model.Tag{{ID: "home", Name: name, TaskCount: count}}, nil
}

func (f *fakeBackend) UpdateTag(_ context.Context, _ string, tagID string, req api.TagRequest) (model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tagID != "home" {
		return model.Tag{}, &api.Error{StatusCode: 404, Message: "Tag not found"}
	}
	f.tagName = req.Name
	return model.Tag{ID: tagID, Name: req.Name}, nil
}

func (f *fakeBackend) GetTask(_ context.Context, _ string, taskID string) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	for _, task := range f.tasks {
		if task.ID == taskID {
			task.Tags = append([]model.TagSummary(nil), task.Tags...)
			return task, nil
		}
	}
	return model.Task{}, &api.Error{StatusCode: 404, Message: "Task not found"}
}

func (f *fakeBackend) AddTagToTask(_ context.Context, _ string, tagID, taskID string) error {
	_, err := f.mutate(taskID, func(task *model.Task) {
		task.Tags = append(append([]model.TagSummary(nil), task.Tags...), model.TagSummary{ID: tagID, Name: tagID})
	})
	return err
}

func (f *fakeBackend) RemoveTagFromTask(_ context.Context, _ string, tagID, taskID string) error {
	_, err := f.mutate(taskID, func(task *model.Task) {
		kept := []model.TagSummary{}
		for _, tag := range task.Tags {
			if tag.ID != tagID {
				kept = append(kept, tag)
			}
		}
		task.Tags = kept
	})
	return err
}

func (f *fakeBackend) CreateTag(_ context.Context, _ string, req api.TagRequest) (model.Tag, error) {
	return model.Tag{ID: strings.ToLower(req.Name), Name: req.Name}, nil
}

func (f *fakeBackend) DeleteTag(_ context.Context, _ string, tagID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		kept := f.tasks[i].Tags[:0:0]
		for _, tag := range f.tasks[i].Tags {
			if tag.ID != tagID {
				kept = append(kept, tag)
			}
		}
		f.tasks[i].Tags = kept
	}
	return nil
}

func (f *fakeBackend) calls() []api.ListParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.ListParams(nil), f.listCalls...)
}

func (f *fakeBackend) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

type staticIdentity struct {
	id  string
	err error
}

func (s staticIdentity) CurrentUserID(context.Context) (string, error) {
	return s.id, s.err
}

func seedTasks() []model.Task {
	return []model.Task{
		{ID: "1", Title: "Buy milk", Priority: "HIGH", Tags: []model.TagSummary{{ID: "home", Name: "home"}}},
		{ID: "2", Title: "Call mom", Completed: true, Priority: "LOW"},
		{ID: "3", Title: "File taxes", Description: "Milk the deductions", Priority: "MEDIUM"},
		{ID: "4", Title: "Water plants", Priority: "LOW", Tags: []model.TagSummary{{ID: "home", Name: "home"}}},
	}
}

// manualTimers stands in for time.AfterFunc. Callbacks run only when fire is
// called; the returned timers never go off on their own.
type manualTimers struct {
	mu        sync.Mutex
	callbacks []func()
	delays    []time.Duration
}

func (m *manualTimers) AfterFunc(d time.Duration, fn func()) *time.Timer {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.delays = append(m.delays, d)
	m.mu.Unlock()
	return time.NewTimer(time.Hour)
}

// fire runs every callback scheduled so far, oldest first.
func (m *manualTimers) fire() {
	m.mu.Lock()
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

func newTimedViewModel(t *testing.T, backend *fakeBackend, opts Options) (*ViewModel, *manualTimers) {
	t.Helper()
	vm := newTestViewModel(t, backend, opts)
	timers := &manualTimers{}
	vm.afterFunc = timers.AfterFunc
	return vm, timers
}

func newTestViewModel(t *testing.T, backend *fakeBackend, opts Options) *ViewModel {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	vm := New(backend, staticIdentity{id: "u-1"}, opts)
	t.Cleanup(vm.Close)
	return vm
}

func TestSearchDebounceIssuesOneReloadWithFinalValue(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm, timers := newTimedViewModel(t, backend, Options{Debounce: 40 * time.Millisecond})

	for _, text := range []string{"m", "mi", "mil", "milk"} {
		vm.SetSearch(text)
	}
	assert.Equal(t, "milk", vm.Snapshot().Filter.Search)
	assert.Empty(t, backend.calls(), "no reload inside the quiescence window")
	assert.Equal(t, []time.Duration{40 * time.Millisecond, 40 * time.Millisecond, 40 * time.Millisecond, 40 * time.Millisecond}, timers.delays)

	timers.fire()

	calls := backend.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "milk", calls[0].Filter.Search)

	snap := vm.Snapshot()
	require.Len(t, snap.Tasks, 2)
	for _, task := range snap.Tasks {
		text := strings.ToLower(task.Title + " " + task.Description)
		assert.Contains(t, text, "milk")
	}
}

func TestSetFilterReloadsImmediately(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})

	require.NoError(t, vm.SetFilter(context.Background(), model.Filter{Status: model.StatusPending}))

	calls := backend.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.StatusPending, calls[0].Filter.Status)

	snap := vm.Snapshot()
	assert.True(t, snap.Loaded)
	assert.Len(t, snap.Tasks, 3)
	for _, task := range snap.Tasks {
		assert.False(t, task.Completed)
	}
}

func TestSetFilterKeepsSearchAndCancelsPendingDebounce(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm, timers := newTimedViewModel(t, backend, Options{Debounce: 30 * time.Millisecond})

	vm.SetSearch("milk")
	require.NoError(t, vm.SetFilter(context.Background(), model.Filter{Search: "ignored", TagIDs: []string{"home"}}))
	timers.fire()

	calls := backend.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "milk", calls[0].Filter.Search)
	assert.Equal(t, []string{"home"}, calls[0].Filter.TagIDs)

	snap := vm.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "1", snap.Tasks[0].ID)
}

func TestSetSortReloads(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{PageSize: 20})

	require.NoError(t, vm.SetSort(context.Background(), model.SortAlphaReverse))
	calls := backend.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.SortAlphaReverse, calls[0].Sort)
	assert.Equal(t, 20, calls[0].Limit)
	assert.Equal(t, model.SortAlphaReverse, vm.Snapshot().Sort)
}

func TestToggleTwiceEndsWithSecondResponse(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.Reload(ctx))

	first, err := vm.Toggle(ctx, "1")
	require.NoError(t, err)
	assert.True(t, first.Completed)

	second, err := vm.Toggle(ctx, "1")
	require.NoError(t, err)
	assert.False(t, second.Completed)

	task, err := vm.Task("1")
	require.NoError(t, err)
	assert.Equal(t, second.Completed, task.Completed)
	assert.Len(t, backend.calls(), 1, "toggle patches in place without a reload")
}

func TestToggleFailureLeavesCollection(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.Reload(ctx))
	before := vm.Snapshot().Tasks

	backend.toggleErr = &api.Error{StatusCode: 404, Message: "Task not found"}
	_, err := vm.Toggle(ctx, "1")
	require.Error(t, err)
	assert.True(t, api.IsRowError(err))
	assert.Equal(t, before, vm.Snapshot().Tasks)

	_, err = vm.Task("missing")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestDeleteRemovesByID(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.Reload(ctx))

	require.NoError(t, vm.Delete(ctx, "2"))
	snap := vm.Snapshot()
	assert.Len(t, snap.Tasks, 3)
	assert.Equal(t, 3, snap.Total)
	_, err := vm.Task("2")
	assert.ErrorIs(t, err, ErrNotLoaded)

	backend.deleteErr = &api.Error{StatusCode: 403, Message: "forbidden"}
	require.Error(t, vm.Delete(ctx, "1"))
	assert.Len(t, vm.Snapshot().Tasks, 3)
}

func TestTasksUpdatedSignalReloadsOnce(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	bus := events.NewBus()
	detach := vm.Attach(bus)
	defer detach()

	bus.Publish(events.TopicTasksUpdated)
	bus.Wait()
	assert.Len(t, backend.calls(), 1)

	bus.Publish(events.TopicTasksUpdated)
	bus.Wait()
	assert.Len(t, backend.calls(), 2)
}

func TestFailedReloadKeepsPreviousCollection(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.Reload(ctx))

	backend.setListErr(&api.Error{StatusCode: 500, Message: "database unavailable"})
	require.Error(t, vm.Reload(ctx))

	snap := vm.Snapshot()
	assert.Len(t, snap.Tasks, 4)
	assert.Equal(t, "database unavailable", snap.Error)

	backend.setListErr(nil)
	require.NoError(t, vm.Reload(ctx))
	assert.Empty(t, vm.Snapshot().Error)
}

func TestFailedInitialLoadShowsEmptyWithBanner(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	backend.setListErr(api.ErrUnreachable)
	vm := newTestViewModel(t, backend, Options{})

	require.Error(t, vm.Reload(context.Background()))
	snap := vm.Snapshot()
	assert.False(t, snap.Loaded)
	assert.NotNil(t, snap.Tasks)
	assert.Empty(t, snap.Tasks)
	assert.Equal(t, "Cannot reach server. Check that the backend is running.", snap.Error)
}

func TestMissingSessionIsNotShownAsError(t *testing.T) {
	vm := New(newFakeBackend(), staticIdentity{err: session.ErrNoSession}, Options{Logger: log.New(io.Discard, "", 0)})
	defer vm.Close()

	err := vm.Reload(context.Background())
	assert.True(t, AuthRequired(err))
	assert.Empty(t, vm.Snapshot().Error)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	backend.onList = func(call int) {
		if call == 1 {
			close(firstStarted)
			<-releaseFirst
		}
	}
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- vm.Reload(ctx)
	}()
	<-firstStarted

	require.NoError(t, vm.SetFilter(ctx, model.Filter{Status: model.StatusCompleted}))
	require.Len(t, vm.Snapshot().Tasks, 1)

	close(releaseFirst)
	require.NoError(t, <-done)

	snap := vm.Snapshot()
	require.Len(t, snap.Tasks, 1, "older unfiltered response must not replace the newer one")
	assert.Equal(t, "2", snap.Tasks[0].ID)
	assert.False(t, snap.Loading)
}

func TestOnChangeFires(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	var mu sync.Mutex
	count := 0
	vm.OnChange(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, vm.Reload(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 2)
}

func TestCreateUpdateAndHistory(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "view.db"))
	require.NoError(t, err)
	defer conn.Close()
	store := db.NewStore(conn)

	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{History: store, Views: store})
	ctx := context.Background()

	_, err = vm.Create(ctx, api.CreateTaskRequest{Title: "  "})
	require.Error(t, err)

	created, err := vm.Create(ctx, api.CreateTaskRequest{Title: "Plan trip"})
	require.NoError(t, err)
	_, err = vm.Task(created.ID)
	require.NoError(t, err, "create reloads the list")

	title := "Plan the trip"
	updated, err := vm.Update(ctx, created.ID, api.UpdateTaskRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	_, err = vm.Toggle(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, vm.Delete(ctx, created.ID))

	history, err := store.ListHistory(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, db.EventDeleted, history[0].EventType)
	assert.Equal(t, db.EventCreated, history[3].EventType)
	assert.Contains(t, history[2].Details, "title: 'Plan trip' -> 'Plan the trip'")
}

func TestSavedViews(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "view.db"))
	require.NoError(t, err)
	defer conn.Close()
	store := db.NewStore(conn)

	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{Views: store})
	ctx := context.Background()

	require.NoError(t, vm.SetFilter(ctx, model.Filter{Priority: model.PriorityLow}))
	require.NoError(t, vm.SetSort(ctx, model.SortAlpha))
	_, err = vm.SaveView(ctx, "chores")
	require.NoError(t, err)

	require.NoError(t, vm.SetFilter(ctx, model.Filter{}))
	require.NoError(t, vm.SetSort(ctx, model.SortCreatedDesc))

	require.NoError(t, vm.ApplyView(ctx, "chores"))
	snap := vm.Snapshot()
	assert.Equal(t, model.PriorityLow, snap.Filter.Priority)
	assert.Equal(t, model.SortAlpha, snap.Sort)
	assert.Len(t, snap.Tasks, 2)

	views, err := vm.ListViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)

	require.NoError(t, vm.DeleteView(ctx, "chores"))
	views, err = vm.ListViews(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)

	plain := newTestViewModel(t, backend, Options{})
	_, err = plain.SaveView(ctx, "x")
	assert.True(t, errors.Is(err, ErrNoViews))
}

func TestLoadTags(t *testing.T) {
	vm := newTestViewModel(t, newFakeBackend(), Options{})
	tags, err := vm.LoadTags(context.Background())
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, 2, vm.Snapshot().Tags[0].TaskCount)
}

func TestDeleteTagDropsItFromFilter(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.SetFilter(ctx, model.Filter{TagIDs: []string{"home"}}))
	require.Len(t, vm.Snapshot().Tasks, 2)

	require.NoError(t, vm.DeleteTag(ctx, "home"))
	snap := vm.Snapshot()
	assert.Empty(t, snap.Filter.TagIDs)
	assert.Len(t, snap.Tasks, 4)

	tag, err := vm.CreateTag(ctx, " Errands ")
	require.NoError(t, err)
	assert.Equal(t, "Errands", tag.Name)
	_, err = vm.CreateTag(ctx, " ")
	assert.Error(t, err)
}

func TestFlushSearchRunsPendingReloadOnce(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm, timers := newTimedViewModel(t, backend, Options{})

	vm.SetSearch("taxes")
	require.NoError(t, vm.FlushSearch(context.Background()))
	timers.fire()

	calls := backend.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "taxes", calls[0].Filter.Search)
	require.NoError(t, vm.FlushSearch(context.Background()))
	assert.Len(t, backend.calls(), 1)
}

func TestRenameTagUpdatesLoadedTasks(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.Reload(ctx))

	tag, err := vm.RenameTag(ctx, "home", " House ")
	require.NoError(t, err)
	assert.Equal(t, "House", tag.Name)

	snap := vm.Snapshot()
	require.Len(t, snap.Tags, 1)
	assert.Equal(t, "House", snap.Tags[0].Name)
	for _, task := range snap.Tasks {
		for _, summary := range task.Tags {
			assert.Equal(t, "House", summary.Name)
		}
	}
	assert.Len(t, backend.calls(), 1, "rename patches in place without a reload")

	_, err = vm.RenameTag(ctx, "home", " ")
	assert.Error(t, err)
	_, err = vm.RenameTag(ctx, "missing", "x")
	assert.Equal(t, "Tag not found", Message(err))
}

func TestToggleTaskTagAttachesThenDetaches(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	conn, err := db.Open(filepath.Join(t.TempDir(), "view.db"))
	require.NoError(t, err)
	defer conn.Close()
	store := db.NewStore(conn)
	vm := newTestViewModel(t, backend, Options{History: store})
	ctx := context.Background()
	require.NoError(t, vm.Reload(ctx))

	task, err := vm.ToggleTaskTag(ctx, "3", "home")
	require.NoError(t, err)
	assert.True(t, hasTag(task, "home"))
	loaded, err := vm.Task("3")
	require.NoError(t, err)
	assert.True(t, hasTag(loaded, "home"))
	assert.Equal(t, 3, vm.Snapshot().Tags[0].TaskCount)

	task, err = vm.ToggleTaskTag(ctx, "3", "home")
	require.NoError(t, err)
	assert.False(t, hasTag(task, "home"))
	assert.Len(t, backend.calls(), 1, "tag changes patch in place outside a tag filter")

	history, err := store.ListHistory(ctx, "3")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, db.EventUpdated, history[0].EventType)
	assert.Contains(t, history[1].Details, "tags: 'none' -> 'home'")

	_, err = vm.ToggleTaskTag(ctx, "nope", "home")
	assert.Equal(t, "Task not found", Message(err))
}

func TestToggleTaskTagReloadsUnderTagFilter(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.SetFilter(ctx, model.Filter{TagIDs: []string{"home"}}))
	require.Len(t, vm.Snapshot().Tasks, 2)

	_, err := vm.ToggleTaskTag(ctx, "4", "home")
	require.NoError(t, err)

	snap := vm.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "1", snap.Tasks[0].ID)
	assert.Len(t, backend.calls(), 2)
}

func TestClearFiltersReloadsOnce(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm, timers := newTimedViewModel(t, backend, Options{Debounce: 20 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, vm.SetFilter(ctx, model.Filter{Status: model.StatusCompleted}))
	vm.SetSearch("call")

	require.NoError(t, vm.ClearFilters(ctx))
	timers.fire()

	assert.Len(t, backend.calls(), 2)
	snap := vm.Snapshot()
	assert.Equal(t, "", snap.Filter.Search)
	assert.Equal(t, model.StatusAll, snap.Filter.Status)
	assert.Len(t, snap.Tasks, 4)
}

func TestSetPriorityAndDueDatePatchInPlace(t *testing.T) {
	backend := newFakeBackend(seedTasks()...)
	vm := newTestViewModel(t, backend, Options{})
	ctx := context.Background()
	require.NoError(t, vm.Reload(ctx))

	task, err := vm.SetPriority(ctx, "4", model.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, model.Priority("HIGH"), task.Priority)

	_, err = vm.SetPriority(ctx, "4", model.PriorityAll)
	assert.Error(t, err)

	task, err = vm.SetDueDate(ctx, "4", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-31", task.DueDate)

	task, err = vm.SetDueDate(ctx, "4", "")
	require.NoError(t, err)
	assert.Empty(t, task.DueDate)

	_, err = vm.SetDueDate(ctx, "4", "31/01/2026")
	assert.Error(t, err)

	stored, err := vm.Task("4")
	require.NoError(t, err)
	assert.Equal(t, model.Priority("HIGH"), stored.Priority)
	assert.Len(t, backend.calls(), 1)
}
