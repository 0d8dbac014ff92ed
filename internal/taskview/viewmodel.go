package taskview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/db"
	"github.com/Joseda-hg/lazytodo/internal/events"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/session"
)

const DefaultDebounce = 300 * time.Millisecond

var (
	ErrNotLoaded = errors.New("task is not in the current view")
	ErrNoViews   = errors.New("saved views need a local database")
)

// Backend is the part of the API client the view model talks to.
type Backend interface {
	ListTasks(ctx context.Context, userID string, params api.ListParams) (model.TaskPage, error)
	CreateTask(ctx context.Context, userID string, req api.CreateTaskRequest) (model.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, req api.UpdateTaskRequest) (model.Task, error)
	UpdatePriority(ctx context.Context, userID, taskID string, priority model.Priority) (model.Task, error)
	UpdateDueDate(ctx context.Context, userID, taskID string, dueDate *string) (model.Task, error)
	ToggleTask(ctx context.Context, userID, taskID string) (model.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error
	ListTags(ctx context.Context, userID string, opts api.TagListOptions) ([]model.Tag, error)
	CreateTag(ctx context.Context, userID string, req api.TagRequest) (model.Tag, error)
	DeleteTag(ctx context.Context, userID, tagID string) error
	UpdateTag(ctx context.Context, userID, tagID string, req api.TagRequest) (model.Tag, error)
	GetTask(ctx context.Context, userID, taskID string) (model.Task, error)
	AddTagToTask(ctx context.Context, userID, tagID, taskID string) error
	RemoveTagFromTask(ctx context.Context, userID, tagID, taskID string) error
}

type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

type History interface {
	AddTaskEvent(ctx context.Context, eventType string, before, after *model.Task) error
}

type ViewStore interface {
	SaveView(ctx context.Context, view model.View) (model.View, error)
	ListViews(ctx context.Context) ([]model.View, error)
	GetViewByName(ctx context.Context, name string) (model.View, error)
	DeleteView(ctx context.Context, viewID int64) error
}

type Options struct {
	Debounce     time.Duration
	PageSize     int
	ServerSearch bool
	Logger       *log.Logger
	History      History
	Views        ViewStore
}

// Snapshot is a copy of the view state safe to read without locks.
type Snapshot struct {
	Filter  model.Filter
	Sort    model.Sort
	Tasks   []model.Task
	Tags    []model.Tag
	Total   int
	Loaded  bool
	Loading bool
	Error   string
	Stats   Stats
}

type ViewModel struct {
	backend  Backend
	identity Identity
	opts     Options
	logger   *log.Logger

	mu        sync.Mutex
	filter    model.Filter
	sort      model.Sort
	tasks     []model.Task
	tags      []model.Tag
	total     int
	loaded    bool
	inflight  int
	errMsg    string
	issued    uint64
	applied   uint64
	timer     *time.Timer
	searchGen uint64
	listeners []func()

	afterFunc func(time.Duration, func()) *time.Timer
}

func New(backend Backend, identity Identity, opts Options) *ViewModel {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PageSize <= 0 {
		opts.PageSize = api.DefaultLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &ViewModel{
		backend:  backend,
		identity: identity,
		opts:     opts,
		logger:   logger,
		filter:   model.Filter{}.Normalize(),
		sort:     model.SortCreatedDesc,
		tasks:    []model.Task{},
		tags:     []model.Tag{},

		afterFunc: time.AfterFunc,
	}
}

// OnChange registers fn to run after every state change. fn runs on the
// goroutine that made the change.
func (vm *ViewModel) OnChange(fn func()) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.listeners = append(vm.listeners, fn)
}

func (vm *ViewModel) notify() {
	vm.mu.Lock()
	listeners := append([]func(){}, vm.listeners...)
	vm.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Attach reloads once for every tasks-updated signal on bus.
func (vm *ViewModel) Attach(bus *events.Bus) func() {
	return bus.Subscribe(events.TopicTasksUpdated, func(string) {
		if err := vm.Reload(context.Background()); err != nil {
			vm.logger.Printf("taskview: reload after %s: %v", events.TopicTasksUpdated, err)
		}
	})
}

func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	tasks := make([]model.Task, len(vm.tasks))
	copy(tasks, vm.tasks)
	tags := make([]model.Tag, len(vm.tags))
	copy(tags, vm.tags)
	filter := vm.filter
	filter.TagIDs = append([]string(nil), vm.filter.TagIDs...)

	return Snapshot{
		Filter:  filter,
		Sort:    vm.sort,
		Tasks:   tasks,
		Tags:    tags,
		Total:   vm.total,
		Loaded:  vm.loaded,
		Loading: vm.inflight > 0,
		Error:   vm.errMsg,
		Stats:   ComputeStats(tasks),
	}
}

func (vm *ViewModel) Task(id string) (model.Task, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if index := vm.indexOf(id); index >= 0 {
		return vm.tasks[index], nil
	}
	return model.Task{}, ErrNotLoaded
}

// SetFilter replaces the status, priority and tag selection and reloads.
// The search text is owned by SetSearch and is kept.
func (vm *ViewModel) SetFilter(ctx context.Context, filter model.Filter) error {
	vm.mu.Lock()
	filter.Search = vm.filter.Search
	vm.filter = filter.Normalize()
	vm.stopSearchTimerLocked()
	vm.mu.Unlock()

	vm.notify()
	return vm.Reload(ctx)
}

func (vm *ViewModel) SetSort(ctx context.Context, sort model.Sort) error {
	if sort == "" {
		sort = model.SortCreatedDesc
	}
	vm.mu.Lock()
	vm.sort = sort
	vm.stopSearchTimerLocked()
	vm.mu.Unlock()

	vm.notify()
	return vm.Reload(ctx)
}

// SetSearch updates the search text at once and schedules a reload after
// the debounce window. Each call restarts the window.
func (vm *ViewModel) SetSearch(text string) {
	vm.mu.Lock()
	vm.filter.Search = text
	vm.stopSearchTimerLocked()
	gen := vm.searchGen
	vm.timer = vm.afterFunc(vm.opts.Debounce, func() {
		vm.mu.Lock()
		if gen != vm.searchGen {
			vm.mu.Unlock()
			return
		}
		vm.timer = nil
		vm.mu.Unlock()

		if err := vm.Reload(context.Background()); err != nil {
			vm.logger.Printf("taskview: search reload: %v", err)
		}
	})
	vm.mu.Unlock()

	vm.notify()
}

// FlushSearch runs a pending debounced reload now.
func (vm *ViewModel) FlushSearch(ctx context.Context) error {
	vm.mu.Lock()
	pending := vm.timer != nil
	vm.stopSearchTimerLocked()
	vm.mu.Unlock()

	if !pending {
		return nil
	}
	return vm.Reload(ctx)
}

func (vm *ViewModel) stopSearchTimerLocked() {
	vm.searchGen++
	if vm.timer != nil {
		vm.timer.Stop()
		vm.timer = nil
	}
}

// Close stops any pending debounced reload.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	vm.stopSearchTimerLocked()
	vm.mu.Unlock()
}

// Reload issues one list request for the current state. Responses are
// applied only when they are newer than the last applied one, so a slow
// stale answer never overwrites a fresher list.
func (vm *ViewModel) Reload(ctx context.Context) error {
	vm.mu.Lock()
	vm.issued++
	seq := vm.issued
	filter := vm.filter
	filter.TagIDs = append([]string(nil), vm.filter.TagIDs...)
	params := api.ListParams{
		Filter:       filter,
		Sort:         vm.sort,
		Limit:        vm.opts.PageSize,
		ServerSearch: vm.opts.ServerSearch,
	}
	vm.inflight++
	vm.mu.Unlock()
	vm.notify()

	page, err := vm.list(ctx, params)

	vm.mu.Lock()
	vm.inflight--
	if seq <= vm.applied {
		vm.mu.Unlock()
		vm.notify()
		return nil
	}
	vm.applied = seq
	if err != nil {
		if AuthRequired(err) {
			vm.errMsg = ""
		} else {
			vm.errMsg = Message(err)
		}
		vm.mu.Unlock()
		vm.notify()
		return err
	}

	vm.tasks = Reconcile(page.Tasks, filter, !vm.opts.ServerSearch)
	vm.total = page.Total
	vm.loaded = true
	vm.errMsg = ""
	vm.mu.Unlock()
	vm.notify()
	return nil
}

func (vm *ViewModel) list(ctx context.Context, params api.ListParams) (model.TaskPage, error) {
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.TaskPage{}, err
	}
	return vm.backend.ListTasks(ctx, userID, params)
}

// LoadTags refreshes the tag catalog with per-tag task counts.
func (vm *ViewModel) LoadTags(ctx context.Context) ([]model.Tag, error) {
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := vm.backend.ListTags(ctx, userID, api.TagListOptions{WithCounts: true})
	if err != nil {
		return nil, err
	}

	vm.mu.Lock()
	vm.tags = tags
	vm.mu.Unlock()
	vm.notify()
	return tags, nil
}

// CreateTag adds a tag and refreshes the catalog.
func (vm *ViewModel) CreateTag(ctx context.Context, name string) (model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tag{}, errors.New("tag name is required")
	}
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Tag{}, err
	}
	tag, err := vm.backend.CreateTag(ctx, userID, api.TagRequest{Name: name})
	if err != nil {
		return model.Tag{}, err
	}
	if _, err := vm.LoadTags(ctx); err != nil {
		vm.logger.Printf("taskview: reload tags: %v", err)
	}
	return tag, nil
}

// DeleteTag removes a tag, drops it from the active filter and reloads the
// list when it was part of it.
func (vm *ViewModel) DeleteTag(ctx context.Context, tagID string) error {
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	if err := vm.backend.DeleteTag(ctx, userID, tagID); err != nil {
		return err
	}

	vm.mu.Lock()
	filtered := vm.filter.HasTag(tagID)
	if filtered {
		vm.filter = vm.filter.WithoutTag(tagID)
	}
	vm.mu.Unlock()

	if _, err := vm.LoadTags(ctx); err != nil {
		vm.logger.Printf("taskview: reload tags: %v", err)
	}
	return vm.Reload(ctx)
}

// RenameTag renames a tag and carries the new name into the loaded tasks.
func (vm *ViewModel) RenameTag(ctx context.Context, tagID, name string) (model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tag{}, errors.New("tag name is required")
	}
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Tag{}, err
	}
	tag, err := vm.backend.UpdateTag(ctx, userID, tagID, api.TagRequest{Name: name})
	if err != nil {
		return model.Tag{}, err
	}

	vm.mu.Lock()
	tasks := make([]model.Task, len(vm.tasks))
	copy(tasks, vm.tasks)
	for i := range tasks {
		for j, summary := range tasks[i].Tags {
			if summary.ID == tag.ID {
				tags := append([]model.TagSummary(nil), tasks[i].Tags...)
				tags[j].Name = tag.Name
				tasks[i].Tags = tags
				break
			}
		}
	}
	vm.tasks = tasks
	vm.mu.Unlock()

	if _, err := vm.LoadTags(ctx); err != nil {
		vm.logger.Printf("taskview: reload tags: %v", err)
	}
	vm.notify()
	return tag, nil
}

// ToggleTaskTag attaches tagID to the task, or detaches it when the task
// already carries it, and patches in the server's copy of the task.
func (vm *ViewModel) ToggleTaskTag(ctx context.Context, taskID, tagID string) (model.Task, error) {
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Task{}, err
	}
	current, err := vm.Task(taskID)
	if err != nil {
		if current, err = vm.backend.GetTask(ctx, userID, taskID); err != nil {
			return model.Task{}, err
		}
	}

	if hasTag(current, tagID) {
		err = vm.backend.RemoveTagFromTask(ctx, userID, tagID, taskID)
	} else {
		err = vm.backend.AddTagToTask(ctx, userID, tagID, taskID)
	}
	if err != nil {
		return model.Task{}, err
	}
	task, err := vm.backend.GetTask(ctx, userID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	task = vm.patched(ctx, task)

	if _, err := vm.LoadTags(ctx); err != nil {
		vm.logger.Printf("taskview: reload tags: %v", err)
	}
	vm.mu.Lock()
	filtered := vm.filter.HasTag(tagID)
	vm.mu.Unlock()
	if filtered {
		if err := vm.Reload(ctx); err != nil {
			vm.logger.Printf("taskview: reload after tag change: %v", err)
		}
	}
	return task, nil
}

func hasTag(task model.Task, tagID string) bool {
	for _, tag := range task.Tags {
		if tag.ID == tagID {
			return true
		}
	}
	return false
}

// ClearFilters resets search, status, priority and tags in one reload.
func (vm *ViewModel) ClearFilters(ctx context.Context) error {
	vm.mu.Lock()
	vm.filter = model.Filter{}.Normalize()
	vm.stopSearchTimerLocked()
	vm.mu.Unlock()

	vm.notify()
	return vm.Reload(ctx)
}

// Toggle flips completion on the server and patches the returned task in
// place. On failure nothing changes.
func (vm *ViewModel) Toggle(ctx context.Context, id string) (model.Task, error) {
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Task{}, err
	}
	task, err := vm.backend.ToggleTask(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}

	before, found := vm.replace(task)
	if !found {
		before = task
		before.Completed = !task.Completed
	}
	vm.record(ctx, db.EventToggled, &before, &task)
	vm.notify()
	return task, nil
}

// Delete removes the task on the server and then from the collection.
func (vm *ViewModel) Delete(ctx context.Context, id string) error {
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	if err := vm.backend.DeleteTask(ctx, userID, id); err != nil {
		return err
	}

	vm.mu.Lock()
	var removed *model.Task
	if index := vm.indexOf(id); index >= 0 {
		task := vm.tasks[index]
		removed = &task
		vm.tasks = append(vm.tasks[:index:index], vm.tasks[index+1:]...)
		if vm.total > 0 {
			vm.total--
		}
	}
	vm.mu.Unlock()

	if removed == nil {
		removed = &model.Task{ID: id}
	}
	vm.record(ctx, db.EventDeleted, removed, nil)
	vm.notify()
	return nil
}

// Create adds a task and reloads, since the new task's place depends on the
// active sort and filter.
func (vm *ViewModel) Create(ctx context.Context, req api.CreateTaskRequest) (model.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return model.Task{}, errors.New("title is required")
	}
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Task{}, err
	}
	task, err := vm.backend.CreateTask(ctx, userID, req)
	if err != nil {
		return model.Task{}, err
	}

	vm.record(ctx, db.EventCreated, nil, &task)
	if err := vm.Reload(ctx); err != nil {
		vm.logger.Printf("taskview: reload after create: %v", err)
	}
	return task, nil
}

func (vm *ViewModel) Update(ctx context.Context, id string, req api.UpdateTaskRequest) (model.Task, error) {
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Task{}, err
	}
	task, err := vm.backend.UpdateTask(ctx, userID, id, req)
	if err != nil {
		return model.Task{}, err
	}
	return vm.patched(ctx, task), nil
}

func (vm *ViewModel) SetPriority(ctx context.Context, id string, priority model.Priority) (model.Task, error) {
	if p, err := model.ParsePriority(string(priority)); err != nil || p == model.PriorityAll {
		return model.Task{}, fmt.Errorf("invalid priority %q", priority)
	}
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Task{}, err
	}
	task, err := vm.backend.UpdatePriority(ctx, userID, id, priority)
	if err != nil {
		return model.Task{}, err
	}
	return vm.patched(ctx, task), nil
}

// SetDueDate sets the due date (YYYY-MM-DD); an empty value clears it.
func (vm *ViewModel) SetDueDate(ctx context.Context, id, due string) (model.Task, error) {
	var dueDate *string
	if due = strings.TrimSpace(due); due != "" {
		if _, err := time.Parse(model.DateLayout, due); err != nil {
			return model.Task{}, fmt.Errorf("invalid due date %q: use YYYY-MM-DD", due)
		}
		dueDate = &due
	}
	userID, err := vm.identity.CurrentUserID(ctx)
	if err != nil {
		return model.Task{}, err
	}
	task, err := vm.backend.UpdateDueDate(ctx, userID, id, dueDate)
	if err != nil {
		return model.Task{}, err
	}
	return vm.patched(ctx, task), nil
}

func (vm *ViewModel) patched(ctx context.Context, task model.Task) model.Task {
	before, found := vm.replace(task)
	if !found {
		before = task
	}
	vm.record(ctx, db.EventUpdated, &before, &task)
	vm.notify()
	return task
}

// replace swaps in task by id and returns the previous copy.
func (vm *ViewModel) replace(task model.Task) (model.Task, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	index := vm.indexOf(task.ID)
	if index < 0 {
		return model.Task{}, false
	}
	before := vm.tasks[index]
	tasks := make([]model.Task, len(vm.tasks))
	copy(tasks, vm.tasks)
	tasks[index] = task
	vm.tasks = tasks
	return before, true
}

func (vm *ViewModel) indexOf(id string) int {
	for i, task := range vm.tasks {
		if task.ID == id {
			return i
		}
	}
	return -1
}

func (vm *ViewModel) record(ctx context.Context, eventType string, before, after *model.Task) {
	if vm.opts.History == nil {
		return
	}
	if err := vm.opts.History.AddTaskEvent(ctx, eventType, before, after); err != nil {
		vm.logger.Printf("taskview: record %s: %v", eventType, err)
	}
}

// SaveView stores the current filter and sort under name.
func (vm *ViewModel) SaveView(ctx context.Context, name string) (model.View, error) {
	if vm.opts.Views == nil {
		return model.View{}, ErrNoViews
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.View{}, errors.New("view name is required")
	}

	vm.mu.Lock()
	view := model.View{Name: name, Filter: vm.filter, Sort: vm.sort}
	vm.mu.Unlock()

	return vm.opts.Views.SaveView(ctx, view)
}

func (vm *ViewModel) ListViews(ctx context.Context) ([]model.View, error) {
	if vm.opts.Views == nil {
		return nil, ErrNoViews
	}
	return vm.opts.Views.ListViews(ctx)
}

// ApplyView replaces filter, search and sort with the saved preset and
// reloads once.
func (vm *ViewModel) ApplyView(ctx context.Context, name string) error {
	if vm.opts.Views == nil {
		return ErrNoViews
	}
	view, err := vm.opts.Views.GetViewByName(ctx, name)
	if err != nil {
		return fmt.Errorf("load view %s: %w", name, err)
	}

	return vm.Apply(ctx, view.Filter, view.Sort)
}

// Apply replaces filter, search and sort together with a single reload.
func (vm *ViewModel) Apply(ctx context.Context, filter model.Filter, sort model.Sort) error {
	vm.mu.Lock()
	vm.filter = filter.Normalize()
	vm.sort = sort
	if vm.sort == "" {
		vm.sort = model.SortCreatedDesc
	}
	vm.stopSearchTimerLocked()
	vm.mu.Unlock()

	vm.notify()
	return vm.Reload(ctx)
}

func (vm *ViewModel) DeleteView(ctx context.Context, name string) error {
	if vm.opts.Views == nil {
		return ErrNoViews
	}
	view, err := vm.opts.Views.GetViewByName(ctx, name)
	if err != nil {
		return fmt.Errorf("load view %s: %w", name, err)
	}
	return vm.opts.Views.DeleteView(ctx, view.ID)
}

// AuthRequired reports errors that should send the user to sign in rather
// than be shown.
func AuthRequired(err error) bool {
	return errors.Is(err, session.ErrNoSession) || api.IsUnauthorized(err)
}

// Message turns err into the text shown to the user.
func Message(err error) string {
	var apiErr *api.Error
	switch {
	case err == nil:
		return ""
	case AuthRequired(err):
		return "Your session has expired. Please sign in again."
	case api.IsUnreachable(err):
		return "Cannot reach server. Check that the backend is running."
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}
