package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ListParams is one task list request. Search is only sent when
// ServerSearch is set.
type ListParams struct {
	Filter       model.Filter
	Sort         model.Sort
	Limit        int
	Offset       int
	ServerSearch bool
}

// Query renders the params the way the backend expects them: "all" values
// are omitted and every tag id becomes its own tag_id parameter.
func (p ListParams) Query() url.Values {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	filter := p.Filter.Normalize()
	if p.ServerSearch {
		if search := strings.TrimSpace(filter.Search); search != "" {
			query.Set("search", search)
		}
	}
	if filter.Status != model.StatusAll {
		query.Set("status", string(filter.Status))
	}
	if filter.Priority != model.PriorityAll {
		query.Set("priority", strings.ToUpper(string(filter.Priority)))
	}
	for _, id := range filter.TagIDs {
		query.Add("tag_id", id)
	}
	if p.Sort != "" {
		query.Set("sort", string(p.Sort))
	}
	return query
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	TagIDs      []string `json:"tag_ids,omitempty"`
}

// UpdateTaskRequest leaves nil fields untouched on the server. An empty,
// non-nil TagIDs clears every tag.
type UpdateTaskRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	TagIDs      *[]string `json:"tag_ids,omitempty"`
}

func (c *Client) ListTasks(ctx context.Context, userID string, params ListParams) (model.TaskPage, error) {
	var page model.TaskPage
	if err := c.do(ctx, http.MethodGet, userPath(userID, "tasks"), params.Query(), nil, &page); err != nil {
		return model.TaskPage{}, err
	}
	if page.Tasks == nil {
		page.Tasks = []model.Task{}
	}
	return page, nil
}

func (c *Client) GetTask(ctx context.Context, userID, taskID string) (model.Task, error) {
	var task model.Task
	err := c.do(ctx, http.MethodGet, userPath(userID, "tasks", taskID), nil, nil, &task)
	return task, err
}

func (c *Client) CreateTask(ctx context.Context, userID string, req CreateTaskRequest) (model.Task, error) {
	var task model.Task
	err := c.do(ctx, http.MethodPost, userPath(userID, "tasks"), nil, req, &task)
	return task, err
}

func (c *Client) UpdateTask(ctx context.Context, userID, taskID string, req UpdateTaskRequest) (model.Task, error) {
	var task model.Task
	err := c.do(ctx, http.MethodPut, userPath(userID, "tasks", taskID), nil, req, &task)
	return task, err
}

func (c *Client) UpdatePriority(ctx context.Context, userID, taskID string, priority model.Priority) (model.Task, error) {
	var task model.Task
	body := map[string]string{"priority": strings.ToUpper(string(priority.Normalize()))}
	err := c.do(ctx, http.MethodPatch, userPath(userID, "tasks", taskID, "priority"), nil, body, &task)
	return task, err
}

// UpdateDueDate sets the due date; nil clears it.
func (c *Client) UpdateDueDate(ctx context.Context, userID, taskID string, dueDate *string) (model.Task, error) {
	var task model.Task
	body := map[string]*string{"due_date": dueDate}
	err := c.do(ctx, http.MethodPatch, userPath(userID, "tasks", taskID, "due-date"), nil, body, &task)
	return task, err
}

func (c *Client) ToggleTask(ctx context.Context, userID, taskID string) (model.Task, error) {
	var task model.Task
	err := c.do(ctx, http.MethodPatch, userPath(userID, "tasks", taskID, "toggle"), nil, nil, &task)
	return task, err
}

func (c *Client) DeleteTask(ctx context.Context, userID, taskID string) error {
	return c.do(ctx, http.MethodDelete, userPath(userID, "tasks", taskID), nil, nil, nil)
}
