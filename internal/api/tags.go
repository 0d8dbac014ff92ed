package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

type TagListOptions struct {
	WithCounts bool
	Query      string
}

type TagRequest struct {
	Name  string  `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// ListTags loads the tag catalog. Identical concurrent loads are coalesced.
func (c *Client) ListTags(ctx context.Context, userID string, opts TagListOptions) ([]model.Tag, error) {
	query := url.Values{}
	if opts.WithCounts {
		query.Set("with_counts", "true")
	}
	if opts.Query != "" {
		query.Set("q", opts.Query)
	}

	key := "tags:" + userID + "?" + query.Encode()
	value, err, _ := c.group.Do(key, func() (any, error) {
		var resp struct {
			Tags []model.Tag `json:"tags"`
		}
		if err := c.do(ctx, http.MethodGet, userPath(userID, "tags"), query, nil, &resp); err != nil {
			return nil, err
		}
		if resp.Tags == nil {
			resp.Tags = []model.Tag{}
		}
		return resp.Tags, nil
	})
	if err != nil {
		return nil, err
	}

	tags := value.([]model.Tag)
	out := make([]model.Tag, len(tags))
	copy(out, tags)
	return out, nil
}

func (c *Client) GetTag(ctx context.Context, userID, tagID string) (model.Tag, error) {
	var tag model.Tag
	err := c.do(ctx, http.MethodGet, userPath(userID, "tags", tagID), nil, nil, &tag)
	return tag, err
}

func (c *Client) CreateTag(ctx context.Context, userID string, req TagRequest) (model.Tag, error) {
	var tag model.Tag
	err := c.do(ctx, http.MethodPost, userPath(userID, "tags"), nil, req, &tag)
	return tag, err
}

func (c *Client) UpdateTag(ctx context.Context, userID, tagID string, req TagRequest) (model.Tag, error) {
	var tag model.Tag
	err := c.do(ctx, http.MethodPut, userPath(userID, "tags", tagID), nil, req, &tag)
	return tag, err
}

func (c *Client) DeleteTag(ctx context.Context, userID, tagID string) error {
	return c.do(ctx, http.MethodDelete, userPath(userID, "tags", tagID), nil, nil, nil)
}

func (c *Client) AddTagToTask(ctx context.Context, userID, tagID, taskID string) error {
	return c.do(ctx, http.MethodPost, userPath(userID, "tags", tagID, "tasks", taskID), nil, nil, nil)
}

func (c *Client) RemoveTagFromTask(ctx context.Context, userID, tagID, taskID string) error {
	return c.do(ctx, http.MethodDelete, userPath(userID, "tags", tagID, "tasks", taskID), nil, nil, nil)
}
