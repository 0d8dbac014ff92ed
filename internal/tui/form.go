package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/model"
)

type formField struct {
	Label string
	Value string
}

const (
	fieldTitle = iota
	fieldDescription
	fieldPriority
	fieldTags
	fieldDue
)

var priorityChoices = []string{"", "high", "medium", "low"}

// taskForm is the validated form with tag names already resolved to ids.
type taskForm struct {
	Title       string
	Description string
	Priority    model.Priority
	Due         string
	TagIDs      []string
}

func buildFormFields(task *model.Task) []formField {
	fields := []formField{
		{Label: "Title"},
		{Label: "Description"},
		{Label: "Priority (space/←→)"},
		{Label: "Tags (space/←→)"},
		{Label: "Due (YYYY-MM-DD)"},
	}
	if task == nil {
		return fields
	}

	fields[fieldTitle].Value = task.Title
	fields[fieldDescription].Value = task.Description
	fields[fieldPriority].Value = string(task.Priority.Normalize())
	fields[fieldTags].Value = joinTags(task.Tags)
	fields[fieldDue].Value = task.DueDate
	return fields
}

func parseFormFields(fields []formField, catalog []model.Tag) (taskForm, error) {
	title := strings.TrimSpace(fields[fieldTitle].Value)
	if title == "" {
		return taskForm{}, fmt.Errorf("title is required")
	}

	priority, err := parsePriority(fields[fieldPriority].Value)
	if err != nil {
		return taskForm{}, err
	}

	due, err := parseDue(fields[fieldDue].Value)
	if err != nil {
		return taskForm{}, err
	}

	tagIDs, err := resolveTags(parseTags(fields[fieldTags].Value), catalog)
	if err != nil {
		return taskForm{}, err
	}

	return taskForm{
		Title:       title,
		Description: strings.TrimSpace(fields[fieldDescription].Value),
		Priority:    priority,
		Due:         due,
		TagIDs:      tagIDs,
	}, nil
}

func (f taskForm) createRequest() api.CreateTaskRequest {
	req := api.CreateTaskRequest{Title: f.Title, TagIDs: f.TagIDs}
	if f.Description != "" {
		description := f.Description
		req.Description = &description
	}
	if f.Priority != "" {
		priority := strings.ToUpper(string(f.Priority))
		req.Priority = &priority
	}
	if f.Due != "" {
		due := f.Due
		req.DueDate = &due
	}
	return req
}

// updateRequest sends every field of the form. The update endpoint cannot
// clear a due date, so clearDue asks for a separate patch.
func (f taskForm) updateRequest(original model.Task) (req api.UpdateTaskRequest, clearDue bool) {
	title := f.Title
	description := f.Description
	tagIDs := append([]string{}, f.TagIDs...)
	req = api.UpdateTaskRequest{Title: &title, Description: &description, TagIDs: &tagIDs}
	if f.Priority != "" {
		priority := strings.ToUpper(string(f.Priority))
		req.Priority = &priority
	}
	if f.Due != "" {
		due := f.Due
		req.DueDate = &due
	}
	return req, f.Due == "" && original.DueDate != ""
}

func parsePriority(value string) (model.Priority, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	priority, err := model.ParsePriority(trimmed)
	if err != nil || priority == model.PriorityAll {
		return "", fmt.Errorf("invalid priority")
	}
	return priority, nil
}

func parseDue(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if _, err := time.Parse(model.DateLayout, trimmed); err != nil {
		return "", fmt.Errorf("invalid due date")
	}
	return trimmed, nil
}

func parseTags(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

// resolveTags maps tag names to ids, case-insensitively.
func resolveTags(names []string, catalog []model.Tag) ([]string, error) {
	ids := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		id := ""
		for _, tag := range catalog {
			if strings.EqualFold(tag.Name, name) {
				id = tag.ID
				break
			}
		}
		if id == "" {
			return nil, fmt.Errorf("unknown tag %q: create it in the Tags pane first", name)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func joinTags(tags []model.TagSummary) string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return strings.Join(names, ", ")
}

func cycleChoice(order []string, current string, delta int) string {
	value := strings.TrimSpace(strings.ToLower(current))
	index := 0
	for i, choice := range order {
		if choice == value {
			index = i
			break
		}
	}
	index = (index + delta + len(order)) % len(order)
	return order[index]
}

// nextTaskPriority cycles a task through high, medium and low.
func nextTaskPriority(current model.Priority) model.Priority {
	switch current.Normalize() {
	case model.PriorityHigh:
		return model.PriorityMedium
	case model.PriorityMedium:
		return model.PriorityLow
	default:
		return model.PriorityHigh
	}
}
