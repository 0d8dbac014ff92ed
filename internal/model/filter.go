package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type Status string

const (
	StatusAll       Status = "all"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("invalid status %q: must be all, pending or completed", value)
}

func (s Status) Next() Status {
	switch s {
	case StatusAll, "":
		return StatusPending
	case StatusPending:
		return StatusCompleted
	default:
		return StatusAll
	}
}

// Priority is compared case-insensitively; the backend answers HIGH/MEDIUM/LOW.
type Priority string

const (
	PriorityAll    Priority = "all"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func ParsePriority(value string) (Priority, error) {
	switch p := Priority(value).Normalize(); p {
	case "", PriorityAll:
		return PriorityAll, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q: must be all, high, medium or low", value)
}

func (p Priority) Normalize() Priority {
	return Priority(strings.ToLower(strings.TrimSpace(string(p))))
}

func (p Priority) Next() Priority {
	switch p.Normalize() {
	case PriorityAll, "":
		return PriorityHigh
	case PriorityHigh:
		return PriorityMedium
	case PriorityMedium:
		return PriorityLow
	default:
		return PriorityAll
	}
}

type Sort string

const (
	SortCreatedDesc     Sort = "created_desc"
	SortCreatedAsc      Sort = "created_asc"
	SortDueDateAsc      Sort = "due_date_asc"
	SortDueDateDesc     Sort = "due_date_desc"
	SortPriority        Sort = "priority"
	SortPriorityReverse Sort = "priority_reverse"
	SortAlpha           Sort = "alpha"
	SortAlphaReverse    Sort = "alpha_reverse"
)

type SortOption struct {
	Sort  Sort
	Label string
}

var SortOptions = []SortOption{
	{SortCreatedDesc, "Newest First"},
	{SortCreatedAsc, "Oldest First"},
	{SortDueDateAsc, "Due Date (Soonest)"},
	{SortDueDateDesc, "Due Date (Latest)"},
	{SortPriority, "Priority (High to Low)"},
	{SortPriorityReverse, "Priority (Low to High)"},
	{SortAlpha, "Alphabetical (A-Z)"},
	{SortAlphaReverse, "Alphabetical (Z-A)"},
}

func ParseSort(value string) (Sort, error) {
	trimmed := Sort(strings.ToLower(strings.TrimSpace(value)))
	if trimmed == "" {
		return SortCreatedDesc, nil
	}
	for _, option := range SortOptions {
		if option.Sort == trimmed {
			return trimmed, nil
		}
	}
	return "", fmt.Errorf("invalid sort %q", value)
}

func (s Sort) Label() string {
	for _, option := range SortOptions {
		if option.Sort == s {
			return option.Label
		}
	}
	return string(s)
}

func (s Sort) Next() Sort {
	for i, option := range SortOptions {
		if option.Sort == s {
			return SortOptions[(i+1)%len(SortOptions)].Sort
		}
	}
	return SortCreatedDesc
}

// Filter is the task list filter state. TagIDs is kept sorted and free of
// duplicates so two filters selecting the same tags compare equal.
type Filter struct {
	Search   string   `json:"search"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
	TagIDs   []string `json:"tag_ids"`
}

func (f Filter) Normalize() Filter {
	if f.Status == "" {
		f.Status = StatusAll
	}
	f.Priority = f.Priority.Normalize()
	if f.Priority == "" {
		f.Priority = PriorityAll
	}
	f.TagIDs = normalizeTagIDs(f.TagIDs)
	return f
}

func (f Filter) HasTag(id string) bool {
	for _, existing := range f.TagIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func (f Filter) WithTag(id string) Filter {
	tags := make([]string, 0, len(f.TagIDs)+1)
	tags = append(tags, f.TagIDs...)
	f.TagIDs = normalizeTagIDs(append(tags, id))
	return f
}

func (f Filter) WithoutTag(id string) Filter {
	tags := make([]string, 0, len(f.TagIDs))
	for _, existing := range f.TagIDs {
		if existing != id {
			tags = append(tags, existing)
		}
	}
	f.TagIDs = tags
	return f
}

func (f Filter) ToggleTag(id string) Filter {
	if f.HasTag(id) {
		return f.WithoutTag(id)
	}
	return f.WithTag(id)
}

func (f Filter) Equal(other Filter) bool {
	a, b := f.Normalize(), other.Normalize()
	if a.Search != b.Search || a.Status != b.Status || a.Priority != b.Priority {
		return false
	}
	if len(a.TagIDs) != len(b.TagIDs) {
		return false
	}
	for i := range a.TagIDs {
		if a.TagIDs[i] != b.TagIDs[i] {
			return false
		}
	}
	return true
}

// Matches reports whether task satisfies the status, priority and tag parts
// of the filter. Search is handled separately.
func (f Filter) Matches(task Task) bool {
	switch f.Status {
	case StatusPending:
		if task.Completed {
			return false
		}
	case StatusCompleted:
		if !task.Completed {
			return false
		}
	}

	if p := f.Priority.Normalize(); p != "" && p != PriorityAll && task.Priority.Normalize() != p {
		return false
	}

	for _, id := range f.TagIDs {
		found := false
		for _, tag := range task.Tags {
			if tag.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func normalizeTagIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	sort.Strings(result)
	return result
}

// Timestamp accepts the backend's ISO 8601 datetimes, with or without a zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	DateLayout,
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		t.Time = time.Time{}
		return nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", value)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
