package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventToggled = "toggled"
	EventDeleted = "deleted"
	EventChat    = "chat"
)

type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// SaveSession writes the token setting and its cookie mirror in one
// transaction so readers never see one channel without the other.
func (s *Store) SaveSession(ctx context.Context, key, token string, cookie model.Cookie) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, token, time.Now().UTC()); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}

		var expiresAt sql.NullTime
		if cookie.ExpiresAt != nil {
			expiresAt = sql.NullTime{Time: cookie.ExpiresAt.UTC(), Valid: true}
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO cookies (name, value, path, expires_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value, path = excluded.path, expires_at = excluded.expires_at`,
			cookie.Name, cookie.Value, path, expiresAt); err != nil {
			return fmt.Errorf("save cookie %s: %w", cookie.Name, err)
		}
		return nil
	})
}

func (s *Store) ClearSession(ctx context.Context, key, cookieName string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
			return fmt.Errorf("delete setting %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM cookies WHERE name = ?", cookieName); err != nil {
			return fmt.Errorf("delete cookie %s: %w", cookieName, err)
		}
		return nil
	})
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) GetCookie(ctx context.Context, name string) (model.Cookie, bool, error) {
	var (
		cookie    model.Cookie
		expiresAt sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, "SELECT name, value, path, expires_at FROM cookies WHERE name = ?", name).
		Scan(&cookie.Name, &cookie.Value, &cookie.Path, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cookie{}, false, nil
	}
	if err != nil {
		return model.Cookie{}, false, err
	}
	if expiresAt.Valid {
		expires := expiresAt.Time
		cookie.ExpiresAt = &expires
	}
	return cookie, true, nil
}

func (s *Store) AddHistory(ctx context.Context, taskID, eventType, details string) (model.HistoryEntry, error) {
	now := time.Now().UTC()
	result, err := s.DB.ExecContext(ctx, "INSERT INTO history (task_id, event_type, details, created_at) VALUES (?, ?, ?, ?)",
		taskID, eventType, details, now)
	if err != nil {
		return model.HistoryEntry{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.HistoryEntry{}, err
	}
	return model.HistoryEntry{ID: id, TaskID: taskID, EventType: eventType, Details: details, CreatedAt: now}, nil
}

// AddTaskEvent records a mutation made from this client. before is nil for
// creations and after is nil for deletions.
func (s *Store) AddTaskEvent(ctx context.Context, eventType string, before, after *model.Task) error {
	var (
		taskID  string
		details string
	)
	switch {
	case before == nil && after != nil:
		taskID = after.ID
		details = formatCreatedDetails(*after)
	case before != nil && after == nil:
		taskID = before.ID
		details = formatDeletedDetails(*before)
	case before != nil && after != nil:
		taskID = after.ID
		details = formatTaskDiff(*before, *after)
	default:
		return fmt.Errorf("task event %s needs a task", eventType)
	}

	_, err := s.AddHistory(ctx, taskID, eventType, details)
	return err
}

func (s *Store) ListHistory(ctx context.Context, taskID string) ([]model.HistoryEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, task_id, event_type, details, created_at FROM history
		WHERE task_id = ? ORDER BY id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	return scanHistory(rows)
}

func (s *Store) ListRecentHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, task_id, event_type, details, created_at FROM history
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanHistory(rows)
}

func (s *Store) SaveView(ctx context.Context, view model.View) (model.View, error) {
	payload, err := json.Marshal(view.Filter.Normalize())
	if err != nil {
		return model.View{}, err
	}
	sortKey := view.Sort
	if sortKey == "" {
		sortKey = model.SortCreatedDesc
	}
	now := time.Now().UTC()

	if view.ID == 0 {
		_, err = s.DB.ExecContext(ctx, `INSERT INTO views (name, filter_json, sort, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET filter_json = excluded.filter_json, sort = excluded.sort, updated_at = excluded.updated_at`,
			view.Name, string(payload), string(sortKey), now, now)
	} else {
		_, err = s.DB.ExecContext(ctx, "UPDATE views SET name = ?, filter_json = ?, sort = ?, updated_at = ? WHERE id = ?",
			view.Name, string(payload), string(sortKey), now, view.ID)
	}
	if err != nil {
		return model.View{}, err
	}
	return s.GetViewByName(ctx, view.Name)
}

func (s *Store) ListViews(ctx context.Context) ([]model.View, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT id, name, filter_json, sort, created_at, updated_at FROM views ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := []model.View{}
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func (s *Store) GetViewByName(ctx context.Context, name string) (model.View, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT id, name, filter_json, sort, created_at, updated_at FROM views WHERE name = ?", name)
	return scanView(row)
}

func (s *Store) DeleteView(ctx context.Context, viewID int64) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM views WHERE id = ?", viewID)
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanView(row rowScanner) (model.View, error) {
	var (
		view       model.View
		filterJSON string
		sortKey    string
	)
	if err := row.Scan(&view.ID, &view.Name, &filterJSON, &sortKey, &view.CreatedAt, &view.UpdatedAt); err != nil {
		return model.View{}, err
	}
	if err := json.Unmarshal([]byte(filterJSON), &view.Filter); err != nil {
		return model.View{}, fmt.Errorf("decode view %s: %w", view.Name, err)
	}
	view.Sort = model.Sort(sortKey)
	return view, nil
}

func scanHistory(rows *sql.Rows) ([]model.HistoryEntry, error) {
	defer rows.Close()

	history := []model.HistoryEntry{}
	for rows.Next() {
		var entry model.HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.TaskID, &entry.EventType, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

func formatCreatedDetails(task model.Task) string {
	return fmt.Sprintf("created: title='%s' completed=%t priority=%s due=%s tags=%s", task.Title, task.Completed, valueOrNone(string(task.Priority)), valueOrNone(task.DueDate), formatTags(task.Tags))
}

func formatDeletedDetails(task model.Task) string {
	return fmt.Sprintf("deleted: title='%s' completed=%t priority=%s due=%s tags=%s", task.Title, task.Completed, valueOrNone(string(task.Priority)), valueOrNone(task.DueDate), formatTags(task.Tags))
}

func formatTaskDiff(before, after model.Task) string {
	changes := []string{}
	if before.Title != after.Title {
		changes = append(changes, formatChange("title", before.Title, after.Title))
	}
	if before.Description != after.Description {
		changes = append(changes, formatChange("description", before.Description, after.Description))
	}
	if before.Completed != after.Completed {
		changes = append(changes, formatChange("completed", fmt.Sprintf("%t", before.Completed), fmt.Sprintf("%t", after.Completed)))
	}
	if before.Priority.Normalize() != after.Priority.Normalize() {
		changes = append(changes, formatChange("priority", string(before.Priority), string(after.Priority)))
	}
	if before.DueDate != after.DueDate {
		changes = append(changes, formatChange("due", before.DueDate, after.DueDate))
	}
	beforeTags := formatTags(before.Tags)
	afterTags := formatTags(after.Tags)
	if beforeTags != afterTags {
		changes = append(changes, formatChange("tags", beforeTags, afterTags))
	}

	if len(changes) == 0 {
		return "updated: no changes"
	}

	return "updated: " + strings.Join(changes, "; ")
}

func formatChange(field, before, after string) string {
	return fmt.Sprintf("%s: '%s' -> '%s'", field, valueOrNone(before), valueOrNone(after))
}

func valueOrNone(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "none"
	}
	return trimmed
}

func formatTags(tags []model.TagSummary) string {
	if len(tags) == 0 {
		return "none"
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
