package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

type tagCountEntry struct {
	ID    string
	Name  string
	Count int
}

// buildTagEntries orders the catalog by task count, then name.
func buildTagEntries(tags []model.Tag) []tagCountEntry {
	entries := make([]tagCountEntry, 0, len(tags))
	for _, tag := range tags {
		entries = append(entries, tagCountEntry{ID: tag.ID, Name: tag.Name, Count: tag.TaskCount})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries
}

func formatTags(tags []model.TagSummary) string {
	if len(tags) == 0 {
		return "no tags"
	}
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, tag.Name)
	}
	return strings.Join(parts, ",")
}

func formatTaskSummary(task model.Task) string {
	marker := "[ ]"
	if task.Completed {
		marker = "[x]"
	}
	summary := fmt.Sprintf("%s %s | %s", marker, task.Title, priorityLabel(task.Priority))
	if task.DueDate != "" {
		summary += " | due " + task.DueDate
	}
	if len(task.Tags) > 0 {
		summary += " | " + formatTags(task.Tags)
	}
	return summary
}

func priorityLabel(priority model.Priority) string {
	if priority == "" {
		return "-"
	}
	return strings.ToLower(string(priority))
}

func dueLabel(task model.Task, now time.Time) string {
	due, ok := task.Due()
	if !ok {
		return "n/a"
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !task.Completed && due.Before(today) {
		return task.DueDate + " (overdue)"
	}
	return task.DueDate
}

func formatChatMessage(msg model.ChatMessage) string {
	prefix := "you: "
	if msg.Role == model.RoleAssistant {
		prefix = "ai: "
		if msg.Failed {
			prefix = "ai ! "
		}
	}
	line := prefix + msg.Content
	for _, call := range msg.ToolCalls {
		line += fmt.Sprintf("\n    -> %s", call.Name)
	}
	return line
}
