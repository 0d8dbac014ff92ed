package taskview

import (
	"strings"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

// Reconcile narrows a server page to what the filter asks for. The status,
// priority and tag checks repeat what the server already did and so never
// drop a correct row; the search pass is the part the server may not do.
// Server order is kept.
func Reconcile(tasks []model.Task, filter model.Filter, clientSearch bool) []model.Task {
	term := ""
	if clientSearch {
		term = strings.ToLower(strings.TrimSpace(filter.Search))
	}

	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if !filter.Matches(task) {
			continue
		}
		if term != "" && !matchesSearch(task, term) {
			continue
		}
		out = append(out, task)
	}
	return out
}

func matchesSearch(task model.Task, term string) bool {
	return strings.Contains(strings.ToLower(task.Title), term) ||
		strings.Contains(strings.ToLower(task.Description), term)
}

type Stats struct {
	Total     int
	Completed int
	Active    int
	Progress  int
}

func ComputeStats(tasks []model.Task) Stats {
	stats := Stats{Total: len(tasks)}
	for _, task := range tasks {
		if task.Completed {
			stats.Completed++
		}
	}
	stats.Active = stats.Total - stats.Completed
	if stats.Total > 0 {
		stats.Progress = (stats.Completed*100 + stats.Total/2) / stats.Total
	}
	return stats
}

// Split separates active and completed tasks, keeping their order.
func Split(tasks []model.Task) ([]model.Task, []model.Task) {
	active := []model.Task{}
	completed := []model.Task{}
	for _, task := range tasks {
		if task.Completed {
			completed = append(completed, task)
		} else {
			active = append(active, task)
		}
	}
	return active, completed
}
