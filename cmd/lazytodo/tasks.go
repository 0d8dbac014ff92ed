package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/taskview"
)

func tasksCmd(opts *options) *cobra.Command {
	var (
		status   string
		priority string
		sortBy   string
		search   string
		tags     []string
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedStatus, err := model.ParseStatus(status)
			if err != nil {
				return err
			}
			parsedPriority, err := model.ParsePriority(priority)
			if err != nil {
				return err
			}
			parsedSort, err := model.ParseSort(sortBy)
			if err != nil {
				return err
			}

			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := model.Filter{Search: search, Status: parsedStatus, Priority: parsedPriority, TagIDs: tags}
			tasks, stats, err := a.ListTasks(cmd.Context(), filter, parsedSort)
			if err != nil {
				return userError(err)
			}
			return printTasks(cmd.OutOrStdout(), tasks, stats)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&status, "status", "all", "all, pending or completed")
	flags.StringVar(&priority, "priority", "all", "all, high, medium or low")
	flags.StringVar(&sortBy, "sort", string(model.SortCreatedDesc), "sort order")
	flags.StringVarP(&search, "search", "s", "", "match title or description")
	flags.StringSliceVar(&tags, "tag", nil, "tag id, repeatable; tasks must carry every tag")
	return cmd
}

func printTasks(out io.Writer, tasks []model.Task, stats taskview.Stats) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, task := range tasks {
		marker := "[ ]"
		if task.Completed {
			marker = "[x]"
		}
		priority := strings.ToLower(string(task.Priority))
		if priority == "" {
			priority = "-"
		}
		due := task.DueDate
		if due == "" {
			due = "-"
		}
		names := make([]string, 0, len(task.Tags))
		for _, tag := range task.Tags {
			names = append(names, tag.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", marker, task.ID, task.Title, priority, due, strings.Join(names, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d/%d done (%d%%)\n", stats.Completed, stats.Total, stats.Progress)
	return err
}

func showCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Print one task in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.Sessions.CurrentUserID(ctx)
			if err != nil {
				return userError(err)
			}
			task, err := a.Client.GetTask(ctx, userID, args[0])
			if err != nil {
				return userError(err)
			}
			return printTask(cmd.OutOrStdout(), task)
		},
	}
}

func printTask(out io.Writer, task model.Task) error {
	state := "pending"
	if task.Completed {
		state = "completed"
	}
	names := make([]string, 0, len(task.Tags))
	for _, tag := range task.Tags {
		names = append(names, tag.Name)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, row := range [][2]string{
		{"id", task.ID},
		{"title", task.Title},
		{"status", state},
		{"priority", strings.ToLower(string(task.Priority))},
		{"due", task.DueDate},
		{"tags", strings.Join(names, ",")},
		{"description", task.Description},
	} {
		value := row[1]
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(w, "%s:\t%s\n", row[0], value)
	}
	return w.Flush()
}

func tagCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <task-id> <tag-id>",
		Short: "Add a tag to a task, or remove it when already there",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.TaskView().ToggleTaskTag(cmd.Context(), args[0], args[1])
			if err != nil {
				return userError(err)
			}
			return printTask(cmd.OutOrStdout(), task)
		},
	}
}

func toggleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <task-id>",
		Short: "Flip a task between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.TaskView().Toggle(cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			state := "pending"
			if task.Completed {
				state = "completed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", task.Title, state)
			return nil
		},
	}
}

func rmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.TaskView().Delete(cmd.Context(), args[0]); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func tagsCmd(opts *options) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "tags [tag-id]",
		Short: "List tags with their task counts, or show one tag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.Sessions.CurrentUserID(ctx)
			if err != nil {
				return userError(err)
			}
			var tags []model.Tag
			if len(args) == 1 {
				tag, err := a.Client.GetTag(ctx, userID, args[0])
				if err != nil {
					return userError(err)
				}
				tags = append(tags, tag)
			} else if tags, err = a.Client.ListTags(ctx, userID, api.TagListOptions{WithCounts: true, Query: query}); err != nil {
				return userError(err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, tag := range tags {
				fmt.Fprintf(w, "%s\t%s\t%d\n", tag.ID, tag.Name, tag.TaskCount)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only tags whose name contains this")
	return cmd
}
