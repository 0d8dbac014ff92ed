package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Joseda-hg/lazytodo/internal/taskview"
)

func chatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message to the task assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.ChatPanel().Send(cmd.Context(), strings.Join(args, " "))
			if err != nil && taskview.AuthRequired(err) {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			if reply.Content != "" {
				fmt.Fprintln(out, reply.Content)
			}
			for _, call := range reply.ToolCalls {
				fmt.Fprintf(out, "  -> %s\n", call.Name)
			}
			return userError(err)
		},
	}
}

func webCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Serve only the browser dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, log.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			log.Printf("Web server running at http://%s", a.WebAddr())
			return a.WebServer().Run(a.WebAddr())
		},
	}
}
