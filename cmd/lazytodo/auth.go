package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Joseda-hg/lazytodo/internal/api"
)

type credentials struct {
	email    string
	password string
	name     string
}

func (c *credentials) bind(cmd *cobra.Command, withName bool) {
	cmd.Flags().StringVarP(&c.email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&c.password, "password", "p", "", "account password")
	if withName {
		cmd.Flags().StringVarP(&c.name, "name", "n", "", "display name")
	}
}

// fill asks for whatever was not given on the command line.
func (c *credentials) fill(in io.Reader, out io.Writer, withName bool) error {
	reader := bufio.NewReader(in)
	ask := func(label string, target *string) error {
		if strings.TrimSpace(*target) != "" {
			return nil
		}
		fmt.Fprintf(out, "%s: ", label)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		*target = strings.TrimSpace(line)
		if *target == "" {
			return fmt.Errorf("%s is required", strings.ToLower(label))
		}
		return nil
	}

	if err := ask("Email", &c.email); err != nil {
		return err
	}
	if withName {
		if err := ask("Name", &c.name); err != nil {
			return err
		}
	}
	return ask("Password", &c.password)
}

func signupCmd(opts *options) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.fill(cmd.InOrStdin(), cmd.OutOrStdout(), true); err != nil {
				return err
			}
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			resp, err := a.Client.Signup(ctx, api.SignupRequest{Email: creds.email, Password: creds.password, Name: creds.name})
			if err != nil {
				return userError(err)
			}
			if err := a.Sessions.Store(ctx, resp.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s\n", resp.User.Email)
			return nil
		},
	}
	creds.bind(cmd, true)
	return cmd
}

func signinCmd(opts *options) *cobra.Command {
	creds := &credentials{}
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.fill(cmd.InOrStdin(), cmd.OutOrStdout(), false); err != nil {
				return err
			}
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			resp, err := a.Client.Signin(ctx, api.SigninRequest{Email: creds.email, Password: creds.password})
			if err != nil {
				if api.IsUnauthorized(err) {
					return fmt.Errorf("invalid email or password")
				}
				return userError(err)
			}
			if err := a.Sessions.Store(ctx, resp.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", resp.User.Email)
			return nil
		},
	}
	creds.bind(cmd, false)
	return cmd
}

func signoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Sessions.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Sessions.CurrentUserID(cmd.Context()); err != nil {
				return userError(err)
			}
			user, err := a.Client.Me(cmd.Context())
			if err != nil {
				return userError(err)
			}
			name := user.Name
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", user.ID, user.Email, name, a.Client.BaseURL())
			return nil
		},
	}
}
