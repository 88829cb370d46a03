// Package cli implements the tracker command line.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/justsurfingit/inbox-job-tracker/internal/app"
	"github.com/justsurfingit/inbox-job-tracker/internal/models"
	"github.com/justsurfingit/inbox-job-tracker/internal/services"
	"github.com/spf13/cobra"
)

// Opener builds the application once flags are parsed.
type Opener func() (*app.App, error)

type state struct {
	open  Opener
	app   *app.App
	email string
	in    io.Reader
	out   io.Writer
}

func NewRootCommand(open Opener, in io.Reader, out io.Writer) *cobra.Command {
	st := &state{open: open, in: in, out: out}

	root := &cobra.Command{
		Use:           "tracker",
		Short:         "Track job applications found in your Gmail inbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			st.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if st.app == nil {
				return nil
			}
			return st.app.Close()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVarP(&st.email, "user", "u", "", "Gmail address of the user to act on")

	root.AddCommand(
		scanCmd(st),
		listCmd(st),
		searchCmd(st),
		updateCmd(st),
		statsCmd(st),
		usersCmd(st),
		connectCmd(st),
		disconnectCmd(st),
	)
	return root
}

// user resolves --user to an existing account.
func (st *state) user(cmd *cobra.Command) (*models.User, error) {
	if st.email == "" {
		return nil, errors.New("--user is required")
	}
	u, err := st.app.Users.GetByEmail(cmd.Context(), st.email)
	if errors.Is(err, services.ErrNotFound) {
		return nil, fmt.Errorf("unknown user %s; run `tracker connect --user %s` first", st.email, st.email)
	}
	return u, err
}
