// Package vvectl implements the operator CLI that works directly on the
// vvebeheer SQLite database.
package vvectl

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the vvectl command tree writing to out.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	opts := &options{viper: viper.New()}
	root := &cobra.Command{
		Use:           "vvectl",
		Short:         "Operate a vvebeheer installation",
		Long:          "vvectl migrates the database, bootstraps the super admin and runs\nbookkeeping tasks for associations without going through the API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.load()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	cobra.CheckErr(opts.bindFlags(root))

	root.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
		&cobra.Group{ID: "books", Title: "Bookkeeping Commands:"},
	)
	root.AddCommand(
		newMigrateCommand(opts),
		newBootstrapCommand(opts),
		newAssociationCommand(opts),
		newInviteCommand(opts),
		newImportCommand(opts),
		newReconcileCommand(opts),
		newDuesCommand(opts),
		newReportsCommand(opts),
		newJobsCommand(opts),
	)
	return root
}

// Execute runs vvectl with args.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := NewRootCommand(out, errOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// run opens a session for one command invocation and prints through the
// configured output format.
func (o *options) run(cmd *cobra.Command, fn func(context.Context, *session, printer) error) error {
	settings := o.settings()
	p, err := newPrinter(cmd.OutOrStdout(), settings.Output)
	if err != nil {
		return err
	}
	s, err := openSession(settings)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s, p)
}
