package cli

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ResetOptions struct {
	GlobalOptions

	Name string
}

func NewCmdReset() *cobra.Command {
	o := &ResetOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "reset PROJECT_ID --name NAME",
		Short: "Remove the training data of a project and link it to a new remote project.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ResetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Name, "name", "n", o.Name, "Name of the new remote project")
}

func (o *ResetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid project id %q: %w", args[0], err)
	}
	if o.Name == "" {
		return fmt.Errorf("--name is required")
	}
	return nil
}

func (o *ResetOptions) Run(ctx context.Context, args []string) error {
	id := uuid.MustParse(args[0])

	resp, err := o.Client().Get(ctx, projectPath(id, "reset_project"), url.Values{"project_name": []string{o.Name}})
	if err != nil {
		return fmt.Errorf("resetting project %s: %w", id, err)
	}
	if err := resp.Failed(); err != nil {
		return fmt.Errorf("resetting project %s: %w", id, err)
	}

	fmt.Printf("project %s reset\n", id)
	return nil
}
