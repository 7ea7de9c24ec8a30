package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type TrainOptions struct {
	GlobalOptions

	Demo bool
}

func NewCmdTrain() *cobra.Command {
	o := &TrainOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "train PROJECT_ID",
		Short: "Train a project and deploy the resulting model.",
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

func (o *TrainOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.Demo, "demo", o.Demo, "Deploy the demo model instead of training")
}

func (o *TrainOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid project id %q: %w", args[0], err)
	}
	return nil
}

func (o *TrainOptions) Run(ctx context.Context, args []string) error {
	id := uuid.MustParse(args[0])

	query := url.Values{}
	if o.Demo {
		query.Set("demo", strconv.FormatBool(o.Demo))
	}

	resp, err := o.Client().Get(ctx, projectPath(id, "train"), query)
	if err != nil {
		return fmt.Errorf("training project %s: %w", id, err)
	}
	if err := resp.Failed(); err != nil {
		return fmt.Errorf("training project %s: %w", id, err)
	}

	fmt.Printf("training of project %s accepted\n", id)
	return nil
}
