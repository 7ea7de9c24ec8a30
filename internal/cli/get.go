package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

type GetOptions struct {
	GlobalOptions

	Output string
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:   "get TYPE/PROJECT_ID",
		Short: "Display the training status or performance of a project.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
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

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *GetOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	return nil
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if _, _, err := parseAndValidateKindId(args[0]); err != nil {
		return err
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	return nil
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	resp, err := o.Client().Get(ctx, projectPath(id, kindEndpoints[kind]), nil)
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", kind, id, err)
	}
	if err := resp.Failed(); err != nil {
		return fmt.Errorf("reading %s/%s: %w", kind, id, err)
	}

	return printResponse(os.Stdout, resp.Body, o.Output)
}

func printResponse(out io.Writer, body map[string]any, output string) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(out, "%s\n", string(marshalled))
	case yamlFormat:
		marshalled, err := yaml.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(out, "%s\n", string(marshalled))
	default:
		printTable(out, body)
	}
	return nil
}

func printTable(out io.Writer, body map[string]any) {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	keys := funk.Keys(body).([]string)
	sort.Strings(keys)

	fmt.Fprintln(w, "FIELD\tVALUE")
	for _, k := range keys {
		v := body[k]
		if nested, ok := v.(map[string]any); ok {
			data, _ := json.Marshal(nested)
			v = string(data)
		}
		fmt.Fprintf(w, "%s\t%v\n", k, v)
	}
	w.Flush()
}
