package main

import (
	"os"

	"github.com/kubev2v/edge-trainer/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewTrainerCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewTrainerCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trainer [flags] [options]",
		Short: "trainer controls the model training service.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdTrain())
	cmd.AddCommand(cli.NewCmdReset())

	return cmd
}
