package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the build tasks again whenever they may have changed",
	Long: `Watch the settings file and the .vscode configuration files of every
workspace folder and print the tasks after each change until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := newApp(false)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		if err := application.Start(ctx); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		red := color.New(color.FgRed).SprintFunc()
		show := func() {
			tasks, err := application.Tasks(ctx)
			if err != nil {
				if ctx.Err() == nil {
					fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
				}
				return
			}
			printTasks(out, application.Workspace().Folders(), tasks)
		}
		show()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-application.Changes():
				fmt.Fprintln(out)
				show()
			}
		}
	},
}
