package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the detected build tasks",
	Long:  `Scaffold missing build-steps files, detect tasks once and print them.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApp(true)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := application.Start(ctx); err != nil {
			return err
		}

		tasks, err := application.Tasks(ctx)
		if err != nil {
			return fmt.Errorf("detect tasks: %w", err)
		}
		if listJSON {
			return writeJSON(cmd.OutOrStdout(), tasks)
		}
		printTasks(cmd.OutOrStdout(), application.Workspace().Folders(), tasks)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print tasks as JSON")
}

// printTasks writes tasks grouped by workspace folder, in folder order.
func printTasks(w io.Writer, folders []workspace.Folder, tasks []*task.Task) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s\n", cyan("=== Build Tasks ==="))
	if len(tasks) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No build tasks found"))
		return
	}

	byFolder := make(map[string][]*task.Task)
	for _, t := range tasks {
		byFolder[t.Folder] = append(byFolder[t.Folder], t)
	}

	for _, f := range folders {
		list := byFolder[f.URI]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s %s\n", yellow(f.Name), gray(f.URI))
		width := 0
		for _, t := range list {
			width = max(width, len(t.Name))
		}
		for _, t := range list {
			fmt.Fprintf(w, "  %-*s  %s\n", width, t.Name, t.CommandLine())
		}
	}
}

func writeJSON(w io.Writer, tasks []*task.Task) error {
	if tasks == nil {
		tasks = []*task.Task{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tasks)
}
