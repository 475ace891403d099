package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create build-steps files from c_cpp_properties.json",
	Long: `Write an initial .vscode/c_cpp_build.json for every workspace folder that
has a c_cpp_properties.json but no build-steps file yet.`,
	Args: cobra.NoArgs,
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

		created, err := application.Scaffold(ctx)
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		out := cmd.OutOrStdout()
		for _, path := range created {
			fmt.Fprintf(out, "%s %s\n", green("created"), path)
		}
		if len(created) == 0 && err == nil {
			fmt.Fprintf(out, "%s\n", gray("Nothing to create"))
		}
		return err
	},
}
