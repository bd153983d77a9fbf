package internal

import (
	"context"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the build hook of the recipe",
	Long: `Build runs the build hook of the recipe kind. ABI recipes write one result
record per stage below <build-folder>/test/result and exit with an error when
a tool reported a failure.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	b, err := newBuilder()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return b.Build(ctx)
}
