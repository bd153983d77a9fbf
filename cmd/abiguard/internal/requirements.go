package internal

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goplus/abiguard/internal/build"
)

var requirementsCmd = &cobra.Command{
	Use:   "build-requirements",
	Short: "Resolve the build requirements of the recipe",
	Long: `Build-requirements resolves every build requirement of the recipe in the
package store and prints its package root. It fails listing every missing
reference.`,
	Args: cobra.NoArgs,
	RunE: runRequirements,
}

func init() {
	rootCmd.AddCommand(requirementsCmd)
}

func runRequirements(cmd *cobra.Command, args []string) error {
	b, err := newBuilder()
	if err != nil {
		return err
	}
	deps, err := b.BuildRequirements()
	if err != nil {
		return err
	}
	printDependencies(cmd.OutOrStdout(), deps)
	return nil
}

func printDependencies(w io.Writer, deps []build.Dependency) {
	for _, d := range deps {
		fmt.Fprintf(w, "%s -> %s\n", d.Ref, d.Root())
	}
}
