package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file.tar.zst>",
	Short: "Install an archived package into the package store",
	Long: `Import installs a package written by "package --archive" into the package
store and verifies its content digests. This is how reference ABI dumps reach
a new machine.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	pkg, err := s.Import(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", pkg.Ref, pkg.RootPath)
	return nil
}
