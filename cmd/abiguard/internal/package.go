package internal

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var packageArchive string

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Package the build output into the package store",
	Args:  cobra.NoArgs,
	RunE:  runPackage,
}

func init() {
	packageCmd.Flags().StringVar(&packageArchive, "archive", "", "Also write the package to this .tar.zst file")
	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	b, err := newBuilder()
	if err != nil {
		return err
	}
	pkg, err := b.Package()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pkg.RootPath)
	if packageArchive == "" {
		return nil
	}
	dest, err := filepath.Abs(packageArchive)
	if err != nil {
		return fmt.Errorf("failed to resolve archive path: %w", err)
	}
	if err := b.Store.Archive(pkg.Ref, dest); err != nil {
		return fmt.Errorf("failed to archive %s: %w", pkg.Ref, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}
