package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the packages of the package store",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	refs, err := s.List()
	if err != nil {
		return err
	}
	for _, r := range refs {
		fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return nil
}
