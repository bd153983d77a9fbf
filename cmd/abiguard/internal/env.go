package internal

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/abiguard/internal/env"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the environment options and their current values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printEnv(cmd.OutOrStdout(), config)
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
}

func printEnv(w io.Writer, cfg *env.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tDEFAULT\tVALUE\tEFFECT")
	for _, opt := range env.Schema {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", opt.Env, opt.Default, cfg.Value(opt), opt.Effect)
	}
	return tw.Flush()
}
