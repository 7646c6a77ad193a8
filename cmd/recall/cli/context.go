package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/memory"
)

func newContextCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Read and write short-term memory",
	}

	var ttl time.Duration
	set := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Store a value; JSON values are stored structured",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.mem().ShortTerm.StoreContext(cmd.Context(), args[0], parseValue(args[1]), memory.ContextOptions{TTL: ttl}) {
				return fmt.Errorf("failed to store context %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored: %s\n", args[0])
			return nil
		},
	}
	set.Flags().DurationVar(&ttl, "ttl", 0, "Expire the value after this duration")

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Print a value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			val := a.mem().ShortTerm.GetContext(cmd.Context(), args[0])
			if val == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), val)
		},
	}

	cmd.AddCommand(set, get)
	return cmd
}
