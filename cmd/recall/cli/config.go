package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/config"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	set := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a configuration value (e.g. provider.name openai)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Set(opts.path(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to set config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", args[0])
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Get the effective configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := config.Get(opts.path(), args[0])
			if err != nil {
				return err
			}
			if val == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), val)
			}
			return nil
		},
	}

	cmd.AddCommand(set, get)
	return cmd
}
