package cli

import (
	"github.com/spf13/cobra"
)

func newConsolidateCmd(opts *options) *cobra.Command {
	var extract bool
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Promote important working context and log a session summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			out := struct {
				Consolidation any      `json:"consolidation"`
				Extracted     []string `json:"extracted,omitempty"`
			}{Consolidation: a.ctrl.ConsolidateMemory(cmd.Context())}
			if extract {
				out.Extracted = a.ctrl.ExtractKnowledge(cmd.Context())
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&extract, "extract", false, "Also extract knowledge from recent conversations")
	return cmd
}

func newExtractCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Record code and troubleshooting knowledge from recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.ctrl.ExtractKnowledge(cmd.Context()))
		},
	}
}
