package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/mcp"
)

func newServeCmd(opts *options) *cobra.Command {
	var providerName, modelName string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve memory tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			respond, err := a.responder(providerName, modelName)
			if err != nil {
				return err
			}
			return mcp.NewServer(a.ctrl, a.guard, respond, a.obs).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "Responder for process_interaction")
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	return cmd
}
