package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/coach"
)

func newSeedCmd(opts *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Validate and apply a YAML or JSON seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			c := coach.New(a.guard)
			seed, err := c.LoadSeed(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res := c.Validate(*seed)
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(out, "error: %s\n", e)
			}
			if !res.Valid {
				return errors.New("invalid seed file")
			}
			if dryRun {
				fmt.Fprintln(out, "Seed is valid.")
				return nil
			}

			report, err := c.Apply(cmd.Context(), *seed, a.mem())
			if err != nil {
				return err
			}
			a.obs.Log().Info().Int("knowledge", report.Knowledge).Int("relationships", report.Relationships).Msg("seed applied")
			return printJSON(out, report)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without writing")
	return cmd
}
