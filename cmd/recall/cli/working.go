package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/memory"
)

func newWorkingCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "working",
		Short: "Manage working context items",
	}

	var (
		importance int
		ttl        time.Duration
	)
	add := &cobra.Command{
		Use:   "add [topic] [details...]",
		Short: "Add a working context item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			in := memory.WorkingContextInput{
				Topic:      args[0],
				Details:    strings.Join(args[1:], " "),
				Importance: importance,
			}
			if ttl > 0 {
				exp := time.Now().Add(ttl)
				in.ExpiresAt = &exp
			}
			id := a.mem().ShortTerm.AddWorkingContext(cmd.Context(), in)
			if id == "" {
				return errors.New("working context needs a non-empty topic")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	add.Flags().IntVar(&importance, "importance", memory.DefaultImportance, "Importance 1-5")
	add.Flags().DurationVar(&ttl, "ttl", 0, "Expire the item after this duration")

	var q memory.WorkingContextQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List items, most important first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.mem().ShortTerm.GetWorkingContext(cmd.Context(), q))
		},
	}
	list.Flags().StringVar(&q.Topic, "topic", "", "Exact topic filter")
	list.Flags().IntVar(&q.MinImportance, "min-importance", 0, "Minimum importance")
	list.Flags().IntVar(&q.MaxItems, "max", memory.DefaultMaxItems, "Maximum items")

	var target int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Drop expired items and keep the most important",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			kept := a.mem().ShortTerm.PruneMemory(cmd.Context(), target)
			fmt.Fprintf(cmd.OutOrStdout(), "Kept %d items\n", kept)
			return nil
		},
	}
	prune.Flags().IntVar(&target, "target", 0, "Items to keep (default memory.working_capacity)")

	cmd.AddCommand(add, list, prune)
	return cmd
}
