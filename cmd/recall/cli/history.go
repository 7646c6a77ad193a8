package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/memory"
)

func newHistoryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the episodic conversation log",
	}

	var (
		q    memory.ConversationQuery
		role string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			q.Role = memory.Role(role)
			return printJSON(cmd.OutOrStdout(), a.mem().Episodic.GetConversations(cmd.Context(), q))
		},
	}
	list.Flags().StringVar(&q.SessionID, "session", "", "Session filter")
	list.Flags().StringVar(&role, "role", "", "Role filter (user, assistant, system)")
	list.Flags().IntVar(&q.Limit, "limit", memory.DefaultConversationLimit, "Maximum entries")
	list.Flags().IntVar(&q.Offset, "offset", 0, "Entries to skip")

	var session string
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Summarize a session; the active session's summary is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ep := a.mem().Episodic
			out := cmd.OutOrStdout()
			if session == "" {
				sum := ep.SummarizeCurrentSession(cmd.Context())
				if sum == nil {
					fmt.Fprintln(out, memory.NoConversationsSummary)
					return nil
				}
				fmt.Fprintln(out, sum.Summary)
				return nil
			}
			if stored := ep.GetSessionSummary(cmd.Context(), session); stored != nil {
				fmt.Fprintln(out, stored.Summary)
				return nil
			}
			list := ep.GetConversations(cmd.Context(), memory.ConversationQuery{
				SessionID: session, Limit: a.cfg.Memory.SummaryWindow,
			})
			fmt.Fprintln(out, ep.SummarizeConversations(list))
			return nil
		},
	}
	summary.Flags().StringVar(&session, "session", "", "Session id (default the active session)")

	cmd.AddCommand(list, summary)
	return cmd
}
