package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/memory"
)

func newKnowledgeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the knowledge graph",
	}

	var (
		confidence float64
		source     string
	)
	store := &cobra.Command{
		Use:   "store [category] [topic] [content]",
		Short: "Create or update a knowledge node",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if v := a.guard.CheckCategory(args[0]); v != nil {
				return v
			}
			if v := a.guard.CheckContent(args[2]); v != nil {
				return v
			}
			id := a.mem().Semantic.StoreKnowledge(cmd.Context(), args[0], args[1], args[2], memory.KnowledgeOptions{
				Confidence: memory.Float(confidence), Source: source,
			})
			if id == "" {
				return errors.New("knowledge needs a non-empty category and topic")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	store.Flags().Float64Var(&confidence, "confidence", memory.DefaultConfidence, "Confidence 0-1")
	store.Flags().StringVar(&source, "source", "cli", "Where the knowledge came from")

	var id string
	get := &cobra.Command{
		Use:   "get [category] [topic]",
		Short: "Print a node by category and topic, or by --id",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			sem := a.mem().Semantic
			var node *memory.KnowledgeNode
			switch {
			case id != "":
				node = sem.GetByID(cmd.Context(), id)
			case len(args) == 2:
				node = sem.GetKnowledge(cmd.Context(), args[0], args[1])
			case len(args) == 1:
				return printJSON(cmd.OutOrStdout(), sem.GetByCategory(cmd.Context(), args[0]))
			default:
				return errors.New("provide a category and topic, a category, or --id")
			}
			if node == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "(not found)")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), node)
		},
	}
	get.Flags().StringVar(&id, "id", "", "Node id")

	var search memory.SearchOptions
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Substring search ranked by confidence then recency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.mem().Semantic.Search(cmd.Context(), args[0], search))
		},
	}
	searchCmd.Flags().StringVar(&search.Category, "category", "", "Category filter")
	searchCmd.Flags().IntVar(&search.Limit, "limit", memory.DefaultSearchLimit, "Maximum hits")

	var strength float64
	link := &cobra.Command{
		Use:   "link [source-id] [target-id] [type]",
		Short: "Create or update a relationship between two nodes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			sem := a.mem().Semantic
			if !sem.CreateRelationship(cmd.Context(), args[0], args[1], args[2], memory.RelationshipOptions{
				Strength: memory.Float(strength),
			}) {
				return errors.New("relationship not created: both nodes must exist and type must be set")
			}
			return printJSON(cmd.OutOrStdout(), sem.GetRelationship(cmd.Context(), args[0], args[1], args[2]))
		},
	}
	link.Flags().Float64Var(&strength, "strength", memory.DefaultStrength, "Strength 0-1")

	var rq memory.RelationshipQuery
	var direction string
	links := &cobra.Command{
		Use:   "links [node-id]",
		Short: "List a node's relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			rq.Direction = memory.Direction(direction)
			return printJSON(cmd.OutOrStdout(), a.mem().Semantic.GetRelationships(cmd.Context(), args[0], rq))
		},
	}
	links.Flags().StringVar(&direction, "direction", string(memory.DirectionBoth), "outgoing, incoming or both")
	links.Flags().StringVar(&rq.Type, "type", "", "Relationship type filter")

	cmd.AddCommand(store, get, searchCmd, link, links)
	return cmd
}
