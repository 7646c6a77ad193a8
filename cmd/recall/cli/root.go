package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	dbPath     string
	inMemory   bool
	verbose    bool
	jsonLogs   bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "recall",
		Short: "Tiered conversational memory",
		Long: `Recall keeps short-term context, an episodic conversation log and a
knowledge graph for an assistant, and enriches each query with what it remembers.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default ~/.recall/config.yaml)")
	flags.StringVar(&opts.dbPath, "db", "", "Database path (overrides database.path)")
	flags.BoolVar(&opts.inMemory, "in-memory", false, "Keep memory for this process only")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.BoolVar(&opts.jsonLogs, "json", false, "Emit JSON logs")

	root.AddCommand(
		newChatCmd(opts),
		newContextCmd(opts),
		newWorkingCmd(opts),
		newHistoryCmd(opts),
		newKnowledgeCmd(opts),
		newConsolidateCmd(opts),
		newExtractCmd(opts),
		newSeedCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
