package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/ui"
	"github.com/felixgeelhaar/recall/internal/ui/tui"
)

func newChatCmd(opts *options) *cobra.Command {
	var (
		interactive  bool
		providerName string
		modelName    string
	)

	cmd := &cobra.Command{
		Use:   "chat [script]",
		Short: "Run queries through the memory workflow",
		Long: `Each line of the script (or stdin) is one query. Blank lines and lines
starting with # are skipped. With -i an interactive terminal UI is started.`,
		Args: cobra.MaximumNArgs(1),
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

			if interactive {
				return runTUI(cmd.Context(), a, respond)
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open script: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runScript(cmd.Context(), a, respond, in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start interactive TUI")
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "Responder (stub, openai, ollama, gemini, anthropic, cli)")
	cmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	return cmd
}

func runScript(ctx context.Context, a *app, respond runtime.ResponseFunc, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" || strings.HasPrefix(query, "#") {
			continue
		}
		reply := a.ctrl.ProcessInteraction(ctx, query, respond)
		fmt.Fprintf(out, "> %s\n%s\n\n", query, reply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read queries: %w", err)
	}
	fmt.Fprintf(out, "interactions: %d, next consolidation in %d\n",
		a.ctrl.Interactions(ctx), a.ctrl.UntilConsolidation(ctx))
	return nil
}

func runTUI(ctx context.Context, a *app, respond runtime.ResponseFunc) error {
	interval := a.ctrl.Config().ConsolidationInterval
	model := tui.NewModel("recall", interval, func(query string) string {
		return a.ctrl.ProcessInteraction(ctx, query, respond)
	})
	model.Interactions = a.ctrl.Interactions(ctx)

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ui.Bind(a.ctrl.Bus(), tui.NewTUI(program), interval)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}
