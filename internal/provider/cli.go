package provider

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells out to a local agent binary, passing the rendered
// conversation as the final argument.
type CLIProvider struct {
	binaryPath string
	args       []string
	timeout    time.Duration
}

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       args,
		timeout:    2 * time.Minute,
	}, nil
}

// DetectCLIProvider returns a CLIProvider for the first known agent binary
// on PATH.
func DetectCLIProvider() (*CLIProvider, error) {
	tools := []string{"claude", "codex", "gemini", "llm"}
	for _, t := range tools {
		if path, err := exec.LookPath(t); err == nil {
			return NewCLIProvider(path, nil)
		}
	}
	return nil, fmt.Errorf("no local CLI agents detected (tried %s)", strings.Join(tools, ", "))
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

func (p *CLIProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	prompt := renderPrompt(messages)

	fullArgs := append(append([]string{}, p.args...), prompt)

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...)

	output, err := cmd.CombinedOutput()
	result := strings.TrimSpace(string(output))

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("cli agent timed out: %w", err)
		}
		return nil, fmt.Errorf("cli agent failed: %w\nOutput: %s", err, result)
	}

	return &Response{
		Content: result,
		Usage: Usage{
			TotalTokens: len(strings.Fields(result)),
		},
	}, nil
}

// renderPrompt flattens a conversation for tools that take a single prompt.
// A lone user message is passed through unchanged.
func renderPrompt(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s: %s", m.Role, m.Content)
	}
	return sb.String()
}
