package engine

import (
	"context"
	"fmt"

	"github.com/steveyegge/orchestra/internal/classifier"
	"github.com/steveyegge/orchestra/internal/driver"
)

// ClaudeCode adapts Anthropic's Claude Code CLI, invoked the way the
// teacher's buildClaudeCodeCommand does: --print --dangerously-skip-permissions,
// plus --verbose --output-format stream-json for the streaming variant.
type ClaudeCode struct {
	driver *driver.Driver
}

// NewClaudeCode returns a ClaudeCode engine backed by d.
func NewClaudeCode(d *driver.Driver) *ClaudeCode {
	return &ClaudeCode{driver: d}
}

func (c *ClaudeCode) Name() string    { return "Claude Code" }
func (c *ClaudeCode) Command() string { return "claude" }

func (c *ClaudeCode) IsAvailable() bool {
	return c.driver.Exists(c.Command())
}

func (c *ClaudeCode) Execute(ctx context.Context, prompt, workDir string, opts Options) (Result, error) {
	args := c.baseArgs(prompt, opts)
	res, err := c.driver.Execute(ctx, c.Command(), args, workDir, nil)
	if err != nil {
		return Result{}, fmt.Errorf("claude-code execute: %w", err)
	}
	acc := classifier.NewAccumulator()
	for _, line := range splitLines(res.Stdout) {
		acc.Feed(line)
	}
	return buildResult(res.ExitCode, acc), nil
}

func (c *ClaudeCode) ExecuteStreaming(ctx context.Context, prompt, workDir string, opts Options) (Result, error) {
	args := append(c.baseArgs(prompt, opts), "--verbose", "--output-format", "stream-json")
	acc := classifier.NewAccumulator()

	onLine := func(line string) {
		step := acc.Feed(line)
		if step != "" && opts.OnProgress != nil {
			opts.OnProgress(step)
		}
	}

	driverOpts := driver.Options{Tmux: opts.Tmux, AgentID: opts.AgentID, TaskSlug: opts.TaskSlug}
	streamRes, err := c.driver.ExecuteStreaming(ctx, c.Command(), args, workDir, onLine, nil, driverOpts)
	if err != nil {
		return Result{}, fmt.Errorf("claude-code execute streaming: %w", err)
	}
	if streamRes.Stdout != "" {
		for _, line := range splitLines(streamRes.Stdout) {
			acc.Feed(line)
		}
	}
	return buildResult(streamRes.ExitCode, acc), nil
}

func (c *ClaudeCode) baseArgs(prompt string, opts Options) []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if opts.ModelOverride != "" {
		args = append(args, "--model", opts.ModelOverride)
	}
	return append(args, prompt)
}
