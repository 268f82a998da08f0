package engine

import (
	"context"
	"fmt"

	"github.com/steveyegge/orchestra/internal/classifier"
	"github.com/steveyegge/orchestra/internal/driver"
)

// Amp adapts Sourcegraph's amp CLI, invoked the way the teacher's
// buildAmpCommand does: --dangerously-allow-all --execute <prompt>, plus
// --stream-json for the streaming variant.
type Amp struct {
	driver *driver.Driver
}

// NewAmp returns an Amp engine backed by d.
func NewAmp(d *driver.Driver) *Amp {
	return &Amp{driver: d}
}

func (a *Amp) Name() string    { return "Amp" }
func (a *Amp) Command() string { return "amp" }

func (a *Amp) IsAvailable() bool {
	return a.driver.Exists(a.Command())
}

func (a *Amp) Execute(ctx context.Context, prompt, workDir string, opts Options) (Result, error) {
	args := a.baseArgs(prompt, opts)
	res, err := a.driver.Execute(ctx, a.Command(), args, workDir, nil)
	if err != nil {
		return Result{}, fmt.Errorf("amp execute: %w", err)
	}
	acc := classifier.NewAccumulator()
	for _, line := range splitLines(res.Stdout) {
		acc.Feed(line)
	}
	return buildResult(res.ExitCode, acc), nil
}

func (a *Amp) ExecuteStreaming(ctx context.Context, prompt, workDir string, opts Options) (Result, error) {
	args := append(a.baseArgs(prompt, opts), "--stream-json")
	acc := classifier.NewAccumulator()

	onLine := func(line string) {
		step := acc.Feed(line)
		if step != "" && opts.OnProgress != nil {
			opts.OnProgress(step)
		}
	}

	driverOpts := driver.Options{Tmux: opts.Tmux, AgentID: opts.AgentID, TaskSlug: opts.TaskSlug}
	streamRes, err := a.driver.ExecuteStreaming(ctx, a.Command(), args, workDir, onLine, nil, driverOpts)
	if err != nil {
		return Result{}, fmt.Errorf("amp execute streaming: %w", err)
	}
	if streamRes.Stdout != "" {
		for _, line := range splitLines(streamRes.Stdout) {
			acc.Feed(line)
		}
	}
	return buildResult(streamRes.ExitCode, acc), nil
}

func (a *Amp) baseArgs(prompt string, opts Options) []string {
	args := []string{"--dangerously-allow-all", "--execute", prompt}
	if opts.ModelOverride != "" {
		args = append(args, "--model", opts.ModelOverride)
	}
	return args
}
