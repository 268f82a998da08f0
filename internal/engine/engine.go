// Package engine defines the Engine Adapter contract — the abstraction
// over an AI command-line assistant invoked as a child process — and
// ships two concrete adapters, claude-code and amp.
package engine

import (
	"context"
	"strings"

	"github.com/steveyegge/orchestra/internal/classifier"
)

// Options carries the per-invocation knobs an engine recognizes.
type Options struct {
	ModelOverride string
	Tmux          bool
	AgentID       string
	TaskSlug      string
	OnProgress    func(step string)
}

// Result is the outcome of a single engine invocation.
type Result struct {
	Success      bool
	Response     string
	InputTokens  int
	OutputTokens int
	Cost         float64
	Error        string
}

// Engine is the Engine Adapter contract (spec §4.3). Concrete engines are
// plug-ins; the rest of the system is parametric over this interface.
type Engine interface {
	// Name is the engine's display name.
	Name() string
	// Command is the command-line executable name this engine invokes.
	Command() string
	// IsAvailable resolves whether Command() is discoverable on PATH.
	IsAvailable() bool
	// Execute blocks until the engine finishes and returns its result.
	Execute(ctx context.Context, prompt, workDir string, opts Options) (Result, error)
	// ExecuteStreaming behaves like Execute but additionally invokes
	// opts.OnProgress with each non-empty step label the classifier
	// derives from the streamed lines as the engine runs.
	ExecuteStreaming(ctx context.Context, prompt, workDir string, opts Options) (Result, error)
}

// splitLines splits captured blocking output at '\n', for feeding a
// classifier.Accumulator after the fact. Unlike the streaming driver it
// neither trims lines nor drops empty ones; Feed ignores those itself.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// buildResult turns an accumulator's final state plus an exit code into
// the Engine Adapter's Result shape. success is exitCode == 0 and no
// error record was seen.
func buildResult(exitCode int, acc *classifier.Accumulator) Result {
	errMsg, hasError := acc.Error()
	usage := acc.TokenUsage()

	success := exitCode == 0 && !hasError
	res := Result{
		Success:      success,
		Response:     usage.Response,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}
	if !success {
		if hasError {
			res.Error = errMsg
		} else {
			res.Error = "engine exited with non-zero status"
		}
	}
	return res
}
