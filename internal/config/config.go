// Package config holds the Scheduler's input options and the defaults/
// validation the teacher's executor.Config carries: a plain struct with
// a DefaultOptions constructor and a Validate method, with a couple of
// knobs overridable via environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/steveyegge/orchestra/internal/retry"
)

// RequirementSource describes where the Agent Runtime copies requirement
// material from: a single file ("textual") or a recursive folder copy.
type RequirementSource struct {
	Kind     string // e.g. "requirements", "design-doc"
	Path     string
	IsFolder bool
}

// Options are the Parallel Scheduler's inputs (spec §4.6).
type Options struct {
	WorkDir string

	SkipTests bool
	SkipLint  bool
	DryRun    bool

	MaxIterations int // 0 = unlimited
	RetryPolicy   retry.Policy

	BaseBranch  string // empty => current branch
	MaxParallel int

	RequirementSource RequirementSource
	BrowserEnabled    bool
	ModelOverride     string

	SkipMerge bool
	Tmux      bool

	// SessionPrefix names the multiplexer's tmux sessions; a fixed
	// product string per spec §6.
	SessionPrefix string
	// StateFilePath is where the State Registry persists its document.
	StateFilePath string
}

// DefaultOptions returns conservative defaults, with MaxParallel and
// SessionPrefix overridable via environment variables the way the
// teacher's DefaultConfig pulls a handful of knobs from the environment.
func DefaultOptions(workDir string) Options {
	return Options{
		WorkDir:       workDir,
		MaxIterations: 0,
		RetryPolicy:   retry.DefaultPolicy(),
		MaxParallel:   getEnvInt("ORCHESTRA_MAX_PARALLEL", 3),
		SessionPrefix: getEnvString("ORCHESTRA_SESSION_PREFIX", "orchestra"),
		StateFilePath: getEnvString("ORCHESTRA_STATE_FILE", workDir+"/.orchestra/state.yaml"),
	}
}

// Validate rejects option combinations that cannot run.
func (o Options) Validate() error {
	if o.WorkDir == "" {
		return fmt.Errorf("workDir is required")
	}
	if o.MaxParallel < 1 {
		return fmt.Errorf("maxParallel must be >= 1, got %d", o.MaxParallel)
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0, got %d", o.MaxIterations)
	}
	if o.RequirementSource.Path != "" {
		if _, err := os.Stat(o.RequirementSource.Path); err != nil {
			return fmt.Errorf("requirement source %s: %w", o.RequirementSource.Path, err)
		}
	}
	return nil
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
