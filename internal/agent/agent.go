// Package agent implements the Agent Runtime (spec §4.4): the lifecycle
// of exactly one task, from workspace creation through engine invocation
// to outcome reporting.
package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/steveyegge/orchestra/internal/config"
	"github.com/steveyegge/orchestra/internal/driver"
	"github.com/steveyegge/orchestra/internal/engine"
	"github.com/steveyegge/orchestra/internal/notify"
	"github.com/steveyegge/orchestra/internal/prompt"
	"github.com/steveyegge/orchestra/internal/registry"
	"github.com/steveyegge/orchestra/internal/retry"
	"github.com/steveyegge/orchestra/internal/types"
	"github.com/steveyegge/orchestra/internal/workspace"
)

// Deps are the Agent Runtime's collaborators.
type Deps struct {
	Workspace     workspace.Provider
	Engine        engine.Engine
	Registry      *registry.Registry
	Prompts       *prompt.Builder
	Notifier      notify.Notifier
	SessionPrefix string
	RetryPolicy   retry.Policy
}

// RunInput is everything one invocation of the runtime needs.
type RunInput struct {
	AgentID           string
	Task              types.Task
	AgentNum          int
	BaseBranch        string // explicit override, may be empty
	RepoDir           string // the base repo the workspace is forked from
	WorkDir           string // orchestrator's working directory
	SkipTests         bool
	SkipLint          bool
	BrowserEnabled    bool
	ModelOverride     string
	Tmux              bool
	RequirementSource config.RequirementSource
}

// Outcome is what the runtime reports back to the Scheduler, which — not
// the runtime — owns workspace cleanup.
type Outcome struct {
	Task         types.Task
	WorkspaceDir string
	BranchName   string
	Result       engine.Result
	// Err is set for workspace creation/preparation failures, kept
	// distinct from an engine-reported failure (Result.Success == false)
	// so the scheduler can record it uniformly but still tell the two
	// apart when it chooses to.
	Err error
}

// Runtime runs one task end to end.
type Runtime struct {
	deps Deps
}

// New returns a Runtime backed by deps.
func New(deps Deps) *Runtime {
	return &Runtime{deps: deps}
}

// Run drives the full lifecycle for in.
func (rt *Runtime) Run(ctx context.Context, in RunInput) Outcome {
	pending := types.StatusPending
	creating := "Creating worktree"
	rt.deps.Registry.UpdateAgent(in.AgentID, registry.Patch{Status: &pending, Step: &creating}, in.Task.Title)

	ws, err := rt.deps.Workspace.Create(ctx, in.Task.Title, in.AgentNum, in.BaseBranch, in.RepoDir, in.WorkDir)
	if err != nil {
		rt.recordFailure(in.AgentID, in.Task.Title, fmt.Sprintf("workspace creation failed: %v", err))
		return Outcome{Task: in.Task, Err: err}
	}

	preparing := "Preparing worktree"
	rt.deps.Registry.UpdateAgent(in.AgentID, registry.Patch{
		Step:         &preparing,
		WorkspaceDir: &ws.WorkspaceDir,
		BranchName:   &ws.BranchName,
	}, in.Task.Title)

	if err := copyRequirementSource(in.RequirementSource, in.WorkDir, ws.WorkspaceDir); err != nil {
		rt.recordFailure(in.AgentID, in.Task.Title, fmt.Sprintf("requirement copy failed: %v", err))
		return Outcome{Task: in.Task, WorkspaceDir: ws.WorkspaceDir, BranchName: ws.BranchName, Err: err}
	}

	if err := os.MkdirAll(filepath.Join(ws.WorkspaceDir, ".orchestra"), 0755); err != nil {
		rt.recordFailure(in.AgentID, in.Task.Title, fmt.Sprintf("metadata dir creation failed: %v", err))
		return Outcome{Task: in.Task, WorkspaceDir: ws.WorkspaceDir, BranchName: ws.BranchName, Err: err}
	}

	promptText, err := rt.deps.Prompts.Build(prompt.Context{
		TaskID:       in.Task.ID,
		TaskTitle:    in.Task.Title,
		WorkspaceDir: ws.WorkspaceDir,
		BranchName:   ws.BranchName,
		Flags: prompt.Flags{
			SkipTests:      in.SkipTests,
			SkipLint:       in.SkipLint,
			BrowserEnabled: in.BrowserEnabled,
		},
	})
	if err != nil {
		rt.recordFailure(in.AgentID, in.Task.Title, fmt.Sprintf("prompt build failed: %v", err))
		return Outcome{Task: in.Task, WorkspaceDir: ws.WorkspaceDir, BranchName: ws.BranchName, Err: err}
	}

	taskSlug := workspace.Slug(in.Task.Title)

	engineOpts := engine.Options{
		ModelOverride: in.ModelOverride,
		Tmux:          in.Tmux,
		AgentID:       in.AgentID,
		TaskSlug:      taskSlug,
	}

	if in.Tmux {
		sessionName := driver.SessionName(rt.deps.SessionPrefix, in.AgentID, taskSlug)
		executing := "Executing (tmux)"
		rt.deps.Registry.UpdateAgent(in.AgentID, registry.Patch{Step: &executing, TmuxSession: &sessionName}, in.Task.Title)
		if rt.deps.Notifier != nil {
			rt.deps.Notifier.Info("attach with: tmux attach -t %s", sessionName)
		}
	} else {
		executing := "Executing"
		rt.deps.Registry.UpdateAgent(in.AgentID, registry.Patch{Step: &executing}, in.Task.Title)
	}

	engineOpts.OnProgress = func(step string) {
		rt.deps.Registry.UpdateAgent(in.AgentID, registry.Patch{Step: &step}, in.Task.Title)
	}

	var engineResult engine.Result
	_, retryErr := retry.Do(ctx, rt.deps.RetryPolicy, func(ctx context.Context) (retry.Outcome, error) {
		res, err := rt.deps.Engine.ExecuteStreaming(ctx, promptText, ws.WorkspaceDir, engineOpts)
		if err != nil {
			return retry.Outcome{}, err
		}
		engineResult = res
		return retry.Outcome{Success: res.Success, Error: res.Error}, nil
	})

	if retryErr != nil {
		rt.recordFailure(in.AgentID, in.Task.Title, retryErr.Error())
		return Outcome{Task: in.Task, WorkspaceDir: ws.WorkspaceDir, BranchName: ws.BranchName, Err: retryErr}
	}

	if engineResult.Success {
		completed := types.StatusCompleted
		finished := "Finished"
		rt.deps.Registry.UpdateAgent(in.AgentID, registry.Patch{Status: &completed, Step: &finished}, in.Task.Title)
	} else {
		rt.recordFailure(in.AgentID, in.Task.Title, engineResult.Error)
	}

	return Outcome{Task: in.Task, WorkspaceDir: ws.WorkspaceDir, BranchName: ws.BranchName, Result: engineResult}
}

func (rt *Runtime) recordFailure(agentID, taskTitle, errMsg string) {
	failed := types.StatusFailed
	failedStep := "Failed"
	rt.deps.Registry.UpdateAgent(agentID, registry.Patch{Status: &failed, Step: &failedStep, Error: &errMsg}, taskTitle)
}

// copyRequirementSource copies src.Path (resolved relative to workDir if
// not absolute) into the workspace: a single file for textual sources, a
// recursive copy for folder sources. A missing source is silently
// skipped; intermediate directories are created.
func copyRequirementSource(src config.RequirementSource, workDir, workspaceDir string) error {
	if src.Path == "" {
		return nil
	}

	path := src.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat requirement source: %w", err)
	}

	dest := filepath.Join(workspaceDir, filepath.Base(path))

	if src.IsFolder || info.IsDir() {
		return copyDir(path, dest)
	}
	return copyFile(path, dest)
}

func copyDir(src, dest string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create intermediate dirs: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy contents: %w", err)
	}
	return nil
}
