// Package scheduler implements the Parallel Scheduler (spec §4.6): it
// batches tasks from a task source, fans out up to maxParallel Agent
// Runtimes concurrently, processes results in launch order, drives the
// Merge Pipeline, and restores the starting branch.
package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/orchestra/internal/agent"
	"github.com/steveyegge/orchestra/internal/config"
	"github.com/steveyegge/orchestra/internal/merge"
	"github.com/steveyegge/orchestra/internal/notify"
	"github.com/steveyegge/orchestra/internal/registry"
	"github.com/steveyegge/orchestra/internal/tasksource"
	"github.com/steveyegge/orchestra/internal/types"
	"github.com/steveyegge/orchestra/internal/workspace"
)

// Git is the subset of the Git contract the scheduler itself depends on
// (branch inspection and restoration); merging is delegated to Merger.
type Git interface {
	GetCurrentBranch(ctx context.Context, workDir string) (string, error)
	ReturnToBaseBranch(ctx context.Context, branch, workDir string) error
}

// Merger is the Merge Pipeline capability the scheduler drives after the
// batch loop exits.
type Merger interface {
	Run(ctx context.Context, branches []string, target, repoDir string) merge.Result
}

// Runtime is the Agent Runtime capability the scheduler fans out over.
// *agent.Runtime satisfies this; tests substitute a fake.
type Runtime interface {
	Run(ctx context.Context, in agent.RunInput) agent.Outcome
}

// groupAdvertiser is the optional capability a task source may implement
// to opt into the next-task-plus-group batch selection path; sources
// that don't implement it always get the all-remaining-tasks path.
type groupAdvertiser interface {
	AdvertisesGrouping() bool
}

// Deps are the Scheduler's collaborators.
type Deps struct {
	Source    tasksource.Source
	Runtime   Runtime
	Workspace workspace.Provider
	Git       Git
	Merger    Merger
	Registry  *registry.Registry
	Notifier  notify.Notifier
}

// Result is what Run reports once the batch loop and merge phase finish.
type Result struct {
	Summary           types.Summary
	CompletedBranches []string
	FailedTaskIDs     []string
}

// Scheduler runs the full batch loop described in spec §4.6.
type Scheduler struct {
	deps Deps
}

// New returns a Scheduler backed by deps.
func New(deps Deps) *Scheduler {
	return &Scheduler{deps: deps}
}

// Run drives the batch loop, the merge phase, and starting-branch
// restoration, per opts.
func (s *Scheduler) Run(ctx context.Context, opts config.Options) (Result, error) {
	startingBranch, err := s.deps.Git.GetCurrentBranch(ctx, opts.WorkDir)
	if err != nil {
		return Result{}, fmt.Errorf("get starting branch: %w", err)
	}

	effectiveBase := opts.BaseBranch
	if effectiveBase == "" {
		effectiveBase = startingBranch
	}

	var completedBranches []string
	failedTaskIDs := make(map[string]bool)
	globalAgentNum := 0
	iteration := 0
	totalSet := false

batchLoop:
	for {
		if opts.MaxIterations > 0 && iteration >= opts.MaxIterations {
			break
		}

		batch := s.selectBatch()
		filtered := make([]types.Task, 0, len(batch))
		filteredAny := false
		for _, t := range batch {
			if failedTaskIDs[t.ID] {
				filteredAny = true
				continue
			}
			filtered = append(filtered, t)
		}

		if len(filtered) == 0 {
			if filteredAny {
				s.deps.Notifier.Warn("some tasks pending but previously failed; stopping")
			}
			break batchLoop
		}

		if !totalSet {
			total := s.deps.Source.CountRemaining()
			s.deps.Registry.UpdateSummary(registry.SummaryPatch{Total: &total})
			totalSet = true
		}

		if len(filtered) > opts.MaxParallel {
			filtered = filtered[:opts.MaxParallel]
		}
		iteration++

		inProgress := len(filtered)
		s.deps.Registry.UpdateSummary(registry.SummaryPatch{InProgress: &inProgress})

		if opts.DryRun {
			continue
		}

		agentIDs := make([]string, len(filtered))
		for i := range filtered {
			globalAgentNum++
			agentIDs[i] = strconv.Itoa(globalAgentNum)
		}

		outcomes := make([]agent.Outcome, len(filtered))
		g, gctx := errgroup.WithContext(ctx)
		for i := range filtered {
			i := i
			task := filtered[i]
			agentID := agentIDs[i]
			agentNum := globalAgentNum - len(filtered) + i + 1
			g.Go(func() error {
				outcomes[i] = s.deps.Runtime.Run(gctx, agent.RunInput{
					AgentID:           agentID,
					Task:              task,
					AgentNum:          agentNum,
					BaseBranch:        effectiveBase,
					RepoDir:           opts.WorkDir,
					WorkDir:           opts.WorkDir,
					SkipTests:         opts.SkipTests,
					SkipLint:          opts.SkipLint,
					BrowserEnabled:    opts.BrowserEnabled,
					ModelOverride:     opts.ModelOverride,
					Tmux:              opts.Tmux,
					RequirementSource: opts.RequirementSource,
				})
				return nil
			})
		}
		// Agent Runtime never returns an error from Go's closure; Wait
		// only joins the barrier.
		_ = g.Wait()

		for _, out := range outcomes {
			failed := out.Err != nil || !out.Result.Success

			if !failed {
				s.deps.Source.MarkComplete(out.Task.ID)
				s.deps.Registry.IncrementCompleted()
				s.deps.Notifier.Success("%s: finished", out.Task.Title)
				if out.BranchName != "" {
					completedBranches = append(completedBranches, out.BranchName)
				}
			} else {
				errMsg := out.Result.Error
				if out.Err != nil {
					errMsg = out.Err.Error()
				}
				s.deps.Registry.IncrementFailed()
				failedTaskIDs[out.Task.ID] = true
				s.deps.Notifier.Fail("%s: %s", out.Task.Title, errMsg)
			}

			s.cleanupWorkspace(ctx, out, failed, opts)
		}
	}

	if !opts.SkipMerge && !opts.DryRun && len(completedBranches) > 0 {
		s.deps.Merger.Run(ctx, completedBranches, effectiveBase, opts.WorkDir)
	}

	if current, err := s.deps.Git.GetCurrentBranch(ctx, opts.WorkDir); err == nil && current != startingBranch {
		if err := s.deps.Git.ReturnToBaseBranch(ctx, startingBranch, opts.WorkDir); err != nil {
			s.deps.Notifier.Warn("restore starting branch %s: %v", startingBranch, err)
		}
	}

	failedIDs := make([]string, 0, len(failedTaskIDs))
	for id := range failedTaskIDs {
		failedIDs = append(failedIDs, id)
	}

	return Result{
		Summary:           s.deps.Registry.Snapshot().Summary,
		CompletedBranches: completedBranches,
		FailedTaskIDs:     failedIDs,
	}, nil
}

// cleanupWorkspace applies spec §4.6's workspace cleanup policy: preserve
// a tmux agent's workspace on failure for debugging; otherwise request
// cleanup and surface a notice if uncommitted changes prevented it.
func (s *Scheduler) cleanupWorkspace(ctx context.Context, out agent.Outcome, failed bool, opts config.Options) {
	if out.WorkspaceDir == "" {
		return
	}

	if opts.Tmux && failed {
		s.deps.Notifier.Warn("preserving workspace for debugging: %s", out.WorkspaceDir)
		return
	}

	result, err := s.deps.Workspace.Cleanup(ctx, out.WorkspaceDir, out.BranchName, opts.WorkDir)
	if err != nil {
		s.deps.Notifier.Warn("cleanup failed for %s: %v", out.WorkspaceDir, err)
		return
	}
	if result.LeftInPlace {
		s.deps.Notifier.Warn("left in place (uncommitted changes): %s", out.WorkspaceDir)
	}
}

// selectBatch implements spec §4.6's batch-selection rule: a source that
// advertises parallel grouping yields the next task's full group (or a
// singleton); any other source yields every remaining task.
func (s *Scheduler) selectBatch() []types.Task {
	advertiser, ok := s.deps.Source.(groupAdvertiser)
	if !ok || !advertiser.AdvertisesGrouping() {
		return s.deps.Source.GetAllTasks()
	}

	next := s.deps.Source.GetNextTask()
	if next == nil {
		return nil
	}

	group := s.deps.Source.GetParallelGroup(next.Title)
	if group != 0 {
		if tasks := s.deps.Source.GetTasksInGroup(group); len(tasks) > 0 {
			return tasks
		}
	}
	return []types.Task{*next}
}
