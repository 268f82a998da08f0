// Package merge implements the Merge Pipeline (spec §4.7): a strictly
// sequential pass over completed branches that merges each into the
// target branch, routing conflicts to the engine's conflict-resolution
// workflow before giving up on a branch.
package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/orchestra/internal/engine"
	"github.com/steveyegge/orchestra/internal/gitops"
	"github.com/steveyegge/orchestra/internal/notify"
)

// Result is the pipeline's outcome: which branches ended up merged, and
// which failed and are kept around for manual review.
type Result struct {
	Merged []string
	Failed []string
}

// Git is the subset of the Git contract the pipeline depends on.
type Git interface {
	MergeAgentBranch(ctx context.Context, branch, target, workDir string) (gitops.MergeResult, error)
	AbortMerge(ctx context.Context, workDir string) error
	CommitResolvedMerge(ctx context.Context, workDir string) error
	UnresolvedConflicts(ctx context.Context, workDir string) ([]string, error)
	DeleteLocalBranch(ctx context.Context, branch, workDir string, force bool) error
}

// Pipeline runs the Merge Pipeline.
type Pipeline struct {
	git      Git
	eng      engine.Engine
	notifier notify.Notifier
}

// New returns a Pipeline. eng is used only for its blocking Execute, to
// run the conflict-resolution workflow.
func New(git Git, eng engine.Engine, notifier notify.Notifier) *Pipeline {
	return &Pipeline{git: git, eng: eng, notifier: notifier}
}

// Run merges each of branches, in order, into target checked out in
// repoDir, never concurrently.
func (p *Pipeline) Run(ctx context.Context, branches []string, target, repoDir string) Result {
	var merged, failed []string

	for _, branch := range branches {
		res, err := p.git.MergeAgentBranch(ctx, branch, target, repoDir)
		if err != nil {
			p.notifier.Fail("merge %s: %v", branch, err)
			failed = append(failed, branch)
			continue
		}

		switch {
		case res.Success:
			merged = append(merged, branch)

		case res.HasConflicts:
			if p.resolveConflicts(ctx, branch, res.ConflictedFiles, repoDir) {
				merged = append(merged, branch)
			} else {
				if err := p.git.AbortMerge(ctx, repoDir); err != nil {
					p.notifier.Warn("abort merge for %s failed: %v", branch, err)
				}
				p.notifier.Fail("merge %s: conflict resolution did not succeed", branch)
				failed = append(failed, branch)
			}

		default:
			p.notifier.Fail("merge %s: %s", branch, res.Error)
			failed = append(failed, branch)
		}
	}

	for _, branch := range merged {
		if err := p.git.DeleteLocalBranch(ctx, branch, repoDir, true); err != nil {
			p.notifier.Warn("delete branch %s: %v", branch, err)
		}
	}

	p.notifier.Info("merge summary: %d merged, %d failed", len(merged), len(failed))
	if len(failed) > 0 {
		p.notifier.Warn("branches kept for manual review: %s", strings.Join(failed, ", "))
	}

	return Result{Merged: merged, Failed: failed}
}

// resolveConflicts prompts the engine to resolve conflictedFiles, then
// verifies the resolution actually cleared every unmerged path before
// finalizing the merge commit.
func (p *Pipeline) resolveConflicts(ctx context.Context, branch string, conflictedFiles []string, repoDir string) bool {
	result, err := p.eng.Execute(ctx, conflictResolutionPrompt(branch, conflictedFiles), repoDir, engine.Options{})
	if err != nil || !result.Success {
		return false
	}

	remaining, err := p.git.UnresolvedConflicts(ctx, repoDir)
	if err != nil || len(remaining) > 0 {
		return false
	}

	if err := p.git.CommitResolvedMerge(ctx, repoDir); err != nil {
		p.notifier.Warn("finalize resolved merge for %s: %v", branch, err)
		return false
	}
	return true
}

func conflictResolutionPrompt(branch string, files []string) string {
	return fmt.Sprintf(
		"Merging branch %q produced conflicts in the following files:\n\n%s\n\n"+
			"Resolve every conflict marker, preserving the intent of both sides where "+
			"possible, stage the resolved files, and leave the working tree ready to "+
			"complete the merge commit. Do not abort the merge.",
		branch, strings.Join(files, "\n"),
	)
}
