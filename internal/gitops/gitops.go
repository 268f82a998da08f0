// Package gitops implements the Git contract (spec §6): branch
// inspection, restoration, merging with conflict detection, merge abort,
// and branch deletion, all via the git CLI. Adapted from the teacher's
// internal/sandbox/git.go and internal/git/git.go.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// MergeResult is the outcome of attempting to merge a branch.
type MergeResult struct {
	Success         bool
	HasConflicts    bool
	ConflictedFiles []string
	Error           string
}

// Git implements the Git contract using the git CLI.
type Git struct{}

// New returns a Git. It does not verify git is on PATH; callers that need
// that check can use Exists via the Process Driver.
func New() *Git {
	return &Git{}
}

// GetCurrentBranch returns the branch checked out in workDir.
func (g *Git) GetCurrentBranch(ctx context.Context, workDir string) (string, error) {
	out, err := g.run(ctx, workDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ReturnToBaseBranch checks out branch in workDir, best-effort.
func (g *Git) ReturnToBaseBranch(ctx context.Context, branch, workDir string) error {
	if _, err := g.run(ctx, workDir, "checkout", branch); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	return nil
}

// MergeAgentBranch merges branch into target, checked out in workDir. On
// a conflicted merge it extracts the conflicted file set, leaves the
// merge in progress, and returns HasConflicts with no error — conflicts
// are not errors, they are routed to AI-assisted resolution by the
// caller, which finalizes or aborts the merge.
func (g *Git) MergeAgentBranch(ctx context.Context, branch, target, workDir string) (MergeResult, error) {
	if _, err := g.run(ctx, workDir, "rev-parse", "--verify", branch); err != nil {
		return MergeResult{}, fmt.Errorf("branch %s does not exist: %w", branch, err)
	}

	if _, err := g.run(ctx, workDir, "checkout", target); err != nil {
		return MergeResult{}, fmt.Errorf("checkout %s: %w", target, err)
	}

	mergeOut, mergeErr := g.run(ctx, workDir, "merge", "--no-ff", "-m",
		fmt.Sprintf("Merge agent branch %s", branch), branch)
	if mergeErr == nil {
		return MergeResult{Success: true}, nil
	}

	conflicted, statusErr := g.conflictedFiles(ctx, workDir)
	if statusErr == nil && len(conflicted) > 0 {
		return MergeResult{HasConflicts: true, ConflictedFiles: conflicted}, nil
	}

	return MergeResult{Error: fmt.Sprintf("git merge failed: %v (output: %s)", mergeErr, mergeOut)}, nil
}

// AbortMerge returns the working tree in workDir to its pre-merge state.
func (g *Git) AbortMerge(ctx context.Context, workDir string) error {
	if _, err := g.run(ctx, workDir, "merge", "--abort"); err != nil {
		return fmt.Errorf("merge --abort: %w", err)
	}
	return nil
}

// DeleteLocalBranch deletes branch in workDir. force maps to -D vs -d.
func (g *Git) DeleteLocalBranch(ctx context.Context, branch, workDir string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := g.run(ctx, workDir, "branch", flag, branch); err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}

// CommitResolvedMerge finalizes an in-progress merge whose conflicts have
// already been staged by the conflict resolver, using the merge's
// prepared commit message.
func (g *Git) CommitResolvedMerge(ctx context.Context, workDir string) error {
	if _, err := g.run(ctx, workDir, "commit", "--no-edit"); err != nil {
		return fmt.Errorf("commit resolved merge: %w", err)
	}
	return nil
}

// UnresolvedConflicts reports the files still marked unmerged in workDir,
// used by the merge pipeline to verify an AI-assisted conflict resolution
// actually resolved everything before it is treated as a successful merge.
func (g *Git) UnresolvedConflicts(ctx context.Context, workDir string) ([]string, error) {
	return g.conflictedFiles(ctx, workDir)
}

// conflictedFiles parses `git status --porcelain` for "UU " entries,
// the unmerged-both-modified marker the teacher's mergeBranchToMain
// checks for.
func (g *Git) conflictedFiles(ctx context.Context, workDir string) ([]string, error) {
	out, err := g.run(ctx, workDir, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "UU ") {
			files = append(files, strings.TrimSpace(strings.TrimPrefix(line, "UU ")))
		}
	}
	return files, nil
}

func (g *Git) run(ctx context.Context, workDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), err
	}
	return string(out), nil
}
