// Package workspace implements the Workspace Provider contract (spec
// §6): an isolated git worktree and branch per agent. Adapted from the
// teacher's internal/sandbox/git.go and internal/sandbox/manager.go,
// generalized away from the mission/beads-database domain.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Workspace is what create() hands back: the isolated checkout and the
// branch created in it.
type Workspace struct {
	WorkspaceDir string
	BranchName   string
}

// CleanupResult reports whether uncommitted changes prevented cleanup.
type CleanupResult struct {
	LeftInPlace bool
}

// Provider is the Workspace Provider contract.
type Provider interface {
	GetBase(workDir string) string
	Create(ctx context.Context, taskTitle string, agentNum int, baseBranch, base, workDir string) (Workspace, error)
	Cleanup(ctx context.Context, workspaceDir, branchName, workDir string) (CleanupResult, error)
}

// GitWorktreeProvider creates one git worktree per agent under a
// workspace root directory, on a dedicated branch forked from base.
type GitWorktreeProvider struct {
	// Root is the directory workspaces are created under; if empty,
	// GetBase derives one from the orchestrator's working directory.
	Root string
}

// New returns a GitWorktreeProvider rooted at root. An empty root makes
// GetBase derive the workspace base from each call's workDir.
func New(root string) *GitWorktreeProvider {
	return &GitWorktreeProvider{Root: root}
}

// GetBase returns the workspace base directory for workDir.
func (p *GitWorktreeProvider) GetBase(workDir string) string {
	if p.Root != "" {
		return p.Root
	}
	return filepath.Join(workDir, ".orchestra", "workspaces")
}

var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives the task slug: title lower-cased, each run of
// non-alphanumeric characters -> a single '-', leading and trailing '-'
// trimmed.
func Slug(title string) string {
	lower := strings.ToLower(title)
	slug := slugSanitizer.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// Create materializes an isolated worktree for one agent, on a new branch
// named "agent/<agentNum>-<slug>" forked from base, and checks it out
// against baseBranch as the detached starting point.
func (p *GitWorktreeProvider) Create(ctx context.Context, taskTitle string, agentNum int, baseBranch, base, workDir string) (Workspace, error) {
	slug := Slug(taskTitle)
	if slug == "" {
		slug = uuid.NewString()[:8]
	}

	workspaceBase := p.GetBase(workDir)
	if err := os.MkdirAll(workspaceBase, 0755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace root: %w", err)
	}

	workspaceDir := filepath.Join(workspaceBase, fmt.Sprintf("agent-%d-%s", agentNum, slug))
	if _, err := os.Stat(workspaceDir); err == nil {
		// Name collision (e.g. duplicate titles): disambiguate with a
		// short uuid suffix rather than fail the task.
		workspaceDir = fmt.Sprintf("%s-%s", workspaceDir, uuid.NewString()[:8])
	}

	branchName := fmt.Sprintf("agent/%d-%s", agentNum, slug)

	if err := validateGitRepo(base); err != nil {
		return Workspace{}, fmt.Errorf("base repo validation failed: %w", err)
	}

	startPoint := baseBranch
	if startPoint == "" {
		startPoint = "HEAD"
	}

	if err := runGit(ctx, base, "worktree", "add", "--detach", workspaceDir, startPoint); err != nil {
		_ = os.RemoveAll(workspaceDir)
		return Workspace{}, fmt.Errorf("create worktree: %w", err)
	}

	if err := runGit(ctx, workspaceDir, "checkout", "-b", branchName); err != nil {
		_ = p.removeWorktree(ctx, base, workspaceDir)
		return Workspace{}, fmt.Errorf("create branch %s: %w", branchName, err)
	}

	return Workspace{WorkspaceDir: workspaceDir, BranchName: branchName}, nil
}

// Cleanup removes the worktree unless it has uncommitted changes, in
// which case it is left in place for debugging and LeftInPlace is true.
func (p *GitWorktreeProvider) Cleanup(ctx context.Context, workspaceDir, branchName, workDir string) (CleanupResult, error) {
	if workspaceDir == "" {
		return CleanupResult{}, nil
	}

	dirty, err := hasUncommittedChanges(ctx, workspaceDir)
	if err != nil {
		// Workspace may already be gone; nothing left to clean.
		return CleanupResult{}, nil
	}
	if dirty {
		return CleanupResult{LeftInPlace: true}, nil
	}

	if err := p.removeWorktree(ctx, "", workspaceDir); err != nil {
		return CleanupResult{}, fmt.Errorf("remove worktree: %w", err)
	}
	return CleanupResult{}, nil
}

// removeWorktree removes a git worktree, falling back to manual removal
// plus prune if the git command itself fails.
func (p *GitWorktreeProvider) removeWorktree(ctx context.Context, parentRepo, worktreePath string) error {
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		return nil
	}

	dir := parentRepo
	if dir == "" {
		dir = worktreePath
	}

	if err := runGit(ctx, dir, "worktree", "remove", "--force", worktreePath); err != nil {
		if err := os.RemoveAll(worktreePath); err != nil {
			return fmt.Errorf("remove worktree directory: %w", err)
		}
		_ = runGit(ctx, dir, "worktree", "prune")
		return nil
	}
	return nil
}

func hasUncommittedChanges(ctx context.Context, dir string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}

func validateGitRepo(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return fmt.Errorf("not a git repository: %s", path)
	}
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w (output: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
