package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	run("commit", "--allow-empty", "-q", "-m", "initial")
	run("branch", "-M", "main")
	return dir
}

func TestSlugDerivation(t *testing.T) {
	require.Equal(t, "add-login-form", Slug("Add Login Form"))
	require.Equal(t, "fix-bug-123", Slug("Fix bug #123!"))
}

func TestCreateProducesWorktreeAndBranch(t *testing.T) {
	repo := initRepo(t)
	root := t.TempDir()
	p := New(root)

	ws, err := p.Create(context.Background(), "Add login form", 1, "main", repo, repo)
	require.NoError(t, err)
	require.DirExists(t, ws.WorkspaceDir)
	require.Equal(t, "agent/1-add-login-form", ws.BranchName)

	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = ws.WorkspaceDir
	out, err := cmd.Output()
	require.NoError(t, err)
	require.Contains(t, string(out), "agent/1-add-login-form")
}

func TestCleanupRemovesCleanWorkspace(t *testing.T) {
	repo := initRepo(t)
	root := t.TempDir()
	p := New(root)

	ws, err := p.Create(context.Background(), "Task A", 1, "main", repo, repo)
	require.NoError(t, err)

	res, err := p.Cleanup(context.Background(), ws.WorkspaceDir, ws.BranchName, repo)
	require.NoError(t, err)
	require.False(t, res.LeftInPlace)
	require.NoDirExists(t, ws.WorkspaceDir)
}

func TestCleanupLeavesDirtyWorkspaceInPlace(t *testing.T) {
	repo := initRepo(t)
	root := t.TempDir()
	p := New(root)

	ws, err := p.Create(context.Background(), "Task B", 2, "main", repo, repo)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ws.WorkspaceDir, "scratch.txt"), []byte("wip"), 0644))

	res, err := p.Cleanup(context.Background(), ws.WorkspaceDir, ws.BranchName, repo)
	require.NoError(t, err)
	require.True(t, res.LeftInPlace)
	require.DirExists(t, ws.WorkspaceDir)
}
