package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
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
}

func writeAndCommit(t *testing.T, dir, file, content, msg string) {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cmd := exec.Command("git", "add", "-A")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	cmd = exec.Command("git", "commit", "-q", "-m", msg)
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
}

func checkout(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"checkout"}, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestGetCurrentBranch(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	g := New()
	branch, err := g.GetCurrentBranch(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestMergeCleanBranchSucceeds(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	checkout(t, dir, "-b", "agent/1-feature")
	writeAndCommit(t, dir, "feature.txt", "hello", "add feature")

	g := New()
	res, err := g.MergeAgentBranch(context.Background(), "agent/1-feature", "main", dir)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.HasConflicts)
}

func TestMergeConflictingBranchReportsConflictNotError(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeAndCommit(t, dir, "shared.txt", "base", "base content")

	checkout(t, dir, "-b", "agent/1-conflict")
	writeAndCommit(t, dir, "shared.txt", "agent change", "agent edits shared")

	checkout(t, dir, "main")
	writeAndCommit(t, dir, "shared.txt", "main change", "main edits shared")

	g := New()
	res, err := g.MergeAgentBranch(context.Background(), "agent/1-conflict", "main", dir)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, res.HasConflicts)
	require.Contains(t, res.ConflictedFiles, "shared.txt")

	require.NoError(t, g.AbortMerge(context.Background(), dir))
}

func TestDeleteLocalBranchForce(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	checkout(t, dir, "-b", "agent/2-throwaway")
	checkout(t, dir, "main")

	g := New()
	require.NoError(t, g.DeleteLocalBranch(context.Background(), "agent/2-throwaway", dir, true))
}
