package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/orchestra/internal/engine"
	"github.com/steveyegge/orchestra/internal/gitops"
	"github.com/steveyegge/orchestra/internal/notify"
)

type fakeGit struct {
	mergeResults map[string]gitops.MergeResult
	mergeErrs    map[string]error
	deleted      []string
	unresolved   []string
	committed    bool
	aborted      bool
}

func (f *fakeGit) MergeAgentBranch(ctx context.Context, branch, target, workDir string) (gitops.MergeResult, error) {
	return f.mergeResults[branch], f.mergeErrs[branch]
}

func (f *fakeGit) AbortMerge(ctx context.Context, workDir string) error {
	f.aborted = true
	return nil
}

func (f *fakeGit) CommitResolvedMerge(ctx context.Context, workDir string) error {
	f.committed = true
	return nil
}

func (f *fakeGit) UnresolvedConflicts(ctx context.Context, workDir string) ([]string, error) {
	return f.unresolved, nil
}

func (f *fakeGit) DeleteLocalBranch(ctx context.Context, branch, workDir string, force bool) error {
	f.deleted = append(f.deleted, branch)
	return nil
}

type fakeEngine struct {
	result engine.Result
	err    error
}

func (f *fakeEngine) Name() string      { return "fake" }
func (f *fakeEngine) Command() string   { return "fake" }
func (f *fakeEngine) IsAvailable() bool { return true }

func (f *fakeEngine) Execute(ctx context.Context, prompt, workDir string, opts engine.Options) (engine.Result, error) {
	return f.result, f.err
}

func (f *fakeEngine) ExecuteStreaming(ctx context.Context, prompt, workDir string, opts engine.Options) (engine.Result, error) {
	return f.result, f.err
}

func TestRunMergesCleanBranches(t *testing.T) {
	git := &fakeGit{
		mergeResults: map[string]gitops.MergeResult{
			"agent/1-a": {Success: true},
		},
	}
	eng := &fakeEngine{}
	p := New(git, eng, &notify.Recording{})

	res := p.Run(context.Background(), []string{"agent/1-a"}, "main", "/repo")

	assert.Equal(t, []string{"agent/1-a"}, res.Merged)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"agent/1-a"}, git.deleted)
}

func TestRunResolvesConflictViaEngine(t *testing.T) {
	git := &fakeGit{
		mergeResults: map[string]gitops.MergeResult{
			"agent/1-a": {Success: true},
			"agent/2-b": {HasConflicts: true, ConflictedFiles: []string{"shared.txt"}},
		},
	}
	eng := &fakeEngine{result: engine.Result{Success: true}}
	p := New(git, eng, &notify.Recording{})

	res := p.Run(context.Background(), []string{"agent/1-a", "agent/2-b"}, "main", "/repo")

	assert.ElementsMatch(t, []string{"agent/1-a", "agent/2-b"}, res.Merged)
	assert.Empty(t, res.Failed)
	assert.True(t, git.committed)
	assert.ElementsMatch(t, []string{"agent/1-a", "agent/2-b"}, git.deleted)
}

func TestRunAbortsWhenResolutionFails(t *testing.T) {
	git := &fakeGit{
		mergeResults: map[string]gitops.MergeResult{
			"agent/1-a": {HasConflicts: true, ConflictedFiles: []string{"shared.txt"}},
		},
	}
	eng := &fakeEngine{result: engine.Result{Success: false, Error: "could not resolve"}}
	p := New(git, eng, &notify.Recording{})

	res := p.Run(context.Background(), []string{"agent/1-a"}, "main", "/repo")

	require.Empty(t, res.Merged)
	assert.Equal(t, []string{"agent/1-a"}, res.Failed)
	assert.True(t, git.aborted)
	assert.Empty(t, git.deleted)
}

func TestRunAbortsWhenConflictsRemainAfterEngineRun(t *testing.T) {
	git := &fakeGit{
		mergeResults: map[string]gitops.MergeResult{
			"agent/1-a": {HasConflicts: true, ConflictedFiles: []string{"shared.txt"}},
		},
		unresolved: []string{"shared.txt"},
	}
	eng := &fakeEngine{result: engine.Result{Success: true}}
	p := New(git, eng, &notify.Recording{})

	res := p.Run(context.Background(), []string{"agent/1-a"}, "main", "/repo")

	assert.Empty(t, res.Merged)
	assert.Equal(t, []string{"agent/1-a"}, res.Failed)
	assert.True(t, git.aborted)
	assert.False(t, git.committed)
}

func TestRunRecordsOtherMergeErrorsAsFailed(t *testing.T) {
	git := &fakeGit{
		mergeResults: map[string]gitops.MergeResult{
			"agent/1-a": {Error: "dirty working tree"},
		},
	}
	eng := &fakeEngine{}
	p := New(git, eng, &notify.Recording{})

	res := p.Run(context.Background(), []string{"agent/1-a"}, "main", "/repo")

	assert.Empty(t, res.Merged)
	assert.Equal(t, []string{"agent/1-a"}, res.Failed)
}
