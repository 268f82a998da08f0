package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/orchestra/internal/agent"
	"github.com/steveyegge/orchestra/internal/config"
	"github.com/steveyegge/orchestra/internal/engine"
	"github.com/steveyegge/orchestra/internal/merge"
	"github.com/steveyegge/orchestra/internal/notify"
	"github.com/steveyegge/orchestra/internal/registry"
	"github.com/steveyegge/orchestra/internal/tasksource"
	"github.com/steveyegge/orchestra/internal/types"
	"github.com/steveyegge/orchestra/internal/workspace"
)

// fakeGit returns initial on the first GetCurrentBranch call (the
// scheduler's starting-branch capture) and afterMerge on every
// subsequent call, simulating the merge pipeline having checked out a
// different branch in the shared repo.
type fakeGit struct {
	mu         sync.Mutex
	initial    string
	afterMerge string
	calls      int
	restoredTo string
}

func (g *fakeGit) branch() string {
	if g.afterMerge == "" {
		return g.initial
	}
	return g.afterMerge
}

func (g *fakeGit) GetCurrentBranch(ctx context.Context, workDir string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls == 1 {
		return g.initial, nil
	}
	return g.branch(), nil
}

func (g *fakeGit) ReturnToBaseBranch(ctx context.Context, branch, workDir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.restoredTo = branch
	return nil
}

type fakeMerger struct {
	calledWith []string
	result     merge.Result
}

func (m *fakeMerger) Run(ctx context.Context, branches []string, target, repoDir string) merge.Result {
	m.calledWith = append(m.calledWith, branches...)
	return m.result
}

type fakeWorkspace struct{}

func (fakeWorkspace) GetBase(workDir string) string { return workDir }
func (fakeWorkspace) Create(ctx context.Context, taskTitle string, agentNum int, baseBranch, base, workDir string) (workspace.Workspace, error) {
	return workspace.Workspace{}, nil
}
func (fakeWorkspace) Cleanup(ctx context.Context, workspaceDir, branchName, workDir string) (workspace.CleanupResult, error) {
	return workspace.CleanupResult{}, nil
}

// scriptedRuntime resolves each task title to a fixed outcome, or a
// default success if unscripted.
type scriptedRuntime struct {
	mu      sync.Mutex
	byTitle map[string]agent.Outcome
	calls   []string
}

func (r *scriptedRuntime) Run(ctx context.Context, in agent.RunInput) agent.Outcome {
	r.mu.Lock()
	r.calls = append(r.calls, in.Task.Title)
	r.mu.Unlock()

	if out, ok := r.byTitle[in.Task.Title]; ok {
		out.Task = in.Task
		return out
	}
	return agent.Outcome{
		Task:         in.Task,
		BranchName:   fmt.Sprintf("agent/%d-%s", in.AgentNum, workspace.Slug(in.Task.Title)),
		WorkspaceDir: "/tmp/" + in.Task.ID,
		Result:       engine.Result{Success: true},
	}
}

func newTestScheduler(t *testing.T, source tasksource.Source, rt *scriptedRuntime, git *fakeGit, merger *fakeMerger) *Scheduler {
	t.Helper()
	return New(Deps{
		Source:    source,
		Runtime:   rt,
		Workspace: fakeWorkspace{},
		Git:       git,
		Merger:    merger,
		Registry:  registry.New(""),
		Notifier:  &notify.Recording{},
	})
}

func TestMaxParallelOneRunsSequentiallyInSourceOrder(t *testing.T) {
	tasks := []types.Task{{ID: "1", Title: "Task A"}, {ID: "2", Title: "Task B"}}
	source := tasksource.NewInMemory(tasks)
	rt := &scriptedRuntime{byTitle: map[string]agent.Outcome{}}
	git := &fakeGit{initial: "main"}
	merger := &fakeMerger{}
	s := newTestScheduler(t, source, rt, git, merger)

	opts := config.DefaultOptions(t.TempDir())
	opts.MaxParallel = 1

	res, err := s.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"Task A", "Task B"}, rt.calls)
	assert.Equal(t, []string{"agent/1-task-a", "agent/2-task-b"}, res.CompletedBranches)
	assert.Equal(t, 2, res.Summary.Completed)
}

func TestFailureMemoizationStopsWhenOnlyFailedTaskRemains(t *testing.T) {
	tasks := []types.Task{{ID: "T1", Title: "Flaky task"}}
	source := tasksource.NewInMemory(tasks)
	rt := &scriptedRuntime{byTitle: map[string]agent.Outcome{
		"Flaky task": {Result: engine.Result{Success: false, Error: "permanent failure"}},
	}}
	git := &fakeGit{initial: "main"}
	merger := &fakeMerger{}
	s := newTestScheduler(t, source, rt, git, merger)

	opts := config.DefaultOptions(t.TempDir())
	opts.MaxParallel = 5

	res, err := s.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"T1"}, res.FailedTaskIDs)
	assert.Equal(t, 1, res.Summary.Failed)
	// The task must not be retried within the run: exactly one call.
	assert.Equal(t, []string{"Flaky task"}, rt.calls)
}

func TestStartingBranchRestoredAfterMerge(t *testing.T) {
	tasks := []types.Task{{ID: "1", Title: "Task A"}, {ID: "2", Title: "Task B"}}
	source := tasksource.NewInMemory(tasks)
	rt := &scriptedRuntime{byTitle: map[string]agent.Outcome{}}
	// Starting branch is feat/x; the merge pipeline (faked here) is
	// simulated as having left the repo checked out on main afterward.
	git := &fakeGit{initial: "feat/x", afterMerge: "main"}
	merger := &fakeMerger{}
	s := newTestScheduler(t, source, rt, git, merger)

	opts := config.DefaultOptions(t.TempDir())
	opts.MaxParallel = 5

	_, err := s.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, "feat/x", git.restoredTo)
}

func TestEmptyCompletedBranchesSkipsMerge(t *testing.T) {
	source := tasksource.NewInMemory(nil)
	rt := &scriptedRuntime{byTitle: map[string]agent.Outcome{}}
	git := &fakeGit{initial: "main"}
	merger := &fakeMerger{}
	s := newTestScheduler(t, source, rt, git, merger)

	opts := config.DefaultOptions(t.TempDir())
	_, err := s.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Empty(t, merger.calledWith)
}

func TestDryRunSkipsAgentLaunches(t *testing.T) {
	tasks := []types.Task{{ID: "1", Title: "Task A"}}
	source := tasksource.NewInMemory(tasks)
	rt := &scriptedRuntime{byTitle: map[string]agent.Outcome{}}
	git := &fakeGit{initial: "main"}
	merger := &fakeMerger{}
	s := newTestScheduler(t, source, rt, git, merger)

	opts := config.DefaultOptions(t.TempDir())
	opts.DryRun = true
	opts.MaxIterations = 1

	_, err := s.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, rt.calls)
}
