package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/orchestra/internal/agent"
	"github.com/steveyegge/orchestra/internal/config"
	"github.com/steveyegge/orchestra/internal/driver"
	"github.com/steveyegge/orchestra/internal/engine"
	"github.com/steveyegge/orchestra/internal/gitops"
	"github.com/steveyegge/orchestra/internal/merge"
	"github.com/steveyegge/orchestra/internal/notify"
	"github.com/steveyegge/orchestra/internal/prompt"
	"github.com/steveyegge/orchestra/internal/registry"
	"github.com/steveyegge/orchestra/internal/scheduler"
	"github.com/steveyegge/orchestra/internal/tasksource"
	"github.com/steveyegge/orchestra/internal/types"
	"github.com/steveyegge/orchestra/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the batch loop over a task backlog",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runOrchestrator(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().String("work-dir", ".", "Repository working directory")
	runCmd.Flags().String("tasks", "tasks.yaml", "Path to the task backlog file")
	runCmd.Flags().String("engine", "claude-code", "AI engine to invoke: claude-code or amp")
	runCmd.Flags().String("base-branch", "", "Branch to merge into (default: current branch)")
	runCmd.Flags().Int("max-parallel", 0, "Maximum agents in flight at once (0 = use default/env)")
	runCmd.Flags().Int("max-iterations", 0, "Maximum batch iterations (0 = unlimited)")
	runCmd.Flags().Bool("skip-tests", false, "Tell agents to skip writing/running tests")
	runCmd.Flags().Bool("skip-lint", false, "Tell agents to skip linting")
	runCmd.Flags().Bool("skip-merge", false, "Skip the merge phase entirely")
	runCmd.Flags().Bool("dry-run", false, "Select batches without launching agents")
	runCmd.Flags().Bool("tmux", false, "Run each agent under a tmux multiplexer session")
	runCmd.Flags().Bool("browser", false, "Advertise browser availability to agents")
	runCmd.Flags().String("model", "", "Model override passed to the engine")
	runCmd.Flags().String("requirements", "", "Requirements file or folder to copy into each workspace")
	runCmd.Flags().Bool("requirements-folder", false, "Treat --requirements as a folder")

	rootCmd.AddCommand(runCmd)
}

// runOrchestrator wires the concrete collaborators together and drives
// one Scheduler.Run to completion. It returns an error instead of
// calling os.Exit directly, so deferred cleanup always runs.
func runOrchestrator(cmd *cobra.Command) error {
	workDir, _ := cmd.Flags().GetString("work-dir")
	tasksPath, _ := cmd.Flags().GetString("tasks")
	engineName, _ := cmd.Flags().GetString("engine")
	baseBranch, _ := cmd.Flags().GetString("base-branch")
	maxParallel, _ := cmd.Flags().GetInt("max-parallel")
	maxIterations, _ := cmd.Flags().GetInt("max-iterations")
	skipTests, _ := cmd.Flags().GetBool("skip-tests")
	skipLint, _ := cmd.Flags().GetBool("skip-lint")
	skipMerge, _ := cmd.Flags().GetBool("skip-merge")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	tmux, _ := cmd.Flags().GetBool("tmux")
	browser, _ := cmd.Flags().GetBool("browser")
	model, _ := cmd.Flags().GetString("model")
	requirementsPath, _ := cmd.Flags().GetString("requirements")
	requirementsFolder, _ := cmd.Flags().GetBool("requirements-folder")

	opts := config.DefaultOptions(workDir)
	opts.BaseBranch = baseBranch
	opts.MaxIterations = maxIterations
	opts.SkipTests = skipTests
	opts.SkipLint = skipLint
	opts.SkipMerge = skipMerge
	opts.DryRun = dryRun
	opts.Tmux = tmux
	opts.BrowserEnabled = browser
	opts.ModelOverride = model
	if maxParallel > 0 {
		opts.MaxParallel = maxParallel
	}
	if requirementsPath != "" {
		opts.RequirementSource = config.RequirementSource{
			Kind:     "requirements",
			Path:     requirementsPath,
			IsFolder: requirementsFolder,
		}
	}

	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	source, err := loadTaskSource(tasksPath)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	notifier := notify.NewConsole()
	reg := registry.New(opts.StateFilePath)
	procDriver := driver.New(opts.SessionPrefix)

	var eng engine.Engine
	switch engineName {
	case "amp":
		eng = engine.NewAmp(procDriver)
	default:
		eng = engine.NewClaudeCode(procDriver)
	}
	if !eng.IsAvailable() {
		notifier.Warn("%s is not on PATH; invocations will fail", eng.Command())
	}

	promptBuilder, err := prompt.NewBuilder()
	if err != nil {
		return fmt.Errorf("build prompt template: %w", err)
	}

	ws := workspace.New("")
	git := gitops.New()

	runtime := agent.New(agent.Deps{
		Workspace:     ws,
		Engine:        eng,
		Registry:      reg,
		Prompts:       promptBuilder,
		Notifier:      notifier,
		SessionPrefix: opts.SessionPrefix,
		RetryPolicy:   opts.RetryPolicy,
	})

	merger := merge.New(git, eng, notifier)

	sched := scheduler.New(scheduler.Deps{
		Source:    source,
		Runtime:   runtime,
		Workspace: ws,
		Git:       git,
		Merger:    merger,
		Registry:  reg,
		Notifier:  notifier,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		notifier.Warn("interrupted; cleaning up multiplexer sessions")
		mux := driver.NewMultiplexer(opts.SessionPrefix)
		reg.CleanupMultiplexerSessions(func(sessionName string) {
			_ = mux.Kill(context.Background(), sessionName)
		})
		cancel()
		os.Exit(0)
	}()

	result, err := sched.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("scheduler run: %w", err)
	}

	notifier.Info("done: %d completed, %d failed", result.Summary.Completed, result.Summary.Failed)
	return nil
}

// taskFileEntry is one row of the backlog file: a plain YAML list of
// {id, title, group?}. The YAML/Markdown task source implementations
// proper are external collaborators out of scope; this loader exists
// only so the CLI has something runnable to point at.
type taskFileEntry struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Group int    `yaml:"group"`
}

func loadTaskSource(path string) (*tasksource.InMemory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var entries []taskFileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	tasks := make([]types.Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, types.Task{ID: e.ID, Title: e.Title})
	}

	source := tasksource.NewInMemory(tasks)
	for _, e := range entries {
		if e.Group != 0 {
			source.Groups[e.Title] = e.Group
		}
	}
	return source, nil
}
