// Package prompt builds the prompt text handed to an engine for a single
// task, from a small flag set and the task itself.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// Flags are the policy toggles the Agent Runtime passes into prompt
// construction (spec §4.4 step 5).
type Flags struct {
	SkipTests      bool
	SkipLint       bool
	BrowserEnabled bool
}

// Context is everything the template needs to render a prompt for one
// task in its workspace.
type Context struct {
	TaskID       string
	TaskTitle    string
	WorkspaceDir string
	BranchName   string
	Flags        Flags
}

const promptTemplate = `# YOUR TASK

**Task**: {{.TaskID}} - {{.TaskTitle}}

# ENVIRONMENT

You are working in an isolated workspace:
- **Path**: {{.WorkspaceDir}}
- **Branch**: {{.BranchName}}

# POLICY
{{if .Flags.SkipTests -}}
- Do not run or write tests for this task.
{{else -}}
- Write and run tests covering your change before finishing.
{{end -}}
{{if .Flags.SkipLint -}}
- Do not run the linter for this task.
{{else -}}
- Run the linter and fix any issues it reports.
{{end -}}
{{if .Flags.BrowserEnabled -}}
- A browser is available; use it to verify UI changes visually.
{{end}}
---

# EXECUTION DIRECTIVE

You are operating in **autonomous mode**. Implement the required changes
directly; do not ask for permission to proceed. Only stop if you hit a
genuine technical blocker.

Begin implementation now.`

// Builder renders prompts from Context using a fixed template.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder parses the default template.
func NewBuilder() (*Builder, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

// Build renders the prompt for ctx.
func (b *Builder) Build(ctx Context) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("execute prompt template: %w", err)
	}
	return buf.String(), nil
}
