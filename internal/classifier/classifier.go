// Package classifier parses streamed JSON lines from an engine to detect
// errors, token counts, and a human-readable "current step" label.
package classifier

import (
	"encoding/json"
	"strings"
)

// record is the generic shape of a parsed JSON line. Engines emit varied
// schemas; only the fields the classifier cares about are modeled, and
// everything is read defensively.
type record struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Result  string `json:"result"`
	Message string `json:"message"`
	Usage   *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Tool        string `json:"tool"`
	Name        string `json:"name"`
	ToolName    string `json:"tool_name"`
	Command     string `json:"command"`
	FilePath    string `json:"file_path"`
	FilePathAlt string `json:"filePath"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// kind returns the record's event kind, accepting either "type" or "kind".
func (r record) kind() string {
	if r.Kind != "" {
		return r.Kind
	}
	return r.Type
}

func (r record) toolName() string {
	switch {
	case r.Tool != "":
		return r.Tool
	case r.Name != "":
		return r.Name
	default:
		return r.ToolName
	}
}

func (r record) filePath() string {
	switch {
	case r.FilePath != "":
		return r.FilePath
	case r.FilePathAlt != "":
		return r.FilePathAlt
	default:
		return r.Path
	}
}

// TokenUsage is the token accounting captured from the last "result" kind
// record seen in a stream.
type TokenUsage struct {
	Response     string
	InputTokens  int
	OutputTokens int
}

// Accumulator folds a sequence of streamed lines into the classifier's
// three outputs: the last token usage, the first error message, and a
// stream of step labels (delivered via Classify's return value per line).
type Accumulator struct {
	usage      TokenUsage
	hasUsage   bool
	errMessage string
	hasError   bool
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{usage: TokenUsage{Response: "Task completed"}}
}

// Feed parses one raw streamed line. It updates the accumulator's token
// and error state and returns the step label classified from this line,
// or "" if this line yields no step update.
//
// Only lines whose first non-whitespace character is '{' are parsed as
// structured records; everything else yields no step update and does not
// affect token/error state.
func (a *Accumulator) Feed(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] != '{' {
		return ""
	}

	var r record
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		return ""
	}

	kind := strings.ToLower(r.kind())

	if kind == "result" {
		usage := TokenUsage{Response: r.Result}
		if usage.Response == "" {
			usage.Response = "Task completed"
		}
		if r.Usage != nil {
			usage.InputTokens = r.Usage.InputTokens
			usage.OutputTokens = r.Usage.OutputTokens
		}
		a.usage = usage
		a.hasUsage = true
	}

	if kind == "error" && !a.hasError {
		msg := "Unknown error"
		if r.Error != nil && r.Error.Message != "" {
			msg = r.Error.Message
		} else if r.Message != "" {
			msg = r.Message
		}
		a.errMessage = msg
		a.hasError = true
	}

	return classifyStep(r)
}

// TokenUsage returns the most recently seen token accounting.
func (a *Accumulator) TokenUsage() TokenUsage {
	return a.usage
}

// Error returns the first error message seen, and whether one was seen.
func (a *Accumulator) Error() (string, bool) {
	return a.errMessage, a.hasError
}

var (
	testFilePatterns = []string{".test.", ".spec.", "__tests__", "_test.go"}
	lintMarkers      = []string{"lint", "eslint", "biome", "prettier"}
	testMarkers      = []string{"vitest", "jest", "bun test", "npm test", "pytest", "go test"}
	readTools        = map[string]bool{"read": true, "glob": true, "grep": true}
	writeTools       = map[string]bool{"write": true, "edit": true}
)

// classifyStep applies the rule-priority ordering: first match wins.
//
//  1. tool in {read, glob, grep} -> "Reading code"
//  2. command/description contains "git commit" -> "Committing"
//  3. command/description contains "git add" -> "Staging"
//  4. command contains a lint marker -> "Linting"
//  5. command contains a test-runner marker -> "Testing"
//  6. tool in {write, edit} and file path looks like a test file -> "Writing tests"
//  7. tool in {write, edit} -> "Implementing"
//  8. otherwise -> "" (no update)
func classifyStep(r record) string {
	tool := strings.ToLower(r.toolName())
	command := strings.ToLower(r.Command)
	description := strings.ToLower(r.Description)
	path := strings.ToLower(r.filePath())

	if readTools[tool] {
		return "Reading code"
	}
	if strings.Contains(command, "git commit") || strings.Contains(description, "git commit") {
		return "Committing"
	}
	if strings.Contains(command, "git add") || strings.Contains(description, "git add") {
		return "Staging"
	}
	if containsAny(command, lintMarkers) {
		return "Linting"
	}
	if containsAny(command, testMarkers) {
		return "Testing"
	}
	if writeTools[tool] && containsAny(path, testFilePatterns) {
		return "Writing tests"
	}
	if writeTools[tool] {
		return "Implementing"
	}
	return ""
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
