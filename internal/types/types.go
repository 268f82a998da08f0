// Package types holds the data model shared across the orchestrator:
// tasks, agent records, and the aggregate run summary.
package types

import "time"

// Task is an immutable unit of work drawn from a task source. Identity is
// by ID; Title is for display and slug derivation only.
type Task struct {
	ID    string
	Title string
}

// Status is the lifecycle state of an agent record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AgentRecord is keyed by a monotonically increasing agent identifier,
// never recycled within a run. Created on first update with defaults
// (status=pending, step="Initializing"); mutated only by the Agent
// Runtime and the Scheduler; never deleted except by explicit removal.
type AgentRecord struct {
	TaskTitle    string    `yaml:"taskTitle"`
	Status       Status    `yaml:"status"`
	Step         string    `yaml:"step"`
	TmuxSession  string    `yaml:"tmuxSession,omitempty"`
	WorkspaceDir string    `yaml:"workspaceDir,omitempty"`
	BranchName   string    `yaml:"branchName,omitempty"`
	Error        string    `yaml:"error,omitempty"`
	LastUpdate   time.Time `yaml:"lastUpdate"`
}

// NewAgentRecord returns the default record for an identifier seen for
// the first time.
func NewAgentRecord(taskTitle string) *AgentRecord {
	return &AgentRecord{
		TaskTitle: taskTitle,
		Status:    StatusPending,
		Step:      "Initializing",
	}
}

// Terminal reports whether the record is in a state that accepts no
// further step updates.
func (r *AgentRecord) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Summary is the aggregated run totals.
type Summary struct {
	Total      int `yaml:"total"`
	Completed  int `yaml:"completed"`
	Failed     int `yaml:"failed"`
	InProgress int `yaml:"inProgress"`
}

// Document is the full shape of the persisted state file: the agent map,
// the summary, and the last-update timestamp.
type Document struct {
	Agents     map[string]*AgentRecord `yaml:"agents"`
	Summary    Summary                 `yaml:"summary"`
	LastUpdate time.Time               `yaml:"lastUpdate"`
}

// NewDocument returns an empty document ready for mutation.
func NewDocument() *Document {
	return &Document{Agents: make(map[string]*AgentRecord)}
}
