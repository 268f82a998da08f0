// Package registry implements the State Registry (spec §4.5): a
// process-wide document of agent records and summary totals, mutated
// through a small update surface and rewritten to a human-readable
// structured text file after every change.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/orchestra/internal/types"
)

// Patch carries the fields of an AgentRecord an update wishes to set.
// Zero-value fields are left unchanged, except where explicitly noted.
type Patch struct {
	Status       *types.Status
	Step         *string
	TmuxSession  *string
	WorkspaceDir *string
	BranchName   *string
	Error        *string
}

// SummaryPatch carries the summary fields an update wishes to set.
type SummaryPatch struct {
	Total      *int
	Completed  *int
	Failed     *int
	InProgress *int
}

// Registry is the State Registry. All mutation goes through its update
// methods; the document itself is never exposed to callers, per spec §9.
type Registry struct {
	mu       sync.Mutex
	doc      *types.Document
	filePath string
}

// New returns a Registry persisting to filePath. filePath's parent
// directory is created on first write if missing.
func New(filePath string) *Registry {
	return &Registry{doc: types.NewDocument(), filePath: filePath}
}

// UpdateAgent applies patch to the agent keyed by id, creating default
// values first if this is the first update seen for id, stamps
// lastUpdate, and rewrites the state file. Write errors are swallowed:
// the file is observability, not truth.
func (r *Registry) UpdateAgent(id string, patch Patch, taskTitleForNew string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.doc.Agents[id]
	if !ok {
		rec = types.NewAgentRecord(taskTitleForNew)
		r.doc.Agents[id] = rec
	}

	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Step != nil {
		rec.Step = *patch.Step
	}
	if patch.TmuxSession != nil {
		rec.TmuxSession = *patch.TmuxSession
	}
	if patch.WorkspaceDir != nil {
		rec.WorkspaceDir = *patch.WorkspaceDir
	}
	if patch.BranchName != nil {
		rec.BranchName = *patch.BranchName
	}
	if patch.Error != nil {
		rec.Error = *patch.Error
	}
	rec.LastUpdate = time.Now()

	r.stampAndPersist()
}

// UpdateSummary applies patch to the run summary.
func (r *Registry) UpdateSummary(patch SummaryPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if patch.Total != nil {
		r.doc.Summary.Total = *patch.Total
	}
	if patch.Completed != nil {
		r.doc.Summary.Completed = *patch.Completed
	}
	if patch.Failed != nil {
		r.doc.Summary.Failed = *patch.Failed
	}
	if patch.InProgress != nil {
		r.doc.Summary.InProgress = *patch.InProgress
	}

	r.stampAndPersist()
}

// IncrementCompleted is a convenience for the common case of bumping one
// cumulative counter by one.
func (r *Registry) IncrementCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Summary.Completed++
	r.stampAndPersist()
}

func (r *Registry) IncrementFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Summary.Failed++
	r.stampAndPersist()
}

// RemoveAgent deletes the agent keyed by id.
func (r *Registry) RemoveAgent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.doc.Agents, id)
	r.stampAndPersist()
}

// Snapshot returns a copy of the current document, safe for read-only
// inspection (e.g. by a dashboard or TUI).
func (r *Registry) Snapshot() types.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make(map[string]*types.AgentRecord, len(r.doc.Agents))
	for id, rec := range r.doc.Agents {
		cp := *rec
		agents[id] = &cp
	}
	return types.Document{Agents: agents, Summary: r.doc.Summary, LastUpdate: r.doc.LastUpdate}
}

// CleanupMultiplexerSessions iterates agents whose status is pending or
// running and whose session name is set, invoking kill for each. Called
// from signal handlers; idempotent by construction since kill is
// best-effort and the caller treats all outcomes the same way.
func (r *Registry) CleanupMultiplexerSessions(kill func(sessionName string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.doc.Agents {
		if rec.TmuxSession == "" {
			continue
		}
		if rec.Status != types.StatusPending && rec.Status != types.StatusRunning {
			continue
		}
		kill(rec.TmuxSession)
	}
}

// stampAndPersist must be called with r.mu held.
func (r *Registry) stampAndPersist() {
	r.doc.LastUpdate = time.Now()
	if r.filePath == "" {
		return
	}
	if err := persist(r.filePath, r.doc); err != nil {
		// Swallowed per spec §7: state writes are advisory, not truth.
		return
	}
}

// persist rewrites the state file in full, atomically: write to a sibling
// temp file then rename over the target so readers never see a partial
// write.
func persist(path string, doc *types.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}

// Load reads a persisted document from path for round-trip verification
// or dashboard consumption.
func Load(path string) (*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	doc := types.NewDocument()
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("unmarshal state file: %w", err)
	}
	if doc.Agents == nil {
		doc.Agents = make(map[string]*types.AgentRecord)
	}
	return doc, nil
}
