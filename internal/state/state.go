// Package state persists orchestration position across turns and machines.
//
// The orchestration loop shares a single JSON state file between the supervisor
// and engineer roles, possibly synchronized across machines via git. All
// mutation goes through a single [OrchestrationState.Stamp] method, and writes
// are always atomic (temp file + rename) so a crash never leaves a partially
// written state visible.
//
// Key types:
//   - [OrchestrationState] is the persisted document
//   - [Status] is the turn lifecycle marker
//   - [StampUpdate] describes one stamp mutation
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// timeLayout is the timestamp format used in the state file. UTC with a
// trailing Z, second precision.
const timeLayout = "2006-01-02T15:04:05Z"

// DefaultLeaseMinutes is the advisory lease duration stamped into
// lease_expires_at on every mutation. The lease is informational only; no
// exclusivity is enforced beyond git commit races.
const DefaultLeaseMinutes = 10

// Status is the lifecycle marker for the turn currently described by the
// state file.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRunning     Status = "running"
	StatusWaitingNext Status = "waiting-next"
	StatusComplete    Status = "complete"
	StatusFailed      Status = "failed"
)

// IsValid reports whether s is one of the recognized lifecycle statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusWaitingNext, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends the current turn. The next turn still
// begins at running again.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// OrchestrationState is the durable record of workflow position, status, and
// commit hashes shared between the two roles.
//
// Invariants:
//   - Iteration == StepIndex + 1 after any successful stamp
//   - StepIndex only moves via [OrchestrationState.Stamp] with IncrementStep
//   - the on-disk file is replaced atomically, never written in place
type OrchestrationState struct {
	// WorkflowName selects which workflow definition governs step sequencing.
	WorkflowName string `json:"workflow_name"`

	// StepIndex is the zero-based position within the workflow's repeating
	// cycle. It advances by exactly one per completed turn.
	StepIndex int `json:"step_index"`

	// Iteration is the display counter; always StepIndex+1 after a stamp.
	Iteration int `json:"iteration"`

	// ExpectedStep is the prompt name selected for the turn about to run or
	// just run.
	ExpectedStep string `json:"expected_step"`

	// Status is the turn lifecycle marker.
	Status Status `json:"status"`

	// LastUpdate and LeaseExpiresAt are freshness metadata, refreshed on
	// every stamp. Advisory only.
	LastUpdate     string `json:"last_update"`
	LeaseExpiresAt string `json:"lease_expires_at"`

	// GalphCommit and RalphCommit record the last known commit hash produced
	// by each role, for cross-machine handoff auditing.
	GalphCommit string `json:"galph_commit"`
	RalphCommit string `json:"ralph_commit"`

	// LastPrompt is the last prompt name actually executed.
	LastPrompt string `json:"last_prompt"`
}

// New returns a fresh OrchestrationState positioned at the start of the
// standard workflow.
func New() *OrchestrationState {
	now := time.Now().UTC()
	return &OrchestrationState{
		WorkflowName:   "standard",
		StepIndex:      0,
		Iteration:      1,
		Status:         StatusIdle,
		LastUpdate:     now.Format(timeLayout),
		LeaseExpiresAt: now.Add(DefaultLeaseMinutes * time.Minute).Format(timeLayout),
	}
}

// Read loads the state file at path, returning a fresh default state when the
// file is missing, unreadable, or malformed. Orchestration must be able to
// start from nothing, so read failures are not errors here; use [Load] when a
// hard failure is wanted.
//
// Legacy files that carry only an iteration counter are migrated: step_index
// is derived as max(0, iteration-1).
func Read(path string) *OrchestrationState {
	st, err := Load(path)
	if err != nil {
		return New()
	}
	return st
}

// Load reads and parses the state file at path.
func Load(path string) (*OrchestrationState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var raw struct {
		WorkflowName   *string `json:"workflow_name"`
		StepIndex      *int    `json:"step_index"`
		Iteration      *int    `json:"iteration"`
		ExpectedStep   string  `json:"expected_step"`
		Status         *string `json:"status"`
		LastUpdate     string  `json:"last_update"`
		LeaseExpiresAt string  `json:"lease_expires_at"`
		GalphCommit    string  `json:"galph_commit"`
		RalphCommit    string  `json:"ralph_commit"`
		LastPrompt     string  `json:"last_prompt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}

	st := New()
	if raw.WorkflowName != nil {
		st.WorkflowName = *raw.WorkflowName
	}
	// Older files carry iteration without step_index; derive one from the other.
	switch {
	case raw.StepIndex != nil:
		st.StepIndex = *raw.StepIndex
	case raw.Iteration != nil:
		st.StepIndex = max(0, *raw.Iteration-1)
	}
	if raw.Iteration != nil {
		st.Iteration = *raw.Iteration
	} else {
		st.Iteration = st.StepIndex + 1
	}
	st.ExpectedStep = raw.ExpectedStep
	if raw.Status != nil {
		st.Status = Status(*raw.Status)
	}
	if raw.LastUpdate != "" {
		st.LastUpdate = raw.LastUpdate
	}
	if raw.LeaseExpiresAt != "" {
		st.LeaseExpiresAt = raw.LeaseExpiresAt
	}
	st.GalphCommit = raw.GalphCommit
	st.RalphCommit = raw.RalphCommit
	st.LastPrompt = raw.LastPrompt
	return st, nil
}

// Write persists the state to path atomically: the document is written to a
// temp file in the same directory and renamed over the target, so readers
// never observe a partial file.
func (s *OrchestrationState) Write(path string) error {
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "state.*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write state: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// StampUpdate describes one mutation applied by [OrchestrationState.Stamp].
// Zero-valued fields leave the corresponding state field unchanged.
type StampUpdate struct {
	// ExpectedStep, when non-empty, records the prompt selected for the turn.
	ExpectedStep string

	// Status, when non-empty, sets the lifecycle marker.
	Status Status

	// IncrementStep advances StepIndex by one and recomputes Iteration.
	IncrementStep bool

	// GalphCommit / RalphCommit, when non-empty, record role commit hashes.
	GalphCommit string
	RalphCommit string

	// LastPrompt, when non-empty, records the prompt actually executed.
	LastPrompt string
}

// Stamp applies u and refreshes the freshness metadata. It is the only
// mutation point for StepIndex and Iteration, and is idempotent when
// re-applied with identical arguments and IncrementStep false.
func (s *OrchestrationState) Stamp(u StampUpdate) {
	if u.ExpectedStep != "" {
		s.ExpectedStep = u.ExpectedStep
	}
	if u.Status != "" {
		s.Status = u.Status
	}
	if u.IncrementStep {
		s.StepIndex++
		s.Iteration = s.StepIndex + 1
	}
	if u.GalphCommit != "" {
		s.GalphCommit = u.GalphCommit
	}
	if u.RalphCommit != "" {
		s.RalphCommit = u.RalphCommit
	}
	if u.LastPrompt != "" {
		s.LastPrompt = u.LastPrompt
	}
	now := time.Now().UTC()
	s.LastUpdate = now.Format(timeLayout)
	s.LeaseExpiresAt = now.Add(DefaultLeaseMinutes * time.Minute).Format(timeLayout)
}
