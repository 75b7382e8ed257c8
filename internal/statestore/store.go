// Package statestore persists the durable map (issue, processor) ->
// IssueState to a single JSON file, atomically, following the
// CreateTemp+Write+Rename pattern in 3leaps-gonimbus's
// pkg/jobregistry/store.go, and the key/active-set semantics of the
// original orchestrator's lib/state_manager.py.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Hey-Diga/imploid/internal/model"
)

// legacyProcessor is the processor a bare-integer legacy key is
// interpreted as, per spec: compatibility sink for pre-multi-processor
// state files.
const legacyProcessor = model.ProcessorName("claude")

// Store is an in-memory map of IssueState keyed by (issue, processor),
// serialized to a single JSON file on disk. Safe for concurrent use:
// every exported method takes the internal mutex, so pipeline
// goroutines for distinct (issue, processor) keys may call Set/SaveAll
// concurrently without racing.
type Store struct {
	path   string
	mu     sync.Mutex
	states map[model.Key]model.IssueState
}

// New creates a Store bound to path, without reading it yet.
func New(path string) *Store {
	return &Store{path: path, states: make(map[model.Key]model.IssueState)}
}

// wireEntry is the on-disk shape of one value: IssueState minus the
// fields redundant with its key (issue_number, processor_name).
type wireEntry struct {
	Status     model.ProcessStatus `json:"status"`
	Branch     string              `json:"branch"`
	StartTime  string              `json:"start_time"`
	EndTime    string              `json:"end_time,omitempty"`
	AgentIndex int                 `json:"agent_index"`
	RepoName   string              `json:"repo_name,omitempty"`
	SessionID  string              `json:"session_id,omitempty"`
	LastOutput string              `json:"last_output,omitempty"`
	Error      string              `json:"error,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// Initialize reads the state file if present, tolerating a missing file
// (benign) and skipping individually corrupt entries with a warning
// rather than failing the whole load.
func (s *Store) Initialize(warn func(format string, args ...any)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		if warn != nil {
			warn("state file is not valid JSON, starting empty: %v", err)
		}
		return nil
	}

	states := make(map[model.Key]model.IssueState, len(raw))
	for rawKey, rawVal := range raw {
		key, err := parseKey(rawKey)
		if err != nil {
			if warn != nil {
				warn("skipping state entry with unparseable key %q: %v", rawKey, err)
			}
			continue
		}
		var entry wireEntry
		if err := json.Unmarshal(rawVal, &entry); err != nil {
			if warn != nil {
				warn("skipping corrupt state entry %q: %v", rawKey, err)
			}
			continue
		}
		issueState, err := entry.toIssueState(key)
		if err != nil {
			if warn != nil {
				warn("skipping state entry %q: %v", rawKey, err)
			}
			continue
		}
		states[key] = issueState
	}

	s.states = states
	return nil
}

// parseKey parses the on-disk "<issue>:<processor>" form, accepting bare
// integer legacy keys as processor "claude".
func parseKey(raw string) (model.Key, error) {
	if !strings.Contains(raw, ":") {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return model.Key{}, fmt.Errorf("legacy key %q is not an integer", raw)
		}
		return model.Key{IssueNumber: n, ProcessorName: legacyProcessor}, nil
	}
	parts := strings.SplitN(raw, ":", 2)
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return model.Key{}, fmt.Errorf("key %q has non-integer issue number", raw)
	}
	return model.Key{IssueNumber: n, ProcessorName: model.ProcessorName(parts[1])}, nil
}

func wireKey(k model.Key) string {
	return fmt.Sprintf("%d:%s", k.IssueNumber, k.ProcessorName)
}

func (e wireEntry) toIssueState(key model.Key) (model.IssueState, error) {
	st := model.IssueState{
		IssueNumber:   key.IssueNumber,
		ProcessorName: key.ProcessorName,
		Status:        e.Status,
		Branch:        e.Branch,
		AgentIndex:    e.AgentIndex,
		RepoName:      e.RepoName,
		SessionID:     e.SessionID,
		LastOutput:    e.LastOutput,
		Error:         e.Error,
	}
	if !st.Status.Valid() {
		return st, fmt.Errorf("unknown status %q", e.Status)
	}
	if e.StartTime != "" {
		t, err := parseTime(e.StartTime)
		if err != nil {
			return st, fmt.Errorf("invalid start_time: %w", err)
		}
		st.StartTime = t
	}
	if e.EndTime != "" {
		t, err := parseTime(e.EndTime)
		if err != nil {
			return st, fmt.Errorf("invalid end_time: %w", err)
		}
		st.EndTime = &t
	}
	return st, nil
}

// Get returns the state for (issue, processor), if any.
func (s *Store) Get(issue int, processor model.ProcessorName) (model.IssueState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[model.Key{IssueNumber: issue, ProcessorName: processor}]
	return st, ok
}

// Set inserts or replaces the state for (issue, processor).
func (s *Store) Set(st model.IssueState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.Key()] = st
}

// Remove deletes the entry for (issue, processor), if present.
func (s *Store) Remove(issue int, processor model.ProcessorName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, model.Key{IssueNumber: issue, ProcessorName: processor})
}

// SaveAll writes the full map to a temporary file and renames it into
// place, so a crash mid-write never leaves a partially-written state
// file in the live path.
func (s *Store) SaveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]wireEntry, len(s.states))
	for key, st := range s.states {
		out[wireKey(key)] = toWireEntry(st)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "state.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp state file into place: %w", err)
	}
	return nil
}

func toWireEntry(st model.IssueState) wireEntry {
	e := wireEntry{
		Status:     st.Status,
		Branch:     st.Branch,
		AgentIndex: st.AgentIndex,
		RepoName:   st.RepoName,
		SessionID:  st.SessionID,
		LastOutput: st.LastOutput,
		Error:      st.Error,
	}
	if !st.StartTime.IsZero() {
		e.StartTime = st.StartTime.UTC().Format(timeLayout)
	}
	if st.EndTime != nil {
		e.EndTime = st.EndTime.UTC().Format(timeLayout)
	}
	return e
}

// ActiveStates returns every entry whose status is running or needs_input.
func (s *Store) ActiveStates() []model.IssueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.IssueState
	for _, st := range s.states {
		if st.Status.Active() {
			out = append(out, st)
		}
	}
	return out
}

// ActiveStatesByProcessor returns active entries for one processor.
func (s *Store) ActiveStatesByProcessor(p model.ProcessorName) []model.IssueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.IssueState
	for _, st := range s.states {
		if st.ProcessorName == p && st.Status.Active() {
			out = append(out, st)
		}
	}
	return out
}

// ActiveIssueNumbers returns the set of issue numbers with at least one
// active entry for any processor.
func (s *Store) ActiveIssueNumbers() map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]bool)
	for _, st := range s.states {
		if st.Status.Active() {
			out[st.IssueNumber] = true
		}
	}
	return out
}

// ActiveIssueNumbersByProcessor returns active issue numbers for one
// processor.
func (s *Store) ActiveIssueNumbersByProcessor(p model.ProcessorName) map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]bool)
	for _, st := range s.states {
		if st.ProcessorName == p && st.Status.Active() {
			out[st.IssueNumber] = true
		}
	}
	return out
}

// AvailableAgentIndex returns the smallest index in [0, maxConcurrent)
// not occupied by an active entry of processor p, or -1 if none is free.
func (s *Store) AvailableAgentIndex(p model.ProcessorName, maxConcurrent int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := make(map[int]bool)
	for _, st := range s.states {
		if st.ProcessorName == p && st.Status.Active() {
			used[st.AgentIndex] = true
		}
	}
	for i := 0; i < maxConcurrent; i++ {
		if !used[i] {
			return i
		}
	}
	return -1
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
