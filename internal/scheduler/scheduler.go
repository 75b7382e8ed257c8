// Package scheduler implements the central discover -> reserve -> launch
// -> reconcile tick. The worker-fanout shape (one goroutine per
// processor pipeline, each mutating the state store through its own
// internally-synchronized methods) is grounded on fentz26-Neona's
// internal/scheduler/scheduler.go; the exact discover/reserve/reconcile
// semantics (placeholder reservation before async work, label transition
// sequence, per-status notifier fanout) are grounded on the original
// orchestrator's lib/orchestrator.py IssueOrchestrator.run/_process_issue.
package scheduler

import (
	"fmt"
	"time"

	"github.com/Hey-Diga/imploid/internal/config"
	"github.com/Hey-Diga/imploid/internal/githubapi"
	"github.com/Hey-Diga/imploid/internal/gitworkspace"
	"github.com/Hey-Diga/imploid/internal/model"
	"github.com/Hey-Diga/imploid/internal/notify"
	"github.com/Hey-Diga/imploid/internal/processor"
	"github.com/Hey-Diga/imploid/internal/promptloader"
	"github.com/Hey-Diga/imploid/internal/statestore"
)

// Logger is the narrow logging surface the scheduler depends on, so it
// can be satisfied by a *zap.SugaredLogger or a test fake.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Scheduler owns one tick of discovery, reservation, and reconciliation.
type Scheduler struct {
	Config    *config.Config
	Store     *statestore.Store
	Workspace *gitworkspace.Workspace
	Prompts  *promptloader.Loader
	Notifier *notify.Fanout
	Drivers  map[model.ProcessorName]processor.Driver
	Log      Logger

	// clientFor resolves the GitHub client to use for a repo; New sets it
	// to return the same shared client for every repo.
	clientFor func(repo string) *githubapi.Client
}

// New constructs a Scheduler. github is used for every configured repo.
func New(cfg *config.Config, store *statestore.Store, gh *githubapi.Client, ws *gitworkspace.Workspace, prompts *promptloader.Loader, notifier *notify.Fanout, drivers map[model.ProcessorName]processor.Driver, log Logger) *Scheduler {
	return &Scheduler{
		Config:    cfg,
		Store:     store,
		Workspace: ws,
		Prompts:   prompts,
		Notifier:  notifier,
		Drivers:   drivers,
		Log:       log,
		clientFor: func(string) *githubapi.Client { return gh },
	}
}

// enabledProcessors returns the processors active for this tick: the
// configured-enabled set intersected with the process-wide override, if
// any, limited to names with a registered driver.
func (s *Scheduler) enabledProcessors(override []string) []model.ProcessorName {
	names := config.EnabledProcessors(s.Config, override)
	out := make([]model.ProcessorName, 0, len(names))
	for _, n := range names {
		p := model.ProcessorName(n)
		if _, ok := s.Drivers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Tick runs exactly one scheduling pass: discover, compute capacity,
// filter, reserve, then launch the fanned-out processor pipelines and
// wait for them all to finish.
func (s *Scheduler) Tick(processorOverride []string) error {
	enabled := s.enabledProcessors(processorOverride)

	candidates := s.discover()

	activeNumbers := s.Store.ActiveIssueNumbers()
	remaining := s.Config.GitHub.MaxConcurrent - len(activeNumbers)
	if remaining <= 0 {
		return s.Store.SaveAll()
	}

	var filtered []model.Issue
	for _, c := range candidates {
		if activeNumbers[c.Number] {
			continue
		}
		filtered = append(filtered, c)
	}

	type reservation struct {
		issue      model.Issue
		entries    []model.IssueState
	}
	var reservations []reservation

	for _, candidate := range filtered {
		if remaining <= 0 {
			break
		}

		slots := make(map[model.ProcessorName]int, len(enabled))
		ok := true
		for _, p := range enabled {
			idx := s.Store.AvailableAgentIndex(p, s.Config.GitHub.MaxConcurrent)
			if idx < 0 {
				ok = false
				break
			}
			slots[p] = idx
		}
		if !ok {
			s.Log.Warnf("issue #%d: no available slot for all enabled processors, skipping this tick", candidate.Number)
			continue
		}

		now := time.Now().UTC()
		var entries []model.IssueState
		for _, p := range enabled {
			branch := processor.BranchName(candidate.Number, p, now)
			entries = append(entries, model.IssueState{
				IssueNumber:   candidate.Number,
				ProcessorName: p,
				Status:        model.StatusRunning,
				Branch:        branch,
				StartTime:     now,
				AgentIndex:    slots[p],
				RepoName:      candidate.RepoName,
			})
		}
		for _, e := range entries {
			s.Store.Set(e)
		}
		if err := s.Store.SaveAll(); err != nil {
			return fmt.Errorf("persist reservations: %w", err)
		}

		activeNumbers[candidate.Number] = true
		remaining--
		reservations = append(reservations, reservation{issue: candidate, entries: entries})
	}

	done := make(chan struct{})
	count := 0
	for _, r := range reservations {
		for _, entry := range r.entries {
			count++
			go func(issue model.Issue, entry model.IssueState) {
				s.runPipeline(issue, entry)
				done <- struct{}{}
			}(r.issue, entry)
		}
	}
	for i := 0; i < count; i++ {
		<-done
	}

	return s.Store.SaveAll()
}

// discover lists ready issues across every configured repo, tolerating
// per-repo errors by logging and continuing.
func (s *Scheduler) discover() []model.Issue {
	var out []model.Issue
	for _, repo := range s.Config.GitHub.Repos {
		client := s.clientFor(repo.Name)
		issues, err := client.ListReadyIssues(repo.Name)
		if err != nil {
			s.Log.Warnf("discover: repo %s: %v", repo.Name, err)
			continue
		}
		for _, i := range issues {
			out = append(out, model.Issue{Number: i.Number, Title: i.Title, RepoName: i.RepoName})
		}
	}
	return out
}

func repoBasePath(cfg *config.Config, repoName string) string {
	for _, r := range cfg.GitHub.Repos {
		if r.Name == repoName {
			return r.BaseRepoPath
		}
	}
	return ""
}

func processorConfig(cfg *config.Config, p model.ProcessorName) config.Processor {
	switch p {
	case model.ProcessorCodex:
		return cfg.Processors.Codex
	default:
		return cfg.Processors.Claude
	}
}

func workingLabel(p model.ProcessorName) string   { return string(p) + "-working" }
func completedLabel(p model.ProcessorName) string { return string(p) + "-completed" }
func failedLabel(p model.ProcessorName) string    { return string(p) + "-failed" }

// runPipeline runs the per-processor pipeline for one reserved (issue,
// processor) entry: pre-run label reconciliation,
// notifyStart, the processor driver, and terminal reconciliation.
func (s *Scheduler) runPipeline(issue model.Issue, entry model.IssueState) {
	client := s.clientFor(issue.RepoName)
	p := entry.ProcessorName

	if err := client.UpdateLabels(issue.RepoName, issue.Number, githubapi.LabelUpdate{
		Add:    []string{workingLabel(p)},
		Remove: []string{githubapi.ListReadyIssuesLabel, completedLabel(p), failedLabel(p)},
	}); err != nil {
		s.Log.Warnf("issue #%d (%s): pre-run label update failed: %v", issue.Number, p, err)
	}

	s.Notifier.NotifyStart(notify.Event{
		IssueNumber: issue.Number,
		Title:       fmt.Sprintf("[%s] %s", displayName(p), issue.Title),
		RepoName:    issue.RepoName,
	})

	outcome := s.invokeDriver(entry)

	entry.Status = outcome.Status
	if outcome.SessionID != "" {
		entry.SessionID = outcome.SessionID
	}
	if outcome.LastOutput != "" {
		entry.LastOutput = outcome.LastOutput
	}
	entry.Error = outcome.ErrMessage
	now := time.Now().UTC()
	entry.EndTime = &now
	s.Store.Set(entry)
	if err := s.Store.SaveAll(); err != nil {
		s.Log.Errorf("issue #%d (%s): save after completion failed: %v", issue.Number, p, err)
	}

	s.reconcile(issue, entry)
}

func displayName(p model.ProcessorName) string {
	switch p {
	case model.ProcessorCodex:
		return "Codex"
	default:
		return "Claude"
	}
}

// invokeDriver prepares the worktree and invokes the processor driver,
// translating any preparation error into a failed outcome the same way
// an escaped driver exception is treated.
func (s *Scheduler) invokeDriver(entry model.IssueState) processor.Outcome {
	p := entry.ProcessorName
	driver, ok := s.Drivers[p]
	if !ok {
		return processor.Outcome{Status: model.StatusFailed, ErrMessage: fmt.Sprintf("no driver registered for processor %s", p)}
	}

	base := repoBasePath(s.Config, entry.RepoName)
	dir, err := s.Workspace.EnsureClone(base, p, entry.AgentIndex, entry.RepoName)
	if err != nil {
		return processor.Outcome{Status: model.StatusFailed, ErrMessage: err.Error()}
	}
	if err := s.Workspace.PrepareIssueBranch(dir, entry.Branch); err != nil {
		return processor.Outcome{Status: model.StatusFailed, ErrMessage: err.Error()}
	}

	pc := processorConfig(s.Config, p)
	cfg := processor.Config{
		BinPath:              pc.Path,
		TimeoutSeconds:       pc.TimeoutSeconds,
		CheckIntervalSeconds: pc.CheckIntervalSeconds,
		PromptOverride:       pc.PromptPath,
	}

	return processor.Run(driver, cfg, s.Prompts, entry.IssueNumber, dir)
}

// reconcile applies terminal reconciliation: label updates,
// notification, and state entry retention/deletion.
func (s *Scheduler) reconcile(issue model.Issue, entry model.IssueState) {
	client := s.clientFor(issue.RepoName)
	p := entry.ProcessorName

	switch entry.Status {
	case model.StatusCompleted:
		duration := formatDuration(entry.StartTime, *entry.EndTime)
		s.Notifier.NotifyComplete(notify.Event{IssueNumber: issue.Number, RepoName: issue.RepoName, Duration: duration})
		if err := client.UpdateLabels(issue.RepoName, issue.Number, githubapi.LabelUpdate{
			Add:    []string{completedLabel(p)},
			Remove: []string{workingLabel(p)},
		}); err != nil {
			s.Log.Warnf("issue #%d (%s): completed label update failed: %v", issue.Number, p, err)
		}
		s.Store.Remove(issue.Number, p)

	case model.StatusNeedsInput:
		s.Notifier.NotifyNeedsInput(notify.Event{IssueNumber: issue.Number, RepoName: issue.RepoName, Output: entry.LastOutput})
		// Entry is retained: needs_input awaits human action.

	default: // failed, or any unexpected terminal status
		s.Notifier.NotifyError(notify.Event{IssueNumber: issue.Number, RepoName: issue.RepoName, Error: entry.Error, Output: entry.LastOutput})
		if err := client.UpdateLabels(issue.RepoName, issue.Number, githubapi.LabelUpdate{
			Add:    []string{failedLabel(p)},
			Remove: []string{workingLabel(p), githubapi.ListReadyIssuesLabel},
		}); err != nil {
			s.Log.Warnf("issue #%d (%s): failed label update failed: %v", issue.Number, p, err)
		}
		s.Store.Remove(issue.Number, p)
	}

	if err := s.Store.SaveAll(); err != nil {
		s.Log.Errorf("issue #%d (%s): save after reconciliation failed: %v", issue.Number, p, err)
	}
}

// formatDuration renders a "<m>m <s>s" duration form.
func formatDuration(start, end time.Time) string {
	d := end.Sub(start).Round(time.Second)
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
