// Package imploiderr defines the error kinds named in the orchestrator's
// error handling design: each wraps an underlying cause where one exists
// and is distinguished by type, not by string matching.
package imploiderr

import "fmt"

// ConfigError signals missing or invalid configuration. Fatal at startup.
type ConfigError struct {
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// LockConflict signals that another instance holds the run lock.
type LockConflict struct {
	HolderPID int
}

func (e *LockConflict) Error() string {
	return fmt.Sprintf("lock held by running process %d", e.HolderPID)
}

// GitHubError is a non-2xx response from the GitHub REST API.
type GitHubError struct {
	Status int
	Body   string
}

func (e *GitHubError) Error() string {
	return fmt.Sprintf("github api error: status %d: %s", e.Status, e.Body)
}

// GitError wraps a failed git plumbing step.
type GitError struct {
	Step   string
	Stderr string
	Cause  error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed: %s", e.Step, e.Stderr)
}

func (e *GitError) Unwrap() error { return e.Cause }

// SpawnError signals a child process that could not be started at all.
type SpawnError struct {
	Argv  []string
	Cause error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn failed for %v: %v", e.Argv, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// TimeoutError signals a supervised process exceeded its wall-clock budget.
type TimeoutError struct {
	TimeoutSeconds float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Process timed out after %g seconds", e.TimeoutSeconds)
}

// NonZeroExitError signals a supervised process exited with a non-zero code.
type NonZeroExitError struct {
	Code   int
	Stderr string
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("process exited %d: %s", e.Code, e.Stderr)
}

// PromptNotFoundError signals that no candidate prompt template exists.
type PromptNotFoundError struct {
	Display    string
	Candidates []string
}

func (e *PromptNotFoundError) Error() string {
	return fmt.Sprintf("prompt %q not found, tried: %v", e.Display, e.Candidates)
}
