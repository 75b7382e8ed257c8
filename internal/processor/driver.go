// Package processor implements per-processor subprocess supervision:
// argv assembly, output framing, session-id capture, and the
// check-interval-vs-timeout supervision loop. The loop's race
// between the child's exit and a timer is grounded on the original
// orchestrator's lib/claude_processor.py (asyncio.wait_for racing
// process.wait() against check_interval, rechecked against a wall-clock
// timeout), translated to a goroutine + channel + time.Timer shape.
package processor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Hey-Diga/imploid/internal/gitworkspace"
	"github.com/Hey-Diga/imploid/internal/imploiderr"
	"github.com/Hey-Diga/imploid/internal/model"
	"github.com/Hey-Diga/imploid/internal/procrunner"
	"github.com/Hey-Diga/imploid/internal/promptloader"
)

// Driver is implemented once per ProcessorName: it knows how to build
// argv for its binary.
type Driver interface {
	Name() model.ProcessorName
	BuildArgv(binPath, prompt string) []string
}

// Config is the resolved per-processor configuration the driver needs.
type Config struct {
	BinPath              string
	TimeoutSeconds       float64
	CheckIntervalSeconds float64
	PromptOverride       string
}

// Outcome is the result of one processor invocation.
type Outcome struct {
	Status     model.ProcessStatus
	SessionID  string
	LastOutput string
	ErrMessage string
}

// Run drives one processor invocation end to end: load the prompt,
// build argv, spawn the subprocess, and supervise it until exit or
// timeout. Branch name derivation and workspace preparation are the
// caller's responsibility — Run receives the prepared worktree
// directory and only drives the subprocess.
func Run(d Driver, cfg Config, loader *promptloader.Loader, issueNumber int, dir string) Outcome {
	prompt, err := loader.Load(d.Name(), issueNumber, cfg.PromptOverride)
	if err != nil {
		return Outcome{Status: model.StatusFailed, ErrMessage: err.Error()}
	}

	argv := d.BuildArgv(cfg.BinPath, prompt)

	handle, stdout, stderr, err := procrunner.SpawnProcess(argv, procrunner.Options{Cwd: dir})
	if err != nil {
		return Outcome{Status: model.StatusFailed, ErrMessage: err.Error()}
	}

	sessionCh := make(chan string, 1)
	lastOutputCh := make(chan string, 1)
	go readStdout(stdout, sessionCh, lastOutputCh)

	var stderrBuf strings.Builder
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			stderrBuf.WriteString(sc.Text())
			stderrBuf.WriteByte('\n')
		}
	}()

	start := time.Now()
	var sessionID, lastOutput string

	timeout := time.Duration(cfg.TimeoutSeconds * float64(time.Second))
	checkInterval := time.Duration(cfg.CheckIntervalSeconds * float64(time.Second))
	if checkInterval <= 0 {
		checkInterval = time.Second
	}

	for {
		select {
		case sid, ok := <-sessionCh:
			if ok {
				sessionID = sid
			} else {
				sessionCh = nil
			}
		case lo, ok := <-lastOutputCh:
			if ok {
				lastOutput = lo
			} else {
				lastOutputCh = nil
			}
		case code := <-handle.Exited():
			<-stderrDone
			if code == 0 {
				return Outcome{Status: model.StatusCompleted, SessionID: sessionID, LastOutput: lastOutput}
			}
			errMsg := strings.TrimSpace(stderrBuf.String())
			if errMsg == "" {
				errMsg = "Unknown error"
			}
			return Outcome{Status: model.StatusFailed, SessionID: sessionID, LastOutput: lastOutput, ErrMessage: errMsg}
		case <-time.After(checkInterval):
			if time.Since(start) > timeout {
				_ = handle.Kill()
				<-handle.Exited()
				<-stderrDone
				err := &imploiderr.TimeoutError{TimeoutSeconds: cfg.TimeoutSeconds}
				return Outcome{Status: model.StatusFailed, SessionID: sessionID, LastOutput: lastOutput, ErrMessage: err.Error()}
			}
		}
	}
}

// readStdout splits stdout on \n, trims each line, tracks the most
// recent non-empty line as last_output, and parses each line as JSON
// best-effort to capture the first session_id / sessionId field.
func readStdout(r interface{ Read([]byte) (int, error) }, sessionCh, lastOutputCh chan<- string) {
	defer close(sessionCh)
	defer close(lastOutputCh)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sessionSent := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lastOutputCh <- line

		if sessionSent {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if v, ok := obj["session_id"]; ok {
			if s, ok := v.(string); ok {
				sessionCh <- s
				sessionSent = true
			}
		} else if v, ok := obj["sessionId"]; ok {
			if s, ok := v.(string); ok {
				sessionCh <- s
				sessionSent = true
			}
		}
	}
}

// BranchName constructs issue-<n>-<processor>-<14-digit timestamp>.
func BranchName(issueNumber int, p model.ProcessorName, t time.Time) string {
	return fmt.Sprintf("issue-%d-%s-%s", issueNumber, p, t.Format("20060102150405"))
}

// WorkspaceDir re-exports gitworkspace.Dir for callers that only import
// the processor package's surface.
func WorkspaceDir(baseRepoPath string, p model.ProcessorName, agentIndex int, repoName string) string {
	return gitworkspace.Dir(baseRepoPath, p, agentIndex, repoName)
}
