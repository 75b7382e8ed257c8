// Package gitworkspace implements the per-(processor, agent_index, repo)
// worktree lifecycle: ensureClone, prepareDefaultBranch, and
// prepareIssueBranch, built directly on raw git plumbing the way pm's
// internal/git/git.go (the gitCmd helper) and internal/wt/gitclient.go's
// repoBoundGitopsClient (WorktreeAdd/Remove, Push/Pull/Fetch, HasConflicts)
// implement a full git surface without any git library dependency.
package gitworkspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Hey-Diga/imploid/internal/imploiderr"
	"github.com/Hey-Diga/imploid/internal/model"
)

// Workspace prepares and refreshes per-slot worktrees.
type Workspace struct {
	// CloneURL renders a repo's clone URL; overridable for tests.
	CloneURL func(repoName string) string
}

// New returns a Workspace using the standard git@github.com SSH form for
// clone URLs, matching the original orchestrator's repo_manager.py.
func New() *Workspace {
	return &Workspace{
		CloneURL: func(repoName string) string {
			return fmt.Sprintf("git@github.com:%s.git", repoName)
		},
	}
}

// ShortRepoName returns the repository name's final path segment, e.g.
// "owner/name" -> "name".
func ShortRepoName(repoName string) string {
	parts := strings.Split(repoName, "/")
	return parts[len(parts)-1]
}

// Dir computes the deterministic per-slot directory:
// <baseRepoPath>/<processor>/<shortRepoName>_agent_<index>.
func Dir(baseRepoPath string, processor model.ProcessorName, agentIndex int, repoName string) string {
	return filepath.Join(baseRepoPath, string(processor), fmt.Sprintf("%s_agent_%d", ShortRepoName(repoName), agentIndex))
}

func gitCmd(dir string, args ...string) (string, string, error) {
	fullArgs := append([]string{"-C", dir}, args...)
	cmd := exec.Command("git", fullArgs...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

func run(step, dir string, args ...string) (string, error) {
	out, stderr, err := gitCmd(dir, args...)
	if err != nil {
		return out, &imploiderr.GitError{Step: step, Stderr: stderr, Cause: err}
	}
	return out, nil
}

// EnsureClone clones the repo if the slot directory is absent, else
// refreshes the default branch and enforces a clean tree, then runs the
// repo's setup script on a best-effort basis.
func (w *Workspace) EnsureClone(baseRepoPath string, processor model.ProcessorName, agentIndex int, repoName string) (string, error) {
	dir := Dir(baseRepoPath, processor, agentIndex, repoName)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", fmt.Errorf("create parent directory: %w", err)
		}
		// Clone into a uniquely-named sibling first and rename into place,
		// so a crash mid-clone never leaves a half-populated slot directory
		// that a later run would mistake for an already-cloned one.
		staging := dir + ".clone-" + uuid.NewString()
		if _, err := run("clone", filepath.Dir(dir), "clone", w.CloneURL(repoName), staging); err != nil {
			return "", err
		}
		if err := os.Rename(staging, dir); err != nil {
			return "", fmt.Errorf("finalize clone: %w", err)
		}
	} else {
		if _, err := w.PrepareDefaultBranch(dir); err != nil {
			return "", err
		}
	}

	if err := w.enforceClean(dir); err != nil {
		return "", err
	}

	w.runSetupScript(dir)

	return dir, nil
}

// PrepareDefaultBranch checks out the default branch (main, falling back
// to master), hard-resets to its upstream (or plain --hard if no
// upstream exists yet), and removes untracked files. Returns the branch
// checked out.
func (w *Workspace) PrepareDefaultBranch(dir string) (string, error) {
	branch := "main"
	if _, _, err := gitCmd(dir, "checkout", "main"); err != nil {
		if _, err := run("checkout default branch", dir, "checkout", "master"); err != nil {
			return "", err
		}
		branch = "master"
	}

	if _, err := run("fetch", dir, "fetch", "origin"); err != nil {
		return "", err
	}

	if _, _, err := gitCmd(dir, "reset", "--hard", "origin/"+branch); err != nil {
		if _, err := run("reset", dir, "reset", "--hard"); err != nil {
			return "", err
		}
	}

	if _, err := run("clean", dir, "clean", "-fd"); err != nil {
		return "", err
	}

	return branch, nil
}

// enforceClean hard-resets and cleans the tree if it is dirty. This is
// a deliberate behavior change from the original
// orchestrator's repo_manager.py, which only warns on dirty state.
func (w *Workspace) enforceClean(dir string) error {
	out, err := run("status", dir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if out == "" {
		return nil
	}
	if _, err := run("reset", dir, "reset", "--hard"); err != nil {
		return err
	}
	if _, err := run("clean", dir, "clean", "-fd"); err != nil {
		return err
	}
	return nil
}

// runSetupScript runs ./setup.sh if present. A failure to start it or a
// non-zero exit is never fatal; it is also not reported or logged.
func (w *Workspace) runSetupScript(dir string) {
	setupPath := filepath.Join(dir, "setup.sh")
	if _, err := os.Stat(setupPath); err != nil {
		return
	}
	_ = os.Chmod(setupPath, 0o755)
	cmd := exec.Command("./setup.sh")
	cmd.Dir = dir
	_ = cmd.Run()
}

// PrepareIssueBranch checks out (creating if necessary) branchName from
// the freshly-reset default branch and verifies the worktree is clean
// afterward.
func (w *Workspace) PrepareIssueBranch(dir, branchName string) error {
	if _, err := run("checkout -B", dir, "checkout", "-B", branchName); err != nil {
		return err
	}

	current, err := run("branch --show-current", dir, "branch", "--show-current")
	if err != nil {
		return err
	}
	if current != branchName {
		return &imploiderr.GitError{Step: "verify branch", Stderr: fmt.Sprintf("expected %s, got %s", branchName, current)}
	}

	status, err := run("status", dir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if status != "" {
		return &imploiderr.GitError{Step: "verify clean", Stderr: "worktree not clean after branch preparation"}
	}

	return nil
}
