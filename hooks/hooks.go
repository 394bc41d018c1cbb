// Package hooks runs the pre-commit, post-commit, pre-checkout and
// post-checkout scripts a repository may keep under .DFM/hooks.
// Pre-hooks block their operation on failure; post-hooks are
// advisory and only ever logged.
package hooks

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Dir is the hooks directory, relative to a repository's root.
	Dir = ".DFM/hooks"

	// Timeout bounds every hook invocation.
	Timeout = 30 * time.Second
)

const (
	PreCommit    = "pre-commit"
	PostCommit   = "post-commit"
	PreCheckout  = "pre-checkout"
	PostCheckout = "post-checkout"
)

// Runner invokes hook scripts for one repository working directory.
// Hooks are real executables on disk, so Runner operates against
// repoPath directly rather than through a billy.Filesystem.
type Runner struct {
	repoPath string
	log      *slog.Logger
}

// New returns a Runner rooted at repoPath (the directory containing
// .DFM), logging with log, or slog.Default() if log is nil.
func New(repoPath string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{repoPath: repoPath, log: log}
}

func (r *Runner) path(name string) string {
	return filepath.Join(r.repoPath, Dir, name)
}

// Exists reports whether name's hook script is present and is a
// regular file. Executability isn't required here: run makes it
// executable on the way in with a best-effort chmod.
func (r *Runner) Exists(name string) bool {
	info, err := os.Stat(r.path(name))
	return err == nil && info.Mode().IsRegular()
}

// run executes name's hook, if present, with env merged onto the
// current process environment. A missing hook is a silent success, and
// a Runner with an empty repoPath finds no hooks at all. A
// present-but-non-regular-file hook logs a warning and is skipped. On
// non-zero exit or timeout: if canFail, the failure is logged and
// swallowed; otherwise its message is returned as an error.
func (r *Runner) run(name string, env map[string]string, canFail bool) error {
	if r.repoPath == "" {
		return nil
	}
	hookPath := r.path(name)

	info, err := os.Stat(hookPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return nil
	}
	if !info.Mode().IsRegular() {
		r.log.Warn("hook exists but is not a file, skipping", "hook", name)
		return nil
	}

	if err := os.Chmod(hookPath, info.Mode()|0o111); err != nil {
		r.log.Warn("failed to make hook executable", "hook", name, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, hookPath)
	cmd.Dir = r.repoPath
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		msg := "hook '" + name + "' timed out after 30 seconds"
		r.log.Error(msg)
		if canFail {
			return nil
		}
		return &Error{Hook: name, Message: msg}
	}

	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = "hook '" + name + "' failed: " + runErr.Error()
		}
		r.log.Warn("hook failed", "hook", name, "error", msg)
		if canFail {
			return nil
		}
		return &Error{Hook: name, Message: msg}
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		r.log.Debug("hook output", "hook", name, "output", out)
	}
	return nil
}

// Error is returned by a blocking hook's failure.
type Error struct {
	Hook    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// RunPreCommit blocks the commit if the script fails.
func (r *Runner) RunPreCommit(branch, author, message string) error {
	return r.run(PreCommit, map[string]string{
		"DFM_BRANCH":    branch,
		"DFM_AUTHOR":    author,
		"DFM_MESSAGE":   message,
		"DFM_REPO_PATH": r.repoPath,
	}, false)
}

// RunPostCommit is advisory: any failure is logged, never returned.
func (r *Runner) RunPostCommit(commitHash, branch, author, message string) {
	_ = r.run(PostCommit, map[string]string{
		"DFM_COMMIT_HASH": commitHash,
		"DFM_BRANCH":      branch,
		"DFM_AUTHOR":      author,
		"DFM_MESSAGE":     message,
		"DFM_REPO_PATH":   r.repoPath,
	}, true)
}

// RunPreCheckout blocks the checkout if the script fails.
func (r *Runner) RunPreCheckout(target string) error {
	return r.run(PreCheckout, map[string]string{
		"DFM_TARGET":    target,
		"DFM_REPO_PATH": r.repoPath,
	}, false)
}

// RunPostCheckout is advisory: any failure is logged, never returned.
func (r *Runner) RunPostCheckout(target string) {
	_ = r.run(PostCheckout, map[string]string{
		"DFM_TARGET":    target,
		"DFM_REPO_PATH": r.repoPath,
	}, true)
}
