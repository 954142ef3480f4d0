// Package vcs is the Git post-processor boundary (spec.md §1/§3): an
// independent wrapper that versions the configs directory after the
// core has written its snapshots. It consumes only a configs
// directory path and the [git] section of Config — never inventory,
// credentials, or connector state — shelling out to the git binary the
// way the teacher shells out to system commands
// (internal/daemon/healing_executor.go's os/exec usage).
package vcs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
)

// Repo wraps a configs directory under Git version control.
type Repo struct {
	dir string
	cfg config.GitSpec
}

// New builds a Repo rooted at configsDir using spec for remote and
// credential material.
func New(configsDir string, spec config.GitSpec) (*Repo, error) {
	if err := (&spec).Validate(); err != nil {
		return nil, err
	}
	return &Repo{dir: configsDir, cfg: spec}, nil
}

// Prepare clones the remote into the configs directory if it is not
// already a git repository, or opens the existing one, then sets
// user.name/user.email when configured. No branch is checked out; HEAD
// is left as cloned or found.
func (r *Repo) Prepare(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(r.dir, ".git")); os.IsNotExist(err) {
		if r.cfg.Repo == "" {
			return errs.NewConfigError("git: repo URL required to clone into "+r.dir, nil)
		}
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return err
		}
		if err := r.run(ctx, r.dir, "clone", r.cfg.Repo, "."); err != nil {
			return err
		}
	}

	if r.cfg.Username != "" {
		if err := r.run(ctx, r.dir, "config", "user.name", r.cfg.Username); err != nil {
			return err
		}
	}
	if r.cfg.Email != "" {
		if err := r.run(ctx, r.dir, "config", "user.email", r.cfg.Email); err != nil {
			return err
		}
	}

	return nil
}

// Save stages all changes under the configs directory, commits with
// msg, and pushes to the configured remote.
func (r *Repo) Save(ctx context.Context, msg string) error {
	if err := r.run(ctx, r.dir, "add", "-A"); err != nil {
		return err
	}

	if clean, err := r.isClean(ctx); err != nil {
		return err
	} else if clean {
		return nil
	}

	if err := r.run(ctx, r.dir, "commit", "-m", msg); err != nil {
		return err
	}

	return r.run(ctx, r.dir, "push")
}

// Status returns `git status --porcelain` output for the configs
// directory.
func (r *Repo) Status(ctx context.Context) (string, error) {
	return r.output(ctx, r.dir, "status", "--porcelain")
}

func (r *Repo) isClean(ctx context.Context) (bool, error) {
	out, err := r.output(ctx, r.dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

func (r *Repo) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = r.env()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %v: %w: %s", args, err, out)
	}
	return nil
}

func (r *Repo) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = r.env()
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %v: %w", args, err)
	}
	return string(out), nil
}

// env builds the git subprocess environment: the full process
// environment plus, for a deploy key, a GIT_SSH_COMMAND selecting that
// key, or, for a personal token, GIT_ASKPASS cleared and
// GIT_TERMINAL_PROMPT=0. The token itself is not injected; it must
// already be part of the remote URL.
func (r *Repo) env() []string {
	env := append([]string{}, os.Environ()...)

	switch {
	case r.cfg.DeployKeyFile != "":
		sshCmd := "ssh -i " + r.cfg.DeployKeyFile + " -o IdentitiesOnly=yes"
		env = append(env, "GIT_SSH_COMMAND="+sshCmd)
	case r.cfg.PersonalToken != "":
		env = append(env, "GIT_ASKPASS=", "GIT_TERMINAL_PROMPT=0")
	}

	return env
}
