package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultCommitMessage is the subject of every backup commit unless
// GitOptions.Message overrides it.
const DefaultCommitMessage = "sync: update envtree backup"

// GitOptions configures a GitDestination.
type GitOptions struct {
	Repo    string // local clone
	File    string // backup path relative to Repo
	Branch  string
	Push    bool // pull --ff-only before and push after each commit to origin
	Message string
}

// GitDestination commits each backup into a working copy. Unchanged
// exports produce no commit.
type GitDestination struct {
	opts GitOptions
}

// NewGitDestination validates opts. File must stay inside Repo.
func NewGitDestination(opts GitOptions) (*GitDestination, error) {
	if opts.Repo == "" {
		return nil, errors.New("git sync: repo is required")
	}
	if !filepath.IsLocal(opts.File) {
		return nil, fmt.Errorf("git sync: file %q must be a relative path inside the repo", opts.File)
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.Message == "" {
		opts.Message = DefaultCommitMessage
	}
	return &GitDestination{opts: opts}, nil
}

func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	o := d.opts
	if _, err := d.git(ctx, "checkout", o.Branch); err != nil {
		return err
	}
	if o.Push {
		// origin may not have the branch yet.
		_, _ = d.git(ctx, "pull", "--ff-only", "origin", o.Branch)
	}

	path := filepath.Join(o.Repo, o.File)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("git sync: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("git sync: %w", err)
	}
	if _, err := d.git(ctx, "add", "--", o.File); err != nil {
		return err
	}

	status, err := d.git(ctx, "status", "--porcelain", "--", o.File)
	if err != nil {
		return err
	}
	if status == "" {
		return nil
	}
	if _, err := d.git(ctx, "commit", "-m", o.Message, "--", o.File); err != nil {
		return err
	}
	if !o.Push {
		return nil
	}
	_, err = d.git(ctx, "push", "origin", o.Branch)
	return err
}

// git runs one git subcommand in the repo and returns its trimmed stdout.
// Failures carry stderr so they are readable in the sync log.
func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.opts.Repo
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (d *GitDestination) String() string {
	return "git:" + filepath.Join(d.opts.Repo, d.opts.File)
}
