// Package git shells out to the system git binary to execute repository
// operations inside workspace directories. Arguments are passed as argv
// only, credentials enter through the child environment, and stderr is
// mapped onto the domain error taxonomy.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/fsutil"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
)

// Client wraps git CLI invocations. It is stateless; the workspace
// directory arrives with every call.
type Client struct {
	binary string
	log    *logging.Logger
}

var _ core.GitAdapter = (*Client)(nil)

// New creates a git client. An empty binary defaults to "git" on PATH.
func New(binary string, log *logging.Logger) *Client {
	if binary == "" {
		binary = "git"
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{binary: binary, log: log.WithComponent("git")}
}

// output carries both streams of one invocation. Fetch and push report
// through stderr even on success.
type output struct {
	stdout string
	stderr string
}

func (o output) combined() string {
	return o.stdout + "\n" + o.stderr
}

// exec runs one git command. Credentials extend the child environment via
// auth; a non-nil progress parses transfer percentages out of stderr.
// Cancellation kills the child process; deadline expiry maps to the
// timeout taxonomy while plain cancellation propagates the context error
// so callers can tell the two apart.
func (c *Client) exec(ctx context.Context, dir string, auth core.Auth, progress core.ProgressFunc, args ...string) (output, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = dir

	// LC_ALL=C pins the message catalog the stderr mapping depends on.
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C", "LANG=C")
	if auth != nil {
		env = auth.Env(env)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	var pw *progressWriter
	if progress != nil {
		pw = newProgressWriter(progress, &stderr)
		cmd.Stderr = pw
	} else {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	if pw != nil {
		pw.Flush()
	}
	out := output{
		stdout: strings.TrimSpace(stdout.String()),
		stderr: strings.TrimSpace(stderr.String()),
	}
	c.log.Debug("git command finished",
		"cmd", args[0],
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, core.ErrTimeout(fmt.Sprintf("git %s exceeded its deadline", args[0])).
				WithCause(ctx.Err())
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return out, ctx.Err()
		}
		return out, mapGitError(out.stderr, err)
	}
	return out, nil
}

// run is exec without credentials or progress, returning stdout.
func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := c.exec(ctx, dir, nil, nil, args...)
	return out.stdout, err
}

// head returns the current commit sha, or "" in a repo with no commits.
func (c *Client) head(ctx context.Context, dir string) string {
	sha, err := c.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return sha
}

// Version reports the git binary version.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "", "version")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(out, "git version "), nil
}

// Clone clones opts.URL into dir, which must exist and be empty. Sparse
// paths apply after the clone via sparse-checkout; LFS content pulls
// explicitly when requested.
func (c *Client) Clone(ctx context.Context, dir string, opts core.CloneOptions, auth core.Auth, progress core.ProgressFunc) (*core.CloneResult, error) {
	args := []string{"clone", "--progress"}
	if opts.Depth > 0 {
		args = append(args, fmt.Sprintf("--depth=%d", opts.Depth))
	}
	if opts.Filter != "" {
		args = append(args, "--filter="+opts.Filter)
	}
	if opts.SingleBranch || (opts.Depth > 0 && opts.Branch != "") {
		args = append(args, "--single-branch")
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	if opts.Recursive {
		args = append(args, "--recurse-submodules")
	}
	if opts.Bare {
		args = append(args, "--bare")
	}
	if len(opts.SparsePaths) > 0 {
		args = append(args, "--sparse")
		if opts.Filter == "" {
			args = append(args, "--filter=blob:none")
		}
	}
	args = append(args, "--", opts.URL, ".")

	if _, err := c.exec(ctx, dir, auth, progress, args...); err != nil {
		return nil, err
	}

	if len(opts.SparsePaths) > 0 {
		sparseArgs := append([]string{"sparse-checkout", "set", "--"}, opts.SparsePaths...)
		if _, err := c.run(ctx, dir, sparseArgs...); err != nil {
			return nil, err
		}
	}
	if opts.LFS {
		if err := c.LFSInstall(ctx, dir); err != nil {
			return nil, err
		}
		if err := c.LFSPull(ctx, dir, core.LFSTransferOptions{}, auth, progress); err != nil {
			return nil, err
		}
	}

	branch, err := c.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	size, err := fsutil.DirSize(dir)
	if err != nil {
		size = 0
	}
	return &core.CloneResult{
		Branch:    branch,
		Commit:    c.head(ctx, dir),
		SizeBytes: size,
	}, nil
}

// Init creates an empty repository in dir.
func (c *Client) Init(ctx context.Context, dir string, opts core.InitOptions) error {
	args := []string{"init"}
	if opts.Bare {
		args = append(args, "--bare")
	}
	if opts.InitialBranch != "" {
		args = append(args, "--initial-branch", opts.InitialBranch)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Status reports the working tree state.
func (c *Client) Status(ctx context.Context, dir string) (*core.StatusResult, error) {
	out, err := c.run(ctx, dir, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return nil, err
	}
	return parseStatusV2(out), nil
}

// Stage adds paths to the index.
func (c *Client) Stage(ctx context.Context, dir string, opts core.StageOptions) error {
	args := []string{"add"}
	switch {
	case opts.All:
		args = append(args, "-A")
	case opts.Update:
		args = append(args, "-u")
	default:
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Commit records the staged changes.
func (c *Client) Commit(ctx context.Context, dir string, opts core.CommitOptions) (*core.CommitResult, error) {
	var args []string
	if opts.AuthorName != "" {
		args = append(args, "-c", "user.name="+opts.AuthorName)
	}
	if opts.AuthorEmail != "" {
		args = append(args, "-c", "user.email="+opts.AuthorEmail)
	}
	args = append(args, "commit", "-m", opts.Message)
	if opts.Amend {
		args = append(args, "--amend")
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if opts.SignOff {
		args = append(args, "--signoff")
	}
	if out, err := c.exec(ctx, dir, nil, nil, args...); err != nil {
		// An empty index fails with the explanation on stdout, outside the
		// stderr mapping's reach.
		if strings.Contains(out.combined(), "nothing to commit") ||
			strings.Contains(out.combined(), "no changes added to commit") {
			return nil, core.ErrGit(core.CodeGitNoChanges, "nothing to commit").
				WithSuggestion("stage changes first, or pass allow_empty")
		}
		return nil, err
	}
	return c.commitResult(ctx, dir, "HEAD")
}

// commitResult reads back the sha and stat summary of a commit.
func (c *Client) commitResult(ctx context.Context, dir, ref string) (*core.CommitResult, error) {
	sha, err := c.run(ctx, dir, "rev-parse", ref)
	if err != nil {
		return nil, err
	}
	stat, err := c.run(ctx, dir, "show", "--shortstat", "--format=", ref)
	if err != nil {
		return nil, err
	}
	files, ins, del := parseShortStat(stat)
	return &core.CommitResult{
		Commit:       sha,
		FilesChanged: files,
		Insertions:   ins,
		Deletions:    del,
	}, nil
}

// Checkout switches refs or restores paths from one.
func (c *Client) Checkout(ctx context.Context, dir string, opts core.CheckoutOptions) error {
	args := []string{"checkout"}
	if opts.Force {
		args = append(args, "--force")
	}
	if opts.Create {
		args = append(args, "-b")
	}
	args = append(args, opts.Ref)
	if opts.Create && opts.StartPoint != "" {
		args = append(args, opts.StartPoint)
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Reset moves HEAD or unstages paths. Mode defaults to mixed; path resets
// take no mode flag.
func (c *Client) Reset(ctx context.Context, dir string, opts core.ResetOptions) error {
	args := []string{"reset"}
	if len(opts.Paths) == 0 {
		mode := opts.Mode
		if mode == "" {
			mode = core.ResetMixed
		}
		args = append(args, "--"+string(mode))
	}
	if opts.Ref != "" {
		args = append(args, opts.Ref)
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Clean removes untracked files and reports what went away.
func (c *Client) Clean(ctx context.Context, dir string, opts core.CleanOptions) (*core.CleanResult, error) {
	args := []string{"clean"}
	if opts.DryRun {
		args = append(args, "-n")
	} else {
		args = append(args, "-f")
	}
	if opts.Directories {
		args = append(args, "-d")
	}
	if opts.Ignored {
		args = append(args, "-x")
	}
	out, err := c.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	removed := parseCleanPaths(out)
	if removed == nil {
		removed = []string{}
	}
	return &core.CleanResult{Removed: removed, DryRun: opts.DryRun}, nil
}
