package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// defaultRemote fills in the conventional remote name when options leave
// it empty.
const defaultRemote = "origin"

func remoteOrDefault(name string) string {
	if name == "" {
		return defaultRemote
	}
	return name
}

// Push sends local refs to a remote.
func (c *Client) Push(ctx context.Context, dir string, opts core.PushOptions, auth core.Auth, progress core.ProgressFunc) (*core.PushResult, error) {
	remote := remoteOrDefault(opts.Remote)
	ref := opts.Ref
	if ref == "" {
		ref = "HEAD"
	}

	args := []string{"push", "--progress"}
	switch {
	case opts.ForceWithLease:
		args = append(args, "--force-with-lease")
	case opts.Force:
		args = append(args, "--force")
	}
	if opts.SetUpstream {
		args = append(args, "--set-upstream")
	}
	if opts.Tags {
		args = append(args, "--tags")
	}
	if opts.Delete {
		args = append(args, "--delete")
	}
	args = append(args, remote, ref)

	out, err := c.exec(ctx, dir, auth, progress, args...)
	if err != nil {
		return nil, err
	}
	return &core.PushResult{
		Remote:   remote,
		Ref:      ref,
		UpToDate: strings.Contains(out.combined(), "Everything up-to-date"),
		Forced:   opts.Force || opts.ForceWithLease,
	}, nil
}

// Pull fetches and integrates remote changes into the current branch.
func (c *Client) Pull(ctx context.Context, dir string, opts core.PullOptions, auth core.Auth, progress core.ProgressFunc) (*core.PullResult, error) {
	before := c.head(ctx, dir)

	args := []string{"pull", "--progress"}
	if opts.Rebase {
		args = append(args, "--rebase")
	}
	if opts.FFOnly {
		args = append(args, "--ff-only")
	}
	if opts.Prune {
		args = append(args, "--prune")
	}
	args = append(args, remoteOrDefault(opts.Remote))
	if opts.Branch != "" {
		args = append(args, opts.Branch)
	}

	out, err := c.exec(ctx, dir, auth, progress, args...)
	if err != nil {
		if conflicted(out) {
			code := core.CodeMergeConflict
			if opts.Rebase {
				code = core.CodeRebaseConflict
			}
			return nil, core.ErrMergeConflict(code, c.conflictFiles(ctx, dir, out))
		}
		return nil, err
	}

	after := c.head(ctx, dir)
	result := &core.PullResult{
		Before:      before,
		After:       after,
		FastForward: strings.Contains(out.stdout, "Fast-forward"),
		UpToDate:    before == after,
	}
	if before != after && before != "" {
		if stat, statErr := c.run(ctx, dir, "diff", "--shortstat", before, after); statErr == nil {
			result.FilesChanged, _, _ = parseShortStat(stat)
		}
	}
	return result, nil
}

// Fetch updates remote-tracking refs without touching the working tree.
func (c *Client) Fetch(ctx context.Context, dir string, opts core.FetchOptions, auth core.Auth, progress core.ProgressFunc) (*core.FetchResult, error) {
	remote := remoteOrDefault(opts.Remote)

	args := []string{"fetch", "--progress"}
	if opts.Prune {
		args = append(args, "--prune")
	}
	if opts.Tags {
		args = append(args, "--tags")
	}
	if opts.Depth > 0 {
		args = append(args, fmt.Sprintf("--depth=%d", opts.Depth))
	}
	if opts.All {
		args = append(args, "--all")
	} else {
		args = append(args, remote)
	}

	out, err := c.exec(ctx, dir, auth, progress, args...)
	if err != nil {
		return nil, err
	}
	refs := parseFetchRefs(out.stderr)
	if refs == nil {
		refs = []string{}
	}
	return &core.FetchResult{Remote: remote, UpdatedRefs: refs}, nil
}

// SubmoduleAdd registers a new submodule and clones it.
func (c *Client) SubmoduleAdd(ctx context.Context, dir string, opts core.SubmoduleAddOptions, auth core.Auth, progress core.ProgressFunc) error {
	args := []string{"submodule", "add"}
	if opts.Branch != "" {
		args = append(args, "-b", opts.Branch)
	}
	args = append(args, "--", opts.URL, opts.Path)
	_, err := c.exec(ctx, dir, auth, progress, args...)
	return err
}

// SubmoduleUpdate syncs registered submodules to their recorded commits.
func (c *Client) SubmoduleUpdate(ctx context.Context, dir string, opts core.SubmoduleUpdateOptions, auth core.Auth, progress core.ProgressFunc) error {
	args := []string{"submodule", "update", "--progress"}
	if opts.Init {
		args = append(args, "--init")
	}
	if opts.Recursive {
		args = append(args, "--recursive")
	}
	if opts.Remote {
		args = append(args, "--remote")
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}
	_, err := c.exec(ctx, dir, auth, progress, args...)
	return err
}

// SubmoduleDeinit unregisters submodules.
func (c *Client) SubmoduleDeinit(ctx context.Context, dir string, opts core.SubmoduleDeinitOptions) error {
	args := []string{"submodule", "deinit"}
	if opts.Force {
		args = append(args, "-f")
	}
	if opts.All {
		args = append(args, "--all")
	} else if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}
	_, err := c.run(ctx, dir, args...)
	return err
}

// Submodules lists registered submodules with their sync state. URLs come
// from .gitmodules when present.
func (c *Client) Submodules(ctx context.Context, dir string) ([]core.SubmoduleInfo, error) {
	out, err := c.run(ctx, dir, "submodule", "status")
	if err != nil {
		return nil, err
	}
	subs := parseSubmoduleStatus(out)
	if len(subs) == 0 {
		return []core.SubmoduleInfo{}, nil
	}

	// Map path→url from .gitmodules. A missing file only costs the URLs.
	cfg, cfgErr := c.run(ctx, dir, "config", "--file", ".gitmodules",
		"--get-regexp", `submodule\..*\.(path|url)`)
	if cfgErr == nil {
		urls := submoduleURLsByPath(cfg)
		for i := range subs {
			subs[i].URL = urls[subs[i].Path]
		}
	}
	return subs, nil
}

// submoduleURLsByPath pairs the path and url keys of each .gitmodules
// entry.
func submoduleURLsByPath(cfg string) map[string]string {
	paths := make(map[string]string) // name -> path
	urls := make(map[string]string)  // name -> url
	for _, line := range strings.Split(cfg, "\n") {
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		key, value := fields[0], fields[1]
		name := strings.TrimPrefix(key, "submodule.")
		switch {
		case strings.HasSuffix(name, ".path"):
			paths[strings.TrimSuffix(name, ".path")] = value
		case strings.HasSuffix(name, ".url"):
			urls[strings.TrimSuffix(name, ".url")] = value
		}
	}
	byPath := make(map[string]string, len(paths))
	for name, path := range paths {
		byPath[path] = urls[name]
	}
	return byPath
}

// LFSInstall enables git-lfs filters for this repository only.
func (c *Client) LFSInstall(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "lfs", "install", "--local")
	return err
}

// LFSTrack adds patterns to LFS tracking.
func (c *Client) LFSTrack(ctx context.Context, dir string, patterns []string) error {
	args := append([]string{"lfs", "track", "--"}, patterns...)
	_, err := c.run(ctx, dir, args...)
	return err
}

// LFSUntrack removes patterns from LFS tracking.
func (c *Client) LFSUntrack(ctx context.Context, dir string, patterns []string) error {
	args := append([]string{"lfs", "untrack"}, patterns...)
	_, err := c.run(ctx, dir, args...)
	return err
}

// LFSStatus reports tracked patterns and large file states.
func (c *Client) LFSStatus(ctx context.Context, dir string) (*core.LFSStatusResult, error) {
	trackOut, err := c.run(ctx, dir, "lfs", "track")
	if err != nil {
		return nil, err
	}
	filesOut, err := c.run(ctx, dir, "lfs", "ls-files", "--long", "--size")
	if err != nil {
		return nil, err
	}
	patterns := parseLFSPatterns(trackOut)
	if patterns == nil {
		patterns = []string{}
	}
	files := parseLFSFiles(filesOut)
	if files == nil {
		files = []core.LFSFile{}
	}
	return &core.LFSStatusResult{Patterns: patterns, Files: files}, nil
}

// LFSPull downloads LFS content for the current checkout.
func (c *Client) LFSPull(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error {
	args := []string{"lfs", "pull"}
	args = appendLFSFilters(args, opts)
	if opts.Remote != "" {
		args = append(args, opts.Remote)
	}
	_, err := c.exec(ctx, dir, auth, progress, args...)
	return err
}

// LFSPush uploads all local LFS objects to the remote.
func (c *Client) LFSPush(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error {
	args := []string{"lfs", "push", "--all", remoteOrDefault(opts.Remote)}
	_, err := c.exec(ctx, dir, auth, progress, args...)
	return err
}

// LFSFetch downloads LFS objects without updating the working tree.
func (c *Client) LFSFetch(ctx context.Context, dir string, opts core.LFSTransferOptions, auth core.Auth, progress core.ProgressFunc) error {
	args := []string{"lfs", "fetch"}
	args = appendLFSFilters(args, opts)
	if opts.Remote != "" {
		args = append(args, opts.Remote)
	}
	_, err := c.exec(ctx, dir, auth, progress, args...)
	return err
}

func appendLFSFilters(args []string, opts core.LFSTransferOptions) []string {
	if len(opts.Include) > 0 {
		args = append(args, "--include="+strings.Join(opts.Include, ","))
	}
	if len(opts.Exclude) > 0 {
		args = append(args, "--exclude="+strings.Join(opts.Exclude, ","))
	}
	return args
}
