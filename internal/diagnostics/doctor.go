// Package diagnostics runs the environment checks behind the doctor
// command: the git toolchain, credential plumbing, workspace root and
// disk capacity, the hardware backing them, and the task store.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/adapters/store"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
)

// Status classifies a check outcome.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn" // degraded but the service can run
	StatusFail Status = "fail" // the service cannot run correctly
)

// Result is one completed check.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Doctor runs the check suite against a loaded configuration.
type Doctor struct {
	cfg config.Config

	// Injection points for tests.
	lookPath   func(string) (string, error)
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
	openStore  func(path string) (pinger, error)
	diskUsage  func(path string) (*disk.UsageStat, error)
	blockInfo  func() (*ghw.BlockInfo, error)
	getenv     func(string) string
}

type pinger interface {
	Ping(ctx context.Context) error
	Close() error
}

// New creates a Doctor over cfg.
func New(cfg config.Config) *Doctor {
	return &Doctor{
		cfg:      cfg,
		lookPath: exec.LookPath,
		runCommand: func(ctx context.Context, name string, args ...string) (string, error) {
			out, err := exec.CommandContext(ctx, name, args...).Output()
			return strings.TrimSpace(string(out)), err
		},
		openStore: func(path string) (pinger, error) {
			s, err := store.New(path)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		diskUsage: disk.Usage,
		blockInfo: func() (*ghw.BlockInfo, error) { return ghw.Block() },
		getenv:    os.Getenv,
	}
}

// Run executes every check and returns the results in a stable order.
func (d *Doctor) Run(ctx context.Context) []Result {
	return []Result{
		d.checkConfig(),
		d.checkGitBinary(ctx),
		d.checkGitLFS(ctx),
		d.checkCredentials(),
		d.checkSSHAgent(),
		d.checkWorkspaceRoot(),
		d.checkDiskSpace(),
		d.checkBlockDevices(),
		d.checkStore(ctx),
	}
}

// Healthy reports whether no check failed. Warnings do not count.
func Healthy(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return false
		}
	}
	return true
}

func (d *Doctor) checkConfig() Result {
	if err := config.ValidateConfig(&d.cfg); err != nil {
		return Result{Name: "configuration", Status: StatusFail, Detail: err.Error()}
	}
	return Result{Name: "configuration", Status: StatusOK}
}

func (d *Doctor) checkGitBinary(ctx context.Context) Result {
	binary := d.cfg.Git.Binary
	if binary == "" {
		binary = "git"
	}
	if _, err := d.lookPath(binary); err != nil {
		return Result{Name: "git", Status: StatusFail,
			Detail: fmt.Sprintf("%q not found in PATH", binary)}
	}
	version, err := d.runCommand(ctx, binary, "--version")
	if err != nil {
		return Result{Name: "git", Status: StatusFail,
			Detail: fmt.Sprintf("%q --version failed: %v", binary, err)}
	}
	return Result{Name: "git", Status: StatusOK,
		Detail: strings.TrimPrefix(version, "git version ")}
}

func (d *Doctor) checkGitLFS(ctx context.Context) Result {
	binary := d.cfg.Git.Binary
	if binary == "" {
		binary = "git"
	}
	version, err := d.runCommand(ctx, binary, "lfs", "version")
	if err != nil {
		if d.cfg.Git.LFS {
			return Result{Name: "git-lfs", Status: StatusWarn,
				Detail: "git-lfs not available; lfs tools will fail"}
		}
		return Result{Name: "git-lfs", Status: StatusOK, Detail: "not installed (lfs disabled)"}
	}
	if i := strings.IndexByte(version, '('); i > 0 {
		version = strings.TrimSpace(version[:i])
	}
	return Result{Name: "git-lfs", Status: StatusOK, Detail: version}
}

// checkCredentials reports which authentication sources are configured.
// It never prints secret material, only method names.
func (d *Doctor) checkCredentials() Result {
	var methods []string
	if d.cfg.Git.Token != "" {
		methods = append(methods, "token")
	}
	if d.getenv("SSH_AUTH_SOCK") != "" {
		methods = append(methods, "ssh_agent")
	}
	if d.cfg.Git.SSHKeyPath != "" {
		if _, err := os.Stat(d.cfg.Git.SSHKeyPath); err != nil {
			return Result{Name: "credentials", Status: StatusWarn,
				Detail: fmt.Sprintf("ssh key %q not readable", d.cfg.Git.SSHKeyPath)}
		}
		methods = append(methods, "ssh_key")
	}
	if d.cfg.Git.Username != "" && d.cfg.Git.Password != "" {
		methods = append(methods, "username_password")
	}
	if len(methods) == 0 {
		return Result{Name: "credentials", Status: StatusWarn,
			Detail: "no credential sources configured; only anonymous remotes will work"}
	}
	return Result{Name: "credentials", Status: StatusOK,
		Detail: strings.Join(methods, ", ")}
}

func (d *Doctor) checkSSHAgent() Result {
	sock := d.getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return Result{Name: "ssh-agent", Status: StatusOK, Detail: "no agent (SSH_AUTH_SOCK unset)"}
	}
	info, err := os.Stat(sock)
	if err != nil {
		return Result{Name: "ssh-agent", Status: StatusWarn,
			Detail: "SSH_AUTH_SOCK set but the socket does not exist"}
	}
	if info.Mode()&os.ModeSocket == 0 {
		return Result{Name: "ssh-agent", Status: StatusWarn,
			Detail: "SSH_AUTH_SOCK does not point at a socket"}
	}
	return Result{Name: "ssh-agent", Status: StatusOK, Detail: "reachable"}
}

func (d *Doctor) checkWorkspaceRoot() Result {
	root := d.cfg.Workspace.Root
	if root == "" {
		return Result{Name: "workspace root", Status: StatusFail, Detail: "workspace.root is empty"}
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return Result{Name: "workspace root", Status: StatusFail,
			Detail: fmt.Sprintf("cannot create %q: %v", root, err)}
	}
	probe := filepath.Join(root, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return Result{Name: "workspace root", Status: StatusFail,
			Detail: fmt.Sprintf("%q is not writable: %v", root, err)}
	}
	_ = os.Remove(probe)
	return Result{Name: "workspace root", Status: StatusOK, Detail: root}
}

func (d *Doctor) checkDiskSpace() Result {
	root := d.cfg.Workspace.Root
	if root == "" {
		root = os.TempDir()
	}
	usage, err := d.diskUsage(root)
	if err != nil {
		// The root may not exist yet; fall back to its parent.
		if usage, err = d.diskUsage(filepath.Dir(root)); err != nil {
			return Result{Name: "disk space", Status: StatusWarn,
				Detail: fmt.Sprintf("cannot stat filesystem: %v", err)}
		}
	}
	detail := fmt.Sprintf("%.1f GiB free of %.1f GiB (%.0f%% used)",
		float64(usage.Free)/(1<<30), float64(usage.Total)/(1<<30), usage.UsedPercent)
	if usage.Free < uint64(d.cfg.Workspace.TotalQuotaBytes) {
		return Result{Name: "disk space", Status: StatusWarn,
			Detail: detail + "; free space is below the workspace quota"}
	}
	return Result{Name: "disk space", Status: StatusOK, Detail: detail}
}

// checkBlockDevices surveys the physical disks so an operator can see
// what backs the workspace filesystem. Best effort: ghw needs procfs and
// sysfs, which containers may not expose.
func (d *Doctor) checkBlockDevices() Result {
	info, err := d.blockInfo()
	if err != nil {
		return Result{Name: "block devices", Status: StatusOK,
			Detail: "unavailable on this platform"}
	}
	var parts []string
	var total uint64
	for _, dk := range info.Disks {
		total += dk.SizeBytes
		parts = append(parts, fmt.Sprintf("%s %.0fGiB", dk.Name, float64(dk.SizeBytes)/(1<<30)))
	}
	if len(parts) == 0 {
		return Result{Name: "block devices", Status: StatusOK, Detail: "none visible"}
	}
	return Result{Name: "block devices", Status: StatusOK,
		Detail: fmt.Sprintf("%s (total %.0f GiB)", strings.Join(parts, ", "), float64(total)/(1<<30))}
}

func (d *Doctor) checkStore(ctx context.Context) Result {
	path := d.cfg.Store.Path
	if path == "" {
		return Result{Name: "store", Status: StatusFail, Detail: "store.path is empty"}
	}
	s, err := d.openStore(path)
	if err != nil {
		return Result{Name: "store", Status: StatusFail,
			Detail: fmt.Sprintf("cannot open %q: %v", path, err)}
	}
	defer s.Close()
	if err := s.Ping(ctx); err != nil {
		return Result{Name: "store", Status: StatusFail, Detail: err.Error()}
	}
	return Result{Name: "store", Status: StatusOK, Detail: path}
}
