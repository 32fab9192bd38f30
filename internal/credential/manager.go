// Package credential owns every secret the service uses to reach git
// remotes. Workers resolve refcounted handles per operation and release
// them on every exit path; secret material stays in process memory and
// reaches git only through the child environment.
package credential

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/fsutil"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
)

const (
	askpassUserEnv = "GITMCP_ASKPASS_USERNAME"
	askpassPassEnv = "GITMCP_ASKPASS_PASSWORD"

	// defaultTokenUser is accepted as the basic-auth username by GitHub,
	// GitLab, and Bitbucket when the password carries the token.
	defaultTokenUser = "x-access-token"
)

// askpassScript replies to git and ssh credential prompts from the child
// environment. The script itself contains no secret.
const askpassScript = `#!/bin/sh
case "$1" in
  [Uu]sername*) printf '%s\n' "${` + askpassUserEnv + `}" ;;
  *) printf '%s\n' "${` + askpassPassEnv + `}" ;;
esac
`

// Manager holds the configured credentials and hands out handles scoped
// to one operation. All methods are safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	creds      []*core.Credential
	preferred  core.AuthMethod
	agentSock  string
	askpass    string // path of the generated askpass helper
	askpassDir string // temp dir holding the helper, removed on Close
	sanitizer  *logging.Sanitizer
	log        *logging.Logger
	closed     bool
}

// NewManager creates an empty manager. Credentials are added with Add;
// FromConfig is the usual construction path.
func NewManager(log *logging.Logger, sanitizer *logging.Sanitizer) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		log:       log,
		sanitizer: sanitizer,
	}
}

// FromConfig builds a manager from the git configuration section and the
// process environment. Every secret is registered with the sanitizer
// before the manager is returned, so no load-order window exists where a
// secret could reach a log line unredacted.
func FromConfig(cfg config.GitConfig, log *logging.Logger, sanitizer *logging.Sanitizer) (*Manager, error) {
	m := NewManager(log, sanitizer)
	m.preferred = core.AuthMethod(cfg.PreferredAuth)

	if cfg.Token != "" {
		user := cfg.Username
		if user == "" {
			user = defaultTokenUser
		}
		if err := m.Add(&core.Credential{
			Method:   core.AuthToken,
			Username: user,
			Secret:   []byte(cfg.Token),
		}); err != nil {
			return nil, err
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		m.agentSock = sock
		if err := m.Add(&core.Credential{Method: core.AuthSSHAgent}); err != nil {
			return nil, err
		}
	}

	if cfg.SSHKeyPath != "" {
		keyPath, err := expandKeyPath(cfg.SSHKeyPath)
		if err != nil {
			return nil, err
		}
		if err := verifyKeyFile(keyPath); err != nil {
			return nil, err
		}
		cred := &core.Credential{
			Method:  core.AuthSSHKey,
			KeyPath: keyPath,
		}
		if cfg.SSHKeyPassphrase != "" {
			cred.Passphrase = []byte(cfg.SSHKeyPassphrase)
		}
		if err := m.Add(cred); err != nil {
			return nil, err
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		if err := m.Add(&core.Credential{
			Method:   core.AuthUserPass,
			Username: cfg.Username,
			Secret:   []byte(cfg.Password),
		}); err != nil {
			return nil, err
		}
	}

	if m.needsAskpass() {
		if err := m.writeAskpass(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add validates and stores a credential, registering its secret material
// with the sanitizer.
func (m *Manager) Add(c *core.Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrInternal("credential manager is closed")
	}
	m.creds = append(m.creds, c)
	if m.sanitizer != nil {
		if len(c.Secret) > 0 {
			m.sanitizer.RegisterSecret(string(c.Secret))
		}
		if len(c.Passphrase) > 0 {
			m.sanitizer.RegisterSecret(string(c.Passphrase))
		}
	}
	return nil
}

// Resolve selects the credential for one operation against one remote and
// returns a refcounted handle carrying a private copy of the secret
// material. A nil handle with nil error means the operation proceeds
// anonymously: either it never contacts a remote, the transport takes no
// credentials, or nothing is configured for the host.
func (m *Manager) Resolve(ctx context.Context, op core.Operation, remoteURL string) (core.Auth, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !op.NeedsCredential() {
		return nil, nil
	}
	transport := core.TransportOf(remoteURL)
	if transport == "" {
		return nil, nil
	}
	host := core.HostOf(remoteURL)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, core.ErrInternal("credential manager is closed")
	}

	cred := m.selectLocked(transport, host)
	if cred == nil {
		m.log.Debug("no credential for host, proceeding anonymously",
			"host", host, "operation", string(op))
		return nil, nil
	}

	h := &Handle{
		mgr:        m,
		method:     cred.Method,
		username:   cred.Username,
		secret:     append([]byte(nil), cred.Secret...),
		passphrase: append([]byte(nil), cred.Passphrase...),
		keyPath:    cred.KeyPath,
		agentSock:  m.agentSock,
		askpass:    m.askpass,
		refs:       1,
	}
	m.log.Debug("credential resolved",
		"host", host, "method", string(cred.Method), "operation", string(op))
	return h, nil
}

// Release returns a handle obtained from Resolve. The last release
// zeroizes the handle's secret copies. Nil and foreign handles are
// ignored so Release is safe on every exit path.
func (m *Manager) Release(a core.Auth) {
	h, ok := a.(*Handle)
	if !ok || h == nil {
		return
	}
	h.release()
}

// Redact removes registered secrets and recognizable credential shapes
// from a string. Tool-boundary error paths call this before any text
// leaves the process.
func (m *Manager) Redact(s string) string {
	if m.sanitizer == nil {
		return s
	}
	return m.sanitizer.Sanitize(s)
}

// Methods lists the configured authentication methods in selection order,
// for diagnostics.
func (m *Manager) Methods() []core.AuthMethod {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.AuthMethod, 0, len(m.creds))
	for _, c := range m.creds {
		out = append(out, c.Method)
	}
	return out
}

// Close zeroizes every stored credential and removes the askpass helper.
// Outstanding handles keep their private copies until released.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, c := range m.creds {
		if m.sanitizer != nil && len(c.Secret) > 0 {
			m.sanitizer.UnregisterSecret(string(c.Secret))
		}
		if m.sanitizer != nil && len(c.Passphrase) > 0 {
			m.sanitizer.UnregisterSecret(string(c.Passphrase))
		}
		c.Zeroize()
	}
	m.creds = nil
	if m.askpassDir != "" {
		if err := os.RemoveAll(m.askpassDir); err != nil {
			return err
		}
	}
	return nil
}

// selectLocked picks the best credential for a transport and host. The
// configured preferred method wins when a matching credential of that
// method exists; otherwise automatic priority order applies.
func (m *Manager) selectLocked(transport, host string) *core.Credential {
	var best *core.Credential
	for _, c := range m.creds {
		if !methodMatchesTransport(c.Method, transport) || !c.Matches(host) {
			continue
		}
		if c.Method == m.preferred {
			return c
		}
		if best == nil || c.Method.Priority() < best.Method.Priority() {
			best = c
		}
	}
	return best
}

// methodMatchesTransport gates methods by what the transport can carry:
// token and password auth ride HTTP basic auth; agent and key auth ride
// the ssh channel.
func methodMatchesTransport(method core.AuthMethod, transport string) bool {
	switch transport {
	case "https":
		return method == core.AuthToken || method == core.AuthUserPass
	case "ssh":
		return method == core.AuthSSHAgent || method == core.AuthSSHKey
	default:
		return false
	}
}

func (m *Manager) needsAskpass() bool {
	for _, c := range m.creds {
		switch c.Method {
		case core.AuthToken, core.AuthUserPass:
			return true
		case core.AuthSSHKey:
			if len(c.Passphrase) > 0 {
				return true
			}
		}
	}
	return false
}

// writeAskpass installs the prompt-answering helper in a private temp
// directory. The script reads secrets from the child environment, so the
// file on disk never contains credential material.
func (m *Manager) writeAskpass() error {
	dir, err := os.MkdirTemp("", "gitmcp-auth-")
	if err != nil {
		return core.ErrSystem(core.CodeSystemError, "cannot create askpass directory").WithCause(err)
	}
	path := filepath.Join(dir, "askpass.sh")
	if err := os.WriteFile(path, []byte(askpassScript), 0o700); err != nil {
		os.RemoveAll(dir)
		return core.ErrSystem(core.CodeSystemError, "cannot write askpass helper").WithCause(err)
	}
	m.askpassDir = dir
	m.askpass = path
	return nil
}

// expandKeyPath resolves a leading ~ against the current user's home.
func expandKeyPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", core.ErrSystem(core.CodeSystemError, "cannot resolve home directory").WithCause(err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return filepath.Clean(path), nil
}

// verifyKeyFile fails fast on an unreadable or implausible key so the
// problem surfaces at startup instead of as an opaque ssh error deep in
// the first clone.
func verifyKeyFile(path string) error {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return core.ErrAuth("ssh key is not readable").
			WithCause(err).
			WithContext("path", path).
			WithSuggestion("check GIT_SSH_KEY_PATH and file permissions")
	}
	defer func() {
		for i := range data {
			data[i] = 0
		}
	}()
	if !strings.Contains(string(data), "PRIVATE KEY") {
		return core.ErrAuth("ssh key file does not look like a private key").
			WithContext("path", path)
	}
	return nil
}

var _ core.CredentialResolver = (*Manager)(nil)
