package credential

import (
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// Handle is one operation's grip on a resolved credential. It carries a
// private copy of the secret material; the last Release zeroizes the copy
// while the manager's master credential stays available for future
// resolves.
type Handle struct {
	mu         sync.Mutex
	mgr        *Manager
	method     core.AuthMethod
	username   string
	secret     []byte
	passphrase []byte
	keyPath    string
	agentSock  string
	askpass    string
	refs       int
}

// Method identifies the authentication mechanism.
func (h *Handle) Method() core.AuthMethod {
	return h.method
}

// Retain adds a reference. Every Retain needs a matching Release.
func (h *Handle) Retain() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs > 0 {
		h.refs++
	}
}

// Env extends a child process environment with the variables this
// credential needs. Secrets travel only here: never on a command line,
// never inside the workspace.
func (h *Handle) Env(base []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	env := append([]string(nil), base...)
	env = append(env, "GIT_TERMINAL_PROMPT=0")

	switch h.method {
	case core.AuthToken, core.AuthUserPass:
		env = append(env,
			"GIT_ASKPASS="+h.askpass,
			askpassUserEnv+"="+h.username,
			askpassPassEnv+"="+string(h.secret),
		)
	case core.AuthSSHKey:
		cmd := "ssh -i " + shellQuote(h.keyPath) +
			" -o IdentitiesOnly=yes -o StrictHostKeyChecking=accept-new"
		if len(h.passphrase) > 0 {
			// BatchMode would suppress the askpass prompt, so it stays
			// off when the key needs a passphrase.
			env = append(env,
				"SSH_ASKPASS="+h.askpass,
				"SSH_ASKPASS_REQUIRE=force",
				askpassPassEnv+"="+string(h.passphrase),
			)
		} else {
			cmd += " -o BatchMode=yes"
		}
		env = append(env, "GIT_SSH_COMMAND="+cmd)
	case core.AuthSSHAgent:
		if h.agentSock != "" {
			env = append(env, "SSH_AUTH_SOCK="+h.agentSock)
		}
		env = append(env,
			"GIT_SSH_COMMAND=ssh -o StrictHostKeyChecking=accept-new -o BatchMode=yes")
	}
	return env
}

// String renders the handle without secret material.
func (h *Handle) String() string {
	return "credential-handle{method=" + string(h.method) + " secret=<REDACTED>}"
}

// GoString matches String so %#v formatting cannot leak secret material.
func (h *Handle) GoString() string {
	return h.String()
}

// release drops one reference and zeroizes the private copies when the
// count reaches zero. Further releases are no-ops.
func (h *Handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return
	}
	h.refs--
	if h.refs > 0 {
		return
	}
	for i := range h.secret {
		h.secret[i] = 0
	}
	h.secret = nil
	for i := range h.passphrase {
		h.passphrase[i] = 0
	}
	h.passphrase = nil
}

// released reports whether the handle's material has been zeroized.
func (h *Handle) released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs == 0
}

// shellQuote wraps a path for GIT_SSH_COMMAND, which git hands to the
// shell. Single quotes survive every character except an embedded single
// quote, which is spliced.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ core.Auth = (*Handle)(nil)
