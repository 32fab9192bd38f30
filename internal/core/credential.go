package core

import (
	"fmt"
	"strings"
)

// AuthMethod names a way of authenticating to a git remote.
type AuthMethod string

const (
	AuthToken    AuthMethod = "token"
	AuthSSHAgent AuthMethod = "ssh_agent"
	AuthSSHKey   AuthMethod = "ssh_key"
	AuthUserPass AuthMethod = "username_password"
)

// methodPriority orders methods for automatic selection when several
// match a host. Lower wins.
var methodPriority = map[AuthMethod]int{
	AuthToken:    0,
	AuthSSHAgent: 1,
	AuthSSHKey:   2,
	AuthUserPass: 3,
}

// Valid reports whether the method is one of the supported four.
func (m AuthMethod) Valid() bool {
	_, ok := methodPriority[m]
	return ok
}

// Priority returns the selection rank of the method; unknown methods
// sort last.
func (m AuthMethod) Priority() int {
	if p, ok := methodPriority[m]; ok {
		return p
	}
	return len(methodPriority)
}

// Credential holds secret material for one authentication method scoped
// to a host pattern. Secrets live in byte slices so they can be zeroized
// when the credential is released.
type Credential struct {
	Method      AuthMethod
	HostPattern string // e.g. "github.com" or "*.corp.example.com"
	Username    string
	Secret      []byte // token, password, or PEM key material
	KeyPath     string // path form for ssh_key; empty when Secret carries the PEM
	Passphrase  []byte // optional ssh_key passphrase
}

// Matches reports whether the credential applies to host. Patterns are
// either exact hosts or a single leading "*." wildcard.
func (c *Credential) Matches(host string) bool {
	p := strings.ToLower(c.HostPattern)
	host = strings.ToLower(host)
	if p == "" || p == "*" {
		return true
	}
	if rest, ok := strings.CutPrefix(p, "*."); ok {
		return host == rest || strings.HasSuffix(host, "."+rest)
	}
	return host == p
}

// Zeroize overwrites secret material in place. The credential must not be
// used afterwards.
func (c *Credential) Zeroize() {
	for i := range c.Secret {
		c.Secret[i] = 0
	}
	c.Secret = nil
	for i := range c.Passphrase {
		c.Passphrase[i] = 0
	}
	c.Passphrase = nil
}

// Validate checks that the credential carries the material its method
// requires.
func (c *Credential) Validate() error {
	switch c.Method {
	case AuthToken:
		if len(c.Secret) == 0 {
			return ErrValidation(CodeMissingRequiredParam, "token credential requires secret material")
		}
	case AuthSSHAgent:
		// Material comes from the agent socket at execution time.
	case AuthSSHKey:
		if len(c.Secret) == 0 && c.KeyPath == "" {
			return ErrValidation(CodeMissingRequiredParam, "ssh_key credential requires key material or a key path")
		}
	case AuthUserPass:
		if c.Username == "" || len(c.Secret) == 0 {
			return ErrValidation(CodeMissingRequiredParam, "username_password credential requires both username and password")
		}
	default:
		return ErrValidation(CodeInvalidParamValue, fmt.Sprintf("unsupported auth method %q", c.Method))
	}
	return nil
}

// String renders the credential without secret material. Secrets never
// appear in logs or error messages.
func (c *Credential) String() string {
	return fmt.Sprintf("credential{method=%s host=%s user=%s secret=<REDACTED>}", c.Method, c.HostPattern, c.Username)
}

// GoString matches String so %#v formatting cannot leak secret material.
func (c *Credential) GoString() string {
	return c.String()
}
