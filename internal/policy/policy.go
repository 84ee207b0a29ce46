// Package policy implements capability-based gating for tool side effects.
// All side effects require an explicit capability; checks are pure functions
// of the policy and the request.
package policy

import (
	"fmt"
	"strings"
)

// CapabilityKind names a class of side effect.
type CapabilityKind string

const (
	FsRead      CapabilityKind = "fs_read"
	FsWrite     CapabilityKind = "fs_write"
	NetHTTP     CapabilityKind = "net_http"
	Exec        CapabilityKind = "exec"
	SecretsRead CapabilityKind = "secrets_read"
)

// ParseCapabilityKind validates a capability kind name.
func ParseCapabilityKind(s string) (CapabilityKind, error) {
	switch CapabilityKind(s) {
	case FsRead, FsWrite, NetHTTP, Exec, SecretsRead:
		return CapabilityKind(s), nil
	}
	return "", fmt.Errorf("unknown capability kind %q", s)
}

// CapabilityRequest asks whether one side effect is permitted. Scope is the
// path, domain, command, or key in question; empty means unscoped.
type CapabilityRequest struct {
	Kind  CapabilityKind
	Scope string
}

// FsReadRequest builds a file-read request for the given path.
func FsReadRequest(path string) CapabilityRequest {
	return CapabilityRequest{Kind: FsRead, Scope: path}
}

// FsWriteRequest builds a file-write request for the given path.
func FsWriteRequest(path string) CapabilityRequest {
	return CapabilityRequest{Kind: FsWrite, Scope: path}
}

// NetHTTPRequest builds an HTTP request check for the given domain.
func NetHTTPRequest(domain string) CapabilityRequest {
	return CapabilityRequest{Kind: NetHTTP, Scope: domain}
}

// ExecRequest builds a command-execution request.
func ExecRequest(command string) CapabilityRequest {
	return CapabilityRequest{Kind: Exec, Scope: command}
}

// SecretsReadRequest builds a secret-read request for the given key.
func SecretsReadRequest(key string) CapabilityRequest {
	return CapabilityRequest{Kind: SecretsRead, Scope: key}
}

// AllowRules lists the scopes permitted per capability kind.
type AllowRules struct {
	FsRead      []string `toml:"fs_read"`
	FsWrite     []string `toml:"fs_write"`
	NetHTTP     []string `toml:"net_http"`
	Exec        []string `toml:"exec"`
	SecretsRead []string `toml:"secrets_read"`
}

// DenyRules lists capability kinds that are denied outright, overriding any
// allow rules.
type DenyRules struct {
	All []CapabilityKind `toml:"all"`
}

// Policy is an allowlist plus denial overrides.
type Policy struct {
	Allow AllowRules `toml:"allow"`
	Deny  DenyRules  `toml:"deny"`
}

// Decision is the outcome of a capability check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Restrictive returns the default policy: workspace-only file access, no
// exec, network, or secrets.
func Restrictive() Policy {
	return Policy{
		Allow: AllowRules{
			FsRead:  []string{"."},
			FsWrite: []string{"."},
		},
		Deny: DenyRules{
			All: []CapabilityKind{Exec, NetHTTP, SecretsRead},
		},
	}
}

// Check evaluates a request. Denials are checked first; otherwise the
// request must match the allowlist for its kind.
func (p Policy) Check(req CapabilityRequest) Decision {
	for _, denied := range p.Deny.All {
		if denied == req.Kind {
			return Decision{Reason: fmt.Sprintf("%s is denied by policy", req.Kind)}
		}
	}

	var allowed bool
	switch req.Kind {
	case FsRead:
		allowed = pathAllowed(p.Allow.FsRead, req.Scope)
	case FsWrite:
		allowed = pathAllowed(p.Allow.FsWrite, req.Scope)
	case NetHTTP:
		allowed = domainAllowed(p.Allow.NetHTTP, req.Scope)
	case Exec:
		allowed = commandAllowed(p.Allow.Exec, req.Scope)
	case SecretsRead:
		allowed = exactAllowed(p.Allow.SecretsRead, req.Scope)
	}

	if allowed {
		return Decision{Allowed: true}
	}
	reason := fmt.Sprintf("%s not in allowlist", req.Kind)
	if req.Scope != "" {
		reason += fmt.Sprintf(" (scope: %s)", req.Scope)
	}
	return Decision{Reason: reason}
}

// pathAllowed matches a path against the allowlist. "*" and "**" match
// anything; "prefix/*" matches one level below prefix; "prefix/**" matches
// recursively; any other pattern is a literal prefix. An unscoped request
// is allowed whenever the list is non-empty.
func pathAllowed(allowlist []string, path string) bool {
	if path == "" {
		return len(allowlist) > 0
	}
	for _, pattern := range allowlist {
		if pattern == "*" || pattern == "**" {
			return true
		}
		if strings.HasPrefix(path, pattern) {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if rest, match := strings.CutPrefix(path, prefix); match && !strings.Contains(rest, "/") {
				return true
			}
		}
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
	}
	return false
}

// domainAllowed matches exactly or as a dot-separated subdomain suffix.
func domainAllowed(allowlist []string, domain string) bool {
	if domain == "" {
		return len(allowlist) > 0
	}
	for _, allowed := range allowlist {
		if allowed == "*" {
			return true
		}
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

// commandAllowed matches exactly or by command-word prefix, so "git" allows
// "git status" but not "gitx".
func commandAllowed(allowlist []string, cmd string) bool {
	if cmd == "" {
		return len(allowlist) > 0
	}
	for _, allowed := range allowlist {
		if allowed == "*" {
			return true
		}
		if cmd == allowed || strings.HasPrefix(cmd, allowed+" ") {
			return true
		}
	}
	return false
}

func exactAllowed(allowlist []string, key string) bool {
	if key == "" {
		return len(allowlist) > 0
	}
	for _, allowed := range allowlist {
		if allowed == "*" || allowed == key {
			return true
		}
	}
	return false
}
