package policy

import "testing"

func TestRestrictiveDeniesExec(t *testing.T) {
	p := Restrictive()
	if d := p.Check(ExecRequest("rm -rf /")); d.Allowed {
		t.Error("restrictive policy allowed exec")
	}
	if d := p.Check(NetHTTPRequest("example.com")); d.Allowed {
		t.Error("restrictive policy allowed net_http")
	}
	if d := p.Check(SecretsReadRequest("API_KEY")); d.Allowed {
		t.Error("restrictive policy allowed secrets_read")
	}
}

func TestRestrictiveAllowsWorkspaceReads(t *testing.T) {
	p := Restrictive()
	if d := p.Check(FsReadRequest("./src/main.go")); !d.Allowed {
		t.Errorf("workspace read denied: %s", d.Reason)
	}
	if d := p.Check(FsWriteRequest("./out.txt")); !d.Allowed {
		t.Errorf("workspace write denied: %s", d.Reason)
	}
}

func TestDenyOverridesAllow(t *testing.T) {
	p := Policy{
		Allow: AllowRules{Exec: []string{"*"}},
		Deny:  DenyRules{All: []CapabilityKind{Exec}},
	}
	if d := p.Check(ExecRequest("ls")); d.Allowed {
		t.Error("deny did not override allow")
	}
}

func TestCheckIsPure(t *testing.T) {
	p := Policy{Allow: AllowRules{FsRead: []string{"/tmp/**"}}}
	req := FsReadRequest("/tmp/a/b")
	first := p.Check(req)
	for i := 0; i < 3; i++ {
		if got := p.Check(req); got != first {
			t.Fatalf("Check not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestPathMatching(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*", "/anything/at/all", true},
		{"**", "/anything", true},
		{"./", "./foo.txt", true},
		{"/var/log", "/var/log/syslog", true},
		{"/var/log", "/etc/passwd", false},
		{"/tmp/*", "/tmp/file", true},
		{"/tmp/*", "/tmp/a/b", false},
		{"/tmp/**", "/tmp/a/b/c", true},
		{"/tmp/**", "/home/x", false},
	}
	for _, c := range cases {
		p := Policy{Allow: AllowRules{FsRead: []string{c.pattern}}}
		got := p.Check(FsReadRequest(c.path)).Allowed
		if got != c.want {
			t.Errorf("pattern %q path %q = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestDomainMatching(t *testing.T) {
	p := Policy{Allow: AllowRules{NetHTTP: []string{"anthropic.com"}}}
	cases := []struct {
		domain string
		want   bool
	}{
		{"anthropic.com", true},
		{"api.anthropic.com", true},
		{"evilanthropic.com", false},
		{"anthropic.com.evil.net", false},
	}
	for _, c := range cases {
		if got := p.Check(NetHTTPRequest(c.domain)).Allowed; got != c.want {
			t.Errorf("domain %q = %v, want %v", c.domain, got, c.want)
		}
	}

	wild := Policy{Allow: AllowRules{NetHTTP: []string{"*"}}}
	if !wild.Check(NetHTTPRequest("anything.example")).Allowed {
		t.Error("wildcard domain denied")
	}
}

func TestCommandMatching(t *testing.T) {
	p := Policy{Allow: AllowRules{Exec: []string{"git"}}}
	cases := []struct {
		cmd  string
		want bool
	}{
		{"git", true},
		{"git status", true},
		{"gitx", false},
		{"ls", false},
	}
	for _, c := range cases {
		if got := p.Check(ExecRequest(c.cmd)).Allowed; got != c.want {
			t.Errorf("command %q = %v, want %v", c.cmd, got, c.want)
		}
	}
}

func TestSecretsMatching(t *testing.T) {
	p := Policy{Allow: AllowRules{SecretsRead: []string{"GITHUB_TOKEN"}}}
	if !p.Check(SecretsReadRequest("GITHUB_TOKEN")).Allowed {
		t.Error("exact secret denied")
	}
	if p.Check(SecretsReadRequest("GITHUB_TOKEN_2")).Allowed {
		t.Error("non-exact secret allowed")
	}
	wild := Policy{Allow: AllowRules{SecretsRead: []string{"*"}}}
	if !wild.Check(SecretsReadRequest("ANY")).Allowed {
		t.Error("wildcard secret denied")
	}
}

func TestUnscopedRequests(t *testing.T) {
	empty := Policy{}
	if empty.Check(CapabilityRequest{Kind: FsRead}).Allowed {
		t.Error("unscoped request allowed against empty list")
	}
	some := Policy{Allow: AllowRules{FsRead: []string{"/data"}}}
	if !some.Check(CapabilityRequest{Kind: FsRead}).Allowed {
		t.Error("unscoped request denied against non-empty list")
	}
}

func TestDenialReasons(t *testing.T) {
	p := Restrictive()
	d := p.Check(ExecRequest("ls"))
	if d.Allowed || d.Reason == "" {
		t.Errorf("expected deny with reason, got %+v", d)
	}
	d = Policy{}.Check(FsReadRequest("/etc/passwd"))
	if d.Allowed || d.Reason == "" {
		t.Errorf("expected deny with reason, got %+v", d)
	}
}

func TestParseCapabilityKind(t *testing.T) {
	for _, name := range []string{"fs_read", "fs_write", "net_http", "exec", "secrets_read"} {
		if _, err := ParseCapabilityKind(name); err != nil {
			t.Errorf("ParseCapabilityKind(%q): %v", name, err)
		}
	}
	if _, err := ParseCapabilityKind("fs_delete"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
