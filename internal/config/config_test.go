package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentd-dev/agentd/internal/policy"
	"github.com/agentd-dev/agentd/internal/provider"
)

const fullConfig = `
[backend]
provider = "anthropic"
model = "claude-sonnet-4-20250514"
api_key = "sk-test"

[allow]
fs_read = ["./**"]
fs_write = ["./out/*"]
exec = ["git status"]

[deny]
all = ["net_http", "secrets_read"]

[[mcp_servers]]
name = "files"
command = "mcp-files"
args = ["--root", "."]

[[mcp_servers]]
name = "search"
command = "mcp-search"
env = { SEARCH_INDEX = "/tmp/idx" }
`

func clearAuthEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envAPIKey, "")
	t.Setenv(envOAuthToken, "")
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Backend.Provider != "anthropic" || cfg.Backend.APIKey != "sk-test" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if len(cfg.Allow.FsRead) != 1 || cfg.Allow.FsRead[0] != "./**" {
		t.Errorf("allow.fs_read = %v", cfg.Allow.FsRead)
	}
	if len(cfg.MCPServers) != 2 {
		t.Fatalf("mcp_servers = %+v", cfg.MCPServers)
	}
	if cfg.MCPServers[1].Env["SEARCH_INDEX"] != "/tmp/idx" {
		t.Errorf("server env = %v", cfg.MCPServers[1].Env)
	}

	servers := cfg.ServerConfigs()
	if len(servers) != 2 || servers[0].Name != "files" || servers[0].Command != "mcp-files" {
		t.Errorf("ServerConfigs = %+v", servers)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Backend.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.Backend.Provider)
	}
	if cfg.Backend.Model != provider.DefaultModel {
		t.Errorf("model = %q", cfg.Backend.Model)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		toml string
		want string
	}{
		{"unknown provider", "[backend]\nprovider = \"grok\"\n", "unknown provider"},
		{"bad deny kind", "[deny]\nall = [\"telepathy\"]\n", "capability kind"},
		{"server without name", "[[mcp_servers]]\ncommand = \"x\"\n", "name is required"},
		{"server without command", "[[mcp_servers]]\nname = \"x\"\n", "command is required"},
		{"invalid toml", "[backend\n", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.toml))
			if err == nil {
				t.Fatal("Parse accepted invalid config")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.Backend.Provider)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.APIKey != "sk-test" {
		t.Errorf("api_key = %q", cfg.Backend.APIKey)
	}
}

func TestResolveAuth(t *testing.T) {
	clearAuthEnv(t)

	t.Run("config api key", func(t *testing.T) {
		auth, err := BackendConfig{APIKey: "sk-1"}.ResolveAuth()
		if err != nil {
			t.Fatalf("ResolveAuth: %v", err)
		}
		if auth.Mode != provider.AuthAPIKey || auth.Token != "sk-1" {
			t.Errorf("auth = %+v", auth)
		}
	})

	t.Run("config oauth token", func(t *testing.T) {
		auth, err := BackendConfig{OAuthToken: "tok-1"}.ResolveAuth()
		if err != nil {
			t.Fatalf("ResolveAuth: %v", err)
		}
		if auth.Mode != provider.AuthOAuth || auth.Token != "tok-1" {
			t.Errorf("auth = %+v", auth)
		}
	})

	t.Run("both is ambiguous", func(t *testing.T) {
		_, err := BackendConfig{APIKey: "sk-1", OAuthToken: "tok-1"}.ResolveAuth()
		if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("env api key fallback", func(t *testing.T) {
		t.Setenv(envAPIKey, "sk-env")
		auth, err := BackendConfig{}.ResolveAuth()
		if err != nil {
			t.Fatalf("ResolveAuth: %v", err)
		}
		if auth.Mode != provider.AuthAPIKey || auth.Token != "sk-env" {
			t.Errorf("auth = %+v", auth)
		}
	})

	t.Run("env oauth fallback", func(t *testing.T) {
		t.Setenv(envOAuthToken, "tok-env")
		auth, err := BackendConfig{}.ResolveAuth()
		if err != nil {
			t.Fatalf("ResolveAuth: %v", err)
		}
		if auth.Mode != provider.AuthOAuth || auth.Token != "tok-env" {
			t.Errorf("auth = %+v", auth)
		}
	})

	t.Run("config wins over env", func(t *testing.T) {
		t.Setenv(envAPIKey, "sk-env")
		auth, err := BackendConfig{OAuthToken: "tok-cfg"}.ResolveAuth()
		if err != nil {
			t.Fatalf("ResolveAuth: %v", err)
		}
		if auth.Mode != provider.AuthOAuth || auth.Token != "tok-cfg" {
			t.Errorf("auth = %+v", auth)
		}
	})

	t.Run("nothing anywhere", func(t *testing.T) {
		_, err := BackendConfig{}.ResolveAuth()
		if err == nil || !strings.Contains(err.Error(), "no credentials") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestPolicyAssembly(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := cfg.Policy()
	if d := p.Check(policy.NetHTTPRequest("example.com")); d.Allowed {
		t.Error("net_http allowed despite deny")
	}
	if d := p.Check(policy.ExecRequest("git status --short")); !d.Allowed {
		t.Errorf("exec denied: %s", d.Reason)
	}
}

func TestPolicyDefaultsRestrictive(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := cfg.Policy()
	if d := p.Check(policy.ExecRequest("ls")); d.Allowed {
		t.Error("unconfigured policy allows exec")
	}
	if d := p.Check(policy.FsReadRequest("./file")); !d.Allowed {
		t.Errorf("workspace read denied: %s", d.Reason)
	}
}

func TestDataDirXDG(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if dir != filepath.Join(tmp, "agentd") {
		t.Errorf("dir = %q", dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("perm = %v", info.Mode().Perm())
	}
}

func TestLogger(t *testing.T) {
	dataDirOverride = t.TempDir()
	t.Cleanup(func() { dataDirOverride = "" })

	l := NewLogger()
	defer l.Close()
	l.Printf("session %s started", "abc")

	data, err := os.ReadFile(LogPath())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "session abc started") {
		t.Errorf("log line = %q", line)
	}
	if !strings.Contains(line, "T") || !strings.HasSuffix(strings.TrimSpace(line), "started") {
		t.Errorf("missing timestamp prefix: %q", line)
	}
}
