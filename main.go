// agentd CLI entry point
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentd-dev/agentd/internal/agent"
	"github.com/agentd-dev/agentd/internal/config"
	"github.com/agentd-dev/agentd/internal/domain"
	"github.com/agentd-dev/agentd/internal/provider"
	"github.com/agentd-dev/agentd/internal/store"
	"github.com/agentd-dev/agentd/internal/tools"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

var configPath string

func main() {
	root := &cobra.Command{
		Use:     "agentd",
		Short:   "Local-first agent runtime",
		Version: version,
		RunE:    runChat,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.ConfigPath(), "Config file path")
	root.SilenceUsage = true

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session (default)",
		RunE:  runChat,
	}

	var limit int
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(limit)
		},
	}
	sessionsCmd.Flags().IntVar(&limit, "limit", 10, "Maximum sessions to show")

	var sessionPrefix, kindFilter string
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the event log for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(sessionPrefix, kindFilter)
		},
	}
	logsCmd.Flags().StringVar(&sessionPrefix, "session", "", "Session ID or unique prefix")
	logsCmd.Flags().StringVar(&kindFilter, "kind", "", "Filter by event kind (message, tool_call, tool_result, session_start, session_end)")
	logsCmd.MarkFlagRequired("session")

	root.AddCommand(chatCmd, sessionsCmd, logsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	path, err := config.StorePath()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	return store.Open(path)
}

// buildBackend constructs the configured model backend.
func buildBackend(cfg *config.Config) (provider.Backend, error) {
	switch cfg.Backend.Provider {
	case "claude-cli":
		return provider.NewClaudeCLI(cfg.Backend.Model, ""), nil
	default:
		auth, err := cfg.Backend.ResolveAuth()
		if err != nil {
			return nil, err
		}
		return provider.NewAnthropic(provider.AnthropicConfig{
			Auth:  auth,
			Model: cfg.Backend.Model,
		}), nil
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	logger := config.NewLogger()
	defer logger.Close()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var host tools.Host = tools.EmptyHost{}
	if servers := cfg.ServerConfigs(); len(servers) > 0 {
		if tc, ok := backend.(interface{ SupportsTools() bool }); ok && !tc.SupportsTools() {
			fmt.Fprintf(os.Stderr, "warning: provider %s cannot run tools, ignoring mcp_servers\n", cfg.Backend.Provider)
		} else {
			mcpHost, err := tools.NewMCPHost(ctx, servers)
			if err != nil {
				return fmt.Errorf("start MCP servers: %w", err)
			}
			defer mcpHost.Close()
			host = mcpHost
		}
	}

	session, err := agent.New(st, backend, cfg.Policy(), agent.WithHost(host))
	if err != nil {
		return err
	}
	logger.Printf("session %s started (model %s)", session.ID, cfg.Backend.Model)

	fmt.Printf("agentd %s | model %s | session %s\n", version, cfg.Backend.Model, session.ID)
	if n := len(host.Specs()); n > 0 {
		fmt.Printf("%d tools available\n", n)
	}
	fmt.Println(`type "quit" or "exit" to end the session`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("› ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		reply, usage, err := session.Chat(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			logger.Printf("session %s: turn failed: %v", session.ID, err)
			continue
		}
		fmt.Printf("\n%s\n\n", reply)
		fmt.Printf("[tokens: in=%d out=%d]\n", usage.InputTokens, usage.OutputTokens)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
	}

	if err := session.End(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	total := session.Usage()
	fmt.Printf("\nsession %s ended | total tokens: in=%d out=%d\n",
		session.ID, total.InputTokens, total.OutputTokens)
	logger.Printf("session %s ended (in=%d out=%d)", session.ID, total.InputTokens, total.OutputTokens)
	return nil
}

func runSessions(limit int) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	summaries, err := st.ListSessions()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}

	fmt.Printf("%-36s  %-19s  %5s  %s\n", "SESSION", "STARTED", "MSGS", "STATUS")
	for _, s := range summaries {
		status := "open"
		if s.EndedAt != nil {
			status = "ended"
		}
		fmt.Printf("%-36s  %-19s  %5d  %s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.MessageCount, status)
	}
	return nil
}

func runLogs(prefix, kind string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := findSession(st, prefix)
	if err != nil {
		return err
	}
	events, err := st.LoadEvents(id, kind)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Printf("%s  %-13s %s\n",
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.Kind.Kind, renderEvent(ev))
	}
	return nil
}

// findSession resolves a session ID prefix against the recorded sessions.
// The prefix must match exactly one session.
func findSession(st *store.Store, prefix string) (domain.SessionID, error) {
	summaries, err := st.ListSessions()
	if err != nil {
		return domain.SessionID{}, err
	}
	var matches []store.SessionSummary
	for _, s := range summaries {
		if strings.HasPrefix(s.ID.String(), prefix) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return domain.SessionID{}, fmt.Errorf("session not found: %s", prefix)
	case 1:
		return matches[0].ID, nil
	}
	var ids []string
	for _, m := range matches {
		ids = append(ids, m.ID.String())
	}
	return domain.SessionID{}, fmt.Errorf("ambiguous session %q, matches:\n  %s",
		prefix, strings.Join(ids, "\n  "))
}

const maxContentBytes = 200

func renderEvent(ev domain.Event) string {
	k := ev.Kind
	switch k.Kind {
	case domain.KindMessage:
		return fmt.Sprintf("[%s] %s", k.Role, truncate(k.Content))
	case domain.KindToolCall:
		return fmt.Sprintf("%s(%s)", k.Name, truncate(string(k.Input)))
	case domain.KindToolResult:
		return fmt.Sprintf("%s -> %s", k.Name, truncate(string(k.Output)))
	default:
		return ""
	}
}

func truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxContentBytes {
		return s
	}
	return s[:maxContentBytes] + "..."
}
