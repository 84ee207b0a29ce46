package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds each request/response exchange.
const DefaultTimeout = 15 * time.Second

// MaxOutputSize caps a single response line at 1MB. Sized for large tool
// outputs (file reads, search results).
const MaxOutputSize = 1024 * 1024

// ServerConfig describes how to launch an MCP server.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

type pendingReply struct {
	resp *rpcResponse
	err  error
}

// Client is a handle to one running MCP server. Requests are written to the
// child's stdin under a mutex; a background goroutine reads stdout and
// dispatches replies to waiting callers by request ID.
type Client struct {
	name    string
	cmd     *exec.Cmd
	stdin   io.Writer
	closer  io.Closer
	timeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan pendingReply
	readErr error
	closed  bool

	initialized atomic.Bool
	serverInfo  InitializeResult
	tools       []Tool
}

// Spawn starts the server process. The child's stderr is inherited so its
// diagnostics reach the operator. Initialize must be called before tools can
// be listed or invoked.
func Spawn(cfg ServerConfig) (*Client, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: spawn %s: %w", cfg.Command, err)
	}

	c := &Client{
		name:    cfg.Name,
		cmd:     cmd,
		stdin:   stdin,
		closer:  stdin,
		timeout: DefaultTimeout,
		pending: make(map[int64]chan pendingReply),
	}
	go c.readLoop(bufio.NewReaderSize(stdout, 64*1024))
	return c, nil
}

// newClientPipes wires a client over arbitrary pipes. Tests drive the server
// side directly.
func newClientPipes(name string, stdin io.Writer, stdout io.Reader) *Client {
	c := &Client{
		name:    name,
		stdin:   stdin,
		timeout: DefaultTimeout,
		pending: make(map[int64]chan pendingReply),
	}
	go c.readLoop(bufio.NewReader(stdout))
	return c
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// ServerInfo returns the handshake result. Zero value before Initialize.
func (c *Client) ServerInfo() InitializeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Initialized reports whether the handshake has completed.
func (c *Client) Initialized() bool { return c.initialized.Load() }

// Initialize performs the MCP handshake and caches the server's tool list.
func (c *Client) Initialize(ctx context.Context) error {
	raw, err := c.Call(ctx, "initialize", defaultInitializeParams())
	if err != nil {
		return fmt.Errorf("initialize %s: %w", c.name, err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return &InvalidResponseError{Reason: fmt.Sprintf("initialize result: %v", err)}
	}

	if err := c.Notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	raw, err = c.Call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tools/list %s: %w", c.name, err)
	}
	var list ListToolsResult
	if err := json.Unmarshal(raw, &list); err != nil {
		return &InvalidResponseError{Reason: fmt.Sprintf("tools/list result: %v", err)}
	}

	c.mu.Lock()
	c.serverInfo = result
	c.tools = list.Tools
	c.mu.Unlock()
	c.initialized.Store(true)
	return nil
}

// Tools returns a copy of the cached tool list.
func (c *Client) Tools() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes a tool by name. A result with the error flag set is
// returned as a ToolCallFailedError carrying the result's text content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if !c.initialized.Load() {
		return nil, ErrNotInitialized
	}
	raw, err := c.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &InvalidResponseError{Reason: fmt.Sprintf("tools/call result: %v", err)}
	}
	if result.IsError {
		return nil, &ToolCallFailedError{Message: result.TextContent()}
	}
	return &result, nil
}

// Call sends one request and waits for its reply. A timeout leaves the
// server process running; the late reply, if any, is discarded by the
// reader.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan pendingReply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeLine(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("mcp: write request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		if reply.err != nil {
			return nil, reply.err
		}
		return reply.resp.intoResult()
	case <-timer.C:
		c.removePending(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// Notify sends a request without an ID and does not wait for a reply.
func (c *Client) Notify(method string, params any) error {
	return c.writeLine(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// Shutdown sends a best-effort shutdown notification and kills the server.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.Notify("shutdown", nil)

	if c.closer != nil {
		c.closer.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	c.failPending(ErrClosed, false)
	return nil
}

func (c *Client) writeLine(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failPending delivers err to every waiting caller. When terminal is set the
// error also fails all future calls.
func (c *Client) failPending(err error, terminal bool) {
	c.mu.Lock()
	if terminal && c.readErr == nil {
		c.readErr = err
	}
	pending := c.pending
	c.pending = make(map[int64]chan pendingReply)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- pendingReply{err: err}
	}
}

// readLoop reads stdout line by line and dispatches replies by ID. A line
// exceeding MaxOutputSize or failing to parse fails the calls in flight but
// does not stop the reader; EOF and read errors do.
func (c *Client) readLoop(r *bufio.Reader) {
	for {
		line, err := readLineLimited(r, MaxOutputSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.failPending(ErrServerExited, true)
				return
			}
			var tooLarge *OutputTooLargeError
			if errors.As(err, &tooLarge) {
				c.failPending(err, false)
				continue
			}
			c.failPending(fmt.Errorf("mcp: read: %w", err), true)
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.failPending(&InvalidResponseError{Reason: err.Error()}, false)
			continue
		}
		id, ok := resp.numericID()
		if !ok {
			// Server-initiated request or notification; this client
			// issues numeric IDs only.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if !ok {
			fmt.Fprintf(os.Stderr, "mcp: %s: discarding reply for unknown id %d\n", c.name, id)
			continue
		}
		ch <- pendingReply{resp: &resp}
	}
}

// readLineLimited reads one newline-terminated line of at most max bytes.
// An oversized line is drained to its newline so the actual size can be
// reported and the stream stays aligned for the next line.
func readLineLimited(r *bufio.Reader, max int) ([]byte, error) {
	var buf []byte
	total := 0
	overflowed := false
	for {
		chunk, err := r.ReadSlice('\n')
		total += len(chunk)
		if !overflowed {
			buf = append(buf, chunk...)
			if total > max {
				overflowed = true
				buf = nil
			}
		}
		switch {
		case err == nil:
			if overflowed {
				return nil, &OutputTooLargeError{Size: total, Max: max}
			}
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && total > 0 && !overflowed:
			// Final line without a trailing newline.
			return buf, nil
		default:
			return nil, err
		}
	}
}
