package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"meshrouter/internal/logging"
)

// TCPClient speaks newline-delimited JSON over a TCP socket:
// one request object out, one response object back.
// It reconnects lazily after a transport failure.
type TCPClient struct {
	mu             sync.Mutex
	addr           string
	conn           net.Conn
	reader         *bufio.Reader
	connectTimeout time.Duration
	commandTimeout time.Duration
}

// TCPClientConfig holds connection settings for the TCP client.
type TCPClientConfig struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// NewTCPClient creates a client for the given address. No connection is
// made until the first Send.
func NewTCPClient(cfg TCPClientConfig) *TCPClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 15 * time.Second
	}
	return &TCPClient{
		addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		connectTimeout: cfg.ConnectTimeout,
		commandTimeout: cfg.CommandTimeout,
	}
}

type wireRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

// Send issues one command and waits for its response. Transport failures
// are downgraded to an error response per the Backend contract.
func (c *TCPClient) Send(ctx context.Context, command string, args map[string]any) Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	logging.BackendDebug("send command=%s args=%d", command, len(args))

	if err := c.ensureConnected(ctx); err != nil {
		logging.Get(logging.CategoryBackend).Warn("connect failed: %v", err)
		return ErrorResponse(fmt.Sprintf("backend unreachable: %v", err))
	}

	deadline := time.Now().Add(c.commandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)

	payload, err := json.Marshal(wireRequest{Command: command, Args: args})
	if err != nil {
		return ErrorResponse(fmt.Sprintf("marshal request: %v", err))
	}
	payload = append(payload, '\n')

	if _, err := c.conn.Write(payload); err != nil {
		c.drop()
		logging.Get(logging.CategoryBackend).Warn("write failed: %v", err)
		return ErrorResponse(fmt.Sprintf("backend write failed: %v", err))
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.drop()
		logging.Get(logging.CategoryBackend).Warn("read failed: %v", err)
		return ErrorResponse(fmt.Sprintf("backend read failed: %v", err))
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return ErrorResponse(fmt.Sprintf("malformed backend response: %v", err))
	}
	if resp.Status == "" {
		resp.Status = StatusError
		if resp.Error == "" {
			resp.Error = "backend returned no status"
		}
	}

	logging.BackendDebug("recv command=%s status=%s", command, resp.Status)
	return resp
}

// Close shuts down the connection if open.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

func (c *TCPClient) ensureConnected(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	logging.Backend("connected to %s", c.addr)
	return nil
}

func (c *TCPClient) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}
