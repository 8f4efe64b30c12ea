package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"
)

// fakeBackend accepts one connection and answers every command with
// the canned responses keyed by command name.
func fakeBackend(t *testing.T, responses map[string]Response) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadBytes('\n')
			if err != nil {
				return
			}
			var req wireRequest
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			resp, ok := responses[req.Command]
			if !ok {
				resp = ErrorResponse("unknown command: " + req.Command)
			}
			out, _ := json.Marshal(resp)
			out = append(out, '\n')
			if _, err := conn.Write(out); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func clientFor(t *testing.T, addr string) *TCPClient {
	t.Helper()

	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("bad addr %q: %v", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("bad port %q: %v", p, err)
	}

	c := NewTCPClient(TCPClientConfig{
		Host:           host,
		Port:           port,
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSendRoundTrip(t *testing.T) {
	addr := fakeBackend(t, map[string]Response{
		CmdGetState: {
			Status: StatusOK,
			Result: map[string]any{"mode": "OBJECT", "active_object": "Cube"},
		},
	})

	c := clientFor(t, addr)
	resp := c.Send(context.Background(), CmdGetState, nil)

	if !resp.OK() {
		t.Fatalf("expected ok, got %q (%s)", resp.Status, resp.Error)
	}
	if resp.Result["mode"] != "OBJECT" {
		t.Errorf("got mode %v, want OBJECT", resp.Result["mode"])
	}
}

func TestSendUnknownCommandIsErrorStatus(t *testing.T) {
	addr := fakeBackend(t, nil)

	c := clientFor(t, addr)
	resp := c.Send(context.Background(), "no_such_command", nil)

	if resp.OK() {
		t.Fatal("expected error status")
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestSendUnreachableBackendDegrades(t *testing.T) {
	c := NewTCPClient(TCPClientConfig{
		Host:           "127.0.0.1",
		Port:           1, // nothing listens here
		ConnectTimeout: 200 * time.Millisecond,
		CommandTimeout: 200 * time.Millisecond,
	})
	defer c.Close()

	resp := c.Send(context.Background(), CmdGetObjects, nil)
	if resp.OK() {
		t.Fatal("expected error status for unreachable backend")
	}
	if resp.Error == "" {
		t.Error("expected error message, got empty string")
	}
}
