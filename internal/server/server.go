// Package server exposes the compile pipeline over a line-delimited JSON TCP
// protocol. Each connection is handled in its own goroutine over a freshly
// constructed compiler.Pipeline value with no shared mutable state, the
// Go-idiomatic reading of the original "forked per connection" isolation
// policy, since Go has no portable fork().
package server

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"syscall"

	"exprc/internal/compiler"
	"exprc/internal/toolchain"
)

// request is the inbound JSON message: either {"command":"compile","code":"..."}
// or {"command":"ping"}.
type request struct {
	Command string `json:"command"`
	Code    string `json:"code"`
}

// response is the outbound JSON message. Exactly one of Program or Error is
// set on a compile request; Pong is set on a ping request.
type response struct {
	Program string `json:"program,omitempty"`
	Error   string `json:"error,omitempty"`
	Pong    bool   `json:"pong,omitempty"`
}

// Server listens on a TCP address and serves compile/ping requests.
type Server struct {
	Addr string
}

// New returns a Server bound to addr (host:port).
func New(addr string) *Server {
	return &Server{Addr: addr}
}

// ListenAndServe binds to s.Addr with address reuse and serves connections
// until the listener is closed or an unrecoverable Accept error occurs.
// There is no per-connection timeout, matching spec.md §5's resource policy.
func (s *Server) ListenAndServe() error {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", s.Addr, err)
	}
	defer ln.Close()

	log.Printf("exprc server listening on %s", s.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}
		go handleConn(conn)
	}
}

func handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			encoder.Encode(response{Error: fmt.Sprintf("malformed request: %s", err)})
			continue
		}
		encoder.Encode(handle(req))
	}
}

func handle(req request) response {
	switch req.Command {
	case "ping":
		return response{Pong: true}

	case "compile":
		return handleCompile(req.Code)

	default:
		return response{Error: fmt.Sprintf("unrecognized command %q", req.Command)}
	}
}

func handleCompile(code string) response {
	result, err := compiler.New().Compile(code)
	if err != nil {
		return response{Error: err.Error()}
	}

	outPath, err := tempExecutablePath()
	if err != nil {
		return response{Error: err.Error()}
	}
	defer os.Remove(outPath)

	if err := toolchain.Assemble(result.Assembly, outPath); err != nil {
		return response{Error: err.Error()}
	}

	binary, err := os.ReadFile(outPath)
	if err != nil {
		return response{Error: fmt.Sprintf("reading compiled binary: %s", err)}
	}

	return response{Program: base64.StdEncoding.EncodeToString(binary)}
}

// reuseAddr sets SO_REUSEADDR on the listening socket so a restarted server
// can rebind immediately, matching spec.md §5's "bind-and-listen with
// address reuse" resource policy.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func tempExecutablePath() (string, error) {
	f, err := os.CreateTemp("", "exprc-out-*")
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}
	path := f.Name()
	f.Close()
	return path, nil
}
