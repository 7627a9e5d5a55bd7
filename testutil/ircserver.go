package testutil

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// IRCServer is a loopback TCP listener that plays the server side of a Twitch IRC session.
type IRCServer struct {
	Host  string
	Port  int
	ln    net.Listener
	conns chan *IRCConn

	mu  sync.Mutex
	all []net.Conn
}

// IRCConn is one accepted client connection.
type IRCConn struct {
	net.Conn
	r *bufio.Reader
}

// NewIRCServer starts a server on 127.0.0.1 with a random port. It is closed on test cleanup.
func NewIRCServer(t *testing.T) *IRCServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	s := &IRCServer{Host: addr.IP.String(), Port: addr.Port, ln: ln, conns: make(chan *IRCConn, 16)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				close(s.conns)
				return
			}
			s.mu.Lock()
			s.all = append(s.all, c)
			s.mu.Unlock()
			s.conns <- &IRCConn{Conn: c, r: bufio.NewReader(c)}
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.all {
			_ = c.Close()
		}
	})
	return s
}

// Accept waits for the next client connection.
func (s *IRCServer) Accept(t *testing.T, timeout time.Duration) *IRCConn {
	t.Helper()
	select {
	case c, ok := <-s.conns:
		if !ok {
			t.Fatal("server closed before a client connected")
		}
		return c
	case <-time.After(timeout):
		t.Fatalf("no client connected within %v", timeout)
	}
	return nil
}

// ReadLine reads one line from the client with the CRLF stripped.
func (c *IRCConn) ReadLine(t *testing.T, timeout time.Duration) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("read from client: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// ExpectEOF asserts the client closes its side within timeout.
func (c *IRCConn) ExpectEOF(t *testing.T, timeout time.Duration) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(timeout))
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				t.Fatalf("client did not close connection within %v", timeout)
			}
			return
		}
		_ = line
	}
}

// Send writes line terminated by CRLF.
func (c *IRCConn) Send(t *testing.T, line string) {
	t.Helper()
	if _, err := c.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("write to client: %v", err)
	}
}
