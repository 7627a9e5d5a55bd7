package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-bridge/irc"
	"github.com/onnwee/chat-bridge/telemetry"
)

const (
	DefaultServer = "irc.chat.twitch.tv"
	DefaultPort   = 6667
	// DefaultRetryInterval is the fixed pause between reconnect attempts. There is no
	// backoff and no attempt cap.
	DefaultRetryInterval = time.Second
)

// DispatchMode selects how messages are handed to subscribers.
type DispatchMode int

const (
	// DispatchBlocking awaits each subscriber in turn on the read loop.
	DispatchBlocking DispatchMode = iota
	// DispatchAsync starts each subscriber call on its own goroutine and does not wait.
	DispatchAsync
)

// ParseDispatchMode maps "blocking" (or "") and "async" to a DispatchMode.
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch s {
	case "", "blocking":
		return DispatchBlocking, nil
	case "async":
		return DispatchAsync, nil
	}
	return DispatchBlocking, fmt.Errorf("unknown dispatch mode %q (want blocking or async)", s)
}

// Dialer opens the transport. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SessionConfig is the static identity of a session.
type SessionConfig struct {
	Nick          string
	Token         TokenProvider
	Channel       string
	Server        string
	Port          int
	RetryInterval time.Duration
	DispatchMode  DispatchMode
}

// Option customises a Session.
type Option func(*Session)

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option { return func(s *Session) { s.dialer = d } }

// WithRegistry shares an existing subscriber registry with the session.
func WithRegistry(r *Registry) Option { return func(s *Session) { s.subs = r } }

// WithLogger sets the base logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// Session is one chat bridge: one account, one channel, one transport at a time.
type Session struct {
	cfg    SessionConfig
	addr   string
	dialer Dialer
	log    *slog.Logger
	subs   *Registry

	mu          sync.Mutex
	state       State
	conn        net.Conn
	reader      *bufio.Reader
	connID      string
	connectedAt time.Time

	stopping atomic.Bool
	running  atomic.Bool

	connectAttempts atomic.Int64
	reconnects      atomic.Int64
	linesRead       atomic.Int64
	dispatched      atomic.Int64
}

// NewSession returns a disconnected session. Zero Server, Port and RetryInterval take the
// Twitch defaults.
func NewSession(cfg SessionConfig, opts ...Option) *Session {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	cfg.Channel = irc.NormalizeChannel(cfg.Channel)
	s := &Session{
		cfg:    cfg,
		addr:   net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port)),
		dialer: &net.Dialer{Timeout: 10 * time.Second},
		log:    slog.Default(),
		subs:   NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "chat"), slog.String("nick", cfg.Nick), slog.String("channel", cfg.Channel))
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// markStreaming moves Connected to Streaming. A session whose transport was torn down in
// the meantime stays Disconnected; the next read reports ErrNotConnected.
func (s *Session) markStreaming() {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return
	}
	s.state = StateStreaming
	s.mu.Unlock()
	telemetry.SetGauge(telemetry.SessionState, s.cfg.Channel, float64(StateStreaming))
}

// Connect opens the transport and writes PASS, NICK and JOIN in that order. It does not
// wait for the server to acknowledge and it never retries; failures are *ConnectionError.
// It returns ErrAlreadyConnected, leaving the open transport alone, unless the session is
// Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	if s.State() != StateDisconnected {
		return ErrAlreadyConnected
	}
	s.connectAttempts.Add(1)
	telemetry.Inc(telemetry.ConnectAttempts, s.cfg.Channel)

	if s.cfg.Token == nil {
		return s.connectFailed(errors.New("no token provider configured"))
	}
	token, err := s.cfg.Token.Token(ctx)
	if err != nil {
		return s.connectFailed(err)
	}
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return s.connectFailed(err)
	}
	for _, frame := range []string{irc.PassFrame(token), irc.NickFrame(s.cfg.Nick), irc.JoinFrame(s.cfg.Channel)} {
		if _, err := io.WriteString(conn, frame); err != nil {
			_ = conn.Close()
			return s.connectFailed(fmt.Errorf("handshake: %w", err))
		}
	}

	s.mu.Lock()
	if s.conn != nil {
		// another Connect won the race while this one was dialing
		s.mu.Unlock()
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.state = StateConnected
	s.connID = uuid.NewString()
	s.connectedAt = time.Now().UTC()
	connID := s.connID
	s.mu.Unlock()
	telemetry.SetGauge(telemetry.SessionState, s.cfg.Channel, float64(StateConnected))

	s.log.Info("connected", slog.String("addr", s.addr), slog.String("conn_id", connID))
	return nil
}

func (s *Session) connectFailed(err error) error {
	telemetry.Inc(telemetry.ConnectFailures, s.cfg.Channel)
	return &ConnectionError{Addr: s.addr, Err: err}
}

// Disconnect closes the transport and resets the state to Disconnected. Calling it with no
// open transport is a no-op.
func (s *Session) Disconnect() error {
	return s.teardown("")
}

// teardown closes the open transport. A non-empty onlyID limits it to that connection, so a
// reader that failed on an old transport cannot close a newer one.
func (s *Session) teardown(onlyID string) error {
	s.mu.Lock()
	if onlyID != "" && onlyID != s.connID {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	connID := s.connID
	s.conn = nil
	s.reader = nil
	s.connID = ""
	s.state = StateDisconnected
	s.mu.Unlock()
	telemetry.SetGauge(telemetry.SessionState, s.cfg.Channel, float64(StateDisconnected))

	if conn == nil {
		return nil
	}
	err := conn.Close()
	s.log.Info("disconnected", slog.String("conn_id", connID))
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Reconnect calls Connect until a transport opens, sleeping RetryInterval after each
// failure. It returns nil immediately when already connected, ErrStopped once Stop has been
// requested, and ctx.Err() when ctx is done.
func (s *Session) Reconnect(ctx context.Context) error {
	for attempt := 1; s.State() == StateDisconnected; attempt++ {
		err := s.Connect(ctx)
		if err == nil || errors.Is(err, ErrAlreadyConnected) {
			return nil
		}
		s.log.Warn("connect failed; retrying", slog.Int("attempt", attempt), slog.Duration("retry_in", s.cfg.RetryInterval), slog.Any("err", err))
		if s.stopping.Load() {
			return ErrStopped
		}
		t := time.NewTimer(s.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if s.stopping.Load() {
			return ErrStopped
		}
	}
	return nil
}

// Stop asks the read loop to exit after the line it is currently waiting for. It does not
// interrupt a blocking read. Safe to call more than once and from any goroutine.
func (s *Session) Stop() {
	if s.stopping.CompareAndSwap(false, true) {
		s.log.Info("stop requested")
	}
}

// Start connects if needed (via Reconnect, so a failed first attempt is retried) and runs
// the read/dispatch loop. When Stop is observed it disconnects and returns nil; when ctx is
// cancelled it closes the transport and returns ctx.Err(). A stopped session stays stopped;
// create a new one to stream again.
func (s *Session) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStreaming
	}
	defer s.running.Store(false)

	if err := s.Reconnect(ctx); err != nil {
		return s.exit(ctx, err)
	}

	// Cancellation closes the socket so a pending read returns.
	unwatch := context.AfterFunc(ctx, func() { _ = s.Disconnect() })
	defer unwatch()

	s.markStreaming()
	for !s.stopping.Load() && ctx.Err() == nil {
		line, connID, err := s.readLine()
		if err != nil {
			if ctx.Err() != nil || s.stopping.Load() {
				break
			}
			lvl := slog.LevelWarn
			if !IsTransportError(err) {
				lvl = slog.LevelError
			}
			s.log.Log(ctx, lvl, "lost connection: attempting reconnect", slog.Any("err", err), slog.String("conn_id", connID))
			if connID != "" {
				_ = s.teardown(connID)
			}
			// a transport opened by someone else since the failed read is kept
			lost := s.State() == StateDisconnected
			if err := s.Reconnect(ctx); err != nil {
				return s.exit(ctx, err)
			}
			if lost {
				s.reconnects.Add(1)
				telemetry.Inc(telemetry.Reconnects, s.cfg.Channel)
			}
			s.markStreaming()
			continue
		}
		s.handleLine(ctx, line)
	}
	return s.exit(ctx, nil)
}

// exit disconnects and maps the loop's terminal condition to Start's return value.
func (s *Session) exit(ctx context.Context, err error) error {
	if derr := s.Disconnect(); derr != nil {
		s.log.Warn("disconnect failed", slog.Any("err", derr))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil || errors.Is(err, ErrStopped) {
		s.log.Info("stream stopped")
		return nil
	}
	return err
}

// readLine reads one frame and returns the id of the connection it was read from.
func (s *Session) readLine() (string, string, error) {
	s.mu.Lock()
	r := s.reader
	connID := s.connID
	s.mu.Unlock()
	if r == nil {
		return "", "", ErrNotConnected
	}
	raw, err := r.ReadString('\n')
	if err != nil {
		// a partial line before EOF is not a frame
		return "", connID, err
	}
	s.linesRead.Add(1)
	return irc.TrimLine(raw), connID, nil
}

func (s *Session) write(frame string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	_, err := io.WriteString(conn, frame)
	return err
}

func (s *Session) handleLine(ctx context.Context, line string) {
	kind := irc.Classify(line)
	telemetry.Inc(telemetry.LinesRead, s.cfg.Channel, kind.String())
	switch kind {
	case irc.KindPing:
		// a broken write shows up as a read error on the next iteration
		if err := s.write(irc.PongFrame()); err != nil {
			s.log.Debug("pong write failed", slog.Any("err", err))
			return
		}
		telemetry.Inc(telemetry.PongsSent, s.cfg.Channel)
	case irc.KindPrivateMessage:
		msg, ok := NewMessage(s.cfg.Channel, line)
		if !ok {
			s.log.Debug("unparseable privmsg", slog.String("line", line))
			return
		}
		s.Dispatch(ctx, msg)
	}
}

// Register adds a subscriber. See Registry.Register.
func (s *Session) Register(sub Subscriber) error {
	err := s.subs.Register(sub)
	telemetry.SetGauge(telemetry.Subscribers, s.cfg.Channel, float64(s.subs.Len()))
	return err
}

// Unregister removes a subscriber. Messages already being fanned out may still reach it.
func (s *Session) Unregister(sub Subscriber) {
	s.subs.Unregister(sub)
	telemetry.SetGauge(telemetry.Subscribers, s.cfg.Channel, float64(s.subs.Len()))
}

// SubscriberCount returns the number of registered subscribers.
func (s *Session) SubscriberCount() int { return s.subs.Len() }

// Status is a point-in-time view of the session for the HTTP status endpoint.
type Status struct {
	State              string     `json:"state"`
	Nick               string     `json:"nick"`
	Channel            string     `json:"channel"`
	Server             string     `json:"server"`
	Subscribers        int        `json:"subscribers"`
	ConnectedAt        *time.Time `json:"connected_at,omitempty"`
	ConnectAttempts    int64      `json:"connect_attempts"`
	Reconnects         int64      `json:"reconnects"`
	LinesRead          int64      `json:"lines_read"`
	MessagesDispatched int64      `json:"messages_dispatched"`
}

// Status returns the current state and counters.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := s.state
	var connectedAt *time.Time
	if st != StateDisconnected {
		t := s.connectedAt
		connectedAt = &t
	}
	s.mu.Unlock()
	return Status{
		State:              st.String(),
		Nick:               s.cfg.Nick,
		Channel:            s.cfg.Channel,
		Server:             s.addr,
		Subscribers:        s.subs.Len(),
		ConnectedAt:        connectedAt,
		ConnectAttempts:    s.connectAttempts.Load(),
		Reconnects:         s.reconnects.Load(),
		LinesRead:          s.linesRead.Load(),
		MessagesDispatched: s.dispatched.Load(),
	}
}
