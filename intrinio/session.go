package intrinio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/intrinio/equities-feed-go/logger"
)

// sessionHeartbeatInterval is the application-level keepalive cadence sent
// while the session is Ready.
const sessionHeartbeatInterval = 20 * time.Second

// sessionState enumerates the controller's lifecycle per the state
// machine: Init -> Authenticating -> Connecting -> Ready <-> Backoff,
// Stopped reachable from any state.
type sessionState int

const (
	stateInit sessionState = iota
	stateAuthenticating
	stateConnecting
	stateReady
	stateBackoff
	stateStopped
)

func (s sessionState) String() string {
	switch s {
	case stateAuthenticating:
		return "Authenticating"
	case stateConnecting:
		return "Connecting"
	case stateReady:
		return "Ready"
	case stateBackoff:
		return "Backoff"
	case stateStopped:
		return "Stopped"
	default:
		return "Init"
	}
}

// sessionController owns the WebSocket and drives auth -> connect ->
// subscribe -> dispatch, self-healing through backoffDriver on
// disconnect, and replaying the subscription registry on reconnect.
type sessionController struct {
	// sessionID is a locally-generated correlation ID (not sent on the
	// wire) threaded through every log line this controller emits, so a
	// reconnect sequence can be grepped out of a shared log stream.
	sessionID string

	provider    Provider
	ipAddress   string
	accessKey   string
	isPublicKey bool
	delayed     bool
	tradesOnly  bool // client-wide default

	registry *subscriptionRegistry
	auth     *authClient
	backoff  *backoffDriver
	log      *logger.Log

	onTrade TradeHandler
	onQuote QuoteHandler

	mu          sync.Mutex
	state       sessionState
	token       string
	lastReadyAt time.Time
	readyCh     chan struct{}

	writeMu sync.Mutex
	conn    *websocket.Conn

	cancel    context.CancelFunc
	done      chan struct{}
	msgCount  uint64
	msgCountM sync.Mutex
}

func newSessionController(cfg sessionConfig) *sessionController {
	return &sessionController{
		sessionID:   uuid.NewString(),
		provider:    cfg.Provider,
		ipAddress:   cfg.IPAddress,
		accessKey:   cfg.AccessKey,
		isPublicKey: cfg.IsPublicKey,
		delayed:     cfg.Delayed,
		tradesOnly:  cfg.TradesOnly,
		registry:    newSubscriptionRegistry(),
		auth:        newAuthClient(cfg.Provider, cfg.IPAddress, cfg.AccessKey, cfg.IsPublicKey, cfg.Delayed),
		backoff:     newBackoffDriver(),
		log:         logger.GetLogger(),
		onTrade:     cfg.OnTrade,
		onQuote:     cfg.OnQuote,
		state:       stateInit,
		readyCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// sessionConfig collects the inputs needed to construct a sessionController,
// mirroring the public Client constructor's configuration surface.
type sessionConfig struct {
	Provider    Provider
	IPAddress   string
	AccessKey   string
	IsPublicKey bool
	Delayed     bool
	TradesOnly  bool
	OnTrade     TradeHandler
	OnQuote     QuoteHandler
}

func (s *sessionController) setState(st sessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	if st == stateReady {
		close(s.readyCh)
	} else if st != stateStopped {
		// leaving Ready (or never having reached it): arm a fresh gate
		select {
		case <-s.readyCh:
			s.readyCh = make(chan struct{})
		default:
		}
	}
}

// logEntry returns a log entry tagged with this controller's session and
// component so reconnects can be correlated across log lines.
func (s *sessionController) logEntry() *logger.Entry {
	return s.log.WithComponent("session").WithField("sessionId", s.sessionID)
}

func (s *sessionController) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// waitReady blocks until the controller reaches Ready or ctx is done.
func (s *sessionController) waitReady(ctx context.Context) error {
	s.mu.Lock()
	ch := s.readyCh
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start authenticates once and launches the session's background run loop.
// It blocks only for that first authentication and returns its error (e.g.
// ErrUnauthorized on 401); connecting happens in the run loop.
func (s *sessionController) start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	token, err := s.authenticate()
	if err != nil {
		cancel()
		return err
	}
	s.mu.Lock()
	s.token = token
	s.lastReadyAt = time.Time{}
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

func (s *sessionController) authenticate() (string, error) {
	s.setState(stateAuthenticating)
	token, err := s.auth.fetchToken()
	if err != nil {
		s.logEntry().WithError(err).Warn("initial authentication failed")
		return "", err
	}
	return token, nil
}

// run drives the connect/ready/backoff cycle until ctx is cancelled via
// stop(). The entire connect-and-serve attempt is the backoff driver's
// op: a connection that ends in anything but code 1000 is a failure, so
// the driver sleeps the schedule duration before the next dial; a code
// 1000 closure (graceful stop, or ctx cancellation) is success, which
// ends the retry loop and the session for good.
func (s *sessionController) run(ctx context.Context) {
	defer close(s.done)

	s.backoff.Retry(ctx, func() error {
		if err := s.refreshTokenIfStale(); err != nil {
			return err
		}

		closeCode, err := s.connectAndServe(ctx)
		if closeCode == websocket.CloseNormalClosure {
			return nil
		}

		s.logEntry().WithField("closeCode", closeCode).WithError(err).
			Warn("session disconnected; entering backoff")
		s.setState(stateBackoff)
		return err
	})
}

const tokenLifetime = 24 * time.Hour

// refreshTokenIfStale re-authenticates when the last Ready token is older
// than tokenLifetime, or when no token has been acquired yet.
func (s *sessionController) refreshTokenIfStale() error {
	stale := !s.lastReadyAtSnapshot().IsZero() && time.Since(s.lastReadyAtSnapshot()) > tokenLifetime
	if !stale && s.tokenSnapshot() != "" {
		return nil
	}

	token, err := s.auth.fetchToken()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *sessionController) lastReadyAtSnapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReadyAt
}

func (s *sessionController) tokenSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// connectAndServe dials the socket, replays subscriptions, and serves the
// read loop until the connection closes. It returns the close code
// observed (or websocket.CloseAbnormalClosure on a non-close error, or
// websocket.CloseNormalClosure when ctx is cancelled between reads).
func (s *sessionController) connectAndServe(ctx context.Context) (int, error) {
	s.setState(stateConnecting)

	url, err := websocketURL(s.provider, s.ipAddress, s.tokenSnapshot())
	if err != nil {
		return websocket.CloseAbnormalClosure, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return websocket.CloseAbnormalClosure, fmt.Errorf("intrinio: dial: %w", err)
	}

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()

	if err := s.replaySubscriptions(); err != nil {
		conn.Close()
		return websocket.CloseAbnormalClosure, err
	}

	s.mu.Lock()
	s.lastReadyAt = time.Now()
	s.mu.Unlock()
	s.setState(stateReady)
	s.backoff.Reset()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	go s.heartbeatLoop(heartbeatCtx, conn)

	closeCode, readErr := s.readLoop(ctx, conn)

	stopHeartbeat()
	conn.Close()
	return closeCode, readErr
}

// replaySubscriptions sends one join frame per registry entry, in
// registration order, immediately after open.
func (s *sessionController) replaySubscriptions() error {
	for _, entry := range s.registry.snapshot() {
		if err := s.writeFrame(websocket.BinaryMessage, encodeJoin(entry.Channel, entry.TradesOnly || s.tradesOnly)); err != nil {
			return fmt.Errorf("intrinio: replaying subscription %q: %w", entry.Channel, err)
		}
	}
	return nil
}

func (s *sessionController) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(sessionHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeFrame(websocket.BinaryMessage, heartbeatFrame()); err != nil {
				s.logEntry().WithError(err).Warn("heartbeat write failed")
				return
			}
		}
	}
}

func (s *sessionController) readLoop(ctx context.Context, conn *websocket.Conn) (int, error) {
	for {
		if ctx.Err() != nil {
			return websocket.CloseNormalClosure, ctx.Err()
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return ce.Code, err
			}
			return websocket.CloseAbnormalClosure, err
		}

		s.incrementMsgCount()
		decodeFrame(data, s.dispatchTrade, s.dispatchQuote)
	}
}

func (s *sessionController) dispatchTrade(t Trade) {
	if s.onTrade != nil {
		s.onTrade(t)
	}
}

func (s *sessionController) dispatchQuote(q Quote) {
	if s.onQuote != nil {
		s.onQuote(q)
	}
}

func (s *sessionController) incrementMsgCount() {
	s.msgCountM.Lock()
	s.msgCount++
	s.msgCountM.Unlock()
}

func (s *sessionController) totalMsgCount() uint64 {
	s.msgCountM.Lock()
	defer s.msgCountM.Unlock()
	return s.msgCount
}

// writeFrame serializes all outbound writes behind a single mutex,
// enforcing the single-writer contract over the shared connection.
func (s *sessionController) writeFrame(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("intrinio: write attempted before connection established")
	}
	return s.conn.WriteMessage(messageType, data)
}

// join waits for Ready, registers symbols in the subscription registry, and
// sends a join frame for each channel given, including channels that were
// already registered (those keep their first tradesOnly flag).
func (s *sessionController) join(ctx context.Context, channels []string, tradesOnly bool) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}

	for _, ch := range channels {
		if err := s.registry.add(ch, tradesOnly); err != nil {
			return err
		}
		effectiveTradesOnly := s.registry.tradesOnlyFor(ch, s.tradesOnly)
		if err := s.writeFrame(websocket.BinaryMessage, encodeJoin(ch, effectiveTradesOnly)); err != nil {
			return err
		}
	}
	return nil
}

// leave sends a leave frame per channel (or every registered channel when
// channels is empty) and removes them from the registry.
func (s *sessionController) leave(channels []string) error {
	if len(channels) == 0 {
		channels = s.registry.removeAll()
	} else {
		for _, ch := range channels {
			s.registry.remove(ch)
		}
	}

	for _, ch := range channels {
		if err := s.writeFrame(websocket.BinaryMessage, encodeLeave(ch)); err != nil {
			return err
		}
	}
	return nil
}

// stop leaves every registered channel, drains the outbound buffer with a
// bounded wait, closes with code 1000, and cancels the run loop. Must be
// called exactly once.
func (s *sessionController) stop() error {
	for _, ch := range s.registry.removeAll() {
		_ = s.writeFrame(websocket.BinaryMessage, encodeLeave(ch))
	}

	s.drainOutbound(2 * time.Second)

	s.writeMu.Lock()
	if s.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	s.writeMu.Unlock()

	s.setState(stateStopped)
	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

// drainOutbound is a bounded, polling wait intended to give any
// in-flight writes a chance to reach the socket before close. The
// WebSocket transport exposes no buffer-depth introspection, so this is a
// fixed grace period rather than a true drain signal.
func (s *sessionController) drainOutbound(max time.Duration) {
	time.Sleep(minDuration(max, 250*time.Millisecond))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
