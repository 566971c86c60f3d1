package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/whalewatcher/watcher/internal/model"
)

// PolymarketStreamURL is the Polymarket real-time data service.
const PolymarketStreamURL = "wss://ws-live-data.polymarket.com"

// Reconnection constants
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	// PingInterval is how often a keepalive is sent; the service drops idle sockets
	PingInterval = 5 * time.Second
	// HeartbeatTimeout is how long without any message before the socket is recycled
	HeartbeatTimeout = 60 * time.Second

	WriteTimeout = 10 * time.Second

	// DefaultStreamBuffer bounds the trades held between polls
	DefaultStreamBuffer = 5000
)

type streamSubscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

type streamSubscribe struct {
	Action        string               `json:"action"`
	Subscriptions []streamSubscription `json:"subscriptions"`
}

type streamMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PolymarketStream receives Polymarket trades over the real-time websocket and
// buffers them until the next poll. It is an alternative to PolymarketClient
// that does not miss trades between polls.
type PolymarketStream struct {
	url  string
	opts options

	conn     *websocket.Conn
	connMu   sync.Mutex
	backoff  time.Duration
	lastMsg  time.Time
	msgMu    sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	bufMu     sync.Mutex
	buf       []model.Trade
	bufCap    int
	overflow  int
	connected bool
}

// NewPolymarketStream creates a stream for the given websocket URL. Call Start before polling.
func NewPolymarketStream(url string, opts ...Option) *PolymarketStream {
	if url == "" {
		url = PolymarketStreamURL
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "polymarket_stream")

	return &PolymarketStream{
		url:      url,
		opts:     o,
		backoff:  InitialBackoff,
		stopChan: make(chan struct{}),
		bufCap:   DefaultStreamBuffer,
	}
}

// Venue returns model.VenuePolymarket.
func (s *PolymarketStream) Venue() model.Venue {
	return model.VenuePolymarket
}

// Start connects in the background and keeps reconnecting until Stop or ctx is done.
func (s *PolymarketStream) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.runLoop(ctx)

	s.wg.Add(1)
	go s.heartbeatMonitor(ctx)
}

// Stop closes the connection and waits for the background goroutines.
func (s *PolymarketStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.closeConnection()
	s.wg.Wait()
}

// Connected reports whether the websocket is currently up.
func (s *PolymarketStream) Connected() bool {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return s.connected
}

// FetchRecentTrades drains every trade received since the previous call.
// An empty buffer on a dead connection is reported as a network error.
func (s *PolymarketStream) FetchRecentTrades(ctx context.Context) ([]model.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, networkError(model.VenuePolymarket, err)
	}

	s.bufMu.Lock()
	trades := s.buf
	overflow := s.overflow
	connected := s.connected
	s.buf = nil
	s.overflow = 0
	s.bufMu.Unlock()

	if overflow > 0 {
		s.opts.logger.Warn("stream_buffer_overflow", "dropped", overflow)
	}
	if len(trades) == 0 && !connected {
		return nil, networkError(model.VenuePolymarket, errors.New("stream disconnected"))
	}
	return trades, nil
}

// runLoop handles connection, reading, and reconnection.
func (s *PolymarketStream) runLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.opts.logger.Info("ws_loop_stopping", "reason", "context cancelled")
			return
		case <-s.stopChan:
			s.opts.logger.Info("ws_loop_stopping", "reason", "stop signal")
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.opts.logger.Error("ws_connect_failed", "error", err, "backoff", s.backoff)
			s.closeConnection()
			s.waitBackoff(ctx)
			continue
		}

		if err := s.readLoop(ctx); err != nil {
			s.opts.logger.Warn("ws_read_error", "error", err)
		}

		s.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
			s.waitBackoff(ctx)
		}
	}
}

// connect dials the service and subscribes to the trade activity topic.
func (s *PolymarketStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.backoff = InitialBackoff
	s.opts.logger.Info("ws_connected", "endpoint", s.url)

	if err := s.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	s.setConnected(true)
	s.updateLastMsg()
	return nil
}

func (s *PolymarketStream) subscribe() error {
	msg := streamSubscribe{
		Action:        "subscribe",
		Subscriptions: []streamSubscription{{Topic: "activity", Type: "trades"}},
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	s.opts.logger.Info("ws_subscribed", "topic", "activity", "type", "trades")
	return nil
}

// readLoop reads messages until the connection fails or the stream stops.
func (s *PolymarketStream) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopChan:
			return nil
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(HeartbeatTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		s.updateLastMsg()
		s.handleMessage(message)
	}
}

// handleMessage normalizes trade payloads into the buffer. Keepalive replies and
// other topics are ignored.
func (s *PolymarketStream) handleMessage(data []byte) {
	if len(data) == 0 || data[0] != '{' {
		return
	}

	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.opts.logger.Debug("ws_parse_error", "error", err, "raw", truncate(string(data), 160))
		return
	}
	if msg.Topic != "activity" || msg.Type != "trades" || len(msg.Payload) == 0 {
		return
	}

	trades := normalizeBatch(model.VenuePolymarket, []json.RawMessage{msg.Payload}, s.opts.now(), NormalizePolymarket, &s.opts)
	if len(trades) == 0 {
		return
	}

	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	for _, t := range trades {
		if len(s.buf) >= s.bufCap {
			s.buf = s.buf[1:]
			s.overflow++
		}
		s.buf = append(s.buf, t)
	}
}

// heartbeatMonitor keeps the socket alive and recycles it when it goes quiet.
func (s *PolymarketStream) heartbeatMonitor(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.checkHeartbeat()
		}
	}
}

func (s *PolymarketStream) checkHeartbeat() {
	s.msgMu.RLock()
	lastMsg := s.lastMsg
	s.msgMu.RUnlock()

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}

	if !lastMsg.IsZero() && time.Since(lastMsg) > HeartbeatTimeout {
		s.opts.logger.Warn("ws_heartbeat_timeout", "elapsed", time.Since(lastMsg))
		s.closeConnection()
		return
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
		s.opts.logger.Warn("ws_ping_failed", "error", err)
		s.conn.Close()
		s.conn = nil
		s.setConnected(false)
	}
}

func (s *PolymarketStream) updateLastMsg() {
	s.msgMu.Lock()
	s.lastMsg = time.Now()
	s.msgMu.Unlock()
}

func (s *PolymarketStream) setConnected(v bool) {
	s.bufMu.Lock()
	s.connected = v
	s.bufMu.Unlock()
}

// closeConnection safely closes the websocket connection.
func (s *PolymarketStream) closeConnection() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.opts.logger.Info("ws_disconnected")
	}
	s.setConnected(false)
}

// waitBackoff waits for the backoff duration with jitter, then grows it.
func (s *PolymarketStream) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(s.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := s.backoff + jitter

	s.opts.logger.Debug("ws_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	case <-time.After(wait):
	}

	s.backoff = time.Duration(float64(s.backoff) * BackoffFactor)
	if s.backoff > MaxBackoff {
		s.backoff = MaxBackoff
	}
}
