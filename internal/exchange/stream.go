package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const DefaultHyperliquidWSURL = "wss://api.hyperliquid.xyz/ws"

// MidsHandler receives every allMids snapshot pushed by the stream.
type MidsHandler func(mids map[string]string)

type wsSubscribe struct {
	Method       string         `json:"method"`
	Subscription map[string]any `json:"subscription,omitempty"`
}

type wsMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsAllMids struct {
	Mids map[string]string `json:"mids"`
}

// MidStream keeps an allMids subscription open, reconnecting with backoff
// whenever the connection drops.
type MidStream struct {
	url     string
	handler MidsHandler
	log     *slog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
	RetryMin     time.Duration
	RetryMax     time.Duration
}

// NewMidStream creates a stream for url. An empty url selects the public
// Hyperliquid endpoint.
func NewMidStream(url string, handler MidsHandler) *MidStream {
	if url == "" {
		url = DefaultHyperliquidWSURL
	}
	return &MidStream{
		url:          url,
		handler:      handler,
		log:          slog.With("component", "mid-stream"),
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		RetryMin:     time.Second,
		RetryMax:     30 * time.Second,
	}
}

// Start initiates the connection loop.
func (s *MidStream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runLoop(ctx)
}

// Stop terminates the stream and waits for its goroutines.
func (s *MidStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.close()
	s.wg.Wait()
}

func (s *MidStream) runLoop(ctx context.Context) {
	defer s.wg.Done()
	b := &backoff.Backoff{Min: s.RetryMin, Max: s.RetryMax, Factor: 2, Jitter: true}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			delay := b.Duration()
			s.log.Warn("WS connection failed", "err", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		b.Reset()
		s.process(ctx)
	}
}

func (s *MidStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	sub := wsSubscribe{Method: "subscribe", Subscription: map[string]any{"type": "allMids"}}
	if err := s.writeJSON(sub); err != nil {
		s.close()
		return fmt.Errorf("subscribe allMids: %w", err)
	}

	if s.PingInterval > 0 {
		s.wg.Add(1)
		go s.pingLoop(ctx, conn)
	}

	s.log.Info("WS connected", "url", s.url)
	return nil
}

func (s *MidStream) process(ctx context.Context) {
	for {
		s.mu.RLock()
		c := s.conn
		s.mu.RUnlock()
		if c == nil || ctx.Err() != nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("WS read error", "err", err)
			}
			s.close()
			return
		}

		s.onMessage(msg)
	}
}

func (s *MidStream) onMessage(msg []byte) {
	var m wsMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		s.log.Debug("Ignoring undecodable message", "err", err)
		return
	}
	if m.Channel != "allMids" {
		return
	}

	var data wsAllMids
	if err := json.Unmarshal(m.Data, &data); err != nil {
		s.log.Warn("Malformed allMids payload", "err", err)
		return
	}
	if len(data.Mids) == 0 || s.handler == nil {
		return
	}

	mids := make(map[string]string, len(data.Mids))
	for coin, px := range data.Mids {
		// Spot pairs are pushed as "@<index>"; only named coins are tradable here.
		if strings.HasPrefix(coin, "@") {
			continue
		}
		mids[coin] = px
	}
	s.handler(mids)
}

func (s *MidStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			current := s.conn
			s.mu.RUnlock()
			if current != conn {
				return
			}
			if err := s.writeJSON(wsSubscribe{Method: "ping"}); err != nil {
				s.log.Warn("WS ping error", "err", err)
				s.close()
				return
			}
		}
	}
}

func (s *MidStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	c := s.conn
	s.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("ws not connected")
	}
	return c.WriteJSON(v)
}

func (s *MidStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
