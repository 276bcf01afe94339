package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whalewatch/config"
	"whalewatch/internal/domain"
)

// Stream receives live trade events over the public market websocket.
// Polling remains the source of truth; the stream shortens detection
// latency when enabled.
type Stream struct {
	logger *zap.Logger

	marketWSURL  string
	dialer       *websocket.Dialer
	pingInterval time.Duration

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	msgCh   chan json.RawMessage
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	lastMsgUnixNano int64
}

func NewStream(logger *zap.Logger, cfg *config.Config) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Stream{
		logger:       logger,
		marketWSURL:  cfg.Polymarket.MarketWSURL,
		dialer:       websocket.DefaultDialer,
		pingInterval: 10 * time.Second,

		msgCh:   make(chan json.RawMessage, 1024),
		errCh:   make(chan error, 64),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the public market channel and subscribes to the provided
// asset IDs (token IDs).
func (s *Stream) Connect(ctx context.Context, assetIDs []string) error {
	s.connMu.Lock()
	alreadyConnected := s.conn != nil
	s.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := s.dialer.DialContext(ctx, s.marketWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial market ws: %w", err)
	}

	s.logger.Info("market ws dialed",
		zap.String("url", s.marketWSURL),
		zap.Int("assets", len(assetIDs)),
	)

	conn.SetCloseHandler(func(code int, text string) error {
		s.logger.Warn("market ws close frame received",
			zap.Int("code", code),
			zap.String("reason", text),
		)
		return nil
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	sub := map[string]any{
		"type":       "market",
		"assets_ids": assetIDs,
	}

	if err := s.writeJSON(sub); err != nil {
		_ = conn.Close()
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		return fmt.Errorf("send initial subscription: %w", err)
	}

	go s.readLoop()
	go s.pingLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closeCh:
		}
	}()

	return nil
}

// SubscribeAssets adds token IDs to the live subscription.
func (s *Stream) SubscribeAssets(assetIDs []string) error {
	return s.sendOp("subscribe", assetIDs)
}

// UnsubscribeAssets removes token IDs from the live subscription.
func (s *Stream) UnsubscribeAssets(assetIDs []string) error {
	return s.sendOp("unsubscribe", assetIDs)
}

// Messages returns the raw event channel.
func (s *Stream) Messages() <-chan json.RawMessage {
	return s.msgCh
}

// Errors returns the stream error channel.
func (s *Stream) Errors() <-chan error {
	return s.errCh
}

// Connected reports whether the websocket is currently dialed.
func (s *Stream) Connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// Stats reports message throughput for health logging.
type Stats struct {
	MessageCount  uint64
	LastMessageAt time.Time
}

func (s *Stream) Stats() Stats {
	n := atomic.LoadUint64(&s.msgCount)
	ns := atomic.LoadInt64(&s.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	return Stats{
		MessageCount:  n,
		LastMessageAt: t,
	}
}

// TradeEvent is a trade frame from the market websocket.
type TradeEvent struct {
	EventType       string `json:"event_type"`
	AssetID         string `json:"asset_id"`
	Price           string `json:"price"`
	Size            string `json:"size"`
	Side            string `json:"side"`
	TakerAddress    string `json:"taker_address"`
	Timestamp       string `json:"timestamp"`
	TransactionHash string `json:"transaction_hash"`
	TradeID         string `json:"id"`
}

// ParseTradeEvent attempts to parse a JSON message as a TradeEvent.
// Returns nil if the message is not a trade event.
func ParseTradeEvent(data json.RawMessage) *TradeEvent {
	var event TradeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil
	}
	if event.EventType != "trade" && event.EventType != "last_trade_price" {
		return nil
	}
	return &event
}

// ToDomain converts the event into a normalized trade. Returns nil for
// frames without a usable identity or quantity.
func (e *TradeEvent) ToDomain() *domain.Trade {
	var price, size float64
	fmt.Sscanf(e.Price, "%f", &price)
	fmt.Sscanf(e.Size, "%f", &size)

	var ts int64
	fmt.Sscanf(e.Timestamp, "%d", &ts)
	// The ws feed reports milliseconds.
	if ts > 1e12 {
		ts /= 1000
	}

	id := e.TradeID
	if id == "" {
		if e.TransactionHash == "" {
			return nil
		}
		id = e.TransactionHash + ":" + e.AssetID
	}
	if e.AssetID == "" || e.TakerAddress == "" || price <= 0 || size <= 0 {
		return nil
	}

	side := domain.TradeSideBuy
	if strings.EqualFold(e.Side, "SELL") {
		side = domain.TradeSideSell
	}

	return &domain.Trade{
		TradeID:   id,
		MarketID:  e.AssetID,
		Wallet:    strings.ToLower(e.TakerAddress),
		Side:      side,
		Amount:    size,
		Price:     price,
		Timestamp: time.Unix(ts, 0).UTC(),
	}
}

// Close shuts the connection and stops the loops.
func (s *Stream) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	select {
	case <-s.closeCh:
	default:
		close(s.closeCh)
	}

	// Fresh channel for potential reconnection.
	s.closeCh = make(chan struct{})

	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}

	return err
}

func (s *Stream) sendOp(operation string, assetIDs []string) error {
	msg := map[string]any{
		"operation":  operation,
		"assets_ids": assetIDs,
	}
	return s.writeJSON(msg)
}

func (s *Stream) writeJSON(v any) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return conn.WriteJSON(v)
}

func (s *Stream) pingLoop() {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()

			if conn != nil {
				s.writeMu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("PING"))
				s.writeMu.Unlock()
			}

		case <-s.closeCh:
			return
		}
	}
}

func (s *Stream) readLoop() {
	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("market ws read error", zap.Error(err))
			select {
			case s.errCh <- err:
			default:
			}
			_ = s.Close()
			return
		}

		// Server may reply with plain "PONG".
		if string(b) == "PONG" || string(b) == "PING" {
			continue
		}

		atomic.AddUint64(&s.msgCount, 1)
		atomic.StoreInt64(&s.lastMsgUnixNano, time.Now().UnixNano())

		select {
		case s.msgCh <- json.RawMessage(b):
		default:
			s.logger.Warn("market ws message channel full, dropping frame")
		}
	}
}
