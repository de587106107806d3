package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"swap-guard/internal/domain"
)

// WSSourceConfig configures streaming source behavior.
type WSSourceConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSSourceConfig returns default streaming configuration.
func DefaultWSSourceConfig() WSSourceConfig {
	return WSSourceConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSSource implements Source over a WebSocket price stream, caching the
// latest observation per subscribed asset. GetPrice never blocks on the
// network: it serves the cache and fails with ErrUnavailable until the
// first update for an asset arrives.
type WSSource struct {
	endpoint string
	config   WSSourceConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// latest maps asset to its most recent observation
	latest   map[string]domain.PriceObservation
	latestMu sync.RWMutex

	// assets holds the subscription list for resubscription after reconnect
	assets   []string
	assetsMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// wsSubscribeRequest is the subscription message.
type wsSubscribeRequest struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets"`
}

// wsPriceUpdate is an inbound price update message.
type wsPriceUpdate struct {
	Type        string `json:"type"`
	Asset       string `json:"asset"`
	Price       int64  `json:"price"`
	Confidence  uint64 `json:"confidence"`
	PublishTime int64  `json:"publish_time"`
}

// NewWSSource connects to the endpoint and subscribes to the given assets.
func NewWSSource(ctx context.Context, endpoint string, assets []string, config *WSSourceConfig) (*WSSource, error) {
	cfg := DefaultWSSourceConfig()
	if config != nil {
		cfg = *config
	}

	s := &WSSource{
		endpoint: endpoint,
		config:   cfg,
		latest:   make(map[string]domain.PriceObservation),
		assets:   append([]string(nil), assets...),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		s.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes the WebSocket connection.
func (s *WSSource) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// subscribe sends the subscription request for all tracked assets.
func (s *WSSource) subscribe() error {
	s.assetsMu.RLock()
	assets := append([]string(nil), s.assets...)
	s.assetsMu.RUnlock()

	if len(assets) == 0 {
		return nil
	}

	req := wsSubscribeRequest{Type: "subscribe", Assets: assets}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ Source = (*WSSource)(nil)

// GetPrice returns the cached observation for the asset.
func (s *WSSource) GetPrice(_ context.Context, asset string) (domain.PriceObservation, error) {
	if s.closed.Load() {
		return domain.PriceObservation{}, fmt.Errorf("%w: source closed", ErrUnavailable)
	}

	s.latestMu.RLock()
	obs, ok := s.latest[asset]
	s.latestMu.RUnlock()

	if !ok {
		return domain.PriceObservation{}, fmt.Errorf("%w: no observation for %s", ErrUnavailable, asset)
	}
	return obs, nil
}

// Close closes the connection and stops background loops.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop reads messages and updates the cache, reconnecting on error
// with exponential backoff.
func (s *WSSource) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// handleMessage updates the cache from a price update message.
// Unknown message types are ignored.
func (s *WSSource) handleMessage(message []byte) {
	var update wsPriceUpdate
	if err := json.Unmarshal(message, &update); err != nil {
		return
	}
	if update.Type != "price_update" || update.Asset == "" {
		return
	}

	obs := domain.PriceObservation{
		Asset:      update.Asset,
		Price:      update.Price,
		Confidence: update.Confidence,
		ObservedAt: update.PublishTime,
	}

	s.latestMu.Lock()
	// Never replace a newer observation with an older one; updates can
	// arrive out of order around reconnects.
	if prev, ok := s.latest[update.Asset]; !ok || obs.ObservedAt >= prev.ObservedAt {
		s.latest[update.Asset] = obs
	}
	s.latestMu.Unlock()
}

// reconnect attempts to reconnect and resubscribe.
func (s *WSSource) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	s.subscribe()
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *WSSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}
