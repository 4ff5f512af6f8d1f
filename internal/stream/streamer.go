package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// MaxSymbols is the vendor's per-connection subscription cap
	MaxSymbols = 50

	defaultReconnectDelay = 5 * time.Second
)

// indexSymbols are always streamed for market context
var indexSymbols = []string{"SPY", "QQQ", "IWM"}

// PriceSink receives live trade prices
type PriceSink interface {
	SetLivePrice(ctx context.Context, symbol string, price float64)
}

// SymbolSource provides the symbols worth streaming
type SymbolSource interface {
	GetAlertSymbols(ctx context.Context) ([]string, error)
	GetAllSectorSymbols(ctx context.Context) ([]string, error)
}

// Stats is a snapshot of streamer state for the status endpoint
type Stats struct {
	Connected  bool     `json:"connected"`
	Reconnects int64    `json:"reconnects"`
	Trades     int64    `json:"trades"`
	Symbols    []string `json:"symbols"`
}

// Streamer maintains a single websocket to the vendor trade feed and writes
// every trade price into the cache. On any read failure it reconnects after
// a fixed delay and resubscribes the full symbol set.
type Streamer struct {
	wsURL  string
	apiKey string
	cache  PriceSink
	source SymbolSource

	reconnectDelay time.Duration

	mu         sync.RWMutex
	conn       *websocket.Conn
	symbols    []string
	connected  bool
	reconnects int64
	trades     int64

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewStreamer creates a streamer; Start begins the connection loop
func NewStreamer(wsURL, apiKey string, cache PriceSink, source SymbolSource) *Streamer {
	return &Streamer{
		wsURL:          wsURL,
		apiKey:         apiKey,
		cache:          cache,
		source:         source,
		reconnectDelay: defaultReconnectDelay,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the background connection loop
func (s *Streamer) Start() {
	s.wg.Add(1)
	go s.run()
	log.Println("[STREAM] Streamer started")
}

// Stop closes the connection and waits for the loop to exit
func (s *Streamer) Stop() {
	close(s.stopChan)

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("[STREAM] Streamer stopped")
}

// run connects, subscribes and reads until stopped; any failure restarts
// the cycle after the reconnect delay
func (s *Streamer) run() {
	defer s.wg.Done()

	first := true
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if !first {
			select {
			case <-s.stopChan:
				return
			case <-time.After(s.reconnectDelay):
			}
		}
		first = false

		s.RefreshSymbols(context.Background())

		if err := s.connect(); err != nil {
			log.Printf("[STREAM] Connect failed: %v", err)
			continue
		}

		if err := s.subscribeAll(); err != nil {
			log.Printf("[STREAM] Subscribe failed: %v", err)
			s.disconnect()
			continue
		}

		s.readLoop()
		s.disconnect()

		select {
		case <-s.stopChan:
			return
		default:
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			log.Printf("[STREAM] Connection lost, reconnecting in %v", s.reconnectDelay)
		}
	}
}

// RefreshSymbols recomputes the subscription set from the store. The new
// set takes effect on the next (re)connect.
func (s *Streamer) RefreshSymbols(ctx context.Context) {
	symbols := s.computeSymbols(ctx)
	s.mu.Lock()
	s.symbols = symbols
	s.mu.Unlock()
}

// computeSymbols builds alert ∪ sector ∪ index symbols, deduplicated in
// priority order and capped at MaxSymbols
func (s *Streamer) computeSymbols(ctx context.Context) []string {
	var ordered []string

	if alertSymbols, err := s.source.GetAlertSymbols(ctx); err == nil {
		ordered = append(ordered, alertSymbols...)
	} else {
		log.Printf("[STREAM] Failed to load alert symbols: %v", err)
	}

	if sectorSymbols, err := s.source.GetAllSectorSymbols(ctx); err == nil {
		ordered = append(ordered, sectorSymbols...)
	} else {
		log.Printf("[STREAM] Failed to load sector symbols: %v", err)
	}

	ordered = append(ordered, indexSymbols...)

	seen := make(map[string]bool, len(ordered))
	symbols := make([]string, 0, len(ordered))
	for _, symbol := range ordered {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
		if len(symbols) == MaxSymbols {
			break
		}
	}
	return symbols
}

func (s *Streamer) connect() error {
	url := fmt.Sprintf("%s?token=%s", s.wsURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	log.Println("[STREAM] Connected")
	return nil
}

func (s *Streamer) disconnect() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	s.mu.Unlock()
}

// subscribeAll sends one subscribe frame per symbol on the fresh connection
func (s *Streamer) subscribeAll() error {
	s.mu.RLock()
	conn := s.conn
	symbols := make([]string, len(s.symbols))
	copy(symbols, s.symbols)
	s.mu.RUnlock()

	for _, symbol := range symbols {
		frame := map[string]string{"type": "subscribe", "symbol": symbol}
		if err := conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", symbol, err)
		}
	}
	log.Printf("[STREAM] Subscribed to %d symbols", len(symbols))
	return nil
}

func (s *Streamer) readLoop() {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[STREAM] Read error: %v", err)
				}
			}
			return
		}
		s.handleMessage(message)
	}
}

type tradeEvent struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Timestamp int64   `json:"t"`
	Volume    float64 `json:"v"`
}

type inboundFrame struct {
	Type string       `json:"type"`
	Data []tradeEvent `json:"data"`
}

func (s *Streamer) handleMessage(message []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		log.Printf("[STREAM] Bad frame: %v", err)
		return
	}

	switch frame.Type {
	case "trade":
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for _, trade := range frame.Data {
			s.cache.SetLivePrice(ctx, trade.Symbol, trade.Price)
		}
		s.mu.Lock()
		s.trades += int64(len(frame.Data))
		s.mu.Unlock()
	case "ping":
		// Keepalive, nothing to do
	}
}

// Stats returns a snapshot of streamer state
func (s *Streamer) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, len(s.symbols))
	copy(symbols, s.symbols)
	return Stats{
		Connected:  s.connected,
		Reconnects: s.reconnects,
		Trades:     s.trades,
		Symbols:    symbols,
	}
}
