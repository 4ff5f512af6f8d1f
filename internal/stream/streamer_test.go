package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type mockSink struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newMockSink() *mockSink {
	return &mockSink{prices: make(map[string]float64)}
}

func (m *mockSink) SetLivePrice(ctx context.Context, symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

func (m *mockSink) get(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.prices[symbol]
	return v, ok
}

type mockSource struct {
	alertSymbols  []string
	sectorSymbols []string
}

func (m *mockSource) GetAlertSymbols(ctx context.Context) ([]string, error) {
	return m.alertSymbols, nil
}

func (m *mockSource) GetAllSectorSymbols(ctx context.Context) ([]string, error) {
	return m.sectorSymbols, nil
}

// wsServer is a test feed that records subscribe frames per connection
type wsServer struct {
	*httptest.Server

	mu          sync.Mutex
	connections []*wsConnection
}

type wsConnection struct {
	conn       *websocket.Conn
	subscribed []string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{}
	upgrader := websocket.Upgrader{}

	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		wc := &wsConnection{conn: conn}
		ws.mu.Lock()
		ws.connections = append(ws.connections, wc)
		ws.mu.Unlock()

		for {
			var frame map[string]string
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame["type"] == "subscribe" {
				ws.mu.Lock()
				wc.subscribed = append(wc.subscribed, frame["symbol"])
				ws.mu.Unlock()
			}
		}
	}))
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.Server.URL, "http")
}

func (ws *wsServer) connectionCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.connections)
}

func (ws *wsServer) subscriptions(i int) []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if i >= len(ws.connections) {
		return nil
	}
	out := make([]string, len(ws.connections[i].subscribed))
	copy(out, ws.connections[i].subscribed)
	return out
}

func (ws *wsServer) send(i int, payload interface{}) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if i >= len(ws.connections) {
		return fmt.Errorf("no connection %d", i)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ws.connections[i].conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *wsServer) closeConnection(i int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if i < len(ws.connections) {
		ws.connections[i].conn.Close()
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStreamerSubscribesAndCachesTrades(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	sink := newMockSink()
	source := &mockSource{alertSymbols: []string{"AAPL", "TSLA"}}

	streamer := NewStreamer(server.url(), "test-key", sink, source)
	streamer.Start()
	defer streamer.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return len(server.subscriptions(0)) == 5
	})

	want := []string{"AAPL", "TSLA", "SPY", "QQQ", "IWM"}
	got := server.subscriptions(0)
	for i, s := range want {
		if got[i] != s {
			t.Errorf("subscription[%d] = %q, want %q", i, got[i], s)
		}
	}

	if err := server.send(0, map[string]interface{}{
		"type": "trade",
		"data": []map[string]interface{}{
			{"s": "AAPL", "p": 151.42, "t": time.Now().UnixMilli(), "v": 100},
		},
	}); err != nil {
		t.Fatalf("send trade: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, ok := sink.get("AAPL")
		return ok
	})
	if price, _ := sink.get("AAPL"); price != 151.42 {
		t.Errorf("cached price = %v, want 151.42", price)
	}

	stats := streamer.Stats()
	if !stats.Connected {
		t.Error("stats report disconnected")
	}
	if stats.Trades != 1 {
		t.Errorf("trades = %d, want 1", stats.Trades)
	}
}

func TestStreamerResubscribesAfterReconnect(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	sink := newMockSink()
	source := &mockSource{alertSymbols: []string{"AAPL"}}

	streamer := NewStreamer(server.url(), "test-key", sink, source)
	streamer.reconnectDelay = 50 * time.Millisecond
	streamer.Start()
	defer streamer.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return len(server.subscriptions(0)) == 4
	})

	// Drop the connection server-side; the streamer must come back and
	// subscribe the full set again
	server.closeConnection(0)

	waitFor(t, 2*time.Second, func() bool {
		return server.connectionCount() >= 2 && len(server.subscriptions(1)) == 4
	})

	want := []string{"AAPL", "SPY", "QQQ", "IWM"}
	got := server.subscriptions(1)
	for i, s := range want {
		if got[i] != s {
			t.Errorf("resubscription[%d] = %q, want %q", i, got[i], s)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		return streamer.Stats().Reconnects >= 1
	})
}

func TestComputeSymbolsDedupesAndCaps(t *testing.T) {
	many := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		many = append(many, fmt.Sprintf("SYM%d", i))
	}
	source := &mockSource{
		alertSymbols:  append([]string{"AAPL", "SPY"}, many...),
		sectorSymbols: []string{"AAPL", "MSFT"},
	}

	streamer := NewStreamer("ws://unused", "key", newMockSink(), source)
	symbols := streamer.computeSymbols(context.Background())

	if len(symbols) != MaxSymbols {
		t.Fatalf("got %d symbols, want cap of %d", len(symbols), MaxSymbols)
	}
	if symbols[0] != "AAPL" || symbols[1] != "SPY" {
		t.Errorf("priority order broken: %v", symbols[:2])
	}
	seen := make(map[string]bool)
	for _, s := range symbols {
		if seen[s] {
			t.Errorf("duplicate symbol %q", s)
		}
		seen[s] = true
	}
}

func TestComputeSymbolsIncludesIndexes(t *testing.T) {
	source := &mockSource{alertSymbols: []string{"AAPL"}}
	streamer := NewStreamer("ws://unused", "key", newMockSink(), source)

	symbols := streamer.computeSymbols(context.Background())

	want := []string{"AAPL", "SPY", "QQQ", "IWM"}
	if len(symbols) != len(want) {
		t.Fatalf("got %v, want %v", symbols, want)
	}
	for i, s := range want {
		if symbols[i] != s {
			t.Errorf("symbols[%d] = %q, want %q", i, symbols[i], s)
		}
	}
}
