package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const streamTrade = `{"topic":"activity","type":"trades","timestamp":1736000000000,"payload":{"proxyWallet":"0xw","side":"SELL","asset":"a1","conditionId":"c1","size":100000,"price":0.3,"timestamp":1736000000,"title":"Stream market","outcome":"No","transactionHash":"0xs"}}`

func TestPolymarketStream_BufferDrain(t *testing.T) {
	s := NewPolymarketStream("ws://unused")
	s.setConnected(true)

	s.handleMessage([]byte(streamTrade))
	s.handleMessage([]byte("PONG"))
	s.handleMessage([]byte(`{"topic":"comments","type":"comment_created","payload":{}}`))
	s.handleMessage([]byte(`{"topic":"activity","type":"trades","payload":{"size":1}}`))

	trades, err := s.FetchRecentTrades(context.Background())
	if err != nil {
		t.Fatalf("FetchRecentTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].MarketTitle != "Stream market" || trades[0].NotionalUSD.String() != "30000" {
		t.Errorf("trade = %q %v", trades[0].MarketTitle, trades[0].NotionalUSD)
	}

	trades, err = s.FetchRecentTrades(context.Background())
	if err != nil {
		t.Fatalf("second FetchRecentTrades: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("buffer not drained: %d trades", len(trades))
	}
}

func TestPolymarketStream_BufferBounded(t *testing.T) {
	s := NewPolymarketStream("ws://unused")
	s.bufCap = 2
	s.setConnected(true)

	for i := 0; i < 5; i++ {
		s.handleMessage([]byte(streamTrade))
	}

	trades, err := s.FetchRecentTrades(context.Background())
	if err != nil {
		t.Fatalf("FetchRecentTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Errorf("got %d trades, want 2", len(trades))
	}
}

func TestPolymarketStream_DisconnectedIsNetworkError(t *testing.T) {
	s := NewPolymarketStream("ws://unused")

	_, err := s.FetchRecentTrades(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("err = %v, want network error", err)
	}
}

func TestPolymarketStream_SubscribesAndReceives(t *testing.T) {
	upgrader := websocket.Upgrader{
		// The client sends a polymarket.com Origin that never matches the test host.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	subscribed := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribed <- string(msg)

		if err := conn.WriteMessage(websocket.TextMessage, []byte(streamTrade)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	s := NewPolymarketStream("ws" + strings.TrimPrefix(server.URL, "http"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	select {
	case msg := <-subscribed:
		if !strings.Contains(msg, `"action":"subscribe"`) || !strings.Contains(msg, `"topic":"activity"`) {
			t.Errorf("subscribe message = %s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		trades, err := s.FetchRecentTrades(ctx)
		if err == nil && len(trades) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("trade never reached the buffer")
}
