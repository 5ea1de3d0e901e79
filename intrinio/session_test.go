package intrinio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// newTestSessionServer returns a MANUAL-provider test server handling both
// /auth (always succeeds with a fixed token) and /socket/websocket
// (upgraded by wsHandler).
func newTestSessionServer(t *testing.T, wsHandler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test-token"))
	})
	mux.HandleFunc("/socket/websocket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		wsHandler(conn)
	})
	return httptest.NewServer(mux)
}

func newManualSession(t *testing.T, srv *httptest.Server) *sessionController {
	t.Helper()
	host := strings.TrimPrefix(srv.URL, "http://")
	return newSessionController(sessionConfig{
		Provider:  ProviderManual,
		IPAddress: host,
		AccessKey: "key",
	})
}

func TestConnectAndServeDispatchesTradeThenNormalClose(t *testing.T) {
	srv := newTestSessionServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		// drain the join replay (none registered) then send one trade frame.
		sub := buildTradeSubMessage("AAPL", 0, 0, 10.5, 1, 1, 1, "")
		frame := append([]byte{1}, sub...)
		conn.WriteMessage(websocket.BinaryMessage, frame)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	s := newManualSession(t, srv)
	s.onTrade = func(tr Trade) {
		mu.Lock()
		got = append(got, tr.Symbol)
		mu.Unlock()
	}

	token, err := s.authenticate()
	if err != nil {
		t.Fatal(err)
	}
	s.token = token

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	code, _ := s.connectAndServe(ctx)
	if code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal closure, got %d", code)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "AAPL" {
		t.Fatalf("expected one AAPL trade, got %v", got)
	}
}

func TestConnectAndServeReplaysSubscriptionsInOrder(t *testing.T) {
	received := make(chan []byte, 8)
	srv := newTestSessionServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for i := 0; i < 2; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer srv.Close()

	s := newManualSession(t, srv)
	s.registry.add("AAPL", false)
	s.registry.add("MSFT", false)

	token, err := s.authenticate()
	if err != nil {
		t.Fatal(err)
	}
	s.token = token

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.connectAndServe(ctx)

	close(received)
	var frames [][]byte
	for m := range received {
		frames = append(frames, m)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 join frames, got %d", len(frames))
	}
	if !strings.Contains(string(frames[0]), "AAPL") || !strings.Contains(string(frames[1]), "MSFT") {
		t.Fatalf("expected AAPL then MSFT join order, got %q then %q", frames[0], frames[1])
	}
}

func TestStopSendsLeaveThenClose(t *testing.T) {
	var gotFrames [][]byte
	var mu sync.Mutex
	closed := make(chan struct{})

	srv := newTestSessionServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		defer close(closed)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			gotFrames = append(gotFrames, msg)
			mu.Unlock()
		}
	})
	defer srv.Close()

	s := newManualSession(t, srv)
	s.registry.add("AAPL", false)

	token, err := s.authenticate()
	if err != nil {
		t.Fatal(err)
	}
	s.token = token

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.connectAndServe(ctx)
	}()

	// give the server a moment to accept the connection and replay join.
	time.Sleep(100 * time.Millisecond)

	if err := s.stop(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("server connection never closed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(gotFrames) < 2 {
		t.Fatalf("expected at least join+leave frames, got %d", len(gotFrames))
	}
	last := gotFrames[len(gotFrames)-1]
	if last[0] != opcodeLeave {
		t.Fatalf("expected leave frame last, got % x", last)
	}
}
