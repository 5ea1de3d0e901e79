package intrinio

import (
	"bytes"
	"testing"
	"time"
)

// sourceFromTicks builds a *replaySource backed by an in-memory tick file
// re-encoded from the given Ticks, so replayEngine.run's real tickFileReader
// path can be exercised without touching disk.
func sourceFromTicks(t *testing.T, ticks []Tick) *replaySource {
	t.Helper()
	var buf bytes.Buffer
	for _, tk := range ticks {
		// tk.Payload is [N=1][msgType][msgLen][body...]; the on-disk
		// record drops the leading N byte and appends receiveTime.
		buf.Write(tk.Payload[1:])
		buf.Write(uint64LE(tk.ReceiveTime))
	}
	return &replaySource{reader: newTickFileReader(&buf)}
}

func tradeTick(receiveTime uint64, symbol string) Tick {
	sub := buildTradeSubMessage(symbol, 0, 0, 1, 1, 1, 1, "")
	payload := append([]byte{1}, sub...)
	return Tick{ReceiveTime: receiveTime, Payload: payload}
}

func TestReplayMergeOrdersAcrossSources(t *testing.T) {
	registry := newSubscriptionRegistry()
	registry.add(lobbyChannel, false)

	var order []string
	e := newReplayEngine(registry, false, false, func(tr Trade) { order = append(order, tr.Symbol) }, nil)

	srcA := sourceFromTicks(t, []Tick{tradeTick(10, "a"), tradeTick(30, "c")})
	srcB := sourceFromTicks(t, []Tick{tradeTick(20, "b"), tradeTick(25, "d")})

	if err := e.run([]*replaySource{srcA, srcB}, false); err != nil {
		t.Fatal(err)
	}

	want := []string{"a", "b", "d", "c"}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestReplayMergeTiesBreakByFileIndex(t *testing.T) {
	registry := newSubscriptionRegistry()
	registry.add(lobbyChannel, false)

	var order []string
	e := newReplayEngine(registry, false, false, func(tr Trade) { order = append(order, tr.Symbol) }, nil)

	srcA := sourceFromTicks(t, []Tick{tradeTick(10, "first")})
	srcB := sourceFromTicks(t, []Tick{tradeTick(10, "second")})

	if err := e.run([]*replaySource{srcA, srcB}, false); err != nil {
		t.Fatal(err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected lowest index to win tie, got %v", order)
	}
}

func TestReplayAsIfLivePacesToWallClock(t *testing.T) {
	registry := newSubscriptionRegistry()
	registry.add(lobbyChannel, false)

	e := newReplayEngine(registry, false, false, nil, nil)

	fakeNow := time.Unix(0, 0)
	e.nowFunc = func() time.Time { return fakeNow }
	e.sleep = func(d time.Duration) { fakeNow = fakeNow.Add(d) }

	var timestamps []time.Time
	e.onTrade = func(tr Trade) { timestamps = append(timestamps, fakeNow) }

	first := tradeTick(1_000_000_000, "AAPL")  // t0 = 1s in ns
	second := tradeTick(1_500_000_000, "AAPL") // t0+500ms

	srcA := sourceFromTicks(t, []Tick{first, second})
	start := fakeNow
	if err := e.run([]*replaySource{srcA}, true); err != nil {
		t.Fatal(err)
	}

	if len(timestamps) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(timestamps))
	}
	elapsed := timestamps[1].Sub(start)
	if elapsed != 500*time.Millisecond {
		t.Fatalf("expected 500ms paced gap, got %v", elapsed)
	}
}

func TestReplayTradesOnlyDropsQuotes(t *testing.T) {
	registry := newSubscriptionRegistry()
	registry.add(lobbyChannel, false)

	var quoteCalls int
	e := newReplayEngine(registry, true, false, nil, func(q Quote) { quoteCalls++ })

	sub := buildQuoteSubMessage(msgTypeBid, "AAPL", 0, 0, 1, 1, 1, "")
	payload := append([]byte{1}, sub...)
	e.dispatch(Tick{ReceiveTime: 1, Payload: payload})

	if quoteCalls != 0 {
		t.Fatalf("expected trades-only to drop quotes, got %d calls", quoteCalls)
	}
}

func TestReplayMatchesFiltersBySymbol(t *testing.T) {
	registry := newSubscriptionRegistry()
	registry.add("AAPL", false)

	var got []string
	e := newReplayEngine(registry, false, false, func(tr Trade) { got = append(got, tr.Symbol) }, nil)

	e.dispatch(tradeTick(1, "AAPL"))
	e.dispatch(tradeTick(2, "MSFT"))

	if len(got) != 1 || got[0] != "AAPL" {
		t.Fatalf("expected only AAPL to pass the filter, got %v", got)
	}
}
