package intrinio

import (
	"testing"

	"github.com/intrinio/equities-feed-go/config"
)

func TestNewRequiresAccessKey(t *testing.T) {
	_, err := New("", func(Trade) {}, nil, config.Default())
	if err == nil {
		t.Fatal("expected error for empty access key")
	}
}

func TestNewRequiresOnTrade(t *testing.T) {
	_, err := New("key", nil, nil, config.Default())
	if err == nil {
		t.Fatal("expected error for nil onTrade")
	}
}

func TestNewReplayModeSkipsLiveSession(t *testing.T) {
	cfg := config.Default()
	cfg.ReplayDate = "2026-08-03"

	c, err := New("key", func(Trade) {}, func(Quote) {}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c.replay == nil {
		t.Fatal("expected replay engine to be constructed")
	}
	if c.session != nil {
		t.Fatal("expected no live session in replay mode")
	}
}

func TestNewReplayNoOnQuoteDefaultsTradesOnly(t *testing.T) {
	cfg := config.Default()
	cfg.ReplayDate = "2026-08-03"

	c, err := New("key", func(Trade) {}, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !c.replay.tradesOnly {
		t.Fatal("expected tradesOnly default when onQuote is nil")
	}
}

func TestStopTwiceReturnsError(t *testing.T) {
	cfg := config.Default()
	cfg.ReplayDate = "2026-08-03"
	c, err := New("key", func(Trade) {}, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err == nil {
		t.Fatal("expected error on second Stop call")
	}
}

func TestTotalMsgCountZeroWithoutSession(t *testing.T) {
	cfg := config.Default()
	cfg.ReplayDate = "2026-08-03"
	c, _ := New("key", func(Trade) {}, nil, cfg)

	if got := c.TotalMsgCount(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestSanitizeFileComponent(t *testing.T) {
	got := sanitizeFileComponent("2026-08-03/iex file.bin")
	for _, r := range got {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("unexpected character %q in sanitized name %q", r, got)
		}
	}
}
