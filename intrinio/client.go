// Package intrinio implements a client library for a vendor-operated
// real-time equities market-data service: authenticated WebSocket session
// management with self-healing reconnect, a binary trade/quote frame
// codec, and a replay mode that merges per-subsource tick files into a
// single time-ordered stream.
package intrinio

import (
	"context"
	"fmt"
	"strings"

	"github.com/intrinio/equities-feed-go/config"
	"github.com/intrinio/equities-feed-go/logger"
)

// Client is the library's public entry point. Construct with New, which
// starts a live session immediately; in replay mode New only prepares the
// replay engine and RunReplay performs the run.
type Client struct {
	session *sessionController
	replay  *replayEngine

	log     *logger.Log
	stopped bool
}

// New constructs and starts a client. onTrade is required; a nil onQuote
// implies tradesOnly=true for the client-wide default. When cfg.ReplayDate
// is set the client runs in replay mode instead of opening a live session.
func New(accessKey string, onTrade TradeHandler, onQuote QuoteHandler, cfg config.Config) (*Client, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("intrinio: accessKey is required")
	}
	if onTrade == nil {
		return nil, fmt.Errorf("intrinio: onTrade callback is required")
	}

	tradesOnly := cfg.TradesOnly || onQuote == nil

	c := &Client{log: logger.GetLogger()}

	if cfg.ReplayDate != "" {
		registry := newSubscriptionRegistry()
		c.replay = newReplayEngine(registry, tradesOnly, cfg.ReplayDeleteFileWhenDone, onTrade, onQuote)
		return c, nil
	}

	session := newSessionController(sessionConfig{
		Provider:    Provider(cfg.Provider),
		IPAddress:   cfg.IPAddress,
		AccessKey:   accessKey,
		IsPublicKey: cfg.IsPublicKey,
		Delayed:     cfg.Delayed,
		TradesOnly:  tradesOnly,
		OnTrade:     onTrade,
		OnQuote:     onQuote,
	})
	if err := session.start(context.Background()); err != nil {
		return nil, fmt.Errorf("intrinio: starting session: %w", err)
	}

	c.session = session
	return c, nil
}

// Join subscribes to one or more channels, waiting for the session to
// reach Ready. symbols may be a single channel or several; $lobby selects
// the firehose. Idempotent per channel: the first call's tradesOnly flag
// wins.
func (c *Client) Join(ctx context.Context, symbols []string, tradesOnly bool) error {
	if c.replay != nil {
		for _, s := range symbols {
			if err := c.replay.registry.add(s, tradesOnly); err != nil {
				return err
			}
		}
		return nil
	}
	return c.session.join(ctx, symbols, tradesOnly)
}

// Leave unsubscribes from the given channels, or every channel when
// symbols is empty.
func (c *Client) Leave(symbols []string) error {
	if c.replay != nil {
		if len(symbols) == 0 {
			c.replay.registry.removeAll()
			return nil
		}
		for _, s := range symbols {
			c.replay.registry.remove(s)
		}
		return nil
	}
	return c.session.leave(symbols)
}

// Stop leaves all channels, drains, and closes the session with code
// 1000. Must be called exactly once. A replay client has nothing live to
// stop; Stop is a no-op other than marking the client stopped.
func (c *Client) Stop() error {
	if c.stopped {
		return fmt.Errorf("intrinio: Stop called more than once")
	}
	c.stopped = true
	if c.replay != nil {
		return nil
	}
	return c.session.stop()
}

// TotalMsgCount returns the count of inbound WebSocket frames received
// (not sub-messages).
func (c *Client) TotalMsgCount() uint64 {
	if c.session == nil {
		return 0
	}
	return c.session.totalMsgCount()
}

// RunReplay downloads the tick files for the given subsources and date,
// merges them in time order, and dispatches through the same codec and
// subscription filter as a live session. It blocks until the merge drains
// or ctx is cancelled. Only valid when the client was constructed with a
// non-empty ReplayDate.
func (c *Client) RunReplay(ctx context.Context, accessKey string, subsources []Subsource, date string, asIfLive bool) error {
	if c.replay == nil {
		return fmt.Errorf("intrinio: RunReplay called on a non-replay client")
	}

	sources := make([]*replaySource, 0, len(subsources))
	for _, ss := range subsources {
		info, err := fetchReplayFileInfo(ss, date, accessKey)
		if err != nil {
			return err
		}
		path, err := downloadReplayFile(info.URL, sanitizeFileComponent(info.Name))
		if err != nil {
			return err
		}
		f, err := openTickFile(path)
		if err != nil {
			return err
		}
		sources = append(sources, &replaySource{reader: newTickFileReader(f), path: path, closer: f})
	}

	done := make(chan error, 1)
	go func() { done <- c.replay.run(sources, asIfLive) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func sanitizeFileComponent(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
