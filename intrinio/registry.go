package intrinio

import (
	"fmt"
	"sync"

	"github.com/intrinio/equities-feed-go/logger"
)

// SubscriptionEntry is a single (channel, tradesOnly) pair as stored in the
// registry.
type SubscriptionEntry struct {
	Channel    string
	TradesOnly bool
}

// subscriptionRegistry is the single source of truth for the desired set
// of channels. It is replayed on reconnect and is safe for concurrent use.
type subscriptionRegistry struct {
	mu      sync.Mutex
	entries map[string]bool // channel -> tradesOnly
	order   []string        // insertion order, for stable snapshot/replay
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{entries: make(map[string]bool)}
}

// add registers channel with the given tradesOnly flag. Idempotent: the
// first write wins on tradesOnly. Rejects empty channels or channels over
// maxChannelLength (advisory v1 limit, enforced only as a safety net).
func (r *subscriptionRegistry) add(channel string, tradesOnly bool) error {
	if channel == "" {
		return fmt.Errorf("intrinio: channel must not be empty")
	}
	if len(channel) > maxChannelLength {
		return fmt.Errorf("intrinio: channel %q exceeds %d characters", channel, maxChannelLength)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[channel]; exists {
		return nil
	}

	if _, lobbyPresent := r.entries[lobbyChannel]; lobbyPresent && channel != lobbyChannel {
		logger.GetLogger().WithComponent("registry").WithField("channel", channel).
			Warn("adding channel after firehose subscription is already present")
	}

	r.entries[channel] = tradesOnly
	r.order = append(r.order, channel)
	return nil
}

// remove unregisters channel. Idempotent.
func (r *subscriptionRegistry) remove(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[channel]; !exists {
		return
	}
	delete(r.entries, channel)
	for i, c := range r.order {
		if c == channel {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// removeAll clears every entry and returns the channels that were present,
// in registration order, for use by stop()'s leave-all.
func (r *subscriptionRegistry) removeAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]string(nil), r.order...)
	r.entries = make(map[string]bool)
	r.order = nil
	return out
}

// snapshot returns a stable enumeration in registration order, used to
// replay subscriptions on reconnect.
func (r *subscriptionRegistry) snapshot() []SubscriptionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SubscriptionEntry, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, SubscriptionEntry{Channel: c, TradesOnly: r.entries[c]})
	}
	return out
}

// matches reports whether the registry would accept symbol: true if the
// firehose channel is present or symbol is registered exactly. Used only
// by replay to gate callbacks; live mode delegates filtering to the server.
func (r *subscriptionRegistry) matches(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[lobbyChannel]; ok {
		return true
	}
	_, ok := r.entries[symbol]
	return ok
}

// tradesOnlyFor reports the effective trades-only policy for symbol: the OR
// of the per-channel flag and clientDefault. If symbol is not registered,
// the $lobby entry's flag is used in its place when present; otherwise
// clientDefault alone decides.
func (r *subscriptionRegistry) tradesOnlyFor(symbol string, clientDefault bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if flag, ok := r.entries[symbol]; ok {
		return flag || clientDefault
	}
	if flag, ok := r.entries[lobbyChannel]; ok {
		return flag || clientDefault
	}
	return clientDefault
}
