package intrinio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Provider selects the auth/WebSocket host pair and field interpretation
// used by the session controller. It mirrors config.Provider so callers of
// this package do not need to import the config package directly.
type Provider string

const (
	ProviderRealtime    Provider = "REALTIME"
	ProviderDelayedSIP  Provider = "DELAYED_SIP"
	ProviderNasdaqBasic Provider = "NASDAQ_BASIC"
	ProviderCboeOne     Provider = "CBOE_ONE"
	ProviderManual      Provider = "MANUAL"
)

// SubProvider identifies the origin feed within a grouped provider. Unknown
// wire values map to SubProviderNone.
type SubProvider uint8

const (
	SubProviderNone SubProvider = iota
	SubProviderCtaA
	SubProviderCtaB
	SubProviderUTP
	SubProviderOTC
	SubProviderNasdaqBasic
	SubProviderIEX
	SubProviderCboeOne
)

func (s SubProvider) String() string {
	switch s {
	case SubProviderCtaA:
		return "CTA_A"
	case SubProviderCtaB:
		return "CTA_B"
	case SubProviderUTP:
		return "UTP"
	case SubProviderOTC:
		return "OTC"
	case SubProviderNasdaqBasic:
		return "NASDAQ_BASIC"
	case SubProviderIEX:
		return "IEX"
	case SubProviderCboeOne:
		return "CBOE_ONE"
	default:
		return "NONE"
	}
}

// subProviderFromByte maps a raw wire value to the enum, defaulting unknown
// values to SubProviderNone per the data model.
func subProviderFromByte(b byte) SubProvider {
	if b <= byte(SubProviderCboeOne) {
		return SubProvider(b)
	}
	return SubProviderNone
}

// QuoteType distinguishes bid and ask updates; trades carry no QuoteType.
type QuoteType string

const (
	QuoteTypeAsk QuoteType = "Ask"
	QuoteTypeBid QuoteType = "Bid"
)

// Trade is a single executed-trade record decoded from the wire.
type Trade struct {
	Symbol       string
	Price        decimal.Decimal
	Size         uint32
	Timestamp    uint64 // nanoseconds since Unix epoch
	TotalVolume  uint32
	SubProvider  SubProvider
	MarketCenter rune
	Condition    string
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade{%s price=%s size=%d ts=%d vol=%d sub=%s cond=%q}",
		t.Symbol, t.Price.StringFixed(4), t.Size, t.Timestamp, t.TotalVolume, t.SubProvider, t.Condition)
}

// Quote is a single bid/ask update decoded from the wire.
type Quote struct {
	Type         QuoteType
	Symbol       string
	Price        decimal.Decimal
	Size         uint32
	Timestamp    uint64
	SubProvider  SubProvider
	MarketCenter rune
	Condition    string
}

func (q Quote) String() string {
	return fmt.Sprintf("Quote{%s %s price=%s size=%d ts=%d sub=%s cond=%q}",
		q.Type, q.Symbol, q.Price.StringFixed(4), q.Size, q.Timestamp, q.SubProvider, q.Condition)
}

// TradeHandler receives every decoded trade in strict frame / sub-message
// order. It runs on the library's dispatch goroutine and must return
// quickly.
type TradeHandler func(Trade)

// QuoteHandler receives every decoded bid/ask update, same ordering
// guarantee as TradeHandler.
type QuoteHandler func(Quote)

// Tick is a replay-only (receiveTime, payload) pair reconstructed from a
// binary tick file. payload is a ready-to-parse single-message frame.
type Tick struct {
	ReceiveTime uint64
	Payload     []byte
}

// lobbyChannel is the reserved channel name meaning "all symbols".
const lobbyChannel = "$lobby"

// firehoseWireToken is the wire encoding of lobbyChannel in control frames.
const firehoseWireToken = "$FIREHOSE"

const maxChannelLength = 20
