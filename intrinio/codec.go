package intrinio

import (
	"github.com/intrinio/equities-feed-go/logger"
)

// msgType identifies the kind of a decoded sub-message.
type msgType uint8

const (
	msgTypeTrade msgType = 0
	msgTypeAsk   msgType = 1
	msgTypeBid   msgType = 2
)

// decodeFrame parses one inbound WebSocket binary message into a sequence
// of trade/quote records, dispatching each to onTrade or onQuote in strict
// sub-message order. Unknown msgType values are logged and skipped; the
// cursor still advances by msgLen so the remainder parses.
func decodeFrame(frame []byte, onTrade TradeHandler, onQuote QuoteHandler) {
	if len(frame) == 0 {
		return
	}

	log := logger.GetLogger().WithComponent("codec")
	n := int(frame[0])
	cursor := 1

	for i := 0; i < n; i++ {
		if cursor+3 > len(frame) {
			log.WithField("subMessageIndex", i).Warn("frame truncated before sub-message header")
			return
		}

		mt := msgType(frame[cursor])
		msgLen := int(frame[cursor+1])
		symLen := int(frame[cursor+2])
		end := cursor + msgLen

		if msgLen < 3 || end > len(frame) {
			log.WithFields(logger.Fields{"msgLen": msgLen, "cursor": cursor}).Warn("sub-message length exceeds frame bounds")
			return
		}

		sub := frame[cursor:end]
		symbol := readAscii(sub, 3, 3+symLen)

		switch mt {
		case msgTypeTrade:
			if onTrade != nil {
				onTrade(decodeTrade(sub, symbol, symLen))
			}
		case msgTypeAsk:
			if onQuote != nil {
				onQuote(decodeQuote(sub, symbol, symLen, QuoteTypeAsk))
			}
		case msgTypeBid:
			if onQuote != nil {
				onQuote(decodeQuote(sub, symbol, symLen, QuoteTypeBid))
			}
		default:
			log.WithField("msgType", mt).Warn("unknown sub-message type; skipping")
		}

		cursor = end
	}
}

// decodeTrade decodes the v2 trade suffix that follows the symbol field.
func decodeTrade(sub []byte, symbol string, symLen int) Trade {
	subProvider := subProviderFromByte(byteAt(sub, 3+symLen))
	marketCenter := readUtf16BE(sub, 4+symLen, 6+symLen)
	price := readPrice(sub, 6+symLen)
	size := readUint32(sub, 10+symLen)
	timestamp := readUint64(sub, 14+symLen)
	totalVolume := readUint32(sub, 22+symLen)
	condLen := int(byteAt(sub, 26+symLen))
	condition := readAscii(sub, 27+symLen, 27+symLen+condLen)

	return Trade{
		Symbol:       symbol,
		Price:        price,
		Size:         size,
		Timestamp:    timestamp,
		TotalVolume:  totalVolume,
		SubProvider:  subProvider,
		MarketCenter: marketCenter,
		Condition:    condition,
	}
}

// decodeQuote decodes the v2 quote suffix, identical to trade through the
// timestamp field but with no totalVolume.
func decodeQuote(sub []byte, symbol string, symLen int, qt QuoteType) Quote {
	subProvider := subProviderFromByte(byteAt(sub, 3+symLen))
	marketCenter := readUtf16BE(sub, 4+symLen, 6+symLen)
	price := readPrice(sub, 6+symLen)
	size := readUint32(sub, 10+symLen)
	timestamp := readUint64(sub, 14+symLen)
	condLen := int(byteAt(sub, 22+symLen))
	condition := readAscii(sub, 23+symLen, 23+symLen+condLen)

	return Quote{
		Type:         qt,
		Symbol:       symbol,
		Price:        price,
		Size:         size,
		Timestamp:    timestamp,
		SubProvider:  subProvider,
		MarketCenter: marketCenter,
		Condition:    condition,
	}
}

func byteAt(b []byte, i int) byte {
	if i < 0 || i >= len(b) {
		return 0
	}
	return b[i]
}

const (
	opcodeJoin  byte = 0x4A
	opcodeLeave byte = 0x4C
)

// channelWireToken returns the string a channel name is sent as in a
// control frame; $lobby is encoded as $FIREHOSE, everything else verbatim.
func channelWireToken(channel string) string {
	if channel == lobbyChannel {
		return firehoseWireToken
	}
	return channel
}

// encodeJoin builds a join control frame: opcode, trades-only flag byte,
// then the channel's wire token as ASCII.
func encodeJoin(channel string, tradesOnly bool) []byte {
	token := channelWireToken(channel)
	out := make([]byte, 2+len(token))
	out[0] = opcodeJoin
	if tradesOnly {
		out[1] = 1
	}
	writeAscii(out, token, 2)
	return out
}

// encodeLeave builds a leave control frame: opcode then the channel's wire
// token as ASCII, with no flag byte.
func encodeLeave(channel string) []byte {
	token := channelWireToken(channel)
	out := make([]byte, 1+len(token))
	out[0] = opcodeLeave
	writeAscii(out, token, 1)
	return out
}

// heartbeatFrame is the empty binary payload sent as an application-level
// keepalive while the session is ready.
func heartbeatFrame() []byte {
	return []byte{}
}
