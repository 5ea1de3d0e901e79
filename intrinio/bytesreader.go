package intrinio

import (
	"math"
	"time"
	"unicode/utf16"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/intrinio/equities-feed-go/logger"
)

// outOfRangeLogLimiter caps how often malformed-frame warnings reach the
// log: a single bad producer on a firehose subscription can otherwise
// generate one warning per sub-message at wire speed.
var outOfRangeLogLimiter = rate.NewLimiter(rate.Every(time.Second), 5)

// readUint32 decodes a little-endian unsigned 32-bit integer starting at
// off. A range that exceeds the buffer logs a diagnostic and returns 0; the
// caller must treat that as a malformed frame.
func readUint32(b []byte, off int) uint32 {
	if off < 0 || off+4 > len(b) {
		logOutOfRange("readUint32", off, 4, len(b))
		return 0
	}
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

// readInt32 decodes a little-endian two's-complement 32-bit integer.
func readInt32(b []byte, off int) int32 {
	return int32(readUint32(b, off))
}

// readUint64 decodes a little-endian unsigned 64-bit integer, preserving
// values above 2^53.
func readUint64(b []byte, off int) uint64 {
	if off < 0 || off+8 > len(b) {
		logOutOfRange("readUint64", off, 8, len(b))
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[off+i]) << (8 * i)
	}
	return v
}

// readFloat32 decodes an IEEE-754 binary32 little-endian value, rounds it
// to four fractional digits, and clamps negative results to zero. The wire
// carries server-side rounding noise; the library contract is a
// non-negative price.
func readFloat32(b []byte, off int) float64 {
	if off < 0 || off+4 > len(b) {
		logOutOfRange("readFloat32", off, 4, len(b))
		return 0
	}
	bits := readUint32(b, off)
	f := float64(math.Float32frombits(bits))
	f = math.Round(f*10000) / 10000
	if f < 0 {
		return 0
	}
	return f
}

// readPrice decodes the same IEEE-754 binary32 field as readFloat32 but
// returns a decimal.Decimal fixed to four places, the representation used
// on Trade and Quote so downstream consumers never reintroduce binary
// float rounding error when summing or comparing prices.
func readPrice(b []byte, off int) decimal.Decimal {
	return decimal.NewFromFloat(readFloat32(b, off)).Truncate(4)
}

// readAscii decodes b[start:end] as UTF-8. The wire guarantees ASCII in
// this position; UTF-8 decoding is a safe superset.
func readAscii(b []byte, start, end int) string {
	if start < 0 || end > len(b) || start > end {
		logOutOfRange("readAscii", start, end-start, len(b))
		return ""
	}
	return string(b[start:end])
}

// readUtf16BE decodes b[start:end] as UTF-16 big-endian, used for the
// two-byte marketCenter code unit.
func readUtf16BE(b []byte, start, end int) rune {
	if start < 0 || end > len(b) || start > end || (end-start)%2 != 0 {
		logOutOfRange("readUtf16BE", start, end-start, len(b))
		return 0
	}
	units := make([]uint16, 0, (end-start)/2)
	for i := start; i < end; i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	decoded := utf16.Decode(units)
	if len(decoded) == 0 {
		return 0
	}
	return decoded[0]
}

// writeAscii writes the UTF-8 bytes of s into dst starting at off,
// truncating if dst does not have sufficient capacity.
func writeAscii(dst []byte, s string, off int) int {
	n := copy(dst[off:], s)
	return off + n
}

func logOutOfRange(fn string, off, width, bufLen int) {
	if !outOfRangeLogLimiter.Allow() {
		return
	}
	logger.GetLogger().WithComponent("bytesreader").WithFields(logger.Fields{
		"fn":     fn,
		"offset": off,
		"width":  width,
		"bufLen": bufLen,
	}).Warn("read out of range; returning zero value")
}
