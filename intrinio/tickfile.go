package intrinio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTruncatedRecord is returned when a tick file ends mid-record rather
// than exactly at a record boundary.
var ErrTruncatedRecord = errors.New("intrinio: truncated tick record at end of file")

// maxTickPayload bounds the synthesized single-message frame buffer; it
// must be large enough for the largest legal trade/quote sub-message
// (header + symbol + fixed suffix + condition string).
const maxTickPayload = 1 + 255

// tickFileReader produces a lazy sequence of Tick values from one binary
// tick file: an unterminated concatenation of
// [msgType u8][msgLen u8][body (msgLen-2) bytes][receiveTime u64 LE].
type tickFileReader struct {
	r io.Reader
}

func newTickFileReader(r io.Reader) *tickFileReader {
	return &tickFileReader{r: r}
}

// next returns the next Tick, io.EOF at a clean record boundary, or
// ErrTruncatedRecord if the file ends mid-record.
func (t *tickFileReader) next() (Tick, error) {
	header := make([]byte, 2)
	n, err := io.ReadFull(t.r, header)
	if err == io.EOF && n == 0 {
		return Tick{}, io.EOF
	}
	if err != nil {
		return Tick{}, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}

	msgLen := int(header[1])
	if msgLen < 2 {
		return Tick{}, fmt.Errorf("intrinio: invalid tick record msgLen %d", msgLen)
	}
	bodyLen := msgLen - 2

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(t.r, body); err != nil {
		return Tick{}, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}

	tsBytes := make([]byte, 8)
	if _, err := io.ReadFull(t.r, tsBytes); err != nil {
		return Tick{}, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}
	receiveTime := readUint64(tsBytes, 0)

	payload := make([]byte, maxTickPayload)
	payload[0] = 1 // N=1: a single synthesized sub-message
	payload[1] = header[0]
	payload[2] = header[1]
	copy(payload[3:], body)
	payload = payload[:1+msgLen]

	return Tick{ReceiveTime: receiveTime, Payload: payload}, nil
}

// openTickFile opens a downloaded tick file by path for the replay engine.
func openTickFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("intrinio: opening tick file: %w", err)
	}
	return f, nil
}
