package intrinio

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/intrinio/equities-feed-go/logger"
)

// Subsource selects which per-subsource binary tick file a replay pulls
// from the vendor's securities/replay API.
type Subsource string

const (
	SubsourceIEX            Subsource = "iex"
	SubsourceUTPDelayed     Subsource = "utp_delayed"
	SubsourceCtaADelayed    Subsource = "cta_a_delayed"
	SubsourceCtaBDelayed    Subsource = "cta_b_delayed"
	SubsourceOTCDelayed     Subsource = "otc_delayed"
	SubsourceNasdaqBasicRep Subsource = "nasdaq_basic"
)

const replayAPIBase = "https://api-v2.intrinio.com/securities/replay"

type replayFileInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// fetchReplayFileInfo asks the replay API which file backs the given
// subsource/date and where to download it from.
func fetchReplayFileInfo(subsource Subsource, date, apiKey string) (replayFileInfo, error) {
	url := fmt.Sprintf("%s?subsource=%s&date=%s&api_key=%s", replayAPIBase, subsource, date, apiKey)

	resp, err := http.Get(url)
	if err != nil {
		return replayFileInfo{}, fmt.Errorf("intrinio: replay file lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return replayFileInfo{}, fmt.Errorf("intrinio: replay file lookup returned status %d", resp.StatusCode)
	}

	var info replayFileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return replayFileInfo{}, fmt.Errorf("intrinio: decoding replay file lookup response: %w", err)
	}
	return info, nil
}

// downloadReplayFile downloads the binary tick file at url into a local
// temp file and returns its path.
func downloadReplayFile(url, name string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("intrinio: downloading replay file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("intrinio: replay file download returned status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "intrinio-replay-"+name+"-*.bin")
	if err != nil {
		return "", fmt.Errorf("intrinio: creating replay temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("intrinio: writing replay temp file: %w", err)
	}
	return f.Name(), nil
}

// replaySource pairs a tick-file iterator with the on-disk path it was
// downloaded to, so the engine can unlink it when replayDeleteFileWhenDone
// is set.
type replaySource struct {
	reader *tickFileReader
	path   string
	closer io.Closer
}

// replayEngine drives the k-way merge across N tick-file iterators,
// optionally pacing output to wall-clock, and dispatches through the same
// decode/filter path as the live session controller.
type replayEngine struct {
	registry       *subscriptionRegistry
	tradesOnly     bool
	onTrade        TradeHandler
	onQuote        QuoteHandler
	deleteWhenDone bool
	log            *logger.Log

	// nowFunc abstracts wall-clock time so pacing tests can substitute a
	// deterministic clock; defaults to time.Now.
	nowFunc func() time.Time
	sleep   func(time.Duration)
}

func newReplayEngine(registry *subscriptionRegistry, tradesOnly, deleteWhenDone bool, onTrade TradeHandler, onQuote QuoteHandler) *replayEngine {
	return &replayEngine{
		registry:       registry,
		tradesOnly:     tradesOnly,
		onTrade:        onTrade,
		onQuote:        onQuote,
		deleteWhenDone: deleteWhenDone,
		log:            logger.GetLogger(),
		nowFunc:        time.Now,
		sleep:          time.Sleep,
	}
}

// run performs the k-way ordered merge of sources keyed by receiveTime,
// optionally pacing to wall-clock, dispatching each merged tick through
// the codec and the subscription filter.
func (e *replayEngine) run(sources []*replaySource, asIfLive bool) error {
	defer e.cleanup(sources)

	n := len(sources)
	next := make([]*Tick, n)
	for i, s := range sources {
		t, err := s.reader.next()
		if err == nil {
			next[i] = &t
		} else if err != io.EOF {
			return fmt.Errorf("intrinio: reading initial tick from source %d: %w", i, err)
		}
	}

	var paceBase time.Time
	var firstReceiveTime uint64
	first := true

	for {
		k := -1
		for i, t := range next {
			if t == nil {
				continue
			}
			if k == -1 || t.ReceiveTime < next[k].ReceiveTime {
				k = i
			}
		}
		if k == -1 {
			return nil
		}

		tick := *next[k]

		if asIfLive {
			if first {
				paceBase = e.nowFunc()
				firstReceiveTime = tick.ReceiveTime
				first = false
			} else {
				target := paceBase.Add(time.Duration(tick.ReceiveTime - firstReceiveTime))
				if wait := target.Sub(e.nowFunc()); wait > 0 {
					e.sleep(wait)
				}
			}
		}

		e.dispatch(tick)

		t, err := sources[k].reader.next()
		if err == nil {
			next[k] = &t
		} else if err == io.EOF {
			next[k] = nil
		} else {
			return fmt.Errorf("intrinio: reading next tick from source %d: %w", k, err)
		}
	}
}

// dispatch parses tick.Payload through the codec and applies the
// subscription filter: trades-only (the client default OR'd with the
// channel's flag) drops quotes; matches() gates by symbol.
func (e *replayEngine) dispatch(tick Tick) {
	decodeFrame(tick.Payload,
		func(tr Trade) {
			if !e.registry.matches(tr.Symbol) {
				return
			}
			if e.onTrade != nil {
				e.onTrade(tr)
			}
		},
		func(q Quote) {
			if e.registry.tradesOnlyFor(q.Symbol, e.tradesOnly) {
				return
			}
			if !e.registry.matches(q.Symbol) {
				return
			}
			if e.onQuote != nil {
				e.onQuote(q)
			}
		},
	)
}

func (e *replayEngine) cleanup(sources []*replaySource) {
	for _, s := range sources {
		if s.closer != nil {
			s.closer.Close()
		}
		if e.deleteWhenDone && s.path != "" {
			if err := os.Remove(s.path); err != nil {
				e.log.WithComponent("replay").WithError(err).WithField("path", s.path).
					Warn("failed to remove downloaded tick file")
			}
		}
	}
}
