// Package stream consumes the filtered feed and publishes admitted items to
// chat.
//
// The Ingestor keeps one logical consumption of the feed alive over an
// unreliable transport: any transport fault (dial error, bad status, timeout,
// premature close) is logged and followed by a new connection. Lines are
// handled strictly in arrival order on the Run goroutine, which is the only
// owner of the dedup cache and token bucket.
package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/tweetrelay/dedup"
	"github.com/onnwee/tweetrelay/telemetry"
	"github.com/onnwee/tweetrelay/twitterapi"
)

// RequestTimeout bounds a single stream request, body included. Expiry is
// handled like any other transport fault.
const RequestTimeout = 600 * time.Second

// Publisher is the Outbound Channel.
type Publisher interface {
	Send(ctx context.Context, text string) error
}

// Journal receives published items. Append must not block.
type Journal interface {
	Append(id, text string, at time.Time)
}

// Options configures an Ingestor.
type Options struct {
	URL   string
	Token string
	// HTTPClient overrides the default client (private transport, bearer
	// auth, RequestTimeout).
	HTTPClient *http.Client

	Out     Publisher
	Journal Journal // optional

	RatePerMinute float64
	ShowURL       bool

	// Backoff enables exponential delays between reconnects. Without it the
	// ingestor reconnects immediately, forever.
	Backoff bool

	Now func() time.Time
}

// Stats is a point-in-time view of the ingestor for the status endpoint.
type Stats struct {
	Connected      bool       `json:"connected"`
	Session        string     `json:"session,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	Connects       uint64     `json:"connects"`
	Faults         uint64     `json:"faults"`
	LastFault      string     `json:"last_fault,omitempty"`
	LastFaultClass string     `json:"last_fault_class,omitempty"`
	LastFaultAt    *time.Time `json:"last_fault_at,omitempty"`
	Lines          uint64     `json:"lines"`
	DecodeFailures uint64     `json:"decode_failures"`
	Published      uint64     `json:"published"`
	Duplicates     uint64     `json:"duplicates"`
	RateLimited    uint64     `json:"rate_limited"`
	DedupEntries   int        `json:"dedup_entries"`
	Tokens         float64    `json:"tokens"`
}

// Ingestor owns the feed connection and the gate.
type Ingestor struct {
	url     string
	client  *http.Client
	out     Publisher
	journal Journal
	showURL bool
	backoff bool
	now     func() time.Time
	gate    *Gate

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}

	mu    sync.Mutex
	stats Stats
}

// New returns an ingestor with a fresh gate.
func New(opts Options) *Ingestor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := opts.HTTPClient
	if client == nil {
		client = twitterapi.NewBearerClient(opts.Token, RequestTimeout)
	}
	return &Ingestor{
		url:     opts.URL,
		client:  client,
		out:     opts.Out,
		journal: opts.Journal,
		showURL: opts.ShowURL,
		backoff: opts.Backoff,
		now:     now,
		gate:    NewGate(opts.RatePerMinute, dedup.DefaultWindow, now()),
		done:    make(chan struct{}),
	}
}

// Start runs the ingestor on its own goroutine. Only the first call has an
// effect; the chat client calls it on every (re)join.
func (in *Ingestor) Start(ctx context.Context) {
	in.startOnce.Do(func() {
		in.started.Store(true)
		go func() {
			defer close(in.done)
			in.Run(ctx)
		}()
	})
}

// Started reports whether Start has launched the ingestor. Done is only
// ever closed once Started is true.
func (in *Ingestor) Started() bool { return in.started.Load() }

// Done is closed when a Run started by Start returns.
func (in *Ingestor) Done() <-chan struct{} { return in.done }

// Stats returns a copy of the current counters.
func (in *Ingestor) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}

// Run consumes the feed until ctx is canceled, reconnecting after every fault.
func (in *Ingestor) Run(ctx context.Context) {
	var bo *backoff.ExponentialBackOff
	if in.backoff {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Second
		bo.MaxInterval = 5 * time.Minute
	}
	slog.Info("stream ingestor started", slog.String("url", in.url), slog.Bool("backoff", in.backoff), slog.String("component", "stream"))
	for {
		lines, err := in.session(ctx)
		if ctx.Err() != nil {
			slog.Info("stream ingestor stopped", slog.String("component", "stream"))
			return
		}
		class := ClassifyFault(err)
		in.noteFault(err, class)

		log := slog.Default().With(slog.Any("err", err), slog.String("class", class.String()), slog.Int("lines", lines), slog.String("component", "stream"))
		if class == FaultFatal {
			log.Error("stream rejected credential; reconnecting")
		} else {
			log.Warn("stream fault; reconnecting")
		}

		if bo == nil {
			continue
		}
		if lines > 0 {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session runs one connection and returns the number of complete lines read
// and the fault that ended it.
func (in *Ingestor) session(ctx context.Context) (int, error) {
	sessionID := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, sessionID)
	ctx, span := telemetry.StartSpan(ctx, "stream", "stream.session", attribute.String("stream.url", in.url))
	defer span.End()

	telemetry.Inc(telemetry.StreamConnects)
	in.mu.Lock()
	in.stats.Connects++
	in.stats.Session = sessionID
	in.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.url, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Debug("failed to close stream body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		telemetry.RecordError(span, err)
		return 0, err
	}

	started := time.Now()
	in.setConnected(true, started)
	telemetry.LoggerWithCorr(ctx).Info("stream connected", slog.String("component", "stream"))
	defer func() {
		in.setConnected(false, time.Time{})
		if telemetry.StreamSessionDuration != nil {
			telemetry.StreamSessionDuration.Observe(time.Since(started).Seconds())
		}
	}()

	r := bufio.NewReader(resp.Body)
	lines := 0
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			// A trailing fragment without a newline is not a complete line.
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			}
			telemetry.RecordError(span, err)
			return lines, err
		}
		lines++
		in.handleLine(ctx, line)
	}
}

// handleLine runs one complete feed line through decode, gate and publish.
// It must only be called from the Run goroutine.
func (in *Ingestor) handleLine(ctx context.Context, line []byte) {
	telemetry.Inc(telemetry.FeedLines)
	in.mu.Lock()
	in.stats.Lines++
	in.mu.Unlock()

	if IsKeepAlive(line) {
		return
	}
	item, err := DecodeItem(line)
	if err != nil {
		telemetry.Inc(telemetry.FeedDecodeFailures)
		in.mu.Lock()
		in.stats.DecodeFailures++
		in.mu.Unlock()
		slog.Debug("skipping undecodable stream line", slog.Any("err", err), slog.String("component", "stream"))
		return
	}

	now := in.now()
	decision := in.gate.Admit(item.Text, now)
	switch decision {
	case Duplicate:
		telemetry.Inc(telemetry.ItemsDuplicate)
	case RateLimited:
		telemetry.Inc(telemetry.ItemsRateLimited)
		slog.Debug("item dropped by rate limit", slog.String("id", item.ID), slog.String("component", "stream"))
	case Publish:
		if err := in.out.Send(ctx, Format(item, in.showURL)); err != nil {
			slog.Warn("publish failed", slog.Any("err", err), slog.String("id", item.ID), slog.String("component", "stream"))
		} else {
			telemetry.Inc(telemetry.ItemsPublished)
			if in.journal != nil {
				in.journal.Append(item.ID, item.Text, now)
			}
		}
	}
	telemetry.SetGateState(in.gate.Entries(), in.gate.Tokens())

	in.mu.Lock()
	switch decision {
	case Duplicate:
		in.stats.Duplicates++
	case RateLimited:
		in.stats.RateLimited++
	case Publish:
		in.stats.Published++
	}
	in.stats.DedupEntries = in.gate.Entries()
	in.stats.Tokens = in.gate.Tokens()
	in.mu.Unlock()
}

func (in *Ingestor) setConnected(up bool, since time.Time) {
	telemetry.UpdateStreamGauge(up)
	in.mu.Lock()
	in.stats.Connected = up
	in.stats.ConnectedSince = nil
	if up {
		in.stats.ConnectedSince = &since
	}
	in.mu.Unlock()
}

func (in *Ingestor) noteFault(err error, class FaultClass) {
	telemetry.IncFault(class.String())
	in.mu.Lock()
	in.stats.Faults++
	if err != nil {
		in.stats.LastFault = err.Error()
	}
	in.stats.LastFaultClass = class.String()
	at := in.now()
	in.stats.LastFaultAt = &at
	in.mu.Unlock()
}
