// Package insight fetches the marketing analysis of a website and renders it
// as an assistant message. It also probes whether a website answer resolves.
package insight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/metrics"
)

var (
	ErrNoAnalyzer  = errors.New("no website analyzer configured")
	ErrUnreachable = errors.New("website unreachable")
)

const (
	defaultTimeout      = 20 * time.Second
	defaultProbeTimeout = 10 * time.Second
	probeUserAgent      = "BambooOnboardingBot/1.0 (+https://bamboo.ai)"
)

// Analyzer produces the analysis payload text for a normalized website URL.
type Analyzer interface {
	Analyze(ctx context.Context, website string) (string, error)
}

// Options tunes a Fetcher. Zero values pick the defaults.
type Options struct {
	Timeout      time.Duration
	ProbeTimeout time.Duration
	// Rate limits outbound analysis calls per second; zero disables limiting.
	Rate  float64
	Burst int
	// AllowPrivateNetworks lets probes reach loopback and private addresses.
	AllowPrivateNetworks bool
	Logger               *zap.Logger
	Metrics              *metrics.Metrics
}

// Fetcher bounds analysis calls with a timeout and converts every failure into
// the fallback result, so callers never see an error from Fetch.
type Fetcher struct {
	analyzer     Analyzer
	timeout      time.Duration
	probeTimeout time.Duration
	limiter      *rate.Limiter
	probeClient  *http.Client
	log          *zap.Logger
	metrics      *metrics.Metrics
}

// NewFetcher creates a Fetcher. A nil analyzer makes every Fetch fail over to the fallback text.
func NewFetcher(analyzer Analyzer, opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}

	limit := rate.Inf
	burst := opts.Burst
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
		if burst < 1 {
			burst = 1
		}
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Fetcher{
		analyzer:     analyzer,
		timeout:      timeout,
		probeTimeout: probeTimeout,
		limiter:      rate.NewLimiter(limit, burst),
		probeClient:  newProbeClient(opts.AllowPrivateNetworks),
		log:          log.Named("insight"),
		metrics:      opts.Metrics,
	}
}

// Fetch analyzes the website and classifies the payload.
func (f *Fetcher) Fetch(ctx context.Context, website string) Result {
	result := f.fetch(ctx, website)
	f.metrics.RecordInsight(result.Kind.String())
	if result.Kind == KindFailed {
		f.log.Warn("website analysis unavailable, using fallback",
			zap.String("website", website), zap.Error(result.Err))
	}
	return result
}

func (f *Fetcher) fetch(ctx context.Context, website string) Result {
	if f.analyzer == nil {
		return Failed(ErrNoAnalyzer)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return Failed(fmt.Errorf("wait for analysis slot: %w", err))
	}

	data, err := f.analyzer.Analyze(ctx, website)
	if err != nil {
		return Failed(err)
	}
	return Classify(data)
}

// Probe reports whether the website answers with a non-error HTTP status.
// Network failures, timeouts and addresses inside private networks are
// reported as ErrUnreachable.
func (f *Fetcher) Probe(ctx context.Context, website string) error {
	err := f.probe(ctx, website)
	f.metrics.RecordProbe(err)
	if err != nil {
		f.log.Info("website probe failed", zap.String("website", website), zap.Error(err))
	}
	return err
}

func (f *Fetcher) probe(ctx context.Context, website string) error {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, website, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	req.Header.Set("User-Agent", probeUserAgent)

	resp, err := f.probeClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}
