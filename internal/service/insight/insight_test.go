package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wantInsight = `Based on my analysis of your website, here's what I think would work for your first campaign:

**Your Business**: D

**Your Products/Services**:
• P1
• P2

**Campaign Objectives**: O1

**Target Audiences**:
1. A1
2. A2

**Recommended Channel Strategy** (in order of priority):
1. C1
2. C2`

func samplePayload() Payload {
	return Payload{
		Description:     "D",
		Products:        []string{"P1", "P2"},
		Objectives:      []string{"O1"},
		Audiences:       []string{"A1", "A2"},
		ChannelPriority: []string{"C1", "C2"},
	}
}

func TestFormatMatchesTemplate(t *testing.T) {
	assert.Equal(t, wantInsight, Format(samplePayload()))
}

func TestFormatJoinsObjectives(t *testing.T) {
	p := samplePayload()
	p.Objectives = []string{"Awareness", "Leads", "Sales"}

	assert.Contains(t, Format(p), "**Campaign Objectives**: Awareness, Leads, Sales\n\n")
}

func TestClassify(t *testing.T) {
	raw, err := json.Marshal(samplePayload())
	require.NoError(t, err)

	structured := Classify(string(raw))
	require.Equal(t, KindStructured, structured.Kind)
	assert.Equal(t, wantInsight, structured.Text())

	text := Classify("Your site sells shoes.")
	require.Equal(t, KindRaw, text.Kind)
	assert.Equal(t, "Your site sells shoes.", text.Text())

	for _, empty := range []string{"", "  ", "null"} {
		res := Classify(empty)
		assert.Equal(t, KindFailed, res.Kind)
		assert.Equal(t, FallbackText, res.Text())
	}

	number := Classify("42")
	assert.Equal(t, KindRaw, number.Kind)
	assert.Equal(t, "42", number.Text())
}

type recordedRequest struct {
	mu      sync.Mutex
	method  string
	path    string
	auth    string
	website string
}

func (r *recordedRequest) snapshot() (method, path, auth, website string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.method, r.path, r.auth, r.website
}

func analysisServer(t *testing.T, status int, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	seen := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		seen.mu.Lock()
		seen.method = r.Method
		seen.path = r.URL.Path
		seen.auth = r.Header.Get("Authorization")
		seen.website = req.Website
		seen.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestClientAnalyze(t *testing.T) {
	payload, err := json.Marshal(samplePayload())
	require.NoError(t, err)
	quoted, err := json.Marshal(string(payload))
	require.NoError(t, err)

	srv, seen := analysisServer(t, http.StatusOK, `{"success":true,"data":`+string(quoted)+`}`)
	client := NewClient(srv.URL+"/", "secret", srv.Client())

	data, err := client.Analyze(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), data)

	method, path, auth, website := seen.snapshot()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/analyze-website", path)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "https://example.com", website)
}

func TestClientAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"error status with message", http.StatusBadGateway, `{"error":"upstream down"}`},
		{"error status without json", http.StatusInternalServerError, `oops`},
		{"unsuccessful envelope", http.StatusOK, `{"success":false,"error":"could not crawl"}`},
		{"malformed envelope", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := analysisServer(t, tt.status, tt.body)
			client := NewClient(srv.URL, "", srv.Client())

			_, err := client.Analyze(context.Background(), "https://example.com")
			assert.ErrorIs(t, err, ErrAnalysisFailed)
		})
	}
}

func TestClientAnalyzeObjectData(t *testing.T) {
	srv, _ := analysisServer(t, http.StatusOK, `{"success":true,"data":{"description":"D"}}`)
	client := NewClient(srv.URL, "", srv.Client())

	data, err := client.Analyze(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "D", Classify(data).Payload.Description)
}

type analyzerFunc func(ctx context.Context, website string) (string, error)

func (f analyzerFunc) Analyze(ctx context.Context, website string) (string, error) {
	return f(ctx, website)
}

func TestFetcherFallsBackOnFailure(t *testing.T) {
	fetcher := NewFetcher(analyzerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	}), Options{})

	res := fetcher.Fetch(context.Background(), "https://example.com")
	assert.Equal(t, KindFailed, res.Kind)
	assert.Equal(t, FallbackText, res.Text())
}

func TestFetcherWithoutAnalyzer(t *testing.T) {
	res := NewFetcher(nil, Options{}).Fetch(context.Background(), "https://example.com")
	assert.ErrorIs(t, res.Err, ErrNoAnalyzer)
	assert.Equal(t, FallbackText, res.Text())
}

func TestFetcherTimeout(t *testing.T) {
	fetcher := NewFetcher(analyzerFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	res := fetcher.Fetch(context.Background(), "https://example.com")

	assert.Equal(t, KindFailed, res.Kind)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetcherPassesRawText(t *testing.T) {
	fetcher := NewFetcher(analyzerFunc(func(context.Context, string) (string, error) {
		return "Looks like a bakery.", nil
	}), Options{Rate: 10, Burst: 1})

	res := fetcher.Fetch(context.Background(), "https://example.com")
	assert.Equal(t, KindRaw, res.Kind)
	assert.Equal(t, "Looks like a bakery.", res.Text())
}

func TestProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, probeUserAgent, r.UserAgent())
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer ok.Close()

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	fetcher := NewFetcher(nil, Options{ProbeTimeout: time.Second, AllowPrivateNetworks: true})
	ctx := context.Background()

	assert.NoError(t, fetcher.Probe(ctx, ok.URL))
	assert.ErrorIs(t, fetcher.Probe(ctx, missing.URL), ErrUnreachable)
	assert.ErrorIs(t, fetcher.Probe(ctx, downURL), ErrUnreachable)
	assert.ErrorIs(t, fetcher.Probe(ctx, "https://exa mple.com"), ErrUnreachable)
}

func TestProbeRejectsPrivateAddresses(t *testing.T) {
	var hits int
	var mu sync.Mutex
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer local.Close()

	fetcher := NewFetcher(nil, Options{ProbeTimeout: time.Second})
	ctx := context.Background()

	for _, website := range []string{
		local.URL,
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/",
		"http://0.0.0.0:1/",
	} {
		err := fetcher.Probe(ctx, website)
		assert.ErrorIs(t, err, ErrUnreachable, website)
		assert.ErrorIs(t, err, ErrBlockedAddress, website)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, hits, "loopback server must not be reached")
}

func TestBlockedAddr(t *testing.T) {
	tests := []struct {
		addr    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:127.0.0.1", true},
		{"93.184.216.34", false},
		{"2606:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.blocked, blockedAddr(netip.MustParseAddr(tt.addr)))
		})
	}
}
