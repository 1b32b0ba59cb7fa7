package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-catalog-sync/config"
)

const feedBody = `<?xml version="1.0" encoding="UTF-8"?><Products></Products>`

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CatalogDir = t.TempDir()
	cfg.Parallelism = 2
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *Fetcher {
	t.Helper()
	f, err := New(cfg, WithClock(fixedClock), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	f.collector.WithTransport(transport)
	return f
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetcherSavesFeeds(t *testing.T) {
	cfg := testConfig(t)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://feeds.example.test/export/catalog.xml", httpmock.NewStringResponder(http.StatusOK, feedBody))
	transport.RegisterResponder("GET", "http://other.example.test/products", httpmock.NewStringResponder(http.StatusOK, feedBody))

	f := newTestFetcher(t, cfg, transport)
	result, err := f.Run(context.Background(), []string{
		"http://feeds.example.test/export/catalog.xml",
		"http://other.example.test/products",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.RequestCount)
	assert.Zero(t, result.ErrorCount)
	assert.Empty(t, result.FailedURLs)
	assert.Equal(t, []string{
		filepath.Join(cfg.CatalogDir, "feeds.example.test-catalog-20240301T100000Z.xml"),
		filepath.Join(cfg.CatalogDir, "other.example.test-products-20240301T100000Z.xml"),
	}, result.Files)

	for _, file := range result.Files {
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Equal(t, feedBody, string(data))
	}
	for _, name := range listDir(t, cfg.CatalogDir) {
		assert.False(t, strings.HasSuffix(name, partSuffix), "leftover %s", name)
	}
}

func TestFetcherAvoidsNameCollisions(t *testing.T) {
	cfg := testConfig(t)
	feedURL := "http://feeds.example.test/catalog.xml"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", feedURL, httpmock.NewStringResponder(http.StatusOK, feedBody))

	f := newTestFetcher(t, cfg, transport)
	result, err := f.Run(context.Background(), []string{feedURL, feedURL})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(cfg.CatalogDir, "feeds.example.test-catalog-20240301T100000Z.xml"),
		filepath.Join(cfg.CatalogDir, "feeds.example.test-catalog-20240301T100000Z-2.xml"),
	}, result.Files)
}

func TestFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusInternalServerError, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig(t)
			feedURL := "http://feeds.example.test/catalog.xml"
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", feedURL, httpmock.NewStringResponder(tt.status, ""))

			f := newTestFetcher(t, cfg, transport)
			result, err := f.Run(context.Background(), []string{feedURL})
			require.NoError(t, err)

			assert.Equal(t, 1, result.ErrorsByType[tt.expected], "errors: %v", result.ErrorsByType)
			assert.Equal(t, []string{feedURL}, result.FailedURLs)
			assert.Empty(t, result.Files)
			assert.Empty(t, listDir(t, cfg.CatalogDir))
		})
	}
}

func TestFetcherRetriesTransientFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 2
	feedURL := "http://feeds.example.test/catalog.xml"

	var calls int32
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", feedURL, func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, feedBody), nil
	})

	f := newTestFetcher(t, cfg, transport)
	result, err := f.Run(context.Background(), []string{feedURL})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, result.RetryCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Empty(t, result.FailedURLs)
	assert.Len(t, result.Files, 1)
}

func TestFetcherGivesUpAfterMaxRetries(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 2
	feedURL := "http://feeds.example.test/catalog.xml"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", feedURL, httpmock.NewStringResponder(http.StatusBadGateway, ""))

	f := newTestFetcher(t, cfg, transport)
	result, err := f.Run(context.Background(), []string{feedURL})
	require.NoError(t, err)

	assert.Equal(t, 2, result.RetryCount)
	assert.Equal(t, 3, result.ErrorCount)
	assert.Equal(t, 3, result.RequestCount)
	assert.Equal(t, []string{feedURL}, result.FailedURLs)
}

func TestFetcherDoesNotRetryNotFound(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 3
	feedURL := "http://feeds.example.test/gone.xml"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", feedURL, httpmock.NewStringResponder(http.StatusNotFound, ""))

	f := newTestFetcher(t, cfg, transport)
	result, err := f.Run(context.Background(), []string{feedURL})
	require.NoError(t, err)

	assert.Zero(t, result.RetryCount)
	assert.Equal(t, []string{feedURL}, result.FailedURLs)
}

func TestFetcherRejectsEmptyBody(t *testing.T) {
	cfg := testConfig(t)
	feedURL := "http://feeds.example.test/catalog.xml"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", feedURL, httpmock.NewStringResponder(http.StatusOK, ""))

	f := newTestFetcher(t, cfg, transport)
	result, err := f.Run(context.Background(), []string{feedURL})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ErrorsByType["empty_body"])
	assert.Empty(t, result.Files)
}

func TestFetcherRunResetsBetweenRuns(t *testing.T) {
	cfg := testConfig(t)
	feedURL := "http://feeds.example.test/catalog.xml"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", feedURL, httpmock.NewStringResponder(http.StatusOK, feedBody))

	f := newTestFetcher(t, cfg, transport)
	_, err := f.Run(context.Background(), []string{feedURL})
	require.NoError(t, err)
	second, err := f.Run(context.Background(), []string{feedURL})
	require.NoError(t, err)

	assert.Equal(t, 1, second.RequestCount)
	require.Len(t, second.Files, 1)
	assert.Equal(t, filepath.Join(cfg.CatalogDir, "feeds.example.test-catalog-20240301T100000Z-2.xml"), second.Files[0])
	assert.Len(t, listDir(t, cfg.CatalogDir), 2)
}

func TestFetcherRunValidation(t *testing.T) {
	f, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = f.Run(context.Background(), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.CatalogDir = ""
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestFetcherRecordsInvalidURL(t *testing.T) {
	cfg := testConfig(t)
	f := newTestFetcher(t, cfg, httpmock.NewMockTransport())

	result, err := f.Run(context.Background(), []string{"://missing-scheme"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, []string{"://missing-scheme"}, result.FailedURLs)
}

func TestFeedFileName(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 4, 5, 0, time.FixedZone("TRT", 3*60*60))
	tests := []struct {
		raw  string
		want string
	}{
		{"https://feeds.example.test/catalog.xml", "feeds.example.test-catalog-20240301T100405Z.xml"},
		{"https://feeds.example.test/", "feeds.example.test-feed-20240301T100405Z.xml"},
		{"https://feeds.example.test:8443/a/b/export.php?token=x", "feeds.example.test-export-20240301T100405Z.xml"},
		{"https://feeds.example.test/ürünler xml", "feeds.example.test-_r_nler_xml-20240301T100405Z.xml"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, feedFileName(u, now, ".xml"), tt.raw)
	}
}

func TestRetryManagerScheduleRespectsLimit(t *testing.T) {
	rm := newRetryManager(colly.NewCollector(), 2, time.Hour, time.Hour, NewMetrics(nil), zerolog.Nop())

	if !rm.Schedule("http://example.com/feed.xml") {
		t.Fatalf("first retry should be scheduled")
	}
	if !rm.Schedule("http://example.com/feed.xml") {
		t.Fatalf("second retry should be scheduled")
	}
	if rm.Schedule("http://example.com/feed.xml") {
		t.Fatalf("third retry should not be scheduled")
	}

	rm.Stop()
	if got := rm.TotalRetries(); got != 2 {
		t.Fatalf("total retries = %d, want 2", got)
	}
	if rm.Wait() {
		t.Fatalf("no retries should be pending after stop")
	}
}

func TestRetryManagerBackoffCapped(t *testing.T) {
	rm := newRetryManager(colly.NewCollector(), 5, 200*time.Millisecond, 500*time.Millisecond, nil, zerolog.Nop())

	assert.Equal(t, 200*time.Millisecond, rm.backoff(1))
	assert.Equal(t, 400*time.Millisecond, rm.backoff(2))
	assert.Equal(t, 500*time.Millisecond, rm.backoff(4))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   FailureKind
		retryable  bool
	}{
		{name: "context timeout", err: context.DeadlineExceeded, expected: KindTimeout, retryable: true},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: KindTimeout, retryable: true},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: KindConnection, retryable: true},
		{name: "forbidden", statusCode: http.StatusForbidden, expected: KindForbidden},
		{name: "not found", statusCode: http.StatusNotFound, expected: KindNotFound},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, expected: KindRateLimited, retryable: true},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: KindOther, retryable: true},
		{name: "other", err: errors.New("some other error"), expected: KindOther, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := classifyError("https://feeds.example.test/a.xml", tt.err, tt.statusCode)
			if fe.Kind != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, fe.Kind, tt.expected)
			}
			assert.Equal(t, tt.retryable, fe.Kind.Retryable())
			assert.Equal(t, tt.statusCode, fe.Status)
			assert.Equal(t, tt.expected, kindOf(fmt.Errorf("wrapped: %w", fe)))
			if tt.err != nil {
				assert.True(t, errors.Is(fe, tt.err))
			}
		})
	}
}

func TestFeedErrorKinds(t *testing.T) {
	write := &FeedError{Kind: KindWrite, URL: "u", Path: "p", Err: os.ErrPermission}
	assert.Equal(t, KindWrite, kindOf(write))
	assert.True(t, errors.Is(write, os.ErrPermission))
	assert.Contains(t, write.Error(), "write p")
	assert.False(t, KindWrite.Retryable())
	assert.False(t, KindEmptyBody.Retryable())

	assert.Equal(t, KindOther, kindOf(errors.New("plain")))
	assert.Contains(t, (&FeedError{Kind: KindNotFound, URL: "u", Status: 404}).Error(), "status 404")
}
