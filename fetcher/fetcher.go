// Package fetcher downloads supplier catalog feeds into the catalog directory.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/aluiziolira/go-catalog-sync/config"
	"github.com/aluiziolira/go-catalog-sync/models"
)

const (
	partSuffix      = ".part"
	timestampLayout = "20060102T150405Z"
)

// Fetcher wraps a colly collector that saves each feed response as a catalog file.
type Fetcher struct {
	dir       string
	ext       string
	collector *colly.Collector
	retry     *retryManager
	Metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time

	runMu sync.Mutex

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	files        []string
	reserved     map[string]struct{}
	failedURLs   []string
	errorsByType map[string]int

	handlersOnce sync.Once
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithMetrics replaces the fetcher's private metrics.
func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.Metrics = m
		}
	}
}

// WithClock sets the clock used for file names.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// New builds a fetcher that writes into cfg.CatalogDir.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	if cfg.CatalogDir == "" {
		return nil, errors.New("catalog directory cannot be empty")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodySize),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobots
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{
		dir:          cfg.CatalogDir,
		ext:          cfg.CatalogExt,
		collector:    collector,
		Metrics:      NewMetrics(nil),
		logger:       zerolog.Nop(),
		now:          time.Now,
		reserved:     make(map[string]struct{}),
		errorsByType: make(map[string]int),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.ext == "" {
		f.ext = ".xml"
	}
	f.retry = newRetryManager(collector, cfg.MaxRetries, cfg.RetryBackoff, cfg.RetryBackoffMax, f.Metrics, f.logger)
	return f, nil
}

// Run downloads every feed URL and waits for all attempts, retries included.
// Per-URL failures are reported in the result; the error is reserved for setup failures.
func (f *Fetcher) Run(ctx context.Context, urls []string) (*models.FetchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(urls) == 0 {
		return nil, errors.New("no feed URLs configured")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	f.runMu.Lock()
	defer f.runMu.Unlock()

	f.reset(ctx)
	f.configureHandlers()

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			f.retry.Stop()
		case <-done:
		}
	}()

	for _, raw := range urls {
		if ctx.Err() != nil {
			break
		}
		if err := f.collector.Visit(raw); err != nil {
			f.recordFailure(&FeedError{Kind: KindOther, URL: raw, Err: err})
		}
	}

	for {
		f.collector.Wait()
		if !f.retry.Wait() {
			break
		}
	}
	f.retry.Stop()

	f.mu.Lock()
	files := append([]string(nil), f.files...)
	failed := append([]string(nil), f.failedURLs...)
	byType := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		byType[k] = v
	}
	f.mu.Unlock()
	sort.Strings(files)

	result := &models.FetchResult{
		Files:        files,
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorCount:   int(atomic.LoadInt64(&f.errorCount)),
		FailedURLs:   failed,
		ErrorsByType: byType,
		RetryCount:   f.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&f.requestCount)),
	}

	f.logger.Info().
		Int("files", len(result.Files)).
		Int("requests", result.RequestCount).
		Int("errors", result.ErrorCount).
		Int("retries", result.RetryCount).
		Dur("duration", result.EndTime.Sub(start)).
		Msg("feed fetch finished")
	return result, nil
}

func (f *Fetcher) reset(ctx context.Context) {
	atomic.StoreInt64(&f.requestCount, 0)
	atomic.StoreInt64(&f.errorCount, 0)
	f.mu.Lock()
	f.files = nil
	f.failedURLs = nil
	f.reserved = make(map[string]struct{})
	f.errorsByType = make(map[string]int)
	f.mu.Unlock()
	f.retry.Reset(ctx)
}

func (f *Fetcher) configureHandlers() {
	f.handlersOnce.Do(func() {
		f.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			atomic.AddInt64(&f.requestCount, 1)
			f.Metrics.IncRequest("started")
			f.logger.Debug().Str("url", r.URL.String()).Msg("fetching feed")
		})

		f.collector.OnResponse(func(r *colly.Response) {
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				f.Metrics.ObserveDuration(time.Since(start))
			}
			f.Metrics.IncRequest("completed")

			feedURL := r.Request.URL.String()
			if len(r.Body) == 0 {
				f.recordFailure(&FeedError{Kind: KindEmptyBody, URL: feedURL, Status: r.StatusCode})
				return
			}
			target, err := f.save(r.Request.URL, r.Body)
			if err != nil {
				f.recordFailure(err)
				return
			}
			f.Metrics.IncFiles()
			f.logger.Info().Str("url", feedURL).Str("file", target).Int("bytes", len(r.Body)).Msg("feed saved")
		})

		f.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			feedURL := ""
			if r != nil {
				statusCode = r.StatusCode
				if r.Request != nil && r.Request.URL != nil {
					feedURL = r.Request.URL.String()
				}
			}
			fe := classifyError(feedURL, err, statusCode)
			f.countError(fe.Kind)

			f.logger.Error().
				Str("url", feedURL).
				Int("status", statusCode).
				Str("category", string(fe.Kind)).
				Err(err).
				Msg("feed request error")

			if fe.Kind.Retryable() && f.retry.Schedule(feedURL) {
				return
			}
			f.mu.Lock()
			f.failedURLs = append(f.failedURLs, feedURL)
			f.mu.Unlock()
		})
	})
}

func (f *Fetcher) countError(kind FailureKind) {
	atomic.AddInt64(&f.errorCount, 1)
	f.mu.Lock()
	f.errorsByType[string(kind)]++
	f.mu.Unlock()
	f.Metrics.IncError(string(kind))
}

// recordFailure counts a failure that is not retried.
func (f *Fetcher) recordFailure(err error) {
	kind := kindOf(err)
	f.countError(kind)

	feedURL := ""
	var fe *FeedError
	if errors.As(err, &fe) {
		feedURL = fe.URL
	}
	f.logger.Error().Str("url", feedURL).Str("category", string(kind)).Err(err).Msg("feed failed")
	f.mu.Lock()
	f.failedURLs = append(f.failedURLs, feedURL)
	f.mu.Unlock()
}

// save writes body next to its final name and renames it into place, so readers of the
// catalog directory never see a partial file.
func (f *Fetcher) save(u *url.URL, body []byte) (string, error) {
	target := f.reserve(feedFileName(u, f.now(), f.ext))
	part := target + partSuffix

	if err := os.WriteFile(part, body, 0o644); err != nil {
		f.release(target)
		return "", &FeedError{Kind: KindWrite, URL: u.String(), Path: part, Err: err}
	}
	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		f.release(target)
		return "", &FeedError{Kind: KindWrite, URL: u.String(), Path: target, Err: err}
	}

	f.mu.Lock()
	f.files = append(f.files, target)
	f.mu.Unlock()
	return target, nil
}

// reserve returns a path in the catalog directory not used on disk or by this run.
func (f *Fetcher) reserve(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(f.dir, name)
	for n := 2; ; n++ {
		if _, taken := f.reserved[candidate]; !taken {
			if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
				break
			}
		}
		candidate = filepath.Join(f.dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	f.reserved[candidate] = struct{}{}
	return candidate
}

func (f *Fetcher) release(target string) {
	f.mu.Lock()
	delete(f.reserved, target)
	f.mu.Unlock()
}

// feedFileName names a download as <host>-<base>-<UTC timestamp><ext>.
func feedFileName(u *url.URL, now time.Time, ext string) string {
	base := path.Base(u.Path)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "feed"
	}
	return fmt.Sprintf("%s-%s-%s%s", sanitize(u.Hostname()), sanitize(base), now.UTC().Format(timestampLayout), ext)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
