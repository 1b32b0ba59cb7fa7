package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
)

type retryManager struct {
	collector  *colly.Collector
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics
	logger     zerolog.Logger

	mu           sync.Mutex
	idle         *sync.Cond
	ctx          context.Context
	attempts     map[string]int
	timers       map[string]*time.Timer
	inflight     int
	totalRetries int
	stopped      bool
}

func newRetryManager(collector *colly.Collector, maxRetries int, base, max time.Duration, metrics *Metrics, logger zerolog.Logger) *retryManager {
	rm := &retryManager{
		collector:  collector,
		maxRetries: maxRetries,
		base:       base,
		max:        max,
		metrics:    metrics,
		logger:     logger,
		ctx:        context.Background(),
		attempts:   make(map[string]int),
		timers:     make(map[string]*time.Timer),
	}
	rm.idle = sync.NewCond(&rm.mu)
	return rm
}

// Reset prepares the manager for a new run bound to ctx.
func (rm *retryManager) Reset(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	rm.ctx = ctx
	rm.attempts = make(map[string]int)
	rm.timers = make(map[string]*time.Timer)
	rm.inflight = 0
	rm.totalRetries = 0
	rm.stopped = false
}

// Schedule queues another visit of url after a backoff. It reports false once the
// attempts for url are exhausted or the run is stopping.
func (rm *retryManager) Schedule(url string) bool {
	if rm.maxRetries == 0 {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || rm.ctx.Err() != nil {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.maxRetries {
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	if timer, ok := rm.timers[url]; ok && timer.Stop() {
		rm.doneLocked()
	}
	rm.inflight++
	rm.timers[url] = time.AfterFunc(rm.backoff(attempt), func() {
		rm.fire(url)
	})
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if rm.max > 0 && delay > rm.max {
		delay = rm.max
	}
	return delay
}

func (rm *retryManager) fire(url string) {
	defer func() {
		rm.mu.Lock()
		rm.doneLocked()
		rm.mu.Unlock()
	}()

	rm.mu.Lock()
	stopped := rm.stopped
	ctx := rm.ctx
	rm.mu.Unlock()

	if stopped || ctx.Err() != nil {
		return
	}
	if err := rm.collector.Visit(url); err != nil {
		rm.logger.Debug().Str("url", url).Err(err).Msg("retry visit failed")
	}
}

func (rm *retryManager) doneLocked() {
	rm.inflight--
	if rm.inflight <= 0 {
		rm.inflight = 0
		rm.idle.Broadcast()
	}
}

// Wait blocks until every scheduled retry has fired. It reports false when none were pending.
func (rm *retryManager) Wait() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.inflight == 0 {
		return false
	}
	for rm.inflight > 0 {
		rm.idle.Wait()
	}
	return true
}

// Stop cancels pending retries.
func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for url, timer := range rm.timers {
		if timer.Stop() {
			rm.doneLocked()
		}
		delete(rm.timers, url)
	}
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}
