package eu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	applog "formulary/internal/log"
	"formulary/internal/metrics"
)

const (
	DefaultTTL     = 24 * time.Hour
	DefaultTimeout = 30 * time.Second
)

// Config describes how a Store reaches and caches the EU datasets.
type Config struct {
	AdditivesURL   string
	FlavouringsURL string
	TTL            time.Duration
	Timeout        time.Duration
	// FetchInterval spaces out upstream requests; zero disables the limit.
	FetchInterval time.Duration
	HTTPClient    *http.Client
	Now           func() time.Time
	Metrics       *metrics.Metrics
}

// Store caches the additives and flavourings datasets in memory. A dataset
// is either fully loaded or absent, and concurrent loads of the same dataset
// share one upstream request.
type Store struct {
	urls       map[Dataset]string
	ttl        time.Duration
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
	limiter    *rate.Limiter
	metrics    *metrics.Metrics

	group       singleflight.Group
	additives   atomic.Pointer[AdditiveSet]
	flavourings atomic.Pointer[FlavouringSet]
}

// DatasetStatus describes the cached state of one dataset.
type DatasetStatus struct {
	Dataset   Dataset   `json:"dataset"`
	URL       string    `json:"url"`
	Loaded    bool      `json:"loaded"`
	Fresh     bool      `json:"fresh"`
	Records   int       `json:"records"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewStore builds a Store, filling unset durations with the defaults.
func NewStore(cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limit := rate.Inf
	if cfg.FetchInterval > 0 {
		limit = rate.Every(cfg.FetchInterval)
	}

	return &Store{
		urls: map[Dataset]string{
			DatasetAdditives:   strings.TrimSpace(cfg.AdditivesURL),
			DatasetFlavourings: strings.TrimSpace(cfg.FlavouringsURL),
		},
		ttl:        ttl,
		timeout:    timeout,
		httpClient: httpClient,
		now:        now,
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    cfg.Metrics,
	}
}

// Additives returns the cached additives dataset, fetching it when it is
// absent or older than the TTL.
func (s *Store) Additives(ctx context.Context) (*AdditiveSet, error) {
	return load(ctx, s, DatasetAdditives, &s.additives, ParseAdditives)
}

// Flavourings returns the cached flavourings dataset, fetching it when it is
// absent or older than the TTL.
func (s *Store) Flavourings(ctx context.Context) (*FlavouringSet, error) {
	return load(ctx, s, DatasetFlavourings, &s.flavourings, ParseFlavourings)
}

// Invalidate drops the cached copy of dataset so the next call refetches it.
func (s *Store) Invalidate(dataset Dataset) {
	switch dataset {
	case DatasetAdditives:
		s.additives.Store(nil)
	case DatasetFlavourings:
		s.flavourings.Store(nil)
	}
	applog.Info(context.Background(), "eu dataset invalidated", "dataset", dataset)
}

// Status reports the cache state of both datasets.
func (s *Store) Status() []DatasetStatus {
	return []DatasetStatus{
		s.status(DatasetAdditives, s.additives.Load()),
		s.status(DatasetFlavourings, s.flavourings.Load()),
	}
}

func (s *Store) status(dataset Dataset, set snapshot) DatasetStatus {
	st := DatasetStatus{Dataset: dataset, URL: s.urls[dataset]}
	if isNilSnapshot(set) {
		return st
	}
	st.Loaded = true
	st.Records = set.Len()
	st.FetchedAt = set.FetchedAt()
	st.ExpiresAt = st.FetchedAt.Add(s.ttl)
	st.Fresh = s.fresh(st.FetchedAt)
	return st
}

func isNilSnapshot(set snapshot) bool {
	switch v := set.(type) {
	case nil:
		return true
	case *AdditiveSet:
		return v == nil
	case *FlavouringSet:
		return v == nil
	default:
		return false
	}
}

func (s *Store) fresh(fetchedAt time.Time) bool {
	return s.now().Sub(fetchedAt) < s.ttl
}

type snapshot interface {
	FetchedAt() time.Time
	Len() int
}

func load[T any, P interface {
	*T
	snapshot
}](ctx context.Context, s *Store, dataset Dataset, slot *atomic.Pointer[T], parse func(io.Reader, time.Time) (P, error)) (P, error) {
	if cached := P(slot.Load()); cached != nil && s.fresh(cached.FetchedAt()) {
		s.metrics.CacheLookup(string(dataset), true)
		return cached, nil
	}
	s.metrics.CacheLookup(string(dataset), false)

	ch := s.group.DoChan(string(dataset), func() (any, error) {
		// A fetch that finished while this caller was queued already refreshed the slot.
		if cached := P(slot.Load()); cached != nil && s.fresh(cached.FetchedAt()) {
			return cached, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		set, err := fetch(fetchCtx, s, dataset, parse)
		if err != nil {
			return nil, err
		}
		slot.Store((*T)(set))
		return set, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(P), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fetch[P snapshot](ctx context.Context, s *Store, dataset Dataset, parse func(io.Reader, time.Time) (P, error)) (P, error) {
	var zero P
	url := s.urls[dataset]
	started := time.Now()

	fail := func(outcome string, err error) (P, error) {
		s.metrics.ObserveFetch(string(dataset), outcome, time.Since(started))
		applog.Error(ctx, "eu dataset fetch failed", "dataset", dataset, "error", err)
		return zero, err
	}

	if url == "" {
		return fail(metrics.OutcomeUpstream, &UpstreamFetchError{Dataset: dataset, Err: errors.New("no dataset url configured")})
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fail(metrics.OutcomeUpstream, &UpstreamFetchError{Dataset: dataset, URL: url, Err: err})
	}

	applog.Debug(ctx, "fetching eu dataset", "dataset", dataset, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(metrics.OutcomeUpstream, &UpstreamFetchError{Dataset: dataset, URL: url, Err: fmt.Errorf("build request: %w", err)})
	}
	req.Header.Set("Accept", "application/x-ndjson, application/json;q=0.9, */*;q=0.1")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fail(metrics.OutcomeUpstream, &UpstreamFetchError{Dataset: dataset, URL: url, Err: unwrapDeadline(ctx, err)})
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fail(metrics.OutcomeUpstream, &UpstreamFetchError{Dataset: dataset, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)})
	}

	set, err := parse(resp.Body, s.now())
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return fail(metrics.OutcomeParse, err)
		}
		return fail(metrics.OutcomeUpstream, &UpstreamFetchError{Dataset: dataset, URL: url, StatusCode: resp.StatusCode, Err: unwrapDeadline(ctx, err)})
	}

	s.metrics.ObserveFetch(string(dataset), metrics.OutcomeSuccess, time.Since(started))
	s.metrics.SetRecords(string(dataset), set.Len())
	applog.Info(ctx, "eu dataset refreshed", "dataset", dataset, "records", set.Len(), "elapsed", time.Since(started).String())
	return set, nil
}

// unwrapDeadline reports a context deadline as such rather than the
// transport's wrapped form.
func unwrapDeadline(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
