package ingest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/attemptsync/internal/metrics"
	"github.com/shrimpsizemoose/attemptsync/internal/models"
)

// maxBodyBytes caps how much of a response body is read into memory.
const maxBodyBytes = 256 << 20

var (
	ErrMalformedBody    = errors.New("malformed response body")
	ErrResponseTooLarge = errors.New("response too large")
)

// StatusError is returned for a non-2xx response that is not retried, or
// that is still failing once the retry budget is spent.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("statistics API returned %d: %s", e.StatusCode, e.Body)
}

// RetryPolicy describes how failed requests are repeated. MaxRetries counts
// retries after the first request.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration
	MaxBackoff  time.Duration
	Statuses    []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BackoffBase: time.Second,
		MaxBackoff:  2 * time.Minute,
		Statuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Delay returns the pause before the given retry (1-based).
func (rp RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 || rp.BackoffBase <= 0 {
		return 0
	}
	delay := rp.BackoffBase
	for i := 1; i < retry; i++ {
		delay *= 2
		if rp.MaxBackoff > 0 && delay >= rp.MaxBackoff {
			return rp.MaxBackoff
		}
	}
	if rp.MaxBackoff > 0 && delay > rp.MaxBackoff {
		return rp.MaxBackoff
	}
	return delay
}

func (rp RetryPolicy) retryable(status int) bool {
	for _, s := range rp.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

type FetcherConfig struct {
	URL       string
	Client    string
	ClientKey string
	Timeout   time.Duration
	SSLVerify bool
	Retry     RetryPolicy
}

// Fetcher reads attempt records from the statistics API.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	sleep  func(context.Context, time.Duration) error
	// maxBody is the largest response body accepted, in bytes.
	maxBody int64
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.SSLVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		sleep:   sleepContext,
		maxBody: maxBodyBytes,
	}
}

// Fetch returns the records created between start and end. Transport errors
// and retryable statuses are repeated per the retry policy.
func (f *Fetcher) Fetch(ctx context.Context, start, end string) ([]models.RawAttempt, error) {
	logger.Info.Printf("Requesting attempts from %s to %s", start, end)
	if !f.cfg.SSLVerify {
		logger.Info.Println("WARNING: SSL verification is disabled for the statistics API")
	}

	reqURL, err := f.requestURL(start, end)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.cfg.Retry.Delay(attempt)
			if ra, ok := retryAfter(lastErr, f.cfg.Retry.MaxBackoff); ok {
				delay = ra
			}
			logger.Debug.Printf("Retrying statistics request (%d/%d) in %s: %v", attempt, f.cfg.Retry.MaxRetries, delay, lastErr)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry interrupted: %w", err)
			}
		}

		records, retry, err := f.do(ctx, reqURL)
		if err == nil {
			logger.Info.Printf("Received %d records from the statistics API", len(records))
			return records, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, lastErr
}

func (f *Fetcher) requestURL(start, end string) (string, error) {
	u, err := url.Parse(f.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid statistics API URL: %w", err)
	}
	q := u.Query()
	q.Set("client", f.cfg.Client)
	q.Set("client_key", f.cfg.ClientKey)
	q.Set("start", start)
	q.Set("end", end)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type retryAfterError struct {
	*StatusError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.StatusError }

// do performs one request. The bool result reports whether a failure may be
// retried.
func (f *Fetcher) do(ctx context.Context, reqURL string) ([]models.RawAttempt, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("error").Inc()
		return nil, ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.FetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
		if !f.cfg.Retry.retryable(resp.StatusCode) {
			return nil, false, serr
		}
		if after, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return nil, true, &retryAfterError{StatusError: serr, after: after}
		}
		return nil, true, serr
	}

	if int64(len(body)) > f.maxBody {
		return nil, false, fmt.Errorf("%w: body exceeds %d bytes", ErrResponseTooLarge, f.maxBody)
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, false, err
	}
	return records, false, nil
}

func decodeRecords(body []byte) ([]models.RawAttempt, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformedBody)
	}

	records := make([]models.RawAttempt, 0, len(items))
	for _, it := range items {
		// non-object entries become empty records and are rejected as
		// missing every field
		obj, _ := it.(map[string]any)
		records = append(records, models.RawAttempt(obj))
	}
	return records, nil
}

func retryAfter(err error, limit time.Duration) (time.Duration, bool) {
	var rerr *retryAfterError
	if !errors.As(err, &rerr) {
		return 0, false
	}
	if limit > 0 && rerr.after > limit {
		return limit, true
	}
	return rerr.after, true
}

func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
