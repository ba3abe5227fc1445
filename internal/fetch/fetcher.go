// Package fetch retrieves raw feed documents over HTTP.
//
// A Fetcher issues GET requests with a fixed timeout and a browser-like
// User-Agent, retrying failed attempts after a fixed delay. It never logs:
// every failure is returned to the caller as a *SourceError describing each
// attempt, and the caller decides what to report.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent is a desktop browser identity; several publishers reject
// requests that look like bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second

	// maxBodyBytes caps a single feed document.
	maxBodyBytes = 10 << 20
)

const acceptHeader = "application/rss+xml, application/rdf+xml, application/atom+xml, " +
	"application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

// ErrSourceUnavailable means every attempt against a source failed.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrFeedTooLarge is an attempt error for a body over the size cap.
var ErrFeedTooLarge = errors.New("feed too large")

// StatusError is returned for a response other than 200 OK.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// AttemptError describes one failed attempt.
type AttemptError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d for %s: %v", e.Attempt, e.URL, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// SourceError is returned once retries are exhausted (or the context ends).
// It matches ErrSourceUnavailable and the last attempt's cause with errors.Is.
type SourceError struct {
	URL      string
	Attempts []*AttemptError
}

func (e *SourceError) Error() string {
	last := e.last()
	if last == nil {
		return fmt.Sprintf("%v: %s", ErrSourceUnavailable, e.URL)
	}
	return fmt.Sprintf("%v: %s after %d attempt(s): %v", ErrSourceUnavailable, e.URL, len(e.Attempts), last.Err)
}

func (e *SourceError) Unwrap() []error {
	if last := e.last(); last != nil {
		return []error{ErrSourceUnavailable, last}
	}
	return []error{ErrSourceUnavailable}
}

func (e *SourceError) last() *AttemptError {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1]
}

// Options tunes a Fetcher. A zero Timeout or UserAgent takes the package default.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
}

// Fetcher retrieves feed documents with bounded retries.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	maxBody    int64

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher. MaxRetries below 1 means a single attempt,
// a negative RetryDelay means no delay. TLS verification is always on.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		maxBody:    maxBodyBytes,
		sleep:      sleepContext,
	}
}

// MaxRetries returns the total number of attempts per Fetch.
func (f *Fetcher) MaxRetries() int { return f.maxRetries }

// Fetch returns the body of url. Non-200 responses and transport errors
// count as failed attempts; the fetcher waits RetryDelay between attempts
// and gives up after MaxRetries attempts with a *SourceError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	srcErr := &SourceError{URL: url}

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			srcErr.Attempts = append(srcErr.Attempts, &AttemptError{URL: url, Attempt: attempt, Err: err})
			return nil, srcErr
		}

		body, err := f.get(ctx, url)
		if err == nil {
			return body, nil
		}
		srcErr.Attempts = append(srcErr.Attempts, &AttemptError{URL: url, Attempt: attempt, Err: err})

		if attempt == f.maxRetries {
			break
		}
		if err := f.sleep(ctx, f.retryDelay); err != nil {
			return nil, srcErr
		}
	}

	return nil, srcErr
}

// get performs a single GET.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrFeedTooLarge, f.maxBody)
	}
	return body, nil
}

// sleepContext waits for d or until ctx is done.
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
