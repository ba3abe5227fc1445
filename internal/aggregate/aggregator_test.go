package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/civicwatch/internal/cache"
	"github.com/abelbrown/civicwatch/internal/feeds"
	"github.com/abelbrown/civicwatch/internal/fetch"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// rssFeed renders an RSS 2.0 document with n items named prefix-1..prefix-n.
func rssFeed(prefix string, n int) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>` + prefix + `</title>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<item><title>%s-%d</title><link>https://%s.example/%d</link><description>summary %d</description></item>`,
			prefix, i, prefix, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return []byte(b.String())
}

// fakeFetcher serves canned bodies per URL; URLs without a body fail.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if body, ok := f.bodies[url]; ok {
		return body, nil
	}
	return nil, &fetch.SourceError{
		URL:      url,
		Attempts: []*fetch.AttemptError{{URL: url, Attempt: 1, Err: errors.New("connection refused")}},
	}
}

// memCache is an in-memory Cache that records saves.
type memCache struct {
	stored []feeds.Article
	has    bool
	saves  int
}

func (c *memCache) Load(ctx context.Context) ([]feeds.Article, bool) {
	if !c.has || len(c.stored) == 0 {
		return nil, false
	}
	out := make([]feeds.Article, len(c.stored))
	copy(out, c.stored)
	return out, true
}

func (c *memCache) Save(ctx context.Context, articles []feeds.Article) error {
	c.stored = append([]feeds.Article(nil), articles...)
	c.has = true
	c.saves++
	return nil
}

func sources(names ...string) []feeds.Source {
	out := make([]feeds.Source, len(names))
	for i, n := range names {
		out[i] = feeds.Source{Name: n, URL: "https://" + n + ".example/feed", Format: feeds.FormatRSS}
	}
	return out
}

func titles(articles []feeds.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.Title
	}
	return out
}

func TestAggregatePartialFailure(t *testing.T) {
	srcs := sources("a", "b", "c")
	f := &fakeFetcher{bodies: map[string][]byte{
		srcs[0].URL: rssFeed("a", 3),
		srcs[2].URL: rssFeed("c", 20),
	}}
	c := &memCache{}
	agg := New(f, feeds.NewParser(), c, Options{Sources: srcs, PerSource: 5, Total: 15, Logger: quietLogger()})

	batch := agg.Aggregate(context.Background())

	want := []string{"a-1", "a-2", "a-3", "c-1", "c-2", "c-3", "c-4", "c-5"}
	got := titles(batch.Articles)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if batch.Origin != OriginLive {
		t.Errorf("expected live origin, got %s", batch.Origin)
	}
	if len(f.calls) != 3 {
		t.Errorf("expected every source fetched once, got %v", f.calls)
	}
	if strings.Join(titles(c.stored), ",") != strings.Join(want, ",") {
		t.Errorf("cache should hold the 8 live articles, got %v", titles(c.stored))
	}

	if len(batch.Sources) != 3 {
		t.Fatalf("expected 3 source results, got %d", len(batch.Sources))
	}
	if batch.Sources[0].Articles != 3 || batch.Sources[2].Articles != 5 {
		t.Errorf("unexpected per-source counts: %+v", batch.Sources)
	}
	if !errors.Is(batch.Sources[1].Err, fetch.ErrSourceUnavailable) {
		t.Errorf("expected source b to report ErrSourceUnavailable, got %v", batch.Sources[1].Err)
	}
}

func TestAggregateLength(t *testing.T) {
	tests := []struct {
		name      string
		entries   []int
		perSource int
		total     int
		want      int
	}{
		{"under both caps", []int{2, 3}, 5, 15, 5},
		{"per-source cap", []int{9, 9}, 5, 15, 10},
		{"total cap", []int{5, 5, 5, 5}, 5, 15, 15},
		{"eight reference sources", []int{10, 10, 10, 10, 10, 10, 10, 10}, 5, 15, 15},
		{"tight caps", []int{4, 4, 4}, 1, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names := make([]string, len(tt.entries))
			for i := range tt.entries {
				names[i] = fmt.Sprintf("s%d", i)
			}
			srcs := sources(names...)
			f := &fakeFetcher{bodies: map[string][]byte{}}
			for i, n := range tt.entries {
				f.bodies[srcs[i].URL] = rssFeed(names[i], n)
			}

			agg := New(f, feeds.NewParser(), &memCache{}, Options{
				Sources: srcs, PerSource: tt.perSource, Total: tt.total, Logger: quietLogger(),
			})
			batch := agg.Aggregate(context.Background())
			if len(batch.Articles) != tt.want {
				t.Errorf("expected %d articles, got %d", tt.want, len(batch.Articles))
			}
			// Earlier sources dominate when the total cap is hit.
			if batch.Articles[0].Title != names[0]+"-1" {
				t.Errorf("expected first article from first source, got %q", batch.Articles[0].Title)
			}
		})
	}
}

func TestAggregateFallsBackToCache(t *testing.T) {
	cached := []feeds.Article{
		{Title: "one", Link: "https://x/1", Summary: "s1"},
		{Title: "two", Link: "https://x/2", Summary: "s2"},
		{Title: "three", Link: "https://x/3", Summary: "s3"},
		{Title: "four", Link: "https://x/4", Summary: "s4"},
	}
	c := &memCache{stored: cached, has: true}
	f := &fakeFetcher{}
	agg := New(f, feeds.NewParser(), c, Options{Sources: sources("a", "b"), Logger: quietLogger()})

	batch := agg.Aggregate(context.Background())

	if batch.Origin != OriginCache {
		t.Errorf("expected cache origin, got %s", batch.Origin)
	}
	if len(batch.Articles) != 4 {
		t.Fatalf("expected 4 cached articles, got %d", len(batch.Articles))
	}
	for i := range cached {
		if batch.Articles[i] != cached[i] {
			t.Errorf("article %d: expected %+v, got %+v", i, cached[i], batch.Articles[i])
		}
	}
	if c.saves != 1 {
		t.Errorf("expected cached batch written back once, got %d saves", c.saves)
	}
}

func TestAggregatePlaceholder(t *testing.T) {
	c := &memCache{}
	agg := New(&fakeFetcher{}, feeds.NewParser(), c, Options{Sources: sources("a", "b", "c"), Logger: quietLogger()})

	batch := agg.Aggregate(context.Background())

	if len(batch.Articles) != 1 || !feeds.IsPlaceholder(batch.Articles[0]) {
		t.Fatalf("expected the single placeholder article, got %+v", batch.Articles)
	}
	if batch.Origin != OriginPlaceholder {
		t.Errorf("expected placeholder origin, got %s", batch.Origin)
	}
	if len(c.stored) != 1 || !feeds.IsPlaceholder(c.stored[0]) {
		t.Errorf("expected placeholder saved to cache, got %+v", c.stored)
	}
}

func TestAggregateNilCache(t *testing.T) {
	agg := New(&fakeFetcher{}, feeds.NewParser(), nil, Options{Sources: sources("a"), Logger: quietLogger()})
	batch := agg.Aggregate(context.Background())
	if len(batch.Articles) != 1 || !feeds.IsPlaceholder(batch.Articles[0]) {
		t.Errorf("expected placeholder without cache, got %+v", batch.Articles)
	}
}

func TestAggregateNoSources(t *testing.T) {
	agg := New(&fakeFetcher{}, feeds.NewParser(), &memCache{}, Options{Logger: quietLogger()})
	batch := agg.Aggregate(context.Background())
	if len(batch.Articles) != 1 || batch.Origin != OriginPlaceholder {
		t.Errorf("expected placeholder for empty source list, got %+v", batch)
	}
}

func TestAggregateMalformedSourceSkipped(t *testing.T) {
	srcs := sources("bad", "good")
	f := &fakeFetcher{bodies: map[string][]byte{
		srcs[0].URL: []byte("<html><body>maintenance</body></html>"),
		srcs[1].URL: rssFeed("good", 2),
	}}
	agg := New(f, feeds.NewParser(), &memCache{}, Options{Sources: srcs, Logger: quietLogger()})

	batch := agg.Aggregate(context.Background())

	if got := titles(batch.Articles); strings.Join(got, ",") != "good-1,good-2" {
		t.Errorf("expected only good source articles, got %v", got)
	}
	if !errors.Is(batch.Sources[0].Err, feeds.ErrMalformedFeed) {
		t.Errorf("expected ErrMalformedFeed for bad source, got %v", batch.Sources[0].Err)
	}
}

func TestAggregateKeepsDuplicates(t *testing.T) {
	srcs := sources("a", "b")
	same := rssFeed("story", 2)
	f := &fakeFetcher{bodies: map[string][]byte{srcs[0].URL: same, srcs[1].URL: same}}
	agg := New(f, feeds.NewParser(), &memCache{}, Options{Sources: srcs, Logger: quietLogger()})

	batch := agg.Aggregate(context.Background())

	want := "story-1,story-2,story-1,story-2"
	if got := strings.Join(titles(batch.Articles), ","); got != want {
		t.Errorf("expected duplicates preserved (%s), got %s", want, got)
	}
}

func TestAggregateCacheIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	fb := cache.NewFallback(store, "", quietLogger())

	srcs := sources("a", "b")
	f := &fakeFetcher{bodies: map[string][]byte{
		srcs[0].URL: rssFeed("a", 7),
		srcs[1].URL: rssFeed("b", 2),
	}}
	agg := New(f, feeds.NewParser(), fb, Options{Sources: srcs, Logger: quietLogger()})

	path := filepath.Join(dir, cache.DefaultFallbackKey)

	agg.Aggregate(context.Background())
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cache not written: %v", err)
	}

	agg.Aggregate(context.Background())
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("cache content changed between identical runs:\n%s\n---\n%s", first, second)
	}
}

func TestAggregateCacheScenarioFromDisk(t *testing.T) {
	dir := t.TempDir()
	cached := `[
    {"title": "w", "link": "https://k/1", "summary": "s1"},
    {"title": "x", "link": "https://k/2", "summary": "s2"},
    {"title": "y", "link": "https://k/3", "summary": "s3"},
    {"title": "z", "link": "https://k/4", "summary": "s4"},
    {"title": "  Padded title ", "link": "https://k/5", "summary": "line one\n"}
]`
	if err := os.WriteFile(filepath.Join(dir, cache.DefaultFallbackKey), []byte(cached), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := cache.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	agg := New(&fakeFetcher{}, feeds.NewParser(), cache.NewFallback(store, "", quietLogger()),
		Options{Sources: sources("a", "b", "c"), Logger: quietLogger()})
	batch := agg.Aggregate(context.Background())

	if batch.Origin != OriginCache || len(batch.Articles) != 5 {
		t.Fatalf("expected 5 cached articles, got %d (%s)", len(batch.Articles), batch.Origin)
	}
	if got := strings.Join(titles(batch.Articles[:4]), ","); got != "w,x,y,z" {
		t.Errorf("expected cached articles in order, got %s", got)
	}
	if batch.Articles[3].Link != "https://k/4" || batch.Articles[3].Summary != "s4" {
		t.Errorf("cached article content changed: %+v", batch.Articles[3])
	}
	want := feeds.Article{Title: "  Padded title ", Link: "https://k/5", Summary: "line one\n"}
	if batch.Articles[4] != want {
		t.Errorf("cached article altered on load: got %+v, want %+v", batch.Articles[4], want)
	}
}

func TestAggregateWithRealFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Write(rssFeed("ok", 6))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	srcs := []feeds.Source{
		{Name: "down", URL: srv.URL + "/down"},
		{Name: "ok", URL: srv.URL + "/ok"},
	}
	f := fetch.NewFetcher(fetch.Options{MaxRetries: 2, RetryDelay: time.Millisecond})
	agg := New(f, feeds.NewParser(), &memCache{}, Options{Sources: srcs, Logger: quietLogger()})

	batch := agg.Aggregate(context.Background())

	if batch.Origin != OriginLive || len(batch.Articles) != 5 {
		t.Fatalf("expected 5 live articles, got %d (%s)", len(batch.Articles), batch.Origin)
	}
	var se *fetch.StatusError
	if !errors.As(batch.Sources[0].Err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 StatusError for down source, got %v", batch.Sources[0].Err)
	}
}

// blockingFetcher never returns until its context ends.
type blockingFetcher struct{ calls int }

func (b *blockingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	b.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAggregateTimeoutFallsBack(t *testing.T) {
	c := &memCache{stored: []feeds.Article{{Title: "cached", Link: "l", Summary: "s"}}, has: true}
	bf := &blockingFetcher{}
	agg := New(bf, feeds.NewParser(), c, Options{
		Sources: sources("a", "b", "c"),
		Timeout: 20 * time.Millisecond,
		Logger:  quietLogger(),
	})

	batch := agg.Aggregate(context.Background())

	if batch.Origin != OriginCache || batch.Articles[0].Title != "cached" {
		t.Errorf("expected cached batch after deadline, got %+v", batch)
	}
	if bf.calls != 1 {
		t.Errorf("expected sources after the deadline to be skipped, got %d fetches", bf.calls)
	}
	if c.saves != 1 {
		t.Errorf("expected cache save despite expired deadline, got %d", c.saves)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	agg := New(&fakeFetcher{}, feeds.NewParser(), nil, Options{})
	if agg.perSource != DefaultPerSource || agg.total != DefaultTotal {
		t.Errorf("expected defaults %d/%d, got %d/%d", DefaultPerSource, DefaultTotal, agg.perSource, agg.total)
	}
}

// cancellingFetcher serves body and then cancels the caller's context, as a
// disconnecting client would.
type cancellingFetcher struct {
	body   []byte
	cancel context.CancelFunc
}

func (c *cancellingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	c.cancel()
	return c.body, nil
}

func TestAggregateSavesAfterCallerCancels(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fallback := cache.NewFallback(store, "", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &cancellingFetcher{body: rssFeed("live", 2), cancel: cancel}
	agg := New(f, feeds.NewParser(), fallback, Options{Sources: sources("a"), Logger: quietLogger()})

	batch := agg.Aggregate(ctx)
	if batch.Origin != OriginLive || len(batch.Articles) != 2 {
		t.Fatalf("expected 2 live articles, got %d (%s)", len(batch.Articles), batch.Origin)
	}

	cached, ok := fallback.Load(context.Background())
	if !ok || strings.Join(titles(cached), ",") != "live-1,live-2" {
		t.Errorf("expected live batch cached despite cancellation, got %+v ok=%v", cached, ok)
	}
}
