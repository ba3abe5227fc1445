// Package aggregate runs the fetch-then-parse cycle across every configured
// source and degrades through the fallback cache to a placeholder article,
// so callers always receive a non-empty batch.
package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/civicwatch/internal/feeds"
	"github.com/abelbrown/civicwatch/internal/fetch"
)

// Reference limits.
const (
	DefaultPerSource = 5
	DefaultTotal     = 15
)

// Origin says where a batch came from.
type Origin string

const (
	OriginLive        Origin = "live"
	OriginCache       Origin = "cache"
	OriginPlaceholder Origin = "placeholder"
)

// Fetcher retrieves one feed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser turns a feed document into articles.
type Parser interface {
	Parse(raw []byte) ([]feeds.Article, error)
}

// Cache holds the last non-empty batch.
type Cache interface {
	Load(ctx context.Context) ([]feeds.Article, bool)
	Save(ctx context.Context, articles []feeds.Article) error
}

// SourceResult records what one source contributed to a batch.
type SourceResult struct {
	Name     string
	URL      string
	Articles int
	Err      error
}

// Batch is the bounded, ordered article set of one aggregation cycle.
// Articles is never empty.
type Batch struct {
	Articles []feeds.Article
	Origin   Origin
	Sources  []SourceResult
}

// Options configures an Aggregator.
type Options struct {
	Sources   []feeds.Source
	PerSource int
	Total     int
	// Timeout bounds a whole Aggregate call. Zero means no deadline.
	Timeout time.Duration
	Logger  *log.Logger
}

// Aggregator merges articles from several sources.
type Aggregator struct {
	fetcher   Fetcher
	parser    Parser
	cache     Cache
	sources   []feeds.Source
	perSource int
	total     int
	timeout   time.Duration
	log       *log.Logger
}

// New creates an Aggregator. cache may be nil, in which case a failed live
// cycle goes straight to the placeholder.
func New(fetcher Fetcher, parser Parser, cache Cache, opts Options) *Aggregator {
	if opts.PerSource < 1 {
		opts.PerSource = DefaultPerSource
	}
	if opts.Total < 1 {
		opts.Total = DefaultTotal
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	sources := make([]feeds.Source, len(opts.Sources))
	copy(sources, opts.Sources)

	return &Aggregator{
		fetcher:   fetcher,
		parser:    parser,
		cache:     cache,
		sources:   sources,
		perSource: opts.PerSource,
		total:     opts.Total,
		timeout:   opts.Timeout,
		log:       opts.Logger,
	}
}

// Sources returns the configured sources in declaration order.
func (a *Aggregator) Sources() []feeds.Source {
	out := make([]feeds.Source, len(a.sources))
	copy(out, a.sources)
	return out
}

// Aggregate fetches every source in order, keeps at most PerSource entries
// from each and at most Total overall. An empty live result is replaced by
// the cached batch, then by the placeholder article. Any non-empty result
// is written back to the cache.
func (a *Aggregator) Aggregate(ctx context.Context) Batch {
	liveCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		liveCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	articles, results := a.collect(liveCtx)
	batch := Batch{Articles: articles, Origin: OriginLive, Sources: results}

	// Cache reads and writes outlive a caller that has gone away.
	cacheCtx := context.WithoutCancel(ctx)

	if len(batch.Articles) == 0 && a.cache != nil {
		if cached, ok := a.cache.Load(cacheCtx); ok {
			a.log.Warn("no live articles, using cached data", "articles", len(cached))
			batch.Articles = cached
			batch.Origin = OriginCache
		}
	}

	if len(batch.Articles) == 0 {
		a.log.Error("no live or cached articles, using placeholder")
		batch.Articles = []feeds.Article{feeds.Placeholder()}
		batch.Origin = OriginPlaceholder
	}

	if a.cache != nil {
		if err := a.cache.Save(cacheCtx, batch.Articles); err != nil {
			a.log.Warn("failed to save article cache", "err", err)
		}
	}

	a.log.Info("aggregation complete", "origin", batch.Origin, "articles", len(batch.Articles))
	return batch
}

// collect runs the live cycle. Sources are processed strictly in order.
func (a *Aggregator) collect(ctx context.Context) ([]feeds.Article, []SourceResult) {
	articles := make([]feeds.Article, 0, a.total)
	results := make([]SourceResult, 0, len(a.sources))

	for _, src := range a.sources {
		res := SourceResult{Name: src.Name, URL: src.URL}

		if err := ctx.Err(); err != nil {
			res.Err = err
			results = append(results, res)
			a.log.Warn("skipping source, aggregation deadline reached", "source", src.Name)
			continue
		}

		raw, err := a.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			res.Err = err
			results = append(results, res)
			a.logFetchFailure(src, err)
			continue
		}

		parsed, err := a.parser.Parse(raw)
		if err != nil {
			res.Err = err
			results = append(results, res)
			a.log.Warn("failed to parse feed", "source", src.Name, "err", err)
			continue
		}

		if len(parsed) > a.perSource {
			parsed = parsed[:a.perSource]
		}
		res.Articles = len(parsed)
		results = append(results, res)
		articles = append(articles, parsed...)
		a.log.Debug("fetched source", "source", src.Name, "articles", len(parsed))
	}

	if len(articles) > a.total {
		articles = articles[:a.total]
	}
	return articles, results
}

func (a *Aggregator) logFetchFailure(src feeds.Source, err error) {
	var srcErr *fetch.SourceError
	if errors.As(err, &srcErr) {
		for _, attempt := range srcErr.Attempts {
			a.log.Debug("fetch attempt failed",
				"source", src.Name, "attempt", attempt.Attempt, "err", attempt.Err)
		}
	}
	a.log.Warn("source unavailable", "source", src.Name, "url", src.URL, "err", err)
}
