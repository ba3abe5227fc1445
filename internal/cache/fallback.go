package cache

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/abelbrown/civicwatch/internal/feeds"
)

// DefaultFallbackKey names the record holding the last good article batch.
const DefaultFallbackKey = "news_cache.json"

// Fallback stores the most recent article batch so a later run can serve
// it when every source is down.
type Fallback struct {
	store BlobStore
	key   string
	log   *log.Logger
}

// NewFallback wraps store. An empty key means DefaultFallbackKey.
func NewFallback(store BlobStore, key string, logger *log.Logger) *Fallback {
	if key == "" {
		key = DefaultFallbackKey
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fallback{store: store, key: key, log: logger}
}

// Key returns the record key.
func (f *Fallback) Key() string { return f.key }

// Load returns the cached batch as it was saved, with only blank fields
// filled. ok is false when there is no usable record: absent, unreadable,
// corrupt or empty all count as a miss.
func (f *Fallback) Load(ctx context.Context) (articles []feeds.Article, ok bool) {
	var stored []feeds.Article
	err := LoadJSON(ctx, f.store, f.key, &stored)
	switch {
	case errors.Is(err, ErrNotFound):
		f.log.Debug("no cached articles", "key", f.key)
		return nil, false
	case err != nil:
		f.log.Warn("cached articles unusable", "key", f.key, "err", err)
		return nil, false
	case len(stored) == 0:
		f.log.Warn("cached article batch is empty", "key", f.key)
		return nil, false
	}

	articles = make([]feeds.Article, len(stored))
	for i, a := range stored {
		articles[i] = a.WithPlaceholders()
	}
	return articles, true
}

// Save overwrites the cached batch with articles.
func (f *Fallback) Save(ctx context.Context, articles []feeds.Article) error {
	if articles == nil {
		articles = []feeds.Article{}
	}
	return SaveJSON(ctx, f.store, f.key, articles)
}
