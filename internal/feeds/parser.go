package feeds

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// ErrMalformedFeed is returned when a payload cannot be read as any known feed format.
var ErrMalformedFeed = errors.New("malformed feed")

// Parser turns raw feed bytes into articles. RSS 2.0, RSS 1.0 (RDF) and Atom
// are detected from the payload itself.
type Parser struct {
	fp *gofeed.Parser
}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{fp: gofeed.NewParser()}
}

// Parse converts raw into articles in feed order.
//
// Malformed input never panics: it yields an empty, non-nil slice together
// with an error wrapping ErrMalformedFeed so the caller can log it and move on.
func (p *Parser) Parse(raw []byte) (articles []Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			articles = []Article{}
			err = fmt.Errorf("%w: parser panic: %v", ErrMalformedFeed, r)
		}
	}()

	if len(bytes.TrimSpace(raw)) == 0 {
		return []Article{}, fmt.Errorf("%w: empty payload", ErrMalformedFeed)
	}

	feed, err := p.fp.Parse(bytes.NewReader(raw))
	if err != nil {
		return []Article{}, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	articles = make([]Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		articles = append(articles, convertItem(item))
	}
	return articles, nil
}

// convertItem maps a gofeed item onto an Article, filling placeholders.
// Summary is the entry description (RSS description, Atom summary); full
// content bodies are not used.
func convertItem(item *gofeed.Item) Article {
	link := item.Link
	if strings.TrimSpace(link) == "" && len(item.Links) > 0 {
		link = item.Links[0]
	}

	return Article{Title: item.Title, Link: link, Summary: item.Description}.Normalized()
}
