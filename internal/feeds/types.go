// Package feeds defines the article model shared by the ingestion pipeline,
// the list of configured news sources, and the feed parser.
package feeds

import "strings"

// Format is the syndication format a source is expected to serve.
// The parser detects the real format from the payload; Format is informational.
type Format string

const (
	FormatRSS  Format = "rss"
	FormatRDF  Format = "rdf"
	FormatAtom Format = "atom"
)

// Placeholder values substituted for missing entry fields.
const (
	UntitledTitle    = "Untitled"
	MissingLink      = "No link"
	MissingSummary   = "No summary available."
	placeholderTitle = "Government launches new affordable housing project"
	placeholderLink  = "https://example.com/fallback"
	placeholderBody  = "The Kenyan government has announced a new affordable housing project " +
		"aimed at urban youth and low-income families."
)

// Source is one configured feed endpoint. Sources are defined at startup
// and never mutated.
type Source struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	Format Format `yaml:"format" json:"format"`
}

// Article is a single feed entry. Every field is always populated,
// possibly with placeholder text.
type Article struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Summary string `json:"summary"`
}

// Normalized returns a copy of a with surrounding whitespace trimmed and
// blank fields replaced by their placeholders.
func (a Article) Normalized() Article {
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		a.Title = UntitledTitle
	}
	a.Link = strings.TrimSpace(a.Link)
	if a.Link == "" {
		a.Link = MissingLink
	}
	a.Summary = strings.TrimSpace(a.Summary)
	if a.Summary == "" {
		a.Summary = MissingSummary
	}
	return a
}

// WithPlaceholders returns a copy of a with blank fields replaced by their
// placeholders. Non-blank fields are kept byte for byte.
func (a Article) WithPlaceholders() Article {
	if strings.TrimSpace(a.Title) == "" {
		a.Title = UntitledTitle
	}
	if strings.TrimSpace(a.Link) == "" {
		a.Link = MissingLink
	}
	if strings.TrimSpace(a.Summary) == "" {
		a.Summary = MissingSummary
	}
	return a
}

// Placeholder returns the built-in article used when neither live feeds
// nor the cache produced anything.
func Placeholder() Article {
	return Article{
		Title:   placeholderTitle,
		Link:    placeholderLink,
		Summary: placeholderBody,
	}
}

// IsPlaceholder reports whether a is the built-in placeholder article.
func IsPlaceholder(a Article) bool {
	return a == Placeholder()
}
