// Package analysis sends aggregated articles, citizen questions and policy
// topics to the AI provider and shapes the replies for the web endpoint,
// the shell and the broadcast sink.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/civicwatch/internal/aggregate"
	"github.com/abelbrown/civicwatch/internal/brain"
	"github.com/abelbrown/civicwatch/internal/cache"
)

// Fixed reply texts.
const (
	NoAnalysis         = "No analysis generated."
	NoAnswer           = "No answer generated."
	NoRecommendation   = "No recommendation generated."
	DefaultPolicyTopic = "Current government policy and recent news in Kenya."

	// DateLayout renders dates as "Wednesday, 15 October 2025".
	DateLayout = "Monday, 02 January 2006"

	DefaultReportKey   = "analysis_output.json"
	DefaultConcurrency = 2
)

// ErrEmptyQuestion is returned by AskQuestion for a blank question.
var ErrEmptyQuestion = errors.New("question is required")

// Aggregator produces the article batch to analyze.
type Aggregator interface {
	Aggregate(ctx context.Context) aggregate.Batch
}

// ArticleAnalysis is the AI's reading of one article.
type ArticleAnalysis struct {
	Title    string `json:"title"`
	Analysis string `json:"analysis"`
	Source   string `json:"source"`
}

// Report is the result of one analysis cycle.
type Report struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Analyses  []ArticleAnalysis `json:"analyses"`
	Origin    aggregate.Origin  `json:"origin"`
	RunID     string            `json:"run_id"`
}

// Answer is the reply to a citizen question.
type Answer struct {
	Answer   string `json:"answer"`
	DateUsed string `json:"date_used"`
}

// Recommendation holds policy recommendations. Status is "success" or "error".
type Recommendation struct {
	Status          string `json:"status"`
	Recommendations string `json:"recommendations"`
}

// Options configures a Dispatcher.
type Options struct {
	// Store persists the latest report. Nil disables persistence.
	Store       cache.BlobStore
	ReportKey   string
	Concurrency int
	Logger      *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Dispatcher relays work to the AI provider.
type Dispatcher struct {
	agg         Aggregator
	provider    brain.Provider
	store       cache.BlobStore
	reportKey   string
	concurrency int
	log         *log.Logger
	now         func() time.Time
}

// New creates a Dispatcher. provider may be nil; operations that need it
// then fail with brain.ErrNotConfigured.
func New(agg Aggregator, provider brain.Provider, opts Options) *Dispatcher {
	if opts.ReportKey == "" {
		opts.ReportKey = DefaultReportKey
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		agg:         agg,
		provider:    provider,
		store:       opts.Store,
		reportKey:   opts.ReportKey,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
		now:         opts.Now,
	}
}

func (d *Dispatcher) ready() error {
	if d.provider == nil || !d.provider.Available() {
		return brain.ErrNotConfigured
	}
	return nil
}

// AnalyzeNews aggregates articles once and analyzes each of them. A failed
// completion becomes error text on that item only. The report keeps
// article order and replaces the previously persisted one.
func (d *Dispatcher) AnalyzeNews(ctx context.Context) (Report, error) {
	if err := d.ready(); err != nil {
		return Report{}, err
	}

	runID := uuid.NewString()
	logger := d.log.With("run_id", runID)

	batch := d.agg.Aggregate(ctx)
	logger.Info("analyzing articles", "articles", len(batch.Articles), "origin", batch.Origin)

	analyses := make([]ArticleAnalysis, len(batch.Articles))
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, art := range batch.Articles {
		g.Go(func() error {
			item := ArticleAnalysis{Title: art.Title, Source: art.Link}

			resp, err := d.provider.Generate(ctx, brain.Request{UserPrompt: articlePrompt(art)})
			switch {
			case err != nil:
				logger.Warn("article analysis failed", "title", art.Title, "err", err)
				item.Analysis = fmt.Sprintf("AI generation error: %v", err)
			case strings.TrimSpace(resp.Content) == "":
				item.Analysis = NoAnalysis
			default:
				item.Analysis = resp.Content
			}
			analyses[i] = item
			return nil
		})
	}
	_ = g.Wait() // per-article failures are recorded in the items

	report := Report{
		Status:    "success",
		Timestamp: d.now(),
		Analyses:  analyses,
		Origin:    batch.Origin,
		RunID:     runID,
	}

	if d.store != nil {
		if err := cache.SaveJSON(ctx, d.store, d.reportKey, report); err != nil {
			logger.Warn("failed to save analysis report", "key", d.reportKey, "err", err)
		}
	}
	return report, nil
}

// LastReport returns the most recently persisted report.
func (d *Dispatcher) LastReport(ctx context.Context) (Report, error) {
	if d.store == nil {
		return Report{}, cache.ErrNotFound
	}
	var r Report
	if err := cache.LoadJSON(ctx, d.store, d.reportKey, &r); err != nil {
		return Report{}, err
	}
	return r, nil
}

// AskQuestion answers a citizen question with today's date in the prompt.
// A failed completion is returned as answer text, not as an error.
func (d *Dispatcher) AskQuestion(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if err := d.ready(); err != nil {
		return Answer{}, err
	}

	date := d.now().Format(DateLayout)
	resp, err := d.provider.Generate(ctx, brain.Request{UserPrompt: questionPrompt(question, date)})
	switch {
	case err != nil:
		d.log.Warn("question failed", "err", err)
		return Answer{Answer: fmt.Sprintf("AI generation error: %v", err), DateUsed: date}, nil
	case strings.TrimSpace(resp.Content) == "":
		return Answer{Answer: NoAnswer, DateUsed: date}, nil
	}
	return Answer{Answer: resp.Content, DateUsed: date}, nil
}

// Recommend asks for policy recommendations on topic. A blank topic uses
// the analyses of the last persisted report, or DefaultPolicyTopic when
// there is none.
func (d *Dispatcher) Recommend(ctx context.Context, topic string) Recommendation {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = d.contextFromLastReport(ctx)
	}

	if err := d.ready(); err != nil {
		return Recommendation{Status: "error", Recommendations: fmt.Sprintf("AI error: %v", err)}
	}

	resp, err := d.provider.Generate(ctx, brain.Request{UserPrompt: recommendationPrompt(topic)})
	switch {
	case err != nil:
		d.log.Warn("recommendation failed", "err", err)
		return Recommendation{Status: "error", Recommendations: fmt.Sprintf("AI error: %v", err)}
	case strings.TrimSpace(resp.Content) == "":
		return Recommendation{Status: "success", Recommendations: NoRecommendation}
	}
	return Recommendation{Status: "success", Recommendations: resp.Content}
}

func (d *Dispatcher) contextFromLastReport(ctx context.Context) string {
	report, err := d.LastReport(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			d.log.Warn("last analysis report unusable", "err", err)
		}
		return DefaultPolicyTopic
	}

	texts := make([]string, len(report.Analyses))
	for i, a := range report.Analyses {
		texts[i] = a.Analysis
	}
	joined := strings.Join(texts, "\n")
	if strings.TrimSpace(joined) == "" {
		return DefaultPolicyTopic
	}
	return joined
}
