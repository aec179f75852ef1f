// Package matcher turns a founder's free-text project description into a short
// list of explained grant matches.
//
// A query runs once through each stage: normalize, extract keywords with the
// generator, filter the grant snapshot (category overrides first, extracted
// keywords otherwise), rank by shared signals, explain the top K, format.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/metrics"
	"github.com/david/grantmatch/internal/models"
)

var (
	ErrEmptyQuery  = errors.New("query is required")
	ErrGrantSource = errors.New("failed to fetch grants")
)

const DefaultTopK = 2

// GrantSource returns the full grant snapshot for one query.
type GrantSource interface {
	AllGrants(ctx context.Context) ([]models.Grant, error)
}

type Matcher struct {
	source GrantSource
	gen    ai.Generator
	rules  *Rules
	topK   int
}

type Option func(*Matcher)

func WithTopK(k int) Option {
	return func(m *Matcher) {
		if k > 0 {
			m.topK = k
		}
	}
}

func WithRules(r *Rules) Option {
	return func(m *Matcher) {
		if r != nil {
			m.rules = r
		}
	}
}

// New builds a Matcher. gen may be nil when no AI provider is configured; Match
// then fails with ai.ErrMissingAPIKey for every non-empty query.
func New(source GrantSource, gen ai.Generator, opts ...Option) (*Matcher, error) {
	m := &Matcher{source: source, gen: gen, topK: DefaultTopK}
	for _, opt := range opts {
		opt(m)
	}
	if m.rules == nil {
		rules, err := DefaultRules()
		if err != nil {
			return nil, err
		}
		m.rules = rules
	}
	return m, nil
}

func (m *Matcher) Match(ctx context.Context, raw string) (*models.MatchResponse, error) {
	start := time.Now()

	q, err := Normalize(raw)
	if err != nil {
		metrics.RecordMatch("invalid", time.Since(start))
		return nil, err
	}
	if m.gen == nil {
		metrics.RecordMatch("misconfigured", time.Since(start))
		return nil, ai.ErrMissingAPIKey
	}

	grants, err := m.source.AllGrants(ctx)
	if err != nil {
		metrics.RecordMatch("upstream_error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrGrantSource, err)
	}

	keywords := ExtractKeywords(ctx, m.gen, q.Raw)

	candidates, rule := Filter(grants, q, keywords, m.rules)
	metrics.RecordRuleHit(rule)

	ranked := Rank(candidates, q.Lowered, m.rules.Signals)
	if len(ranked) > m.topK {
		ranked = ranked[:m.topK]
	}

	var results []models.MatchResult
	if len(ranked) > 0 {
		s := &synthesizer{
			gen:        m.gen,
			vocabulary: appendUnique(appendUnique(nil, keywords...), m.rules.Vocabulary()...),
		}
		results = s.explain(ctx, q, ranked)
	}

	resp := Format(results)
	log.Printf("[matcher] rule=%s keywords=%d candidates=%d returned=%d in %s",
		rule, len(keywords), len(candidates), len(resp.Grants), time.Since(start).Round(time.Millisecond))
	metrics.RecordMatch("ok", time.Since(start))
	return &resp, nil
}
