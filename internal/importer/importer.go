// Package importer scrapes configured grant sources and upserts the grants it
// finds, recording one import run per invocation.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/metrics"
	"github.com/david/grantmatch/internal/models"
)

var (
	ErrUnknownSource = errors.New("unknown import source")
	errMissingTitle  = errors.New("grant has no title")
	errMissingURL    = errors.New("grant has no url")
)

const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Store is the persistence the importer writes through.
type Store interface {
	UpsertGrant(ctx context.Context, g *models.Grant, embedding []float32) error
	StartImportRun(ctx context.Context, sourceID string) (uuid.UUID, error)
	FinishImportRun(ctx context.Context, runID uuid.UUID, status string, found, saved, errs int) error
}

type Stats struct {
	Found  int `json:"found"`
	Saved  int `json:"saved"`
	Errors int `json:"errors"`
}

type Importer struct {
	store      Store
	registry   *Registry
	scraper    Scraper
	embedder   ai.Embedder
	tagger     ai.Generator
	vocabulary []string
	onItem     func(models.Grant, error)
}

type Option func(*Importer)

func WithRegistry(r *Registry) Option {
	return func(im *Importer) { im.registry = r }
}

func WithScraper(s Scraper) Option {
	return func(im *Importer) { im.scraper = s }
}

// WithEmbedder stores an embedding with each grant for semantic search.
func WithEmbedder(e ai.Embedder) Option {
	return func(im *Importer) { im.embedder = e }
}

// WithTagger lets the model add tags from vocabulary to each grant.
func WithTagger(gen ai.Generator, vocabulary []string) Option {
	return func(im *Importer) {
		im.tagger = gen
		im.vocabulary = vocabulary
	}
}

// WithOnItem is called after every item with the grant and its save error.
func WithOnItem(fn func(models.Grant, error)) Option {
	return func(im *Importer) { im.onItem = fn }
}

// New builds an importer over the embedded registry and a colly scraper
// unless options replace them.
func New(store Store, opts ...Option) (*Importer, error) {
	im := &Importer{store: store}
	for _, opt := range opts {
		opt(im)
	}
	if im.registry == nil {
		reg, err := LoadRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
		im.registry = reg
	}
	if im.scraper == nil {
		im.scraper = NewCollyScraper()
	}
	return im, nil
}

// Sources lists the ids Run accepts.
func (im *Importer) Sources() []string {
	return im.registry.IDs()
}

// Run imports a single source. Item failures are counted, not returned; the
// error is non-nil only when the source could not be scraped at all.
func (im *Importer) Run(ctx context.Context, sourceID string) (Stats, error) {
	src, ok := im.registry.Source(sourceID)
	if !ok {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	runID, err := im.store.StartImportRun(ctx, src.ID)
	if err != nil {
		log.Printf("[importer] failed to create import run for %s: %v", src.ID, err)
	}

	start := time.Now()
	var stats Stats
	var runErr error
	defer func() {
		status := RunCompleted
		if runErr != nil || (stats.Saved == 0 && stats.Found > 0) {
			status = RunFailed
		}
		if runID != uuid.Nil {
			if err := im.store.FinishImportRun(context.WithoutCancel(ctx), runID, status, stats.Found, stats.Saved, stats.Errors); err != nil {
				log.Printf("[importer] failed to finish import run %s: %v", runID, err)
			}
		}
		log.Printf("[importer] %s %s in %s: found=%d saved=%d errors=%d",
			src.ID, status, time.Since(start).Round(time.Millisecond), stats.Found, stats.Saved, stats.Errors)
	}()

	log.Printf("[importer] starting import for %s (%s)", src.Name, src.ID)
	raws, err := im.scraper.Scrape(ctx, src)
	if err != nil {
		runErr = err
		return stats, fmt.Errorf("scrape %s: %w", src.ID, err)
	}
	stats.Found = len(raws)

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			runErr = err
			return stats, err
		}

		g, err := im.buildGrant(ctx, src, raw)
		if err == nil {
			err = im.store.UpsertGrant(ctx, &g, im.embed(ctx, g))
		}
		if err != nil {
			stats.Errors++
			metrics.RecordImportItem(src.ID, "error")
			log.Printf("[importer] %s: failed to save %q: %v", src.ID, raw.Title, err)
		} else {
			stats.Saved++
			metrics.RecordImportItem(src.ID, "saved")
		}
		if im.onItem != nil {
			im.onItem(g, err)
		}
	}
	return stats, nil
}

// buildGrant normalizes a scraped item into a grant.
func (im *Importer) buildGrant(ctx context.Context, src Source, raw RawGrant) (models.Grant, error) {
	title := normalizeSpace(raw.Title)
	if title == "" {
		return models.Grant{}, errMissingTitle
	}
	if raw.URL == "" {
		return models.Grant{Title: title}, errMissingURL
	}

	desc := cleanDescription(raw.DescriptionHTML)
	if len(desc) < 200 && raw.PDFText != "" {
		desc = TruncateText(strings.TrimSpace(desc+" "+raw.PDFText), maxDescriptionLen)
	}

	g := models.Grant{
		Title:        title,
		Organization: src.Organization,
		Description:  desc,
		URL:          CanonicalizeURL(raw.URL),
		Requirements: raw.Requirements,
		SourceID:     src.ID,
	}

	g.Amount, g.Currency = ParseAmount(raw.AmountText, src.Currency)
	g.Deadline = ParseDeadline(raw.DeadlineText)
	if g.Deadline == nil && raw.PDFText != "" {
		g.Deadline = findDeadline(raw.PDFText)
	}

	tags := make([]string, 0, len(src.Tags))
	for _, t := range src.Tags {
		tags = append(tags, strings.ToLower(t))
	}
	if im.tagger != nil && len(im.vocabulary) > 0 {
		suggested, err := ai.SuggestTags(ctx, im.tagger, title, TruncateText(desc, 1000), im.vocabulary)
		if err != nil {
			log.Printf("[importer] tagging failed for %q: %v", title, err)
		}
		tags = mergeUniqueFold(tags, suggested)
	}
	g.Tags = mergeUniqueFold(nil, tags)
	return g, nil
}

func (im *Importer) embed(ctx context.Context, g models.Grant) []float32 {
	if im.embedder == nil {
		return nil
	}
	vec, err := im.embedder.GenerateEmbedding(ctx, g.Title+"\n"+g.Description)
	if err != nil {
		log.Printf("[importer] embedding failed for %q: %v", g.Title, err)
		return nil
	}
	return vec
}
