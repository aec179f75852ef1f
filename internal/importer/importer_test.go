package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grantmatch/internal/models"
)

type fakeStore struct {
	grants   []models.Grant
	vectors  [][]float32
	failURL  string
	runID    uuid.UUID
	finished struct {
		status              string
		found, saved, errs int
	}
}

func (s *fakeStore) UpsertGrant(_ context.Context, g *models.Grant, embedding []float32) error {
	if g.URL == s.failURL {
		return errors.New("constraint violation")
	}
	g.ID = uuid.New()
	s.grants = append(s.grants, *g)
	s.vectors = append(s.vectors, embedding)
	return nil
}

func (s *fakeStore) StartImportRun(context.Context, string) (uuid.UUID, error) {
	s.runID = uuid.New()
	return s.runID, nil
}

func (s *fakeStore) FinishImportRun(_ context.Context, runID uuid.UUID, status string, found, saved, errs int) error {
	s.finished.status = status
	s.finished.found, s.finished.saved, s.finished.errs = found, saved, errs
	return nil
}

type fakeScraper struct {
	items []RawGrant
	err   error
}

func (f fakeScraper) Scrape(context.Context, Source) ([]RawGrant, error) {
	return f.items, f.err
}

type fakeTagger struct{ response string }

func (f fakeTagger) GenerateCompletion(context.Context, string, bool) (string, error) {
	return f.response, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func testRegistry() *Registry {
	return &Registry{Sources: []Source{{
		ID:           "womens-fund",
		Name:         "Women's Fund",
		BaseURL:      "https://funder.example/grants",
		Organization: "Women's Fund",
		Currency:     "USD",
		Tags:         []string{"Women"},
		Selectors:    Selectors{Container: ".grant", Title: "h3"},
	}}}
}

func TestRun_SavesItemsAndRecordsRun(t *testing.T) {
	store := &fakeStore{failURL: "https://funder.example/grants/broken"}
	scraper := fakeScraper{items: []RawGrant{
		{
			Title:           "Women in Fintech",
			URL:             "https://funder.example/grants/wif?utm_campaign=x",
			DescriptionHTML: "<p>For women-led fintech startups.</p>",
			AmountText:      "Up to $25,000",
			DeadlineText:    "2027-03-01",
			Requirements:    []string{"Women-led"},
		},
		{Title: "Broken", URL: "https://funder.example/grants/broken"},
		{Title: "   ", URL: "https://funder.example/grants/untitled"},
	}}

	var seen []string
	im, err := New(store,
		WithRegistry(testRegistry()),
		WithScraper(scraper),
		WithEmbedder(fakeEmbedder{}),
		WithTagger(fakeTagger{response: `{"tags": ["fintech", "unknown"]}`}, []string{"fintech", "women"}),
		WithOnItem(func(g models.Grant, err error) { seen = append(seen, g.Title) }),
	)
	require.NoError(t, err)

	stats, err := im.Run(context.Background(), "womens-fund")
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 3, Saved: 1, Errors: 2}, stats)
	assert.Equal(t, []string{"Women in Fintech", "Broken", ""}, seen)

	require.Len(t, store.grants, 1)
	g := store.grants[0]
	assert.Equal(t, "https://funder.example/grants/wif", g.URL)
	assert.Equal(t, "Women's Fund", g.Organization)
	assert.Equal(t, "For women-led fintech startups.", g.Description)
	assert.Equal(t, []string{"women", "fintech"}, g.Tags)
	assert.Equal(t, "womens-fund", g.SourceID)
	require.NotNil(t, g.Amount)
	assert.Equal(t, 25000.0, *g.Amount)
	assert.Equal(t, "USD", g.Currency)
	require.NotNil(t, g.Deadline)
	assert.Equal(t, "2027-03-01", g.Deadline.Format("2006-01-02"))
	assert.Equal(t, []float32{0.1, 0.2}, store.vectors[0])

	assert.Equal(t, RunCompleted, store.finished.status)
	assert.Equal(t, 3, store.finished.found)
	assert.Equal(t, 1, store.finished.saved)
	assert.Equal(t, 2, store.finished.errs)
}

func TestRun_ScrapeErrorFailsRun(t *testing.T) {
	store := &fakeStore{}
	im, err := New(store, WithRegistry(testRegistry()), WithScraper(fakeScraper{err: errors.New("timeout")}))
	require.NoError(t, err)

	_, err = im.Run(context.Background(), "womens-fund")
	require.Error(t, err)
	assert.Equal(t, RunFailed, store.finished.status)
}

func TestRun_UnknownSource(t *testing.T) {
	im, err := New(&fakeStore{}, WithRegistry(testRegistry()), WithScraper(fakeScraper{}))
	require.NoError(t, err)

	_, err = im.Run(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestBuildGrant_UsesPDFWhenListingIsThin(t *testing.T) {
	im := &Importer{}
	g, err := im.buildGrant(context.Background(), testRegistry().Sources[0], RawGrant{
		Title:   "DAO Grants",
		URL:     "https://funder.example/dao",
		PDFText: "Call for proposals. Applications close 15 August 2027.",
	})
	require.NoError(t, err)
	assert.Contains(t, g.Description, "Call for proposals")
	require.NotNil(t, g.Deadline)
	assert.Equal(t, "2027-08-15", g.Deadline.Format("2006-01-02"))
	assert.Nil(t, g.Amount)
	assert.Empty(t, g.Currency)
}

func TestRegistry_EmbeddedSourcesParse(t *testing.T) {
	reg, err := LoadRegistry()
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Sources)

	src, ok := reg.Source("womens-fund")
	require.True(t, ok)
	assert.Equal(t, defaultUserAgent, src.Fetch.userAgent())
}

func TestParseRegistry_Validation(t *testing.T) {
	t.Setenv("GRANT_PORTAL", "https://portal.example/grants")

	reg, err := ParseRegistry([]byte(`
sources:
  - id: portal
    base_url: ${GRANT_PORTAL}
    selectors: {container: ".g", title: "h2"}
`))
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example/grants", reg.Sources[0].BaseURL)
	assert.Equal(t, []string{"portal"}, reg.IDs())

	_, err = ParseRegistry([]byte(`
sources:
  - id: a
    base_url: https://a.example
    selectors: {container: ".g", title: "h2"}
  - id: a
    base_url: https://b.example
    selectors: {container: ".g", title: "h2"}
`))
	assert.ErrorContains(t, err, "duplicate id")

	_, err = ParseRegistry([]byte(`
sources:
  - id: nosel
    base_url: https://a.example
`))
	assert.ErrorContains(t, err, "selectors are required")
}
