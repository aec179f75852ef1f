package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestReadListItem(t *testing.T) {
	doc := mustDoc(t, `<div class="grant-item">
		<h3 class="grant-title"> Women in Fintech   Fund </h3>
		<a class="grant-link" href="/grants/wif?utm_source=list">Details</a>
		<div class="grant-summary"><p>Support for women-led fintech.</p></div>
		<span class="grant-amount">Up to $25,000</span>
		<span class="grant-deadline">Deadline: March 1, 2027</span>
	</div>`)
	page, _ := url.Parse("https://funder.example/grants/")
	sel := Selectors{
		Container: ".grant-item",
		Title:     ".grant-title",
		Link:      "a.grant-link",
		Content:   ".grant-summary",
		Amount:    ".grant-amount",
		Deadline:  ".grant-deadline",
	}

	raw, ok := readListItem(doc.Find(sel.Container).First(), sel, page)
	require.True(t, ok)
	assert.Equal(t, "Women in Fintech Fund", raw.Title)
	assert.Equal(t, "https://funder.example/grants/wif", raw.URL)
	assert.Contains(t, raw.DescriptionHTML, "women-led fintech")
	assert.Equal(t, "Up to $25,000", raw.AmountText)
	assert.Equal(t, "Deadline: March 1, 2027", raw.DeadlineText)
}

func TestReadListItem_NoLinkUsesPageURL(t *testing.T) {
	doc := mustDoc(t, `<article><h1>Open Grants Program</h1></article>`)
	page, _ := url.Parse("https://funder.example/faq#top")

	raw, ok := readListItem(doc.Find("article"), Selectors{Container: "article", Title: "h1"}, page)
	require.True(t, ok)
	assert.Equal(t, "https://funder.example/faq", raw.URL)
}

func TestReadListItem_SkipsUntitled(t *testing.T) {
	doc := mustDoc(t, `<div class="item"><a href="/x">x</a></div>`)
	_, ok := readListItem(doc.Find(".item"), Selectors{Container: ".item", Title: "h2", Link: "a"}, nil)
	assert.False(t, ok)
}

func TestReadDetail(t *testing.T) {
	doc := mustDoc(t, `<main>
		<div class="entry-content"><p>Full description of the DAO tooling grant.</p></div>
		<ul class="eligibility"><li>Open source</li><li>Deployed on mainnet</li></ul>
		<p class="deadline">2027-01-15</p>
		<a href="docs/call.pdf">Call document</a>
	</main>`)
	page, _ := url.Parse("https://funder.example/grants/dao/")
	raw := RawGrant{Title: "DAO Tooling", DescriptionHTML: "short", Requirements: []string{"open source"}}

	readDetail(doc.Selection, Detail{
		Enabled:      true,
		Description:  ".entry-content",
		Requirements: ".eligibility",
		Deadline:     ".deadline",
		PDF:          "a[href$='.pdf']",
	}, page, &raw)

	assert.Contains(t, raw.DescriptionHTML, "DAO tooling grant")
	assert.Equal(t, []string{"open source", "Deployed on mainnet"}, raw.Requirements)
	assert.Equal(t, "2027-01-15", raw.DeadlineText)
	assert.Equal(t, "https://funder.example/grants/dao/docs/call.pdf", raw.PDFURL)
}

func newGrantSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/grants", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `<html><body>
				<div class="grant-item"><h3>Web3 Builders</h3><a class="link" href="/grants/web3">more</a></div>
				<a class="next" href="/grants?page=1">next</a>
			</body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>
			<div class="grant-item"><h3>Women Founders Fund</h3><a class="link" href="/grants/women">more</a>
				<p class="summary">Grants for women founders.</p></div>
			<div class="grant-item"><h3>Women Founders Fund</h3><a class="link" href="/grants/women#dup">more</a></div>
			<a class="next" href="/grants?page=2">next</a>
		</body></html>`)
	})
	mux.HandleFunc("/grants/women", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div class="body"><p>Equity-free grants for women-led startups.</p></div>
			<span class="amount">$10,000</span></body></html>`)
	})
	mux.HandleFunc("/grants/web3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div class="body"><p>Funding for blockchain public goods.</p></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollyScraper_PaginatesAndReadsDetails(t *testing.T) {
	srv := newGrantSite(t)
	src := Source{
		ID:      "test-site",
		BaseURL: srv.URL + "/grants",
		Selectors: Selectors{
			Container: ".grant-item",
			Title:     "h3",
			Link:      "a.link",
			Content:   ".summary",
		},
		Pagination: Pagination{Next: "a.next"},
		MaxPages:   5,
		Detail:     Detail{Enabled: true, Description: ".body", Amount: ".amount"},
		Fetch:      Fetch{RateLimitRPS: 1000, TimeoutSeconds: 5},
	}

	items, err := NewCollyScraper().Scrape(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Women Founders Fund", items[0].Title)
	assert.Equal(t, srv.URL+"/grants/women", items[0].URL)
	assert.Contains(t, items[0].DescriptionHTML, "Equity-free grants")
	assert.Equal(t, "$10,000", items[0].AmountText)

	assert.Equal(t, "Web3 Builders", items[1].Title)
	assert.Contains(t, items[1].DescriptionHTML, "blockchain public goods")
}

func TestCollyScraper_FirstPageErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewCollyScraper().Scrape(context.Background(), Source{
		ID:        "missing",
		BaseURL:   srv.URL + "/nothing",
		Selectors: Selectors{Container: "div", Title: "h1"},
		Fetch:     Fetch{RateLimitRPS: 1000},
	})
	assert.Error(t, err)
}
