package importer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// RawGrant is a grant as read from a source page, before normalization.
type RawGrant struct {
	Title           string
	URL             string
	DescriptionHTML string
	AmountText      string
	DeadlineText    string
	Requirements    []string
	PDFURL          string
	PDFText         string
}

// Scraper reads raw grants for a source.
type Scraper interface {
	Scrape(ctx context.Context, src Source) ([]RawGrant, error)
}

// CollyScraper walks a source's listing pages with colly, following
// pagination and optionally each item's detail page and PDF call document.
type CollyScraper struct{}

func NewCollyScraper() *CollyScraper {
	return &CollyScraper{}
}

func (s *CollyScraper) Scrape(ctx context.Context, src Source) ([]RawGrant, error) {
	base, err := url.Parse(src.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", src.BaseURL)
	}

	collector := colly.NewCollector(
		colly.UserAgent(src.Fetch.userAgent()),
		colly.DetectCharset(),
		colly.AllowURLRevisit(),
	)
	delay := src.Fetch.delay()
	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
		RandomDelay: delay / 2,
	})
	collector.SetRequestTimeout(src.Fetch.timeout())

	abortIfDone := func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		log.Printf("[importer] %s: visiting %s", src.ID, r.URL)
	}

	// Clones share the limit rules but not the callbacks.
	detailCollector := collector.Clone()
	pdfCollector := collector.Clone()

	var items []RawGrant
	seen := make(map[string]bool)
	collector.OnHTML(src.Selectors.Container, func(e *colly.HTMLElement) {
		raw, ok := readListItem(e.DOM, src.Selectors, e.Request.URL)
		if !ok || seen[raw.URL] {
			return
		}
		seen[raw.URL] = true
		items = append(items, raw)
	})

	var nextPageURL string
	if src.Pagination.Next != "" {
		collector.OnHTML(src.Pagination.Next, func(e *colly.HTMLElement) {
			if nextPageURL == "" {
				nextPageURL = e.Request.AbsoluteURL(e.Attr("href"))
			}
		})
	}

	var pageErr error
	collector.OnRequest(abortIfDone)
	collector.OnError(func(r *colly.Response, err error) {
		log.Printf("[importer] %s: error fetching %s: %v", src.ID, r.Request.URL, err)
		pageErr = err
	})

	visited := make(map[string]bool)
	currentURL := src.BaseURL
	for page := 1; page <= src.maxPages(); page++ {
		canon := CanonicalizeURL(currentURL)
		if visited[canon] {
			log.Printf("[importer] %s: pagination cycle at %s, stopping", src.ID, canon)
			break
		}
		visited[canon] = true

		nextPageURL = ""
		pageErr = nil
		if err := collector.Visit(currentURL); err != nil && page == 1 {
			return nil, fmt.Errorf("visit %s: %w", currentURL, err)
		}
		collector.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pageErr != nil {
			if page == 1 {
				return nil, fmt.Errorf("fetch %s: %w", currentURL, pageErr)
			}
			break
		}
		if nextPageURL == "" || !sameHost(base, nextPageURL) {
			break
		}
		currentURL = nextPageURL
	}

	if src.Detail.Enabled {
		detailCollector.OnRequest(abortIfDone)
		detailCollector.OnResponse(func(r *colly.Response) {
			idx, ok := r.Ctx.GetAny("item").(int)
			if !ok {
				return
			}
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
			if err != nil {
				log.Printf("[importer] %s: parse detail %s: %v", src.ID, r.Request.URL, err)
				return
			}
			readDetail(doc.Selection, src.Detail, r.Request.URL, &items[idx])
		})
		detailCollector.OnError(func(r *colly.Response, err error) {
			log.Printf("[importer] %s: detail fetch failed for %s: %v", src.ID, r.Request.URL, err)
		})

		for i := range items {
			if !sameHost(base, items[i].URL) || items[i].URL == CanonicalizeURL(src.BaseURL) {
				continue
			}
			visitWithItem(detailCollector, items[i].URL, i)
		}
		detailCollector.Wait()

		pdfCollector.OnRequest(abortIfDone)
		pdfCollector.OnResponse(func(r *colly.Response) {
			idx, ok := r.Ctx.GetAny("item").(int)
			if !ok || !isPDF(r.Headers.Get("Content-Type"), r.Body) {
				return
			}
			text, err := extractPDFText(r.Body)
			if err != nil {
				log.Printf("[importer] %s: read pdf %s: %v", src.ID, r.Request.URL, err)
				return
			}
			items[idx].PDFText = normalizeSpace(text)
		})
		for i := range items {
			if items[i].PDFURL != "" {
				visitWithItem(pdfCollector, items[i].PDFURL, i)
			}
		}
		pdfCollector.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func visitWithItem(c *colly.Collector, target string, idx int) {
	reqCtx := colly.NewContext()
	reqCtx.Put("item", idx)
	if err := c.Request(http.MethodGet, target, nil, reqCtx, nil); err != nil {
		log.Printf("[importer] visit %s: %v", target, err)
	}
}

// readListItem extracts one grant from a listing item. Without a link
// selector the item's own href is used, then the page URL.
func readListItem(item *goquery.Selection, sel Selectors, page *url.URL) (RawGrant, bool) {
	title := normalizeSpace(item.Find(sel.Title).First().Text())

	var href string
	if sel.Link == "" || sel.Link == "." {
		href, _ = item.Attr("href")
	} else {
		href, _ = item.Find(sel.Link).First().Attr("href")
	}
	link := resolveURL(page, href)
	if link == "" && page != nil {
		link = page.String()
	}

	if title == "" || link == "" {
		return RawGrant{}, false
	}

	raw := RawGrant{Title: title, URL: CanonicalizeURL(link)}
	if sel.Content != "" {
		raw.DescriptionHTML, _ = item.Find(sel.Content).First().Html()
	}
	if sel.Amount != "" {
		raw.AmountText = normalizeSpace(item.Find(sel.Amount).First().Text())
	}
	if sel.Deadline != "" {
		raw.DeadlineText = normalizeSpace(item.Find(sel.Deadline).First().Text())
	}
	return raw, true
}

// readDetail fills raw from its detail page. Values found on the detail page
// replace the listing's shorter versions.
func readDetail(doc *goquery.Selection, d Detail, page *url.URL, raw *RawGrant) {
	if d.Description != "" {
		if html, err := doc.Find(d.Description).First().Html(); err == nil && strings.TrimSpace(html) != "" {
			raw.DescriptionHTML = html
		}
	}
	if d.Requirements != "" {
		doc.Find(d.Requirements).Each(func(_ int, s *goquery.Selection) {
			raw.Requirements = mergeUniqueFold(raw.Requirements, listItems(s))
		})
	}
	if d.Amount != "" {
		if text := normalizeSpace(doc.Find(d.Amount).First().Text()); text != "" {
			raw.AmountText = text
		}
	}
	if d.Deadline != "" {
		if text := normalizeSpace(doc.Find(d.Deadline).First().Text()); text != "" {
			raw.DeadlineText = text
		}
	}
	if d.PDF != "" && raw.PDFURL == "" {
		if href, ok := doc.Find(d.PDF).First().Attr("href"); ok {
			raw.PDFURL = resolveURL(page, href)
		}
	}
}

// listItems returns the <li> texts under s, or its text split into lines.
func listItems(s *goquery.Selection) []string {
	if goquery.NodeName(s) == "li" {
		return []string{normalizeSpace(s.Text())}
	}
	if lis := s.Find("li"); lis.Length() > 0 {
		var out []string
		lis.Each(func(_ int, li *goquery.Selection) {
			out = append(out, normalizeSpace(li.Text()))
		})
		return out
	}
	return splitAndCleanList(s.Text())
}

func sameHost(base *url.URL, target string) bool {
	u, err := url.Parse(target)
	return err == nil && strings.EqualFold(u.Host, base.Host)
}
