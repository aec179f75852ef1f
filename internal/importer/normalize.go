package importer

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// ugcPolicy keeps links, lists and tables but drops scripts, styles and iframes.
var ugcPolicy = bluemonday.UGCPolicy()

// SanitizeHTML strips unsafe tags and attributes from scraped markup.
func SanitizeHTML(html string) string {
	return ugcPolicy.Sanitize(html)
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalizeSpace(html)
	}
	return normalizeSpace(doc.Text())
}

// cleanDescription turns a scraped HTML fragment into stored description text.
func cleanDescription(html string) string {
	return TruncateText(HTMLToText(SanitizeHTML(html)), maxDescriptionLen)
}

const maxDescriptionLen = 4000

// TruncateText cuts s to at most maxLen runes, appending an ellipsis if cut.
func TruncateText(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen > 3 {
		return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
	}
	return string(runes[:maxLen])
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(strings.ToValidUTF8(s, "")), " ")
}

var trackingParams = []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session", "s_cid"}

// CanonicalizeURL lowercases the host and drops fragments and tracking
// parameters so the same grant page always maps to one stored URL.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// resolveURL makes href absolute against base.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// splitAndCleanList splits a block of text into list items, dropping bullets
// and duplicates.
func splitAndCleanList(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	block = strings.ReplaceAll(block, "\r", "\n")

	var out []string
	for _, line := range strings.Split(block, "\n") {
		s := strings.TrimLeft(strings.TrimSpace(line), " \t-*•–")
		s = normalizeSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return mergeUniqueFold(nil, out)
}

// mergeUniqueFold appends items to dst, skipping case-insensitive duplicates.
func mergeUniqueFold(dst []string, items []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(items))
	for _, v := range dst {
		seen[strings.ToLower(v)] = struct{}{}
	}
	for _, v := range items {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

var (
	amountRegex = regexp.MustCompile(`\d[\d,\.]*`)
	// 10.000 or 1.000.000
	dotGrouping = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
)

// ParseAmount returns the largest amount mentioned in text and its currency.
// "up to $50,000" and "$10,000 - $50,000" both yield 50000.
func ParseAmount(text, defaultCurrency string) (*float64, string) {
	lower := strings.ToLower(text)

	currency := defaultCurrency
	switch {
	case strings.Contains(lower, "£") || strings.Contains(lower, "gbp"):
		currency = "GBP"
	case strings.Contains(lower, "€") || strings.Contains(lower, "eur"):
		currency = "EUR"
	case strings.Contains(lower, "$") || strings.Contains(lower, "usd"):
		currency = "USD"
	}

	var best float64
	for _, m := range amountRegex.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,")
		if dotGrouping.MatchString(m) {
			m = strings.ReplaceAll(m, ".", "")
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
		val, err := strconv.ParseFloat(m, 64)
		if err == nil && val > best {
			best = val
		}
	}

	if multiplier := amountSuffix(lower); multiplier > 1 && best > 0 && best < 1000 {
		best *= multiplier
	}
	if best <= 0 {
		return nil, ""
	}
	if currency == "" {
		currency = "USD"
	}
	return &best, currency
}

var (
	millionSuffix  = regexp.MustCompile(`\d\s*m\b`)
	thousandSuffix = regexp.MustCompile(`\d\s*k\b`)
)

func amountSuffix(lower string) float64 {
	switch {
	case strings.Contains(lower, "million") || millionSuffix.MatchString(lower):
		return 1_000_000
	case thousandSuffix.MatchString(lower):
		return 1_000
	}
	return 1
}

var deadlineFormats = []string{
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"02/01/2006",
}

var deadlinePrefixes = []string{"closing date:", "deadline:", "due date:", "closes:", "apply by", "applications close"}

// ParseDeadline parses a deadline in one of the common listing formats. Dates
// without a time resolve to the end of that day in UTC.
func ParseDeadline(text string) *time.Time {
	s := normalizeSpace(text)
	lower := strings.ToLower(s)
	for _, p := range deadlinePrefixes {
		if idx := strings.Index(lower, p); idx != -1 {
			s = strings.TrimSpace(s[idx+len(p):])
			lower = strings.ToLower(s)
		}
	}
	s = strings.TrimRight(s, ".")

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	for _, layout := range deadlineFormats {
		if t, err := time.Parse(layout, s); err == nil {
			end := endOfDay(t)
			return &end
		}
	}
	return findDeadline(s)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2}\b`),
}

// findDeadline returns the first date found anywhere in free text, such as the
// body of a PDF call document.
func findDeadline(text string) *time.Time {
	for _, re := range dateSnippetRegexes {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		m = titleMonth(m)
		for _, layout := range deadlineFormats {
			if t, err := time.Parse(layout, m); err == nil {
				end := endOfDay(t)
				return &end
			}
		}
	}
	return nil
}

// titleMonth fixes month casing ("JUNE" -> "June") so time.Parse accepts it.
func titleMonth(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f != "" && (f[0] < '0' || f[0] > '9') {
			fields[i] = strings.ToUpper(f[:1]) + strings.ToLower(f[1:])
		}
	}
	return strings.Join(fields, " ")
}
