package harvester

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/appvault/harvester/metrics"
)

// listingMarkers identify archive-style URLs that link to many items.
var listingMarkers = []string{"/category/", "/categories/", "/tag/", "/tags/", "/page/"}

// trailingPagePattern matches a trailing numeric pagination segment.
var trailingPagePattern = regexp.MustCompile(`/\d+/?$`)

// excludedLinkMarkers reject navigation-style candidates on listing pages.
var excludedLinkMarkers = []string{
	"/category/", "/categories/", "/tag/", "/tags/", "/page/",
	"/author/", "/feed", "/search", "/wp-admin", "/wp-login",
	"/login", "/register", "/contact", "/about", "/privacy", "/terms",
}

// dateArchivePattern matches year/month archive paths.
var dateArchivePattern = regexp.MustCompile(`/\d{4}/\d{2}(/|$)`)

// articleLinkSelectors scope the first-tier anchor scan to article-like
// containers. Scanning every anchor on a chrome-heavy listing page produces
// many false positives that this scope avoids.
var articleLinkSelectors = []string{
	"article a[href]",
	".post a[href]",
	".entry a[href]",
	".post-title a[href]",
	"h2 a[href]",
	"h3 a[href]",
}

// DiscoverItemURLs classifies the seed and, for listing pages, paginates up
// to maxPages collecting normalized candidate item URLs. A single-item seed
// is returned as-is with no fetches. Pagination stops early when a page
// beyond the first yields zero new links or fails to fetch; URLs collected so
// far are kept either way.
func (h *Harvester) DiscoverItemURLs(ctx context.Context, seedURL string, maxPages int) ([]string, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		return nil, fmt.Errorf("seed URL must be http or https")
	}

	if !isListingURL(seed) {
		return []string{normalizeURL(seedURL)}, nil
	}

	if maxPages <= 0 {
		maxPages = 1
	}

	seen := make(map[string]bool)
	var found []string

	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if err := h.crawlLimiter.Wait(ctx); err != nil {
				break
			}
		}

		pageURL := paginatedURL(seedURL, page)
		rawHTML, err := h.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			// Out-of-range pages 404; treat as end of pagination.
			log.Printf("Stopping pagination at page %d: %v", page, err)
			break
		}
		metrics.PagesCrawled.Inc()

		newLinks := 0
		for _, link := range h.extractCandidateLinks(rawHTML, seed) {
			if seen[link] {
				continue
			}
			seen[link] = true
			found = append(found, link)
			newLinks++
		}

		if page > 1 && newLinks == 0 {
			break
		}
	}

	metrics.URLsDiscovered.Add(float64(len(found)))
	return found, nil
}

// isListingURL reports whether a URL looks like a category/tag/paginated
// archive rather than a single item page.
func isListingURL(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, marker := range listingMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	if trailingPagePattern.MatchString(path) {
		return true
	}
	if u.Query().Get("page") != "" || u.Query().Get("paged") != "" {
		return true
	}
	return false
}

// paginatedURL derives the URL for page n of a listing: query-param
// pagination when the seed already carries a query, a /page/n/ path segment
// otherwise. Page 1 is the seed itself.
func paginatedURL(seedURL string, page int) string {
	if page <= 1 {
		return seedURL
	}
	if strings.Contains(seedURL, "?") {
		return fmt.Sprintf("%s&page=%d", seedURL, page)
	}
	return fmt.Sprintf("%s/page/%d/", strings.TrimRight(seedURL, "/"), page)
}

// extractCandidateLinks scans a listing page for item links. Anchors nested
// under article-like containers are tried first; the all-anchor fallback runs
// only when that tier yields zero matches.
func (h *Harvester) extractCandidateLinks(rawHTML string, seed *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	scoped := doc.Find(strings.Join(articleLinkSelectors, ", "))
	if scoped.Length() == 0 {
		scoped = doc.Find("a[href]")
	}

	var links []string
	seen := make(map[string]bool)

	scoped.Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		candidate, ok := acceptCandidateLink(href, seed)
		if !ok || seen[candidate] {
			return
		}
		seen[candidate] = true
		links = append(links, candidate)
	})

	return links
}

// acceptCandidateLink validates one anchor href against the seed: same host,
// not a fragment, not navigation chrome, and a path deep enough to not be the
// bare domain. Returns the normalized absolute URL.
func acceptCandidateLink(href string, seed *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := seed.ResolveReference(parsed)

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if resolved.Host != seed.Host {
		return "", false
	}

	path := strings.ToLower(resolved.Path)
	for _, marker := range excludedLinkMarkers {
		if strings.Contains(path, marker) {
			return "", false
		}
	}
	if dateArchivePattern.MatchString(path) {
		return "", false
	}

	// At least two real path segments; bare-domain and section links like
	// /app/ are not item pages.
	segments := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments++
		}
	}
	if segments < 2 {
		return "", false
	}

	resolved.Fragment = ""
	return normalizeURL(resolved.String()), true
}

// normalizeURL strips the trailing slash so duplicates collapse.
func normalizeURL(raw string) string {
	return strings.TrimRight(raw, "/")
}
