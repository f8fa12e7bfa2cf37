package harvester

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"

	"github.com/appvault/harvester/metrics"
	"github.com/appvault/harvester/models"
	"github.com/appvault/harvester/slug"
)

// placeholderTitle is used when no title cascade tier matches. The extraction
// contract guarantees a non-empty title, so the placeholder is the last tier.
const placeholderTitle = "Untitled"

// contentSelectors are tried in preference order for the main content
// container.
var contentSelectors = []string{
	"article",
	".entry-content",
	".post-content",
	".article-content",
	"main",
}

// descriptionSelectors are body-selection fallbacks for pages that label
// their content region as a description.
var descriptionSelectors = []string{
	"#description",
	".description",
	"[itemprop='description']",
	".app-description",
}

// featuredImageSelectors locate a thumbnail when no meta tag declares one.
var featuredImageSelectors = []string{
	".post-thumbnail img",
	".featured-image img",
	".thumbnail img",
	"img.wp-post-image",
}

// ExtractFromURL fetches a page and extracts its item record.
func (h *Harvester) ExtractFromURL(ctx context.Context, pageURL string) (*models.ExtractedItem, error) {
	doc, err := h.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return h.ExtractItem(ctx, doc.URL, doc.RawHTML)
}

// fetchDocument validates and fetches one page.
func (h *Harvester) fetchDocument(ctx context.Context, pageURL string) (*models.FetchedDocument, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("URL must be http or https")
	}

	rawHTML, err := h.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}

	return &models.FetchedDocument{
		URL:       pageURL,
		RawHTML:   rawHTML,
		FetchedAt: time.Now(),
	}, nil
}

// ExtractItem turns one fetched HTML document into a structured item record.
// Title and slug are guaranteed non-empty on success; every other field is
// optional and empty when the page layout doesn't expose it.
func (h *Harvester) ExtractItem(ctx context.Context, pageURL, rawHTML string) (*models.ExtractedItem, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	warnings := []string{}

	title := h.extractTitle(doc)
	if title == "" {
		title = placeholderTitle
		warnings = append(warnings, "no title found, using placeholder")
	}

	body := h.selectBody(doc, base, rawHTML)
	// Defensive second pass: the candidate was stripped before the length
	// check, but mis-nested chrome can survive selection.
	h.stripChrome(body)

	// Rehost body images before rendering so rewritten src attributes land in
	// the stored HTML.
	images, imageWarnings := h.rehostImages(ctx, body, base)
	warnings = append(warnings, imageWarnings...)

	bodyHTML, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}
	bodyHTML = strings.TrimSpace(bodyHTML)

	// App metadata often lives in the chrome stripped from the body, so field
	// scans run over the whole document text, not the cleaned body.
	pageText := strings.TrimSpace(doc.Find("body").Text())

	// The URL path names untitled pages better than the shared placeholder
	// would, and slugs must stay distinct across items.
	itemSlug := slug.GenerateWithFallback(title, slug.FromURLPath(pageURL))
	if title == placeholderTitle {
		if fromPath := slug.FromURLPath(pageURL); fromPath != "" {
			itemSlug = fromPath
		}
	}

	item := &models.ExtractedItem{
		ID:              uuid.New().String(),
		SourceURL:       pageURL,
		Title:           title,
		Slug:            itemSlug,
		BodyHTML:        bodyHTML,
		MetaDescription: extractMetaDescription(doc),
		Keywords:        extractMetaKeywords(doc),
		Images:          images,
		FetchedAt:       time.Now(),
		CreatedAt:       time.Now(),
	}

	if item.Slug == "" {
		return nil, fmt.Errorf("could not derive a slug from title or URL")
	}

	h.extractAppFields(item, doc, title+" "+pageText, base)

	if featured := h.extractFeaturedImage(ctx, doc, body, base, images); featured != "" {
		item.FeaturedImageURL = featured
	}

	item.Warnings = warnings
	metrics.ItemsExtracted.Inc()

	return item, nil
}

// extractTitle runs the title cascade: first h1, then the title tag trimmed
// of a trailing site-name suffix, then a conventional entry-title container.
// First non-empty wins.
func (h *Harvester) extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return trimSiteSuffix(t)
	}
	if t := strings.TrimSpace(doc.Find(".entry-title, .post-title, .page-title").First().Text()); t != "" {
		return t
	}
	return ""
}

// trimSiteSuffix removes a trailing " - Site Name" or " | Site Name" segment
// from a document title.
func trimSiteSuffix(title string) string {
	for _, sep := range []string{" - ", " | ", " – "} {
		if idx := strings.LastIndex(title, sep); idx > 0 {
			return strings.TrimSpace(title[:idx])
		}
	}
	return title
}

// selectBody picks the main content container. Likely-content selectors are
// tried first and accepted only when the chrome-stripped candidate clears the
// minimum length, because short candidates are usually misidentified
// sidebars. Description sections, readability salvage, and main/body
// wholesale follow in that order.
func (h *Harvester) selectBody(doc *goquery.Document, base *url.URL, rawHTML string) *goquery.Selection {
	for _, selector := range contentSelectors {
		if candidate := h.acceptCandidate(doc, selector, h.config.MinContentLength); candidate != nil {
			return candidate
		}
	}

	for _, selector := range descriptionSelectors {
		if candidate := h.acceptCandidate(doc, selector, 1); candidate != nil {
			return candidate
		}
	}

	if salvaged := h.readabilitySalvage(base, rawHTML); salvaged != nil {
		return salvaged
	}

	for _, selector := range []string{"main", "body"} {
		found := doc.Find(selector).First()
		if found.Length() > 0 {
			clone := found.Clone()
			h.stripChrome(clone)
			return clone
		}
	}

	// Unparsable or empty markup degrades to an empty selection rather than
	// an error; the caller still gets title and slug.
	return doc.Selection.Slice(0, 0)
}

// acceptCandidate clones and strips each match for selector, accepting the
// first one whose remaining HTML reaches minLen.
func (h *Harvester) acceptCandidate(doc *goquery.Document, selector string, minLen int) *goquery.Selection {
	var accepted *goquery.Selection
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		clone := s.Clone()
		h.stripChrome(clone)
		html, err := clone.Html()
		if err != nil {
			return true
		}
		if len(strings.TrimSpace(html)) >= minLen {
			accepted = clone
			return false
		}
		return true
	})
	return accepted
}

// readabilitySalvage runs a generic readability extraction as the salvage
// tier for layouts none of the selector tiers recognize.
func (h *Harvester) readabilitySalvage(base *url.URL, rawHTML string) *goquery.Selection {
	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil
	}
	return body
}

// extractMetaDescription reads the page description from meta tags.
func extractMetaDescription(doc *goquery.Document) string {
	if desc, ok := doc.Find("meta[name='description']").Attr("content"); ok && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}
	if desc, ok := doc.Find("meta[property='og:description']").Attr("content"); ok {
		return strings.TrimSpace(desc)
	}
	return ""
}

// extractMetaKeywords reads and splits the keywords meta tag.
func extractMetaKeywords(doc *goquery.Document) []string {
	content, ok := doc.Find("meta[name='keywords']").Attr("content")
	if !ok {
		return nil
	}

	var result []string
	for _, kw := range strings.Split(content, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			result = append(result, kw)
		}
	}
	return result
}

// extractFeaturedImage runs the featured-image cascade (Open Graph, Twitter
// meta, thumbnail selectors, first content image) and rehosts the winner
// through the asset pipeline. Returns the durable URL, or the original when
// rehosting is unavailable.
func (h *Harvester) extractFeaturedImage(ctx context.Context, doc *goquery.Document, body *goquery.Selection, base *url.URL, images []models.ImageAsset) string {
	var candidate string

	if og, ok := doc.Find("meta[property='og:image']").Attr("content"); ok && og != "" {
		candidate = og
	} else if tw, ok := doc.Find("meta[name='twitter:image']").Attr("content"); ok && tw != "" {
		candidate = tw
	} else {
		for _, selector := range featuredImageSelectors {
			if src, ok := doc.Find(selector).First().Attr("src"); ok && src != "" {
				candidate = src
				break
			}
		}
	}

	if candidate == "" {
		if src, ok := body.Find("img").First().Attr("src"); ok {
			candidate = src
		}
	}

	if candidate == "" {
		return ""
	}

	// A candidate picked out of the body was already rehosted; reuse the
	// durable URL instead of downloading it again.
	for _, img := range images {
		if img.HostedURL == candidate {
			return candidate
		}
	}

	resolved, err := resolveURL(base, candidate)
	if err != nil {
		return ""
	}

	if hosted, _, err := h.rehostOne(ctx, resolved); err == nil {
		return hosted
	} else if h.assets != nil {
		log.Printf("Failed to rehost featured image %s: %v", resolved, err)
	}

	return resolved
}

// resolveURL resolves a potentially relative URL against a base URL.
// Protocol-relative and root-relative references are both handled.
func resolveURL(base *url.URL, href string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(parsed).String(), nil
}
