package harvester

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// chromeSelectors lists page furniture removed from a body candidate, in
// priority order: structural chrome first, then class-based widgets, ads,
// sharing blocks, comments, related posts, author boxes, post navigation,
// breadcrumbs and taxonomy link lists.
var chromeSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside", "iframe", "form",
	".sidebar", "[class*='sidebar']", ".widget", "[class*='widget']",
	".ad", ".ads", ".advertisement", "[class*='advert']", "[id*='advert']",
	".share", ".social", "[class*='share-']", "[class*='social-']",
	"#comments", ".comments", ".comment-respond", "[class*='comment-']",
	".related", ".related-posts", "[class*='related-']",
	".author-box", ".author-bio", "[class*='author-box']",
	".post-navigation", ".nav-links", ".prev-next", "[rel='prev']", "[rel='next']",
	".breadcrumb", ".breadcrumbs", "[class*='breadcrumb']",
	".tags", ".post-tags", ".tag-links", ".cat-links", ".post-categories",
	".download-button", ".download-btn", "[class*='download-btn']",
	".report-button", ".vote-form", "[class*='rating-widget']",
}

// metadataFingerprints detect small app-metadata blocks that sites mis-nest
// inside the main content container: version and size patterns, Android
// requirements, and the stock phrases app-download sites decorate them with.
var metadataFingerprints = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bv?\d+(?:\.\d+)+\b`),              // version
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:kb|mb|gb)\b`), // size
	regexp.MustCompile(`(?i)\bandroid\s+\d`),                   // requirement
	regexp.MustCompile(`(?i)report this app`),
	regexp.MustCompile(`(?i)get it on`),
	regexp.MustCompile(`(?i)\b\d[\d,]*\s+votes?\b`),
	regexp.MustCompile(`(?i)updated\s+just\s+now`),
}

// nonContentHeadings are section headings whose whole section is chrome.
var nonContentHeadings = []string{
	"app detail",
	"specification",
	"related post",
	"how to install",
	"additional information",
	"older versions",
	"download links",
	"leave a reply",
}

// stripChrome removes everything that is not main content from sel, in place.
// It is applied to each body candidate before the length check, and again
// defensively after selection.
func (h *Harvester) stripChrome(sel *goquery.Selection) {
	for _, selector := range chromeSelectors {
		sel.Find(selector).Remove()
	}

	h.stripMetadataBlocks(sel)
	stripNonContentSections(sel)
	stripMetadataTables(sel)
	stripEmptyLeaves(sel)
}

// metadataBlockSelector lists the element kinds the fingerprint heuristic
// may remove.
const metadataBlockSelector = "div, section, ul, dl, p"

// stripMetadataBlocks removes leaf elements matching enough metadata
// fingerprints. A single fingerprint is too prone to false positives and long
// blocks are real content, so both the match count and the length bound must
// hold. Containers holding headings, images, or a smaller matching block are
// content wrappers whose aggregated text fires the same fingerprints; only the
// innermost metadata leaf is removed, never the wrapper around it.
func (h *Harvester) stripMetadataBlocks(sel *goquery.Selection) {
	sel.Find(metadataBlockSelector).Each(func(_ int, block *goquery.Selection) {
		if !h.matchesMetadataFingerprints(block) {
			return
		}
		if block.Find("h1, h2, h3, h4, h5, h6, img").Length() > 0 {
			return
		}

		leaf := true
		block.Find(metadataBlockSelector).EachWithBreak(func(_ int, inner *goquery.Selection) bool {
			if h.matchesMetadataFingerprints(inner) {
				leaf = false
				return false
			}
			return true
		})
		if leaf {
			block.Remove()
		}
	})
}

// matchesMetadataFingerprints applies the compound heuristic to one element's
// aggregated text.
func (h *Harvester) matchesMetadataFingerprints(block *goquery.Selection) bool {
	text := strings.TrimSpace(block.Text())
	if text == "" || len(text) >= h.config.FingerprintMaxChars {
		return false
	}

	matches := 0
	for _, fp := range metadataFingerprints {
		if fp.MatchString(text) {
			matches++
		}
	}
	return matches >= h.config.FingerprintThreshold
}

// stripNonContentSections removes headings on the fixed non-content list
// together with all following siblings up to the next heading.
func stripNonContentSections(sel *goquery.Selection) {
	sel.Find("h2, h3, h4").Each(func(_ int, heading *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(heading.Text()))
		for _, phrase := range nonContentHeadings {
			if strings.Contains(text, phrase) {
				heading.NextUntil("h1, h2, h3, h4").Remove()
				heading.Remove()
				return
			}
		}
	})
}

// stripMetadataTables removes app-detail tables, recognized by co-occurring
// version+size or developer+requirement terms.
func stripMetadataTables(sel *goquery.Selection) {
	sel.Find("table").Each(func(_ int, table *goquery.Selection) {
		text := strings.ToLower(table.Text())
		versionSize := strings.Contains(text, "version") && strings.Contains(text, "size")
		devRequirement := strings.Contains(text, "developer") &&
			(strings.Contains(text, "requires") || strings.Contains(text, "requirement") || strings.Contains(text, "android"))
		if versionSize || devRequirement {
			table.Remove()
		}
	})
}

// stripEmptyLeaves drops elements left without text or media after the
// passes above.
func stripEmptyLeaves(sel *goquery.Selection) {
	sel.Find("p, div, span, li, ul, section").Each(func(_ int, leaf *goquery.Selection) {
		if leaf.Children().Length() > 0 {
			return
		}
		if strings.TrimSpace(leaf.Text()) == "" {
			leaf.Remove()
		}
	})
}
