package linker

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/appvault/harvester/models"
)

// anchorWindow bounds how far back the open-anchor check scans. Anchors longer
// than this are pathological; scanning further buys nothing.
const anchorWindow = 2000

var (
	anchorPattern    = regexp.MustCompile(`(?is)<a(?:\s[^>]*)?>(.*?)</a>`)
	hrefPattern      = regexp.MustCompile(`(?is)href\s*=\s*["']([^"']*)["']`)
	openAnchorToken  = regexp.MustCompile(`(?i)<a[\s>]`)
	closeAnchorToken = regexp.MustCompile(`(?i)</a>`)
	wordPattern      = regexp.MustCompile(`[a-z0-9]+`)
)

// InsertLink inserts one internal anchor pointing at targetSlug into htmlBody.
// Placement prefers an occurrence of a keyword from targetTitle outside any tag
// or existing anchor; failing that, the first anchor-free paragraph. If the
// document already links to the target, or has no addressable insertion point,
// the input is returned unchanged.
func (l *Linker) InsertLink(htmlBody, targetSlug, targetTitle, anchorText string) string {
	if htmlBody == "" || targetSlug == "" {
		return htmlBody
	}
	if anchorText == "" {
		anchorText = targetTitle
	}

	// Idempotence guard: never link the same target twice.
	if l.linksTo(htmlBody, targetSlug) {
		return htmlBody
	}

	anchor := l.buildAnchor(targetSlug, targetTitle, anchorText)

	if offset, ok := l.findKeywordOffset(htmlBody, targetTitle); ok {
		offset = snapToWordBoundary(htmlBody, offset)
		return htmlBody[:offset] + anchor + htmlBody[offset:]
	}

	return insertIntoParagraph(htmlBody, anchor)
}

// InsertMany inserts one link per target into the accumulating HTML and
// reports how many insertions took effect. Targets with longer titles are
// placed first: their keyword sets are more specific, and placing them early
// keeps later, vaguer targets from claiming their occurrences.
func (l *Linker) InsertMany(htmlBody string, targets []models.LinkTarget) (string, int) {
	sorted := make([]models.LinkTarget, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Title) > len(sorted[j].Title)
	})

	inserted := 0
	for _, target := range sorted {
		updated := l.InsertLink(htmlBody, target.Slug, target.Title, target.AnchorText)
		if updated != htmlBody {
			inserted++
			htmlBody = updated
		}
	}

	return htmlBody, inserted
}

// StripExternalLinks replaces every outbound anchor (http, https, mailto, tel)
// with its plain visible text. Internal item links and relative hrefs are kept
// unchanged. Applying it twice is a no-op.
func (l *Linker) StripExternalLinks(htmlBody string) string {
	return anchorPattern.ReplaceAllStringFunc(htmlBody, func(match string) string {
		sub := anchorPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		inner := sub[1]

		hrefMatch := hrefPattern.FindStringSubmatch(match)
		if hrefMatch == nil {
			// Anchor without href carries no destination; keep as-is.
			return match
		}

		if l.isInternalHref(hrefMatch[1]) {
			return match
		}
		return inner
	})
}

// linksTo reports whether the document already carries an anchor pointing at
// the target, regardless of attribute quoting style.
func (l *Linker) linksTo(htmlBody, targetSlug string) bool {
	target := l.config.ItemPathPrefix + targetSlug
	for _, m := range hrefPattern.FindAllStringSubmatch(htmlBody, -1) {
		if strings.TrimSpace(m[1]) == target {
			return true
		}
	}
	return false
}

// isInternalHref reports whether an href may be kept: the internal item-path
// prefix, or any relative/protocol-relative reference without an outbound
// scheme.
func (l *Linker) isInternalHref(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	if strings.HasPrefix(href, l.config.ItemPathPrefix) {
		return true
	}
	for _, scheme := range []string{"http://", "https://", "mailto:", "tel:"} {
		if strings.HasPrefix(href, scheme) {
			return false
		}
	}
	return true
}

func (l *Linker) buildAnchor(slug, title, anchorText string) string {
	return fmt.Sprintf(` <a href="%s%s" title="%s">%s</a> `,
		l.config.ItemPathPrefix, slug,
		html.EscapeString(title), html.EscapeString(anchorText))
}

// findKeywordOffset searches all occurrences of the target title's keywords
// and picks the best tag-safe one. Longer keywords dominate; earlier positions
// break ties toward the start of the document.
func (l *Linker) findKeywordOffset(htmlBody, targetTitle string) (int, bool) {
	kws := l.placementKeywords(targetTitle)
	if len(kws) == 0 {
		return 0, false
	}

	bestOffset := -1
	bestScore := 0.0
	docLen := float64(len(htmlBody))

	for _, kw := range kws {
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if err != nil {
			continue
		}
		for _, loc := range pattern.FindAllStringIndex(htmlBody, -1) {
			offset := loc[0]
			if insideTag(htmlBody, offset) || insideAnchor(htmlBody, offset) {
				continue
			}
			score := float64(len(kw))*1000 - (float64(offset)/docLen)*100
			if bestOffset == -1 || score > bestScore {
				bestOffset = offset
				bestScore = score
			}
		}
	}

	if bestOffset == -1 {
		return 0, false
	}
	return bestOffset, true
}

// placementKeywords derives up to MaxTitleKeywords significant words from a
// title. When the stopword-filtered pass yields nothing, any word longer than
// two characters qualifies.
func (l *Linker) placementKeywords(title string) []string {
	kws := l.keywords.Keywords(title)
	if len(kws) == 0 {
		for _, word := range wordPattern.FindAllString(strings.ToLower(title), -1) {
			if len(word) > 2 {
				kws = append(kws, word)
			}
		}
	}
	if len(kws) > l.config.MaxTitleKeywords {
		kws = kws[:l.config.MaxTitleKeywords]
	}
	return kws
}

// insideTag reports whether offset falls between an unclosed '<' and its '>'.
func insideTag(htmlBody string, offset int) bool {
	lastOpen := strings.LastIndex(htmlBody[:offset], "<")
	lastClose := strings.LastIndex(htmlBody[:offset], ">")
	return lastOpen > lastClose
}

// insideAnchor reports whether offset falls inside an open <a>...</a> span,
// judged by counting opens against closes in a bounded window before it.
func insideAnchor(htmlBody string, offset int) bool {
	start := offset - anchorWindow
	if start < 0 {
		start = 0
	}
	window := htmlBody[start:offset]

	opens := len(openAnchorToken.FindAllString(window, -1))
	closes := len(closeAnchorToken.FindAllString(window, -1))
	return opens > closes
}

// snapToWordBoundary moves offset backward to the nearest whitespace or tag
// delimiter so the spliced anchor sits between whole words.
func snapToWordBoundary(htmlBody string, offset int) int {
	for offset > 0 {
		c := htmlBody[offset-1]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '>' {
			break
		}
		offset--
	}
	return offset
}

// insertIntoParagraph places the anchor just before the closing tag of the
// first paragraph that contains no anchor yet; failing that, immediately after
// the document's first </p>. Documents without paragraphs are left unchanged.
func insertIntoParagraph(htmlBody, anchor string) string {
	searchFrom := 0
	for {
		closeIdx := strings.Index(htmlBody[searchFrom:], "</p>")
		if closeIdx == -1 {
			break
		}
		closeIdx += searchFrom

		openIdx := strings.LastIndex(htmlBody[:closeIdx], "<p")
		if openIdx != -1 {
			paragraph := htmlBody[openIdx:closeIdx]
			if !strings.Contains(strings.ToLower(paragraph), "<a") {
				return htmlBody[:closeIdx] + anchor + htmlBody[closeIdx:]
			}
		}

		searchFrom = closeIdx + len("</p>")
	}

	if firstClose := strings.Index(htmlBody, "</p>"); firstClose != -1 {
		after := firstClose + len("</p>")
		return htmlBody[:after] + anchor + htmlBody[after:]
	}

	return htmlBody
}
