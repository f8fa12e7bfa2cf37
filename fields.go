package harvester

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/appvault/harvester/models"
)

// fieldPatterns holds the ordered regex fallbacks for one metadata field.
// The first pattern with a capture group match wins.
type fieldPatterns struct {
	name     string
	labels   []string // Row labels matched in structured tables/lists
	patterns []*regexp.Regexp
	assign   func(item *models.ExtractedItem, value string)
}

// appFieldCascades defines the extraction strategies per field: structured
// label/value rows are scanned first, regex scans over title+body second.
var appFieldCascades = []fieldPatterns{
	{
		name:   "version",
		labels: []string{"version", "latest version"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bv(\d+(?:\.\d+)+)\b`),
			regexp.MustCompile(`(?i)version\s*:?\s*(\d+(?:\.\d+)*)`),
			regexp.MustCompile(`\b(\d+\.\d+\.\d+)\b`),
		},
		assign: func(item *models.ExtractedItem, v string) { item.AppVersion = v },
	},
	{
		name:   "size",
		labels: []string{"size", "file size", "apk size"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?\s?(?:kb|mb|gb))\b`),
		},
		assign: func(item *models.ExtractedItem, v string) { item.AppSize = v },
	},
	{
		name:   "requirements",
		labels: []string{"requires", "requirements", "requires android", "android"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(android\s?\d+(?:\.\d+)*\s?\+?(?:\s?(?:and up|or higher))?)`),
			regexp.MustCompile(`(?i)requires\s*:?\s*(android[^.,;<]{0,30})`),
		},
		assign: func(item *models.ExtractedItem, v string) { item.Requirements = v },
	},
	{
		name:   "downloads",
		labels: []string{"downloads", "installs", "total downloads"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(\d[\d,.]*\s?(?:\+|k|m|million|billion)?)\s*(?:downloads|installs)\b`),
		},
		assign: func(item *models.ExtractedItem, v string) { item.DownloadsCount = v },
	},
	{
		name:   "developer",
		labels: []string{"developer", "offered by", "publisher", "author"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:developer|offered by|publisher)\s*:?\s+([A-Z][\w&.\- ]{1,40}?)(?:[.,;<\n]|$)`),
		},
		assign: func(item *models.ExtractedItem, v string) { item.Developer = v },
	},
}

// extractAppFields populates the app metadata fields. Misses are not errors:
// every field stays empty when neither the structured rows nor the regex
// fallbacks resolve it.
func (h *Harvester) extractAppFields(item *models.ExtractedItem, doc *goquery.Document, text string, base *url.URL) {
	rows := collectLabeledRows(doc)

	for _, cascade := range appFieldCascades {
		if value, ok := lookupRow(rows, cascade.labels); ok {
			cascade.assign(item, value)
			continue
		}
		for _, pattern := range cascade.patterns {
			if m := pattern.FindStringSubmatch(text); m != nil {
				cascade.assign(item, strings.TrimSpace(m[1]))
				break
			}
		}
	}

	item.DownloadLink = extractDownloadLink(doc, base)
}

// collectLabeledRows scans tables, definition lists, and "Label: value" list
// items for label-then-adjacent-value pairs.
func collectLabeledRows(doc *goquery.Document) map[string]string {
	rows := make(map[string]string)

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := normalizeLabel(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if label != "" && value != "" {
			if _, taken := rows[label]; !taken {
				rows[label] = value
			}
		}
	})

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		label := normalizeLabel(dt.Text())
		value := strings.TrimSpace(dd.Text())
		if label != "" && value != "" {
			if _, taken := rows[label]; !taken {
				rows[label] = value
			}
		}
	})

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		text := strings.TrimSpace(li.Text())
		idx := strings.Index(text, ":")
		if idx <= 0 || idx == len(text)-1 {
			return
		}
		label := normalizeLabel(text[:idx])
		value := strings.TrimSpace(text[idx+1:])
		if label != "" && value != "" {
			if _, taken := rows[label]; !taken {
				rows[label] = value
			}
		}
	})

	return rows
}

// lookupRow finds the first label alias present in the collected rows.
func lookupRow(rows map[string]string, labels []string) (string, bool) {
	for _, label := range labels {
		if value, ok := rows[label]; ok {
			return value, true
		}
	}
	return "", false
}

// normalizeLabel lowercases and trims a row label for alias matching.
func normalizeLabel(label string) string {
	return strings.TrimSpace(strings.ToLower(strings.TrimSuffix(strings.TrimSpace(label), ":")))
}

// extractDownloadLink returns the first anchor whose href or visible text
// mentions a download or an APK, resolved to an absolute URL.
func extractDownloadLink(doc *goquery.Document, base *url.URL) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		text := strings.ToLower(a.Text())
		hrefLower := strings.ToLower(href)

		if strings.Contains(hrefLower, "download") || strings.Contains(hrefLower, ".apk") ||
			strings.Contains(text, "download") || strings.Contains(text, "apk") {
			if resolved, err := resolveURL(base, href); err == nil {
				link = resolved
				return false
			}
		}
		return true
	})
	return link
}
