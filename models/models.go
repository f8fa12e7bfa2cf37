package models

import "time"

// FetchedDocument is the raw result of fetching one page.
// It is ephemeral: created per crawl/extract call and discarded after processing.
type FetchedDocument struct {
	URL       string    `json:"url"`
	RawHTML   string    `json:"raw_html"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ExtractedItem is the structured record produced from one item page.
// Title and Slug are always non-empty on a successful extraction; every other
// field is optional and defaults to its zero value when the page layout
// doesn't expose it.
type ExtractedItem struct {
	ID               string       `json:"id"`
	SourceURL        string       `json:"source_url"`
	Title            string       `json:"title"`
	Slug             string       `json:"slug"`
	BodyHTML         string       `json:"body_html"`
	FeaturedImageURL string       `json:"featured_image_url,omitempty"`
	MetaDescription  string       `json:"meta_description,omitempty"`
	Keywords         []string     `json:"keywords,omitempty"`
	AppVersion       string       `json:"app_version,omitempty"`
	AppSize          string       `json:"app_size,omitempty"`
	Requirements     string       `json:"requirements,omitempty"`
	DownloadsCount   string       `json:"downloads_count,omitempty"`
	Developer        string       `json:"developer,omitempty"`
	DownloadLink     string       `json:"download_link,omitempty"`
	Images           []ImageAsset `json:"images,omitempty"`
	Published        bool         `json:"published"`
	FetchedAt        time.Time    `json:"fetched_at"`
	CreatedAt        time.Time    `json:"created_at"`
	Warnings         []string     `json:"warnings,omitempty"` // Non-fatal processing issues
}

// ImageAsset describes one rehosted content image.
type ImageAsset struct {
	ID            string    `json:"id,omitempty"`
	OriginalURL   string    `json:"original_url"`
	HostedURL     string    `json:"hosted_url,omitempty"`
	AltText       string    `json:"alt_text,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	FileSizeBytes int64     `json:"file_size_bytes,omitempty"`
	EXIF          *EXIFData `json:"exif,omitempty"`
}

// EXIFData is the subset of EXIF metadata kept for rehosted images.
type EXIFData struct {
	DateTime         string `json:"date_time,omitempty"`
	DateTimeOriginal string `json:"date_time_original,omitempty"`
	Make             string `json:"make,omitempty"`
	Model            string `json:"model,omitempty"`
	Artist           string `json:"artist,omitempty"`
	Software         string `json:"software,omitempty"`
}

// Item is a stored content record, the candidate shape for similarity scoring.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	BodyHTML  string    `json:"body_html"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RelatedItemScore is one ranked entry from a similarity search.
// Results are strictly sorted descending by score.
type RelatedItemScore struct {
	ItemID string  `json:"item_id"`
	Title  string  `json:"title"`
	Slug   string  `json:"slug"`
	Score  float64 `json:"score"` // 0.0 to 1.0, lexical keyword overlap
}

// LinkTarget identifies an item an internal link should point at.
type LinkTarget struct {
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	AnchorText string `json:"anchor_text,omitempty"` // Defaults to Title when empty
}

// LinkInsertionResult is the mutation contract handed back to the content store:
// UpdatedHTML replaces the item body, LinksInserted is advisory telemetry.
type LinkInsertionResult struct {
	UpdatedHTML   string `json:"updated_html"`
	LinksInserted int    `json:"links_inserted"`
}

// ExtractRequest is the payload for a single or batch extraction call.
type ExtractRequest struct {
	URL  string   `json:"url,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

// ExtractStatus reports the per-URL outcome of a batch extraction.
type ExtractStatus struct {
	URL     string         `json:"url"`
	Status  string         `json:"status"` // "ok" or "failed"
	Message string         `json:"message,omitempty"`
	Item    *ExtractedItem `json:"item,omitempty"`
}

// DiscoverRequest is the payload for a link-discovery call.
type DiscoverRequest struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages,omitempty"`
}

// DiscoverResponse carries the deduplicated candidate URLs found from a seed.
type DiscoverResponse struct {
	SeedURL string   `json:"seed_url"`
	URLs    []string `json:"urls"`
}
