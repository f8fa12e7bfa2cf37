package harvester

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/appvault/harvester/metrics"
	"github.com/appvault/harvester/models"
	"github.com/appvault/harvester/slug"
	"github.com/appvault/harvester/storage"
)

// imageSrcAttrs are checked in order for each img element: the plain src
// first, then the lazy-loading variants sites hide the real URL behind.
var imageSrcAttrs = []string{"src", "data-src", "data-lazy-src", "data-original"}

// lazyAttrs are dropped after rehosting so the stored markup references only
// the durable URL.
var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original", "srcset", "loading"}

// junkImageKeywords mark placeholder, tracking, and UI-component images that
// are never worth rehosting.
var junkImageKeywords = []string{
	"placeholder", "spacer", "blank", "transparent",
	"1x1", "pixel", "tracking",
	"icon", "logo", "sprite", "button",
	"avatar-default", "default-avatar",
	"ad-banner", "advertisement", "promo",
	"spinner", "loader", "loading",
	"share-button", "social-icon",
}

// rehostImages walks every img in the body, resolves its source against the
// page URL, and rewrites src to the asset store's durable URL. A single
// broken image never fails the whole extraction: fetch and upload failures
// leave the original src untouched and continue.
func (h *Harvester) rehostImages(ctx context.Context, body *goquery.Selection, base *url.URL) ([]models.ImageAsset, []string) {
	if h.assets == nil {
		return nil, nil
	}

	var assets []models.ImageAsset
	var warnings []string

	body.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := firstAttr(img, imageSrcAttrs)
		if src == "" {
			return
		}

		resolved, err := resolveURL(base, src)
		if err != nil {
			return
		}

		if shouldSkipImage(resolved) {
			log.Printf("Skipping junk image: %s", resolved)
			return
		}

		hosted, asset, err := h.rehostOne(ctx, resolved)
		if err != nil {
			log.Printf("Failed to rehost image %s: %v", resolved, err)
			warnings = append(warnings, fmt.Sprintf("image not rehosted: %s", resolved))
			metrics.ImageRehostFailures.Inc()
			return
		}

		alt, _ := img.Attr("alt")
		if strings.TrimSpace(alt) == "" {
			// Stored records need something to describe the image; the
			// filename is the best available stand-in for missing alt text.
			alt = strings.ReplaceAll(slug.FromImageURL(alt, resolved), "-", " ")
		}
		asset.AltText = alt

		img.SetAttr("src", hosted)
		for _, attr := range lazyAttrs {
			img.RemoveAttr(attr)
		}

		assets = append(assets, asset)
		metrics.ImagesRehosted.Inc()
	})

	return assets, warnings
}

// rehostOne downloads one image, sniffs its metadata, and uploads it to the
// asset store. The politeness gate is awaited before the upload to respect
// origin and store rate limits.
func (h *Harvester) rehostOne(ctx context.Context, imageURL string) (string, models.ImageAsset, error) {
	var asset models.ImageAsset

	if h.assets == nil {
		return "", asset, fmt.Errorf("no asset store configured")
	}

	data, err := h.downloadImage(ctx, imageURL)
	if err != nil {
		return "", asset, err
	}

	if err := h.uploadLimiter.Wait(ctx); err != nil {
		return "", asset, err
	}

	hosted, err := h.assets.Upload(ctx, data, h.config.AssetFolder)
	if err != nil {
		return "", asset, fmt.Errorf("upload failed: %w", err)
	}

	meta := storage.Sniff(data)
	asset = models.ImageAsset{
		ID:            uuid.New().String(),
		OriginalURL:   imageURL,
		HostedURL:     hosted,
		ContentType:   meta.ContentType,
		Width:         meta.Width,
		Height:        meta.Height,
		FileSizeBytes: int64(len(data)),
		EXIF:          meta.EXIF,
	}

	return hosted, asset, nil
}

// downloadImage downloads an image with size and timeout limits.
func (h *Harvester) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.config.UserAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > h.config.MaxImageSizeBytes {
		return nil, fmt.Errorf("image too large: %d bytes (max: %d)", resp.ContentLength, h.config.MaxImageSizeBytes)
	}

	limited := io.LimitReader(resp.Body, h.config.MaxImageSizeBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	if int64(len(data)) > h.config.MaxImageSizeBytes {
		return nil, fmt.Errorf("image too large: exceeds %d bytes", h.config.MaxImageSizeBytes)
	}

	return data, nil
}

// firstAttr returns the first non-empty attribute among names.
func firstAttr(sel *goquery.Selection, names []string) string {
	for _, name := range names {
		if val, ok := sel.Attr(name); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

// shouldSkipImage reports whether an image URL looks like a placeholder,
// tracking pixel, or UI component.
func shouldSkipImage(imageURL string) bool {
	urlLower := strings.ToLower(imageURL)
	for _, keyword := range junkImageKeywords {
		if strings.Contains(urlLower, keyword) {
			return true
		}
	}
	return false
}
