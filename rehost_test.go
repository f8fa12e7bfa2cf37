package harvester

import (
	"context"
	"strings"
	"testing"
)

func TestRehostImages(t *testing.T) {
	server := gifServer()
	defer server.Close()

	store := &recordingStore{}
	h := newTestHarvester(&mapFetcher{}, store)

	html := `<html><body>
		<img src="/shots/one.png" alt="Gameplay">
		<img data-src="/shots/two.png" loading="lazy">
		<img src="/shots/broken.png">
		<img src="/assets/placeholder.png">
		<img src="">
	</body></html>`

	doc := docFromHTML(t, html)
	body := doc.Find("body").First()
	base := mustParse(t, server.URL+"/app/cool-app")

	assets, warnings := h.rehostImages(context.Background(), body, base)

	if len(assets) != 2 {
		t.Fatalf("Expected 2 rehosted images, got %d", len(assets))
	}
	if store.uploads != 2 {
		t.Errorf("Expected 2 uploads, got %d", store.uploads)
	}

	// The failing image yields a warning and keeps its original src
	if len(warnings) != 1 || !strings.Contains(warnings[0], "broken.png") {
		t.Errorf("Expected one warning for the broken image, got %v", warnings)
	}

	out, err := body.Html()
	if err != nil {
		t.Fatalf("Failed to render body: %v", err)
	}
	if !strings.Contains(out, `src="https://cdn.example.com/items/1.png"`) {
		t.Errorf("First image not rewritten: %s", out)
	}
	if !strings.Contains(out, `src="/shots/broken.png"`) {
		t.Errorf("Broken image should keep its original src: %s", out)
	}
	if strings.Contains(out, "data-src") || strings.Contains(out, "loading=") {
		t.Errorf("Lazy attributes should be removed from rehosted images: %s", out)
	}
	if strings.Contains(out, `src="https://cdn.example.com/items/3.png"`) {
		t.Errorf("Junk placeholder image should not be rehosted: %s", out)
	}

	if assets[0].AltText != "Gameplay" {
		t.Errorf("Expected alt text captured, got %q", assets[0].AltText)
	}
	if assets[1].AltText != "two" {
		t.Errorf("Expected filename-derived alt text for missing alt, got %q", assets[1].AltText)
	}
	if assets[0].OriginalURL != server.URL+"/shots/one.png" {
		t.Errorf("Expected resolved original URL, got %q", assets[0].OriginalURL)
	}
	if assets[0].ContentType != "image/gif" {
		t.Errorf("Expected sniffed content type, got %q", assets[0].ContentType)
	}
	if assets[0].ID == "" || assets[0].ID == assets[1].ID {
		t.Error("Image records must carry distinct IDs")
	}
}

func TestRehostImagesNilStore(t *testing.T) {
	h := newTestHarvester(&mapFetcher{}, nil)

	doc := docFromHTML(t, `<html><body><img src="/shots/one.png"></body></html>`)
	body := doc.Find("body").First()

	assets, warnings := h.rehostImages(context.Background(), body, mustParse(t, "https://x.test/app/cool-app"))
	if assets != nil || warnings != nil {
		t.Errorf("Expected no-op without a store, got %v / %v", assets, warnings)
	}

	out, _ := body.Html()
	if !strings.Contains(out, `src="/shots/one.png"`) {
		t.Errorf("Image src must stay untouched without a store: %s", out)
	}
}

func TestDownloadImageSizeLimit(t *testing.T) {
	server := gifServer()
	defer server.Close()

	cfg := DefaultConfig()
	cfg.CrawlDelay = 0
	cfg.UploadDelay = 0
	cfg.MaxImageSizeBytes = 10 // Smaller than the pixel payload
	h := New(cfg, &mapFetcher{}, &recordingStore{})

	if _, err := h.downloadImage(context.Background(), server.URL+"/big.png"); err == nil {
		t.Error("Expected error for oversized image")
	}
}

func TestShouldSkipImage(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://x.test/assets/placeholder.png", true},
		{"https://x.test/img/1x1.gif", true},
		{"https://x.test/sprites/social-icon.svg", true},
		{"https://x.test/shots/gameplay.png", false},
		{"https://x.test/uploads/screen-2.jpg", false},
	}

	for _, tt := range tests {
		if got := shouldSkipImage(tt.url); got != tt.want {
			t.Errorf("shouldSkipImage(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
