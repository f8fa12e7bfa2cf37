package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/appvault/harvester"
	"github.com/appvault/harvester/db"
	"github.com/appvault/harvester/linker"
	"github.com/appvault/harvester/models"
	"github.com/appvault/harvester/storage"
)

// pageFetcher serves canned HTML per URL without touching the network
type pageFetcher struct {
	pages map[string]string
}

func (f *pageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return page, nil
}

// newTestServer builds a server without a database for handlers that
// don't need one.
func newTestServer(t *testing.T, pages map[string]string) *Server {
	t.Helper()

	hcfg := harvester.DefaultConfig()
	hcfg.CrawlDelay = 0
	hcfg.UploadDelay = 0

	s := &Server{
		harvester:   harvester.New(hcfg, &pageFetcher{pages: pages}, nil),
		linker:      linker.New(linker.DefaultConfig()),
		mux:         http.NewServeMux(),
		corsEnabled: false,
	}
	s.registerRoutes()
	return s
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if str, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(str))
	} else if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.middleware(s.mux).ServeHTTP(rec, req)
	return rec
}

func TestHandleStripLinks(t *testing.T) {
	server := newTestServer(t, nil)

	tests := []struct {
		name           string
		method         string
		body           interface{}
		wantStatusCode int
		wantContains   string
		wantAbsent     string
	}{
		{
			name:           "strips external keeps internal",
			method:         http.MethodPost,
			body:           StripLinksRequest{HTML: `<p><a href="https://ads.example.com">Ad</a> and <a href="/app/speed-demon">Speed Demon</a></p>`},
			wantStatusCode: http.StatusOK,
			wantContains:   `/app/speed-demon`,
			wantAbsent:     `ads.example.com`,
		},
		{
			name:           "invalid JSON",
			method:         http.MethodPost,
			body:           "not json",
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "GET method not allowed",
			method:         http.MethodGet,
			body:           nil,
			wantStatusCode: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(server, tt.method, "/api/strip-links", tt.body)
			if rec.Code != tt.wantStatusCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatusCode, rec.Code, rec.Body.String())
			}
			if tt.wantContains != "" && !strings.Contains(rec.Body.String(), tt.wantContains) {
				t.Errorf("Response missing %q: %s", tt.wantContains, rec.Body.String())
			}
			if tt.wantAbsent != "" && strings.Contains(rec.Body.String(), tt.wantAbsent) {
				t.Errorf("Response should not contain %q: %s", tt.wantAbsent, rec.Body.String())
			}
		})
	}
}

func TestHandleExtractValidation(t *testing.T) {
	server := newTestServer(t, nil)

	tests := []struct {
		name           string
		method         string
		body           interface{}
		wantStatusCode int
	}{
		{
			name:           "missing url",
			method:         http.MethodPost,
			body:           models.ExtractRequest{},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			method:         http.MethodPost,
			body:           "{",
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "GET method not allowed",
			method:         http.MethodGet,
			body:           nil,
			wantStatusCode: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(server, tt.method, "/api/extract", tt.body)
			if rec.Code != tt.wantStatusCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatusCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleDiscoverListing(t *testing.T) {
	listing := `<html><body><article>
		<a href="/app/turbo-racer-3d">Turbo Racer 3D</a>
		<a href="/app/speed-demon">Speed Demon</a>
	</article></body></html>`

	server := newTestServer(t, map[string]string{
		"https://apps.example.com/category/games": listing,
	})

	rec := doRequest(server, http.MethodPost, "/api/discover", models.DiscoverRequest{
		URL:      "https://apps.example.com/category/games",
		MaxPages: 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.DiscoverResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.URLs) != 2 {
		t.Fatalf("Expected 2 discovered URLs, got %d: %v", len(resp.URLs), resp.URLs)
	}
	if resp.URLs[0] != "https://apps.example.com/app/turbo-racer-3d" {
		t.Errorf("Unexpected first URL: %s", resp.URLs[0])
	}
}

func TestHandleDiscoverSingleItemURL(t *testing.T) {
	// No pages registered: a single-item URL must come back without a fetch
	server := newTestServer(t, nil)

	rec := doRequest(server, http.MethodPost, "/api/discover", models.DiscoverRequest{
		URL: "https://apps.example.com/app/cool-app",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.DiscoverResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.URLs) != 1 || resp.URLs[0] != "https://apps.example.com/app/cool-app" {
		t.Errorf("Expected the seed URL back, got %v", resp.URLs)
	}
}

func TestHandleDiscoverValidation(t *testing.T) {
	server := newTestServer(t, nil)

	rec := doRequest(server, http.MethodPost, "/api/discover", models.DiscoverRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing url, got %d", rec.Code)
	}

	rec = doRequest(server, http.MethodGet, "/api/discover", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 for GET, got %d", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	server := newTestServer(t, nil)
	server.corsEnabled = true

	rec := doRequest(server, http.MethodOptions, "/api/extract", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for OPTIONS preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS origin header, got %q", got)
	}
}

func TestMetricPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/items", "/api/items"},
		{"/api/items/", "/api/items/"},
		{"/api/items/abc-123", "/api/items/{id}"},
		{"/api/items/abc-123/related", "/api/items/{id}/related"},
		{"/api/items/abc-123/autolink", "/api/items/{id}/autolink"},
	}

	for _, tt := range tests {
		if got := metricPath(tt.path); got != tt.want {
			t.Errorf("metricPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// setupFullServer spins up the whole stack against the Postgres instance
// named by HARVESTER_TEST_DSN, skipping when it is unset.
func setupFullServer(t *testing.T, pages map[string]string) (*Server, func()) {
	t.Helper()

	dsn := os.Getenv("HARVESTER_TEST_DSN")
	if dsn == "" {
		t.Skip("HARVESTER_TEST_DSN not set; skipping database-backed API tests")
	}

	hcfg := harvester.DefaultConfig()
	hcfg.CrawlDelay = 0
	hcfg.UploadDelay = 0

	config := Config{
		Addr:            ":0",
		DBConfig:        db.Config{DSN: dsn},
		HarvesterConfig: hcfg,
		LinkerConfig:    linker.DefaultConfig(),
		StorageConfig:   storage.Config{BasePath: t.TempDir(), PublicBaseURL: "http://localhost/assets"},
		CORSEnabled:     false,
	}

	server, err := NewServer(config)
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}

	server.harvester = harvester.New(hcfg, &pageFetcher{pages: pages}, nil)

	if _, err := server.db.Conn().Exec("DELETE FROM item_images"); err != nil {
		t.Fatalf("Failed to clear item_images: %v", err)
	}
	if _, err := server.db.Conn().Exec("DELETE FROM items"); err != nil {
		t.Fatalf("Failed to clear items: %v", err)
	}

	cleanup := func() {
		server.db.Close()
	}
	return server, cleanup
}

func TestExtractAndAutolinkFlow(t *testing.T) {
	page := func(title, body string) string {
		return fmt.Sprintf(`<html><head><title>%s</title></head><body><article><h1>%s</h1>%s</article></body></html>`, title, title, body)
	}
	longPara := func(s string) string {
		return "<p>" + s + strings.Repeat(" This is a fast arcade racing game with cars and tracks.", 5) + "</p>"
	}

	pages := map[string]string{
		"https://apps.example.com/app/turbo-racer-3d": page("Turbo Racer 3D", longPara("Turbo racing action with fast cars.")),
		"https://apps.example.com/app/speed-demon":    page("Speed Demon Racing", longPara("Speed racing with fast cars on wild tracks.")),
	}

	server, cleanup := setupFullServer(t, pages)
	defer cleanup()

	// Extract both pages
	var first models.ExtractedItem
	rec := doRequest(server, http.MethodPost, "/api/extract", models.ExtractRequest{URL: "https://apps.example.com/app/turbo-racer-3d"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Extract failed with status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("Failed to decode item: %v", err)
	}

	var second models.ExtractedItem
	rec = doRequest(server, http.MethodPost, "/api/extract", models.ExtractRequest{URL: "https://apps.example.com/app/speed-demon"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Extract failed with status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("Failed to decode item: %v", err)
	}

	// Publish the second item so it becomes a link candidate
	rec = doRequest(server, http.MethodPut, "/api/items/"+second.ID+"/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Publish failed with status %d: %s", rec.Code, rec.Body.String())
	}

	// Related items for the first must include the second
	rec = doRequest(server, http.MethodGet, "/api/items/"+first.ID+"/related", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Related failed with status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), second.Slug) {
		t.Errorf("Expected related items to include %q: %s", second.Slug, rec.Body.String())
	}

	// Autolink the first item
	rec = doRequest(server, http.MethodPost, "/api/items/"+first.ID+"/autolink", AutolinkRequest{MaxLinks: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("Autolink failed with status %d: %s", rec.Code, rec.Body.String())
	}

	var result models.LinkInsertionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.LinksInserted != 1 {
		t.Fatalf("Expected 1 link inserted, got %d", result.LinksInserted)
	}
	if !strings.Contains(result.UpdatedHTML, `href="/item/`+second.Slug+`"`) {
		t.Errorf("Updated HTML missing internal link: %s", result.UpdatedHTML)
	}

	// The stored body must match the returned body
	rec = doRequest(server, http.MethodGet, "/api/items/"+first.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Get item failed with status %d", rec.Code)
	}
	var stored models.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("Failed to decode item: %v", err)
	}
	if stored.BodyHTML != result.UpdatedHTML {
		t.Error("Stored body does not match autolink result")
	}

	// Delete and verify 404
	rec = doRequest(server, http.MethodDelete, "/api/items/"+first.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Delete failed with status %d", rec.Code)
	}
	rec = doRequest(server, http.MethodGet, "/api/items/"+first.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}
