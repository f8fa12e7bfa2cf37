package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/appvault/harvester"
	"github.com/appvault/harvester/db"
	"github.com/appvault/harvester/linker"
	"github.com/appvault/harvester/metrics"
	"github.com/appvault/harvester/models"
	"github.com/appvault/harvester/storage"
)

// Server represents the API server
type Server struct {
	db          *db.DB
	harvester   *harvester.Harvester
	linker      *linker.Linker
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr            string
	DBConfig        db.Config
	HarvesterConfig harvester.Config
	LinkerConfig    linker.Config
	StorageConfig   storage.Config
	S3Config        storage.S3Config // Used instead of StorageConfig when Bucket is set
	CORSEnabled     bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		DBConfig:        db.DefaultConfig(),
		HarvesterConfig: harvester.DefaultConfig(),
		LinkerConfig:    linker.DefaultConfig(),
		StorageConfig:   storage.DefaultConfig(),
		CORSEnabled:     true,
	}
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var assets harvester.AssetStore
	if config.S3Config.Bucket != "" {
		assets, err = storage.NewS3Storage(context.Background(), config.S3Config)
	} else {
		assets, err = storage.New(config.StorageConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize asset storage: %w", err)
	}

	s := &Server{
		db:          database,
		harvester:   harvester.New(config.HarvesterConfig, nil, assets),
		linker:      linker.New(config.LinkerConfig),
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // Allow time for long-running batch extractions
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/api/extract", s.handleExtract)
	s.mux.HandleFunc("/api/discover", s.handleDiscover)
	s.mux.HandleFunc("/api/items", s.handleListItems)
	s.mux.HandleFunc("/api/items/", s.handleItem) // Handles /api/items/{id} and subresources
	s.mux.HandleFunc("/api/strip-links", s.handleStripLinks)
}

// Start starts the API server
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.addr)
	return s.server.ListenAndServe()
}

// DB exposes the content repository for pool-stats collection
func (s *Server) DB() *db.DB {
	return s.db
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// middleware applies CORS, request logging, and duration metrics to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		start := time.Now()
		if r.URL.Path != "/health" {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}

		next.ServeHTTP(w, r)

		elapsed := time.Since(start)
		metrics.HTTPDuration.WithLabelValues(r.Method, metricPath(r.URL.Path)).Observe(elapsed.Seconds())

		if r.URL.Path != "/health" {
			log.Printf("%s %s - completed in %v", r.Method, r.URL.Path, elapsed)
		}
	})
}

// metricPath collapses item IDs so the duration histogram keeps bounded
// label cardinality.
func metricPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/items/")
	if rest == path || rest == "" {
		return path
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 2 {
		return "/api/items/{id}/" + parts[1]
	}
	return "/api/items/{id}"
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.db.Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"items":  count,
		"time":   time.Now(),
	})
}

// handleExtract extracts one URL or a batch of URLs into stored items.
// Batch requests continue past per-URL failures and report per-item status.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	urls := req.URLs
	single := false
	if req.URL != "" {
		urls = []string{req.URL}
		single = true
	}
	if len(urls) == 0 {
		respondError(w, http.StatusBadRequest, "url or urls is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	statuses := make([]models.ExtractStatus, 0, len(urls))
	for _, u := range urls {
		item, err := s.extractAndSave(ctx, u)
		if err != nil {
			metrics.ExtractFailures.Inc()
			log.Printf("Extraction failed for %s: %v", u, err)
			statuses = append(statuses, models.ExtractStatus{
				URL:     u,
				Status:  "failed",
				Message: err.Error(),
			})
			continue
		}
		statuses = append(statuses, models.ExtractStatus{
			URL:    u,
			Status: "ok",
			Item:   item,
		})
	}

	if single {
		if statuses[0].Status == "failed" {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("extraction failed: %s", statuses[0].Message))
			return
		}
		respondJSON(w, http.StatusOK, statuses[0].Item)
		return
	}

	succeeded := 0
	for _, st := range statuses {
		if st.Status == "ok" {
			succeeded++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results":   statuses,
		"total":     len(statuses),
		"succeeded": succeeded,
		"failed":    len(statuses) - succeeded,
	})
}

// extractAndSave runs the extraction pipeline for one URL, strips external
// links from the body, and persists the item.
func (s *Server) extractAndSave(ctx context.Context, pageURL string) (*models.ExtractedItem, error) {
	item, err := s.harvester.ExtractFromURL(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	item.BodyHTML = s.linker.StripExternalLinks(item.BodyHTML)

	if err := s.db.SaveItem(item); err != nil {
		return nil, fmt.Errorf("failed to save item: %w", err)
	}
	return item, nil
}

// handleDiscover crawls a listing URL and returns the item page URLs found
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	urls, err := s.harvester.DiscoverItemURLs(ctx, req.URL, req.MaxPages)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("discovery failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, models.DiscoverResponse{
		SeedURL: req.URL,
		URLs:    urls,
	})
}

// handleListItems lists stored items with pagination
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &offset)
	}

	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	items, err := s.db.ListItems(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	count, _ := s.db.Count()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"total":  count,
		"limit":  limit,
		"offset": offset,
	})
}

// handleItem routes /api/items/{id} and its subresources
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/items/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if strings.HasSuffix(path, "/related") {
		id := strings.TrimSuffix(path, "/related")
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleRelated(w, r, id)
		return
	}

	if strings.HasSuffix(path, "/autolink") {
		id := strings.TrimSuffix(path, "/autolink")
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleAutolink(w, r, id)
		return
	}

	if strings.HasSuffix(path, "/publish") {
		id := strings.TrimSuffix(path, "/publish")
		switch r.Method {
		case http.MethodPut:
			s.handleSetPublished(w, r, id, true)
		case http.MethodDelete:
			s.handleSetPublished(w, r, id, false)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetItem(w, r, path)
	case http.MethodDelete:
		s.handleDeleteItem(w, r, path)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetItem retrieves an item by ID
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.db.GetItem(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// handleDeleteItem deletes an item by ID
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.db.DeleteItem(id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "item deleted successfully",
	})
}

// handleSetPublished flips an item's published flag
func (s *Server) handleSetPublished(w http.ResponseWriter, r *http.Request, id string, published bool) {
	if err := s.db.SetPublished(id, published); err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, "item not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update item")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"published": published,
	})
}

// handleRelated scores every published item against the target and returns
// the ranked matches.
func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.db.GetItem(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}

	limit := 5
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if limit < 1 {
		limit = 5
	}

	candidates, err := s.db.ListPublishedItems()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	related := s.linker.FindRelated(*item, candidates, limit)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"item_id": item.ID,
		"related": related,
		"count":   len(related),
	})
}

// AutolinkRequest represents an autolink request
type AutolinkRequest struct {
	MaxLinks int `json:"max_links"`
}

// handleAutolink inserts internal links to related items into the target's
// body and writes the updated body back.
func (s *Server) handleAutolink(w http.ResponseWriter, r *http.Request, id string) {
	var req AutolinkRequest
	if r.Body != nil {
		// An empty body means defaults
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.MaxLinks < 1 {
		req.MaxLinks = 3
	}

	item, err := s.db.GetItem(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "item not found")
		return
	}

	candidates, err := s.db.ListPublishedItems()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	related := s.linker.FindRelated(*item, candidates, req.MaxLinks)
	targets := make([]models.LinkTarget, 0, len(related))
	for _, rel := range related {
		targets = append(targets, models.LinkTarget{
			Slug:  rel.Slug,
			Title: rel.Title,
		})
	}

	updated, inserted := s.linker.InsertMany(item.BodyHTML, targets)
	if inserted > 0 {
		if err := s.db.UpdateItemBody(item.ID, updated); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update item body")
			return
		}
		metrics.LinksInserted.Add(float64(inserted))
	}

	respondJSON(w, http.StatusOK, models.LinkInsertionResult{
		UpdatedHTML:   updated,
		LinksInserted: inserted,
	})
}

// StripLinksRequest represents a strip-links request
type StripLinksRequest struct {
	HTML string `json:"html"`
}

// handleStripLinks removes external anchors from an HTML fragment while
// keeping internal ones.
func (s *Server) handleStripLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req StripLinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"html": s.linker.StripExternalLinks(req.HTML),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
