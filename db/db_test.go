package db

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/appvault/harvester/models"
)

// setupTestDB connects to the Postgres instance named by HARVESTER_TEST_DSN
// and skips the test when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("HARVESTER_TEST_DSN")
	if dsn == "" {
		t.Skip("HARVESTER_TEST_DSN not set; skipping database tests")
	}

	db, err := New(Config{DSN: dsn})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Each run works on a clean slate
	if _, err := db.conn.Exec("DELETE FROM item_images"); err != nil {
		t.Fatalf("Failed to clear item_images: %v", err)
	}
	if _, err := db.conn.Exec("DELETE FROM items"); err != nil {
		t.Fatalf("Failed to clear items: %v", err)
	}

	return db
}

func testItem(id, slug string) *models.ExtractedItem {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.ExtractedItem{
		ID:              id,
		SourceURL:       fmt.Sprintf("https://apps.example.com/app/%s", slug),
		Title:           "Turbo Racer 3D",
		Slug:            slug,
		BodyHTML:        "<p>An arcade racing game.</p>",
		MetaDescription: "Race fast cars.",
		Keywords:        []string{"turbo", "racer"},
		AppVersion:      "2.1.0",
		AppSize:         "12 MB",
		Requirements:    "Android 5.0+",
		Images: []models.ImageAsset{
			{
				ID:          id + "-img",
				OriginalURL: "https://apps.example.com/shots/1.png",
				HostedURL:   "https://cdn.example.com/items/2026/08/1.png",
				AltText:     "Gameplay",
				ContentType: "image/png",
				Width:       800,
				Height:      600,
			},
		},
		FetchedAt: now,
		CreatedAt: now,
	}
}

func TestSaveAndGetItem(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	item := testItem("item-1", "turbo-racer-3d")
	if err := db.SaveItem(item); err != nil {
		t.Fatalf("Failed to save item: %v", err)
	}

	got, err := db.GetItem("item-1")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got == nil {
		t.Fatal("GetItem returned nil")
	}
	if got.Title != "Turbo Racer 3D" {
		t.Errorf("Expected title %q, got %q", "Turbo Racer 3D", got.Title)
	}
	if got.Published {
		t.Error("New items should not be published")
	}

	bySlug, err := db.GetItemBySlug("turbo-racer-3d")
	if err != nil {
		t.Fatalf("Failed to get item by slug: %v", err)
	}
	if bySlug == nil || bySlug.ID != "item-1" {
		t.Errorf("GetItemBySlug returned %+v, want ID item-1", bySlug)
	}
}

func TestGetItemNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	got, err := db.GetItem("no-such-item")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing item, got %+v", got)
	}
}

func TestSaveItemUpsertsBySlug(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	first := testItem("item-1", "turbo-racer-3d")
	if err := db.SaveItem(first); err != nil {
		t.Fatalf("Failed to save item: %v", err)
	}

	// Re-extraction mints a fresh ID; the stored row keeps the original one.
	second := testItem("item-2", "turbo-racer-3d")
	second.Title = "Turbo Racer 3D Deluxe"
	second.BodyHTML = "<p>Updated body.</p>"
	if err := db.SaveItem(second); err != nil {
		t.Fatalf("Failed to re-save item: %v", err)
	}
	if second.ID != "item-1" {
		t.Errorf("Expected re-save to return the canonical ID item-1, got %q", second.ID)
	}

	count, err := db.Count()
	if err != nil {
		t.Fatalf("Failed to count items: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 item after upsert, got %d", count)
	}

	got, err := db.GetItemBySlug("turbo-racer-3d")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.Title != "Turbo Racer 3D Deluxe" {
		t.Errorf("Upsert did not update title, got %q", got.Title)
	}

	// The canonical ID must still resolve after the re-save.
	byID, err := db.GetItem(second.ID)
	if err != nil {
		t.Fatalf("Failed to get item by returned ID: %v", err)
	}
	if byID == nil || byID.Title != "Turbo Racer 3D Deluxe" {
		t.Errorf("Returned ID does not resolve to the updated row: %+v", byID)
	}
}

func TestListItems(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for i := 0; i < 3; i++ {
		item := testItem(fmt.Sprintf("item-%d", i), fmt.Sprintf("app-%d", i))
		item.CreatedAt = item.CreatedAt.Add(time.Duration(i) * time.Minute)
		if err := db.SaveItem(item); err != nil {
			t.Fatalf("Failed to save item %d: %v", i, err)
		}
	}

	items, err := db.ListItems(2, 0)
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items with limit 2, got %d", len(items))
	}
	if items[0].Slug != "app-2" {
		t.Errorf("Expected newest item first, got %q", items[0].Slug)
	}

	rest, err := db.ListItems(2, 2)
	if err != nil {
		t.Fatalf("Failed to list items with offset: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("Expected 1 item at offset 2, got %d", len(rest))
	}
}

func TestListPublishedItems(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for i := 0; i < 3; i++ {
		item := testItem(fmt.Sprintf("item-%d", i), fmt.Sprintf("app-%d", i))
		if err := db.SaveItem(item); err != nil {
			t.Fatalf("Failed to save item %d: %v", i, err)
		}
	}
	if err := db.SetPublished("item-1", true); err != nil {
		t.Fatalf("Failed to publish item: %v", err)
	}

	published, err := db.ListPublishedItems()
	if err != nil {
		t.Fatalf("Failed to list published items: %v", err)
	}
	if len(published) != 1 {
		t.Fatalf("Expected 1 published item, got %d", len(published))
	}
	if published[0].ID != "item-1" {
		t.Errorf("Expected item-1, got %q", published[0].ID)
	}
}

func TestUpdateItemBody(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := db.SaveItem(testItem("item-1", "turbo-racer-3d")); err != nil {
		t.Fatalf("Failed to save item: %v", err)
	}

	updated := `<p>An arcade racing game. <a href="/app/speed-demon">Speed Demon</a></p>`
	if err := db.UpdateItemBody("item-1", updated); err != nil {
		t.Fatalf("Failed to update body: %v", err)
	}

	got, err := db.GetItem("item-1")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.BodyHTML != updated {
		t.Errorf("Body not updated, got %q", got.BodyHTML)
	}

	if err := db.UpdateItemBody("no-such-item", "<p>x</p>"); err == nil {
		t.Error("Expected error updating missing item")
	}
}

func TestDeleteItem(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := db.SaveItem(testItem("item-1", "turbo-racer-3d")); err != nil {
		t.Fatalf("Failed to save item: %v", err)
	}
	if err := db.DeleteItem("item-1"); err != nil {
		t.Fatalf("Failed to delete item: %v", err)
	}

	got, err := db.GetItem("item-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Error("Item still present after delete")
	}

	var imageCount int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM item_images").Scan(&imageCount); err != nil {
		t.Fatalf("Failed to count images: %v", err)
	}
	if imageCount != 0 {
		t.Errorf("Expected image records to be deleted, found %d", imageCount)
	}
}
