package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-catalog-scraper/models"
)

func TestLinkWriterWriteLinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "links.txt")

	writer, err := NewLinkWriter(path)
	if err != nil {
		t.Fatalf("create link writer: %v", err)
	}
	if err := writer.WriteLinks([]string{"https://shop.test/p/1", "https://shop.test/p/2"}); err != nil {
		t.Fatalf("write links: %v", err)
	}
	if err := writer.WriteLinks([]string{"https://shop.test/p/3"}); err != nil {
		t.Fatalf("write links: %v", err)
	}
	if writer.Count() != 3 {
		t.Fatalf("count = %d, want 3", writer.Count())
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "https://shop.test/p/1\nhttps://shop.test/p/2\nhttps://shop.test/p/3\n"
	if string(data) != want {
		t.Fatalf("file = %q, want %q", data, want)
	}
}

func TestJSONLStoreStoreOrUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.jsonl")

	store, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("create json store: %v", err)
	}

	p := &models.NormalizedProduct{
		ExternalID: "SKU-1",
		Title:      "Trail Shoe",
		Price:      99.5,
		Currency:   "USD",
		SourceURL:  "https://shop.test/p/sku-1",
		ScrapedAt:  time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
	}

	ctx := context.Background()
	first, err := store.StoreOrUpdate(ctx, "site-1", p)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	second, err := store.StoreOrUpdate(ctx, "site-1", p)
	if err != nil {
		t.Fatalf("store again: %v", err)
	}
	if !first.WasCreated || second.WasCreated {
		t.Fatalf("created flags = %v, %v", first.WasCreated, second.WasCreated)
	}
	if first.EntityID == "" || first.EntityID != second.EntityID {
		t.Fatalf("entity ids = %q, %q", first.EntityID, second.EntityID)
	}
	if err := store.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var decoded productRecord
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		if decoded.Product == nil || decoded.Product.Title != "Trail Shoe" || decoded.WebsiteID != "site-1" {
			t.Fatalf("unexpected record: %+v", decoded)
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if lines != 2 {
		t.Fatalf("lines = %d, want 2", lines)
	}
}

func TestCSVStoreStoreOrUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")

	store, err := NewCSVStore(path)
	if err != nil {
		t.Fatalf("create csv store: %v", err)
	}
	p := &models.NormalizedProduct{
		ExternalID:    "SKU-1",
		Title:         "Trail Shoe",
		Price:         99.5,
		StockQuantity: 3,
		Status:        "active",
		Media:         []models.Media{{URL: "https://cdn.test/1.jpg"}},
		ScrapedAt:     time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
	}
	if _, err := store.StoreOrUpdate(context.Background(), "site-1", p); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][2] != "external_id" || records[1][2] != "SKU-1" || records[1][5] != "99.50" {
		t.Fatalf("unexpected rows: %v", records)
	}
}
