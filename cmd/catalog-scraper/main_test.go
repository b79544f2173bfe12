package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/metrics"
	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/aluiziolira/go-catalog-scraper/pipeline"
	"github.com/aluiziolira/go-catalog-scraper/storage"
)

const testSites = `
sites:
  - name: Example Shop
    slug: example
    base_url: https://shop.example.test
    category_url: https://shop.example.test/c/all
    listing:
      item_selector: ".product-item"
  - name: Feed Shop
    slug: feed
    base_url: https://api.feed.test
    mode: api
    api:
      items_path: data.products
      total_path: meta.total
`

func writeSites(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write sites: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(config.DefaultConfig())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSitesCommandListsSites(t *testing.T) {
	path := writeSites(t, testSites)

	out, err := execute(t, "sites", "--sites", path)
	if err != nil {
		t.Fatalf("sites: %v", err)
	}
	for _, want := range []string{"example", "feed", "https://shop.example.test/c/all", "api"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestScrapeCommandRejectsInvalidConfig(t *testing.T) {
	path := writeSites(t, testSites)

	_, err := execute(t, "scrape", "--sites", path, "--site", "example", "--batch-size", "5")
	if err == nil || !strings.Contains(err.Error(), "batch size") {
		t.Fatalf("err = %v, want batch size error", err)
	}
}

func TestScrapeCommandUnknownSite(t *testing.T) {
	path := writeSites(t, testSites)

	_, err := execute(t, "scrape", "--sites", path, "--site", "missing", "--store", "memory")
	if err == nil || !strings.Contains(err.Error(), "unknown site") {
		t.Fatalf("err = %v, want unknown site", err)
	}
}

func TestSiteOptionsLoad(t *testing.T) {
	multi := writeSites(t, testSites)
	if _, err := (siteOptions{sitesFile: multi}).load(); err == nil {
		t.Fatal("expected error when slug is omitted with several sites")
	}
	site, err := (siteOptions{sitesFile: multi, slug: "feed"}).load()
	if err != nil || site.Mode != config.ModeAPI {
		t.Fatalf("load feed = %+v, %v", site, err)
	}

	single := writeSites(t, `
sites:
  - name: Only Shop
    base_url: https://only.test
    listing:
      item_selector: li
`)
	site, err = (siteOptions{sitesFile: single}).load()
	if err != nil {
		t.Fatalf("load single: %v", err)
	}
	if site.Slug != "only-shop" {
		t.Fatalf("slug = %q", site.Slug)
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := openBackend(ctx, storeOptions{kind: "memory"}, logger)
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := b.products.(*storage.Memory); !ok {
		t.Fatalf("memory products = %T", b.products)
	}

	dir := t.TempDir()
	b, err = openBackend(ctx, storeOptions{
		kind:   "jsonl",
		output: filepath.Join(dir, "products.jsonl"),
		mirror: filepath.Join(dir, "products.csv"),
	}, logger)
	if err != nil {
		t.Fatalf("jsonl backend: %v", err)
	}
	if _, ok := b.products.(*pipeline.TeeStore); !ok {
		t.Fatalf("mirrored products = %T", b.products)
	}
	if len(b.closers) != 1 {
		t.Fatalf("closers = %d, want the tee only", len(b.closers))
	}
	if _, ok := b.closers[0].(*pipeline.TeeStore); !ok {
		t.Fatalf("closer = %T, want *pipeline.TeeStore", b.closers[0])
	}
	product := &models.NormalizedProduct{ExternalID: "SKU-1", Title: "Shoe", ScrapedAt: time.Now()}
	if _, err := b.products.StoreOrUpdate(ctx, "site-1", product); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, name := range []string{"products.jsonl", "products.csv"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.Size() == 0 {
			t.Fatalf("%s not written: %v", name, err)
		}
	}

	if _, err := openBackend(ctx, storeOptions{kind: "postgres"}, logger); err == nil {
		t.Fatal("expected error without database url")
	}
	if _, err := openBackend(ctx, storeOptions{kind: "parquet"}, logger); err == nil {
		t.Fatal("expected error for unsupported store")
	}
}

func TestRouter(t *testing.T) {
	router := newRouter(metrics.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "scraper_retries_total") {
		t.Fatalf("metrics output missing retries counter:\n%s", rec.Body.String())
	}
}

func TestFanoutLogger(t *testing.T) {
	var console, file bytes.Buffer
	logger := fanoutLogger(consoleHandler(&console, true, slog.LevelInfo), &file, slog.LevelInfo)

	logger.Info("page fetched", slog.Int("page", 2))
	logger.Debug("hidden")

	if !strings.Contains(console.String(), "page fetched") || !strings.Contains(console.String(), "page=2") {
		t.Fatalf("console = %q", console.String())
	}
	if !strings.Contains(file.String(), `"msg":"page fetched"`) || !strings.Contains(file.String(), `"page":2`) {
		t.Fatalf("file = %q", file.String())
	}
	if strings.Contains(console.String()+file.String(), "hidden") {
		t.Fatal("debug record leaked at info level")
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2025, 11, 4, 13, 0, 0, 0, time.UTC)
	summary := &models.RunSummary{
		Job:          models.ScrapeJob{ID: "job-1", Status: models.JobCompleted, TotalCreated: 9, TotalUpdated: 1},
		Website:      models.Website{Slug: "example"},
		StartTime:    start,
		EndTime:      start.Add(90 * time.Second),
		Pagination:   models.PaginationInfo{TotalPages: 3},
		PagesFetched: 3,
		LinksFound:   11,
		DetailFailed: 1,
		FailedURLs:   []string{"https://shop.example.test/p/7"},
	}

	var out bytes.Buffer
	printSummary(&out, summary, "jsonl (products.jsonl)")
	text := out.String()
	for _, want := range []string{"Scrape completed", "3 fetched, 0 failed of 3", "Created:       9", "Failed URLs:   1", "1m30s", "jsonl (products.jsonl)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestCollectLinksHasNoDetailFlags(t *testing.T) {
	root := newRootCommand(config.DefaultConfig())
	var collect, scrape bool
	for _, cmd := range root.Commands() {
		flags := cmd.Flags()
		switch cmd.Name() {
		case "collect-links":
			collect = true
			for _, name := range []string{"pdp-concurrency", "batch-size", "batch-sleep"} {
				if flags.Lookup(name) != nil {
					t.Errorf("collect-links registers --%s", name)
				}
			}
			for _, name := range []string{"category-concurrency", "max-pages", "max-products", "output"} {
				if flags.Lookup(name) == nil {
					t.Errorf("collect-links is missing --%s", name)
				}
			}
		case "scrape":
			scrape = true
			for _, name := range []string{"pdp-concurrency", "batch-size", "batch-sleep", "category-concurrency"} {
				if flags.Lookup(name) == nil {
					t.Errorf("scrape is missing --%s", name)
				}
			}
		}
	}
	if !collect || !scrape {
		t.Fatalf("commands not registered: collect-links=%v scrape=%v", collect, scrape)
	}
}
