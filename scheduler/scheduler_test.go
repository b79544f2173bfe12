package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/models"
)

// fakeBatch answers from per-URL statuses; the body of a 200 page is the
// comma-separated list of links it carries.
type fakeBatch struct {
	mu       sync.Mutex
	statuses map[string]int
	links    map[string][]string
	sizes    []int
	requests []string
}

func (f *fakeBatch) FetchAll(_ context.Context, urls map[string]string) map[string]models.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, len(urls))
	out := make(map[string]models.FetchResult, len(urls))
	for key, u := range urls {
		f.requests = append(f.requests, u)
		status := f.statuses[u]
		if status == 0 {
			status = 200
		}
		if status != 200 {
			out[key] = models.FetchResult{StatusCode: status, Error: fmt.Sprintf("http status %d", status)}
			continue
		}
		out[key] = models.FetchResult{Success: true, StatusCode: 200, Body: []byte(strings.Join(f.links[u], ","))}
	}
	return out
}

type fakePages struct {
	mu    sync.Mutex
	calls map[string]int
	fail  bool
	links map[string][]string
}

func (f *fakePages) Fetch(_ context.Context, u string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[u]++
	if f.fail {
		return nil, errors.New("fetch failed after retries")
	}
	return []byte(strings.Join(f.links[u], ",")), nil
}

type commaLinks struct{}

func (commaLinks) Links(body []byte, _ string) []string {
	if len(body) == 0 {
		return nil
	}
	return strings.Split(string(body), ",")
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.RetryDelay = 0
	cfg.ChunkDelay = 0
	return cfg
}

func pageURL(t *testing.T, page int) string {
	t.Helper()
	u, err := PageURL("https://shop.test/c/shoes?sort=new", "page", page)
	if err != nil {
		t.Fatalf("page url: %v", err)
	}
	return u
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{429, 502, 503, 504, 520, 521, 522, 523, 524}
	for _, code := range retryable {
		if !IsRetryableStatus(code) {
			t.Errorf("IsRetryableStatus(%d) = false", code)
		}
	}
	terminal := []int{0, 200, 400, 403, 404, 500, 501, 519, 525}
	for _, code := range terminal {
		if IsRetryableStatus(code) {
			t.Errorf("IsRetryableStatus(%d) = true", code)
		}
	}
}

func TestPageURL(t *testing.T) {
	got, err := PageURL("https://shop.test/c/shoes?sort=new&page=1", "page", 4)
	if err != nil {
		t.Fatalf("page url: %v", err)
	}
	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Path != "/c/shoes" || parsed.Query().Get("sort") != "new" || parsed.Query().Get("page") != "4" {
		t.Fatalf("page url = %q", got)
	}

	if _, err := PageURL("/relative", "page", 2); err == nil {
		t.Fatalf("expected error for relative url")
	}
}

func TestProcessPagesChunksByConcurrency(t *testing.T) {
	tests := []struct {
		pages       int
		concurrency int
		wantSizes   []int
	}{
		{pages: 10, concurrency: 5, wantSizes: []int{5, 5}},
		{pages: 7, concurrency: 3, wantSizes: []int{3, 3, 1}},
		{pages: 2, concurrency: 5, wantSizes: []int{2}},
		{pages: 4, concurrency: 1, wantSizes: []int{1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_pages_by_%d", tt.pages, tt.concurrency), func(t *testing.T) {
			batch := &fakeBatch{}
			s := New(testConfig(), &fakePages{}, batch, commaLinks{}, Options{})

			pages := make([]int, tt.pages)
			for i := range pages {
				pages[i] = i + 2
			}
			result, err := s.ProcessPages(context.Background(), pages, "https://shop.test/c/shoes", tt.concurrency)
			if err != nil {
				t.Fatalf("process pages: %v", err)
			}
			if !reflect.DeepEqual(batch.sizes, tt.wantSizes) {
				t.Fatalf("chunk sizes = %v, want %v", batch.sizes, tt.wantSizes)
			}
			for _, size := range batch.sizes {
				if size > tt.concurrency {
					t.Fatalf("chunk of %d exceeds concurrency %d", size, tt.concurrency)
				}
			}
			if result.PagesFetched != tt.pages || result.PagesFailed != 0 {
				t.Fatalf("fetched = %d failed = %d", result.PagesFetched, result.PagesFailed)
			}
		})
	}
}

func TestProcessPagesRetriesTransientFailureOnce(t *testing.T) {
	tests := []struct {
		name       string
		retryFails bool
		wantLinks  []string
		wantFailed int
	}{
		{
			name:      "retry succeeds",
			wantLinks: []string{"p1a", "p1b", "p2a", "p3a", "p3b", "p4a", "p5a"},
		},
		{
			name:       "retry fails",
			retryFails: true,
			wantLinks:  []string{"p1a", "p1b", "p2a", "p4a", "p5a"},
			wantFailed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := map[string][]string{
				pageURL(t, 1): {"p1a", "p1b"},
				pageURL(t, 2): {"p2a"},
				pageURL(t, 3): {"p3a", "p3b"},
				pageURL(t, 4): {"p4a"},
				pageURL(t, 5): {"p5a"},
			}
			batch := &fakeBatch{statuses: map[string]int{pageURL(t, 3): 503}, links: links}
			pages := &fakePages{fail: tt.retryFails, links: links}

			s := New(testConfig(), pages, batch, commaLinks{}, Options{})
			result, err := s.ProcessPages(context.Background(), []int{1, 2, 3, 4, 5}, "https://shop.test/c/shoes?sort=new", 5)
			if err != nil {
				t.Fatalf("process pages: %v", err)
			}

			if len(pages.calls) != 1 || pages.calls[pageURL(t, 3)] != 1 {
				t.Fatalf("retry calls = %v, want one call for page 3", pages.calls)
			}
			if result.Retried != 1 {
				t.Fatalf("retried = %d, want 1", result.Retried)
			}
			if !reflect.DeepEqual(result.Links, tt.wantLinks) {
				t.Fatalf("links = %v, want %v", result.Links, tt.wantLinks)
			}
			if result.PagesFailed != tt.wantFailed {
				t.Fatalf("failed = %d, want %d", result.PagesFailed, tt.wantFailed)
			}
		})
	}
}

func TestProcessPagesTerminalStatusNotRetried(t *testing.T) {
	batch := &fakeBatch{statuses: map[string]int{pageURL(t, 2): 404, pageURL(t, 3): 500}}
	pages := &fakePages{}

	s := New(testConfig(), pages, batch, commaLinks{}, Options{})
	result, err := s.ProcessPages(context.Background(), []int{2, 3}, "https://shop.test/c/shoes?sort=new", 5)
	if err != nil {
		t.Fatalf("process pages: %v", err)
	}
	if len(pages.calls) != 0 {
		t.Fatalf("unexpected retries: %v", pages.calls)
	}
	if result.PagesFailed != 2 || len(result.FailedURLs) != 2 {
		t.Fatalf("failed = %d urls = %v", result.PagesFailed, result.FailedURLs)
	}
}

func TestProcessPagesCancelled(t *testing.T) {
	batch := &fakeBatch{}
	s := New(testConfig(), &fakePages{}, batch, commaLinks{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ProcessPages(ctx, []int{2, 3, 4}, "https://shop.test/c", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(batch.sizes) != 0 {
		t.Fatalf("expected no batches, got %v", batch.sizes)
	}
}

func TestFetchDetailsPreservesOrder(t *testing.T) {
	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://shop.test/p/%d", i)
	}
	batch := &fakeBatch{statuses: map[string]int{urls[4]: 429, urls[7]: 404}}
	pages := &fakePages{}

	s := New(testConfig(), pages, batch, commaLinks{}, Options{})
	var seen []string
	var failed []string
	retried, err := s.FetchDetails(context.Background(), urls, 5, func(u string, res models.FetchResult) {
		seen = append(seen, u)
		if !res.Success {
			failed = append(failed, u)
		}
	})
	if err != nil {
		t.Fatalf("fetch details: %v", err)
	}
	if !reflect.DeepEqual(seen, urls) {
		t.Fatalf("order = %v", seen)
	}
	if !reflect.DeepEqual(batch.sizes, []int{5, 5, 2}) {
		t.Fatalf("sizes = %v", batch.sizes)
	}
	if retried != 1 || pages.calls[urls[4]] != 1 {
		t.Fatalf("retried = %d calls = %v", retried, pages.calls)
	}
	if !reflect.DeepEqual(failed, []string{urls[7]}) {
		t.Fatalf("failed = %v", failed)
	}
}
