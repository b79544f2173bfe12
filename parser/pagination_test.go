package parser

import (
	"testing"

	"github.com/aluiziolira/go-catalog-scraper/models"
)

func TestPaginationResolverText(t *testing.T) {
	resolver, err := NewPaginationResolver("", "", nil)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	tests := []struct {
		name   string
		text   string
		want   models.PaginationInfo
		wantOK bool
	}{
		{
			name:   "even split",
			text:   "You've viewed 48 of 480 items",
			want:   models.PaginationInfo{ItemsPerPage: 48, TotalItems: 480, TotalPages: 10},
			wantOK: true,
		},
		{
			name:   "remainder rounds up",
			text:   "viewed 48 of 481 items",
			want:   models.PaginationInfo{ItemsPerPage: 48, TotalItems: 481, TotalPages: 11},
			wantOK: true,
		},
		{
			name:   "thousands separator",
			text:   "Viewed 60 of 1,234 products",
			want:   models.PaginationInfo{ItemsPerPage: 60, TotalItems: 1234, TotalPages: 21},
			wantOK: true,
		},
		{name: "zero total", text: "viewed 48 of 0 items", wantOK: false},
		{name: "zero per page", text: "viewed 0 of 480 items", wantOK: false},
		{name: "no marker", text: "Showing all products", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolver.ResolveText(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPaginationResolverSelector(t *testing.T) {
	resolver, err := NewPaginationResolver(".summary", "", nil)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	body := []byte(`<html><body>
		<p>viewed 1 of 2 reviews</p>
		<div class="summary">You've viewed 24 of 100 items</div>
	</body></html>`)

	got, ok := resolver.Resolve(body)
	if !ok {
		t.Fatalf("expected pagination")
	}
	want := models.PaginationInfo{ItemsPerPage: 24, TotalItems: 100, TotalPages: 5}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNewPaginationResolverRejectsPattern(t *testing.T) {
	if _, err := NewPaginationResolver("", `viewed (\d+)`, nil); err == nil {
		t.Fatalf("expected error for single capture group")
	}
	if _, err := NewPaginationResolver("", `viewed ((`, nil); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

func TestNewPaginationInfo(t *testing.T) {
	if _, ok := NewPaginationInfo(-1, 10); ok {
		t.Fatalf("negative page size should be absent")
	}
	if _, ok := NewPaginationInfo(10, -1); ok {
		t.Fatalf("negative total should be absent")
	}
	info, ok := NewPaginationInfo(10, 1)
	if !ok || info.TotalPages != 1 {
		t.Fatalf("got %+v, %v", info, ok)
	}
}

func TestAPIPaginationResolver(t *testing.T) {
	body := []byte(`{"meta":{"total":"95","per_page":20},"data":{"items":[{"url":"/p/1"}]}}`)

	resolver := NewAPIPaginationResolver("meta.total", "meta.per_page", "data.items")
	got, ok := resolver.Resolve(body)
	if !ok {
		t.Fatalf("expected pagination")
	}
	want := models.PaginationInfo{ItemsPerPage: 20, TotalItems: 95, TotalPages: 5}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	fromItems := NewAPIPaginationResolver("meta.total", "", "data.items")
	got, ok = fromItems.Resolve(body)
	if !ok || got.ItemsPerPage != 1 || got.TotalPages != 95 {
		t.Fatalf("items fallback got %+v, %v", got, ok)
	}

	if _, ok := NewAPIPaginationResolver("meta.missing", "meta.per_page", "").Resolve(body); ok {
		t.Fatalf("missing path should be absent")
	}
	if _, ok := resolver.Resolve([]byte("not json")); ok {
		t.Fatalf("invalid json should be absent")
	}
}
