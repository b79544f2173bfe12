package parser

import (
	"testing"
	"time"

	"github.com/aluiziolira/go-catalog-scraper/models"
)

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.NormalizedProduct
		wantErr bool
	}{
		{
			name: "valid product",
			product: &models.NormalizedProduct{
				ExternalID: "SKU-1",
				Title:      "Trail Shoe",
				Price:      129.9,
				SourceURL:  "http://shop.test/p/trail-shoe",
				ScrapedAt:  time.Now(),
			},
			wantErr: false,
		},
		{name: "nil product", product: nil, wantErr: true},
		{
			name:    "missing external id",
			product: &models.NormalizedProduct{Title: "Trail Shoe"},
			wantErr: true,
		},
		{
			name:    "missing title",
			product: &models.NormalizedProduct{ExternalID: "SKU-1"},
			wantErr: true,
		},
		{
			name:    "negative price",
			product: &models.NormalizedProduct{ExternalID: "SKU-1", Title: "Trail Shoe", Price: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{input: "$1,234.56", want: 1234.56, wantOK: true},
		{input: "R$ 1.234,56", want: 1234.56, wantOK: true},
		{input: "12,50 EUR", want: 12.5, wantOK: true},
		{input: "£51.77", want: 51.77, wantOK: true},
		{input: "1,234", want: 1234, wantOK: true},
		{input: "1.234.567", want: 1234567, wantOK: true},
		{input: "  99  ", want: 99, wantOK: true},
		{input: "Price on request", want: 0, wantOK: false},
		{input: "", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseStock(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{input: "In stock (22 available)", want: 22},
		{input: "Only 3 left", want: 3},
		{input: "In stock", want: 1},
		{input: "Available", want: 1},
		{input: "Out of stock", want: 0},
		{input: "Unavailable", want: 0},
		{input: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseStock(tt.input); got != tt.want {
				t.Errorf("ParseStock(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestStockStatus(t *testing.T) {
	if got := StockStatus(5); got != StatusActive {
		t.Errorf("StockStatus(5) = %q", got)
	}
	if got := StockStatus(0); got != StatusOutOfStock {
		t.Errorf("StockStatus(0) = %q", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "Trail Running Shoe", want: "trail-running-shoe"},
		{input: "  A Light in the Attic!  ", want: "a-light-in-the-attic"},
		{input: "USB-C  Cable (2m)", want: "usb-c-cable-2m"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
