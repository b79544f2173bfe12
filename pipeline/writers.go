package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/google/uuid"
)

// LinkWriter writes one URL per line.
type LinkWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	count  int
}

// NewLinkWriter creates (or truncates) filename and its parent directories.
func NewLinkWriter(filename string) (*LinkWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create link file: %w", err)
	}
	return &LinkWriter{file: f, writer: bufio.NewWriter(f)}, nil
}

// WriteLinks appends links and flushes.
func (lw *LinkWriter) WriteLinks(links []string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	for _, link := range links {
		if _, err := lw.writer.WriteString(link + "\n"); err != nil {
			return fmt.Errorf("write link: %w", err)
		}
		lw.count++
	}
	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush link file: %w", err)
	}
	return nil
}

// Count is the number of links written.
func (lw *LinkWriter) Count() int {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.count
}

// Close flushes buffers and closes the file.
func (lw *LinkWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush link file: %w", err)
	}
	return lw.file.Close()
}

// productRecord is one JSONL line.
type productRecord struct {
	ID        string                    `json:"id"`
	WebsiteID string                    `json:"website_id"`
	Created   bool                      `json:"created"`
	StoredAt  time.Time                 `json:"stored_at"`
	Product   *models.NormalizedProduct `json:"product"`
}

// fileKeys assigns stable entity ids per (website, external id) for the
// lifetime of the process.
type fileKeys struct {
	mu  sync.Mutex
	ids map[string]string
}

func (k *fileKeys) resolve(websiteID, externalID string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ids == nil {
		k.ids = make(map[string]string)
	}
	key := websiteID + "\x00" + externalID
	if id, ok := k.ids[key]; ok {
		return id, false
	}
	id := uuid.NewString()
	k.ids[key] = id
	return id, true
}

// JSONLStore appends every stored product as a JSON line. It implements
// ProductStore for runs without a database.
type JSONLStore struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	keys    fileKeys
	mu      sync.Mutex
}

// NewJSONLStore creates the output file.
func NewJSONLStore(filename string) (*JSONLStore, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}
	buffer := bufio.NewWriter(f)
	return &JSONLStore{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// StoreOrUpdate implements ProductStore.
func (js *JSONLStore) StoreOrUpdate(_ context.Context, websiteID string, product *models.NormalizedProduct) (models.StoreResult, error) {
	id, created := js.keys.resolve(websiteID, product.ExternalID)

	js.mu.Lock()
	defer js.mu.Unlock()
	record := productRecord{
		ID:        id,
		WebsiteID: websiteID,
		Created:   created,
		StoredAt:  time.Now().UTC(),
		Product:   product,
	}
	if err := js.encoder.Encode(record); err != nil {
		return models.StoreResult{}, fmt.Errorf("encode json record: %w", err)
	}
	if err := js.writer.Flush(); err != nil {
		return models.StoreResult{}, fmt.Errorf("flush json writer: %w", err)
	}
	return models.StoreResult{EntityID: id, WasCreated: created}, nil
}

// Close flushes buffers and closes the underlying file.
func (js *JSONLStore) Close() error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if err := js.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return js.file.Close()
}

// Validate ensures the JSON file has data.
func (js *JSONLStore) Validate() error {
	info, err := js.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

var csvHeader = []string{"id", "website_id", "external_id", "title", "slug", "price", "currency", "stock_quantity", "status", "images", "source_url", "scraped_at"}

// CSVStore writes one flattened row per stored product.
type CSVStore struct {
	file   *os.File
	writer *csv.Writer
	keys   fileKeys
	mu     sync.Mutex
}

// NewCSVStore initialises the CSV file and writes the header row.
func NewCSVStore(filename string) (*CSVStore, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVStore{file: f, writer: writer}, nil
}

// StoreOrUpdate implements ProductStore.
func (cs *CSVStore) StoreOrUpdate(_ context.Context, websiteID string, product *models.NormalizedProduct) (models.StoreResult, error) {
	id, created := cs.keys.resolve(websiteID, product.ExternalID)

	cs.mu.Lock()
	defer cs.mu.Unlock()
	record := []string{
		id,
		websiteID,
		product.ExternalID,
		product.Title,
		product.Slug,
		strconv.FormatFloat(product.Price, 'f', 2, 64),
		product.Currency,
		strconv.Itoa(product.StockQuantity),
		product.Status,
		strconv.Itoa(len(product.Media)),
		product.SourceURL,
		product.ScrapedAt.Format(time.RFC3339),
	}
	if err := cs.writer.Write(record); err != nil {
		return models.StoreResult{}, fmt.Errorf("write csv record: %w", err)
	}
	cs.writer.Flush()
	if err := cs.writer.Error(); err != nil {
		return models.StoreResult{}, fmt.Errorf("flush csv records: %w", err)
	}
	return models.StoreResult{EntityID: id, WasCreated: created}, nil
}

// Close flushes and closes the file handle.
func (cs *CSVStore) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.writer.Flush()
	if err := cs.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cs.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
