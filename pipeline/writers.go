package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// CSVDelimiter separates fields in the per-category files.
const CSVDelimiter = ';'

// UncategorizedSlug names the file for records without a category.
const UncategorizedSlug = "uncategorized"

// CSVHeader is the column order of every category file.
var CSVHeader = []string{
	"product_page_url",
	"universal_product_code",
	"title",
	"price_including_tax",
	"price_excluding_tax",
	"number_available",
	"product_description",
	"category",
	"review_rating",
	"image_url",
}

type categoryFile struct {
	file   *os.File
	writer *csv.Writer
	rows   int
}

// CategoryCSVWriter writes one ';'-delimited file per category slug under dir.
type CategoryCSVWriter struct {
	dir   string
	files map[string]*categoryFile
	mu    sync.Mutex
}

// NewCategoryCSVWriter prepares dir for per-category output.
func NewCategoryCSVWriter(dir string) (*CategoryCSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %q: %w", dir, err)
	}
	return &CategoryCSVWriter{
		dir:   dir,
		files: make(map[string]*categoryFile),
	}, nil
}

// Path returns the file used for a category slug.
func (cw *CategoryCSVWriter) Path(category string) string {
	return filepath.Join(cw.dir, categoryFileName(category)+".csv")
}

// Write appends books to their category files, creating each file with a
// header row on first use.
func (cw *CategoryCSVWriter) Write(books []*models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	touched := make(map[string]*categoryFile)
	for _, book := range books {
		name := categoryFileName(book.Category)
		cf, err := cw.open(name)
		if err != nil {
			return err
		}
		if err := cf.writer.Write(bookRecord(book)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cf.rows++
		touched[name] = cf
	}

	for name, cf := range touched {
		cf.writer.Flush()
		if err := cf.writer.Error(); err != nil {
			return fmt.Errorf("flush csv records for %s: %w", name, err)
		}
	}
	return nil
}

// Close flushes and closes every category file.
func (cw *CategoryCSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	var errs []error
	for name, cf := range cw.files {
		cf.writer.Flush()
		if err := cf.writer.Error(); err != nil {
			errs = append(errs, fmt.Errorf("flush csv writer %s: %w", name, err))
		}
		if err := cf.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close csv file %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close category files: %v", errs)
	}
	return nil
}

// Validate ensures at least one category file received rows.
func (cw *CategoryCSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, cf := range cw.files {
		if cf.rows > 0 {
			return nil
		}
	}
	return fmt.Errorf("no csv rows written to %s", cw.dir)
}

// Categories returns the slugs written so far.
func (cw *CategoryCSVWriter) Categories() []string {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	out := make([]string, 0, len(cw.files))
	for name := range cw.files {
		out = append(out, name)
	}
	return out
}

func (cw *CategoryCSVWriter) open(name string) (*categoryFile, error) {
	if cf, ok := cw.files[name]; ok {
		return cf, nil
	}

	f, err := os.Create(filepath.Join(cw.dir, name+".csv"))
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	writer := csv.NewWriter(f)
	writer.Comma = CSVDelimiter
	if err := writer.Write(CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	cf := &categoryFile{file: f, writer: writer}
	cw.files[name] = cf
	return cf, nil
}

func categoryFileName(category string) string {
	name := strings.TrimSpace(category)
	name = strings.NewReplacer("/", "-", "\\", "-").Replace(name)
	if name == "" || name == "." || name == ".." {
		return UncategorizedSlug
	}
	return name
}

func bookRecord(book *models.Book) []string {
	return []string{
		book.URL,
		book.UPC,
		book.Title,
		formatDecimal(book.PriceInclTax),
		formatDecimal(book.PriceExclTax),
		formatInt(book.Available),
		book.Description,
		book.Category,
		formatInt(book.Rating),
		book.ImageURL,
	}
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func formatInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends books in JSONL format.
func (jw *JSONWriter) Write(books []*models.Book) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, book := range books {
		if err := jw.encoder.Encode(book); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
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
