package pipeline

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// DualWriter outputs to the per-category CSV files and a JSONL file.
type DualWriter struct {
	csvWriter  *CategoryCSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates a new dual writer for both CSV and JSON output
func NewDualWriter(booksDir, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCategoryCSVWriter(booksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write writes books to both CSV and JSON formats
func (dw *DualWriter) Write(books []*models.Book) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(books); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.jsonWriter.Write(books); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}

	return nil
}

// Close closes both writers
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error

	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}

	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}

	return nil
}

// Validate validates both outputs
func (dw *DualWriter) Validate() error {
	var errs []error

	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}

	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

// NewWriter picks the OutputWriter for format, rooted at outputDir:
// csv writes {outputDir}/books/{category}.csv, json writes
// {outputDir}/books.jsonl, dual writes both.
func NewWriter(format, outputDir string) (OutputWriter, error) {
	booksDir := filepath.Join(outputDir, "books")
	jsonFile := filepath.Join(outputDir, "books.jsonl")

	switch format {
	case "csv":
		return NewCategoryCSVWriter(booksDir)
	case "json":
		return NewJSONWriter(jsonFile)
	case "dual":
		return NewDualWriter(booksDir, jsonFile)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
