package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Book
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(books []*models.Book) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.Book, len(books))
	copy(copyBatch, books)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func (mw *mockWriter) all() []*models.Book {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var out []*models.Book
	for _, batch := range mw.batches {
		out = append(out, batch...)
	}
	return out
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(books []*models.Book) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]*models.Book) error { return errors.New("disk full") }

func (failingWriter) Close() error { return nil }

func (failingWriter) Validate() error { return nil }

type benchWriter struct {
	mu    sync.Mutex
	count int
}

func (bw *benchWriter) Write(books []*models.Book) error {
	bw.mu.Lock()
	bw.count += len(books)
	bw.mu.Unlock()
	return nil
}

func (bw *benchWriter) Close() error {
	return nil
}

func (bw *benchWriter) Validate() error {
	return nil
}

func newTestPipeline(t *testing.T, ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(ctx, writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func testBook(i int) *models.Book {
	return &models.Book{
		URL:      "http://example.test/book/" + strconv.Itoa(i),
		Title:    "Book",
		Category: "poetry",
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(1)

	valid := &models.Book{
		URL:      "http://example.test/book/1",
		Title:    "Clean Architecture",
		Category: "Software Design",
	}
	invalid := &models.Book{
		URL:      "http://example.test/book/2",
		Title:    "",
		Category: "poetry",
	}
	duplicate := &models.Book{
		URL:      "http://example.test/book/1",
		Title:    "Clean Architecture",
		Category: "software-design",
	}

	if err := p.Process(valid, invalid, duplicate); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written books = %d, want 1", got)
	}
	if got := writer.all()[0].Category; got != "software-design" {
		t.Fatalf("category should be normalized, got %q", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_url"] == 0 {
		t.Fatalf("expected duplicate_url validation error")
	}
	if p.Processed() != 1 {
		t.Fatalf("processed=%d, want 1", p.Processed())
	}
}

func TestPipelineLeavesCallerRecordUntouched(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, config.DefaultConfig())
	p.Start(2)

	book := &models.Book{
		URL:      "http://example.test/catalogue/book_1/index.html",
		Title:    "  Padded Title  ",
		Category: "Science Fiction",
		ImageURL: "../../media/cover.jpg",
	}
	if err := p.Process(book); err != nil {
		t.Fatalf("process: %v", err)
	}
	// Read concurrently with the workers, as the scraper does for image URLs.
	if book.ImageURL != "../../media/cover.jpg" {
		t.Fatalf("image url changed under the caller: %q", book.ImageURL)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if book.Category != "Science Fiction" || book.Title != "  Padded Title  " {
		t.Fatalf("caller record was mutated: %+v", book)
	}
	written := writer.all()
	if len(written) != 1 {
		t.Fatalf("written=%d, want 1", len(written))
	}
	if written[0] == book {
		t.Fatalf("writer received the caller's pointer")
	}
	if written[0].Category != "science-fiction" || written[0].Title != "Padded Title" {
		t.Fatalf("written record not normalized: %+v", written[0])
	}
	if written[0].ImageURL != "http://example.test/media/cover.jpg" {
		t.Fatalf("image url=%q", written[0].ImageURL)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(testBook(i)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process(testBook(i + 200)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written books = %d, want 100", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := newTestPipeline(t, context.Background(), &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(testBook(1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineWriterErrorSurfaces(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	p := newTestPipeline(t, context.Background(), failingWriter{}, cfg)
	p.Start(1)

	_ = p.Process(testBook(1))
	if err := p.Close(); err == nil {
		t.Fatalf("expected writer error")
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(1)

	if err := p.Process(testBook(999)); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

func TestNewPipelineDefaultsNonPositiveSizes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PipelineBufferSize = 0
	cfg.BatchSize = -1
	cfg.DedupeMaxSize = 0

	writer := &mockWriter{}
	p, err := NewPipeline(context.Background(), writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)
	if err := p.Process(testBook(1), testBook(1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written = %d, want 1", got)
	}
}

func BenchmarkPipeline_Throughput(b *testing.B) {
	cfg := config.DefaultConfig()
	cfg.PipelineBufferSize = 1024
	cfg.BatchSize = 64
	cfg.DedupeMaxSize = 5000000

	price := decimal.NewNullDecimal(decimal.RequireFromString("10.00"))
	available := 22
	rating := 2

	for _, workers := range []int{4, 8, 16, 32} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			writer := &benchWriter{}
			p, err := NewPipeline(context.Background(), writer, cfg)
			if err != nil {
				b.Fatalf("new pipeline: %v", err)
			}
			p.Start(workers)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				book := &models.Book{
					URL:          fmt.Sprintf("http://example.test/book/%d", i),
					UPC:          strconv.Itoa(i),
					Title:        "Benchmark Book",
					PriceInclTax: price,
					PriceExclTax: price,
					Available:    &available,
					Category:     "Poetry",
					Rating:       &rating,
					ImageURL:     "../../media/cover.jpg",
				}
				if err := p.Process(book); err != nil {
					b.Fatalf("process: %v", err)
				}
			}
			b.StopTimer()
			if err := p.Close(); err != nil {
				b.Fatalf("close: %v", err)
			}
			elapsed := b.Elapsed().Seconds()
			if elapsed > 0 {
				b.ReportMetric(float64(b.N)/elapsed, "items/sec")
			}
		})
	}
}
