package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-catalog-sync/models"
)

// OutputWriter receives batches of records from an Exporter.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// listSeparator joins multi-valued fields in CSV cells.
const listSeparator = "|"

var csvHeader = []string{
	"stock_code", "name", "colors", "price", "discounted_price", "is_discounted", "price_unit",
	"images", "product_type", "quantity", "sample_size", "series", "status", "fabric",
	"model_measurements", "product_measurements", "created_at", "updated_at", "source_file_path",
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
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

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends products to the CSV output.
func (cw *CSVWriter) Write(products []*models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, product := range products {
		if err := cw.writer.Write(csvRecord(product)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func csvRecord(p *models.Product) []string {
	discounted := ""
	if p.DiscountedPrice != nil {
		discounted = strconv.FormatFloat(*p.DiscountedPrice, 'f', -1, 64)
	}
	sampleSize := ""
	if p.SampleSize != nil {
		sampleSize = *p.SampleSize
	}
	return []string{
		p.StockCode,
		p.Name,
		strings.Join(p.Colors, listSeparator),
		strconv.FormatFloat(p.Price, 'f', -1, 64),
		discounted,
		strconv.FormatBool(p.IsDiscounted),
		p.PriceUnit,
		strings.Join(p.Images, listSeparator),
		p.ProductType,
		strconv.Itoa(p.Quantity),
		sampleSize,
		p.Series,
		string(p.Status),
		p.Fabric,
		p.ModelMeasurements,
		p.ProductMeasurements,
		p.CreatedAt.Format(time.RFC3339),
		p.UpdatedAt.Format(time.RFC3339),
		p.SourceFilePath,
	}
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
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

// Write appends products in JSONL format.
func (jw *JSONWriter) Write(products []*models.Product) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, product := range products {
		if err := jw.encoder.Encode(product); err != nil {
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

// NewWriter returns the writer for format: csv, json, or dual. Dual writes filename as
// CSV and a sibling .jsonl file.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch strings.ToLower(format) {
	case "csv":
		return NewCSVWriter(filename)
	case "json", "jsonl":
		return NewJSONWriter(filename)
	case "dual":
		csvWriter, err := NewCSVWriter(filename)
		if err != nil {
			return nil, err
		}
		jsonWriter, err := NewJSONWriter(strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl")
		if err != nil {
			_ = csvWriter.Close()
			return nil, err
		}
		return MultiWriter{csvWriter, jsonWriter}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// MultiWriter sends every batch to each of its writers in turn.
type MultiWriter []OutputWriter

// Write stops at the first writer that fails.
func (m MultiWriter) Write(products []*models.Product) error {
	for _, w := range m {
		if err := w.Write(products); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (m MultiWriter) Close() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

// Validate checks every writer and joins their errors.
func (m MultiWriter) Validate() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Validate())
	}
	return errors.Join(errs...)
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
