package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-catalog-sync/models"
)

// SQLiteStore persists records in a single SQLite table with a unique stock code.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := createProductSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func createProductSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS products (
	stock_code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	colors TEXT NOT NULL,
	price REAL NOT NULL,
	discounted_price REAL,
	is_discounted INTEGER NOT NULL,
	price_unit TEXT NOT NULL,
	images TEXT NOT NULL,
	product_type TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	sample_size TEXT,
	series TEXT NOT NULL,
	status TEXT NOT NULL,
	fabric TEXT NOT NULL,
	model_measurements TEXT NOT NULL,
	product_measurements TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	source_file_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_source_file_path ON products (source_file_path);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create product schema: %w", err)
	}
	return nil
}

const productColumns = `stock_code, name, colors, price, discounted_price, is_discounted, price_unit,
	images, product_type, quantity, sample_size, series, status, fabric, model_measurements,
	product_measurements, created_at, updated_at, source_file_path`

func (s *SQLiteStore) FindByStockCode(ctx context.Context, code string) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE stock_code = ?`, code)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, product *models.Product) error {
	colors, err := json.Marshal(product.Colors)
	if err != nil {
		return fmt.Errorf("encode colors: %w", err)
	}
	images, err := json.Marshal(product.Images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO products (`+productColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(stock_code) DO NOTHING`,
		product.StockCode,
		product.Name,
		string(colors),
		product.Price,
		nullFloat(product.DiscountedPrice),
		product.IsDiscounted,
		product.PriceUnit,
		string(images),
		product.ProductType,
		product.Quantity,
		nullString(product.SampleSize),
		product.Series,
		string(product.Status),
		product.Fabric,
		product.ModelMeasurements,
		product.ProductMeasurements,
		product.CreatedAt.UTC().Format(time.RFC3339Nano),
		product.UpdatedAt.UTC().Format(time.RFC3339Nano),
		product.SourceFilePath,
	)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", product.StockCode, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert product %s: %w", product.StockCode, err)
	}
	if affected == 0 {
		return ErrDuplicateStockCode
	}
	return nil
}

func (s *SQLiteStore) DistinctSourceFilePaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source_file_path FROM products`)
	if err != nil {
		return nil, fmt.Errorf("query source files: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanProduct(rows *sql.Rows) (models.Product, error) {
	var (
		p                    models.Product
		colors, images       string
		discounted           sql.NullFloat64
		sampleSize           sql.NullString
		status               string
		createdAt, updatedAt string
	)
	err := rows.Scan(
		&p.StockCode, &p.Name, &colors, &p.Price, &discounted, &p.IsDiscounted, &p.PriceUnit,
		&images, &p.ProductType, &p.Quantity, &sampleSize, &p.Series, &status, &p.Fabric,
		&p.ModelMeasurements, &p.ProductMeasurements, &createdAt, &updatedAt, &p.SourceFilePath,
	)
	if err != nil {
		return p, fmt.Errorf("scan product: %w", err)
	}
	if err := json.Unmarshal([]byte(colors), &p.Colors); err != nil {
		return p, fmt.Errorf("decode colors: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return p, fmt.Errorf("decode images: %w", err)
	}
	if discounted.Valid {
		v := discounted.Float64
		p.DiscountedPrice = &v
	}
	if sampleSize.Valid {
		v := sampleSize.String
		p.SampleSize = &v
	}
	p.Status = models.Status(status)
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return p, fmt.Errorf("decode created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return p, fmt.Errorf("decode updated_at: %w", err)
	}
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
