// Package store persists product records keyed by stock code.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-catalog-sync/models"
)

// ErrDuplicateStockCode is returned by Insert when a record with the same stock code
// already exists.
var ErrDuplicateStockCode = errors.New("store: duplicate stock code")

// ProductStore is an insert-only document store for product records.
type ProductStore interface {
	FindByStockCode(ctx context.Context, code string) ([]models.Product, error)
	Insert(ctx context.Context, product *models.Product) error
	DistinctSourceFilePaths(ctx context.Context) ([]string, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend         string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	SQLitePath      string
}

// Open connects the configured backend.
func Open(ctx context.Context, opts Options) (ProductStore, error) {
	switch opts.Backend {
	case BackendMongo:
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase, opts.MongoCollection)
	case BackendSQLite:
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", opts.Backend)
	}
}
