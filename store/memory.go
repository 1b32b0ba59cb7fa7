package store

import (
	"context"
	"sync"

	"github.com/aluiziolira/go-catalog-sync/models"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	products []models.Product
	byCode   map[string]int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byCode: make(map[string]int)}
}

func (m *MemoryStore) FindByStockCode(ctx context.Context, code string) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byCode[code]
	if !ok {
		return nil, nil
	}
	return []models.Product{m.products[idx]}, nil
}

func (m *MemoryStore) Insert(ctx context.Context, product *models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byCode[product.StockCode]; ok {
		return ErrDuplicateStockCode
	}
	m.byCode[product.StockCode] = len(m.products)
	m.products = append(m.products, *product)
	return nil
}

func (m *MemoryStore) DistinctSourceFilePaths(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, p := range m.products {
		if _, ok := seen[p.SourceFilePath]; ok {
			continue
		}
		seen[p.SourceFilePath] = struct{}{}
		out = append(out, p.SourceFilePath)
	}
	return out, nil
}

// All returns a copy of every stored record in insertion order.
func (m *MemoryStore) All() []models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Product, len(m.products))
	copy(out, m.products)
	return out
}

func (m *MemoryStore) Close() error {
	return nil
}
