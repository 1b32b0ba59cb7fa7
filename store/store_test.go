package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aluiziolira/go-catalog-sync/models"
)

func sampleProduct(code, source string) *models.Product {
	discounted := 2.24
	size := "S/36"
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Product{
		StockCode:           code,
		Name:                "Keten Gömlek",
		Colors:              []string{"Bej"},
		Price:               5.24,
		DiscountedPrice:     &discounted,
		IsDiscounted:        true,
		PriceUnit:           "USD",
		Images:              []string{"https://cdn.example.test/1.jpg"},
		ProductType:         "Gömlek",
		Quantity:            9,
		SampleSize:          &size,
		Series:              "1S-1M",
		Status:              models.StatusActive,
		Fabric:              "%90 Polyester",
		ModelMeasurements:   "N/A",
		ProductMeasurements: "N/A",
		CreatedAt:           now,
		UpdatedAt:           now,
		SourceFilePath:      source,
	}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s ProductStore) {
	t.Helper()
	ctx := context.Background()

	found, err := s.FindByStockCode(ctx, "A-1")
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, s.Insert(ctx, sampleProduct("A-1", "assets/a.xml")))
	require.NoError(t, s.Insert(ctx, sampleProduct("A-2", "assets/a.xml")))
	require.NoError(t, s.Insert(ctx, sampleProduct("B-1", "assets/b.xml")))

	err = s.Insert(ctx, sampleProduct("A-1", "assets/c.xml"))
	assert.True(t, errors.Is(err, ErrDuplicateStockCode), "got %v", err)

	found, err = s.FindByStockCode(ctx, "A-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	got := found[0]
	assert.Equal(t, "assets/a.xml", got.SourceFilePath)
	assert.Equal(t, []string{"Bej"}, got.Colors)
	assert.InDelta(t, 5.24, got.Price, 1e-9)
	require.NotNil(t, got.DiscountedPrice)
	assert.InDelta(t, 2.24, *got.DiscountedPrice, 1e-9)
	require.NotNil(t, got.SampleSize)
	assert.Equal(t, "S/36", *got.SampleSize)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.True(t, got.CreatedAt.Equal(sampleProduct("", "").CreatedAt))

	paths, err := s.DistinctSourceFilePaths(ctx)
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{"assets/a.xml", "assets/b.xml"}, paths)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	runStoreContract(t, s)
	assert.Len(t, s.All(), 3)
	assert.NoError(t, s.Close())
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	assert.Error(t, s.Insert(ctx, sampleProduct("A", "a.xml")))
	_, err := s.FindByStockCode(ctx, "A")
	assert.Error(t, err)
	_, err = s.DistinctSourceFilePaths(ctx)
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	s, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	runStoreContract(t, s)
}

func TestSQLiteStoreNullableFields(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	p := sampleProduct("N-1", "n.xml")
	p.DiscountedPrice = nil
	p.SampleSize = nil
	p.Images = []string{}
	require.NoError(t, s.Insert(context.Background(), p))

	found, err := s.FindByStockCode(context.Background(), "N-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Nil(t, found[0].DiscountedPrice)
	assert.Nil(t, found[0].SampleSize)
	assert.Empty(t, found[0].Images)
}

func TestSQLiteStoreReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, sampleProduct("R-1", "r.xml")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	paths, err := s.DistinctSourceFilePaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r.xml"}, paths)
}

func TestNewSQLiteStoreEmptyPath(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(context.Background(), Options{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "open.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), Options{Backend: "postgres"})
	assert.Error(t, err)
}

func TestMongoHelpers(t *testing.T) {
	assert.NoError(t, mapInsertError("A", nil))

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	assert.ErrorIs(t, mapInsertError("A", dup), ErrDuplicateStockCode)

	other := errors.New("connection reset")
	err := mapInsertError("A", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrDuplicateStockCode)

	assert.Equal(t, []string{"a.xml", "b.xml"}, distinctStrings([]interface{}{"a.xml", nil, 3, "b.xml"}))
	assert.Equal(t, "A-1", stockCodeFilter("A-1")[0].Value)

	indexes := indexModels()
	require.Len(t, indexes, 2)
	require.NotNil(t, indexes[0].Options.Unique)
	assert.True(t, *indexes[0].Options.Unique)
}
