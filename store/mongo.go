package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aluiziolira/go-catalog-sync/models"
)

const (
	fieldStockCode      = "stock_code"
	fieldSourceFilePath = "source_file_path"
)

// MongoStore persists records in a MongoDB collection with a unique index on
// stock_code.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and prepares the collection indexes.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, indexModels())
	if err != nil {
		return fmt.Errorf("create mongo indexes: %w", err)
	}
	return nil
}

func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldStockCode, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_stock_code"),
		},
		{
			Keys:    bson.D{{Key: fieldSourceFilePath, Value: 1}},
			Options: options.Index().SetName("idx_source_file_path"),
		},
	}
}

func (s *MongoStore) FindByStockCode(ctx context.Context, code string) ([]models.Product, error) {
	cursor, err := s.coll.Find(ctx, stockCodeFilter(code))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var out []models.Product
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Insert(ctx context.Context, product *models.Product) error {
	_, err := s.coll.InsertOne(ctx, product)
	return mapInsertError(product.StockCode, err)
}

func (s *MongoStore) DistinctSourceFilePaths(ctx context.Context) ([]string, error) {
	values, err := s.coll.Distinct(ctx, fieldSourceFilePath, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("distinct source files: %w", err)
	}
	return distinctStrings(values), nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func stockCodeFilter(code string) bson.D {
	return bson.D{{Key: fieldStockCode, Value: code}}
}

func mapInsertError(code string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateStockCode
	}
	return fmt.Errorf("insert product %s: %w", code, err)
}

func distinctStrings(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
