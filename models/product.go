// Package models defines the records produced and persisted by the catalog importer.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status reports whether a product is in stock.
type Status string

const (
	StatusActive   Status = "Active"
	StatusDeactive Status = "Deactive"
)

// StatusFor derives the stock status from a quantity.
func StatusFor(quantity int) Status {
	if quantity > 0 {
		return StatusActive
	}
	return StatusDeactive
}

// Product is the canonical record for one <Product> element of a supplier catalog.
type Product struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty" csv:"-"`
	StockCode           string             `bson:"stock_code" json:"stock_code" csv:"stock_code"`
	Name                string             `bson:"name" json:"name" csv:"name"`
	Colors              []string           `bson:"colors" json:"colors" csv:"colors"`
	Price               float64            `bson:"price" json:"price" csv:"price"`
	DiscountedPrice     *float64           `bson:"discounted_price,omitempty" json:"discounted_price,omitempty" csv:"discounted_price"`
	IsDiscounted        bool               `bson:"is_discounted" json:"is_discounted" csv:"is_discounted"`
	PriceUnit           string             `bson:"price_unit" json:"price_unit" csv:"price_unit"`
	Images              []string           `bson:"images" json:"images" csv:"images"`
	ProductType         string             `bson:"product_type" json:"product_type" csv:"product_type"`
	Quantity            int                `bson:"quantity" json:"quantity" csv:"quantity"`
	SampleSize          *string            `bson:"sample_size,omitempty" json:"sample_size,omitempty" csv:"sample_size"`
	Series              string             `bson:"series" json:"series" csv:"series"`
	Status              Status             `bson:"status" json:"status" csv:"status"`
	Fabric              string             `bson:"fabric" json:"fabric" csv:"fabric"`
	ModelMeasurements   string             `bson:"model_measurements" json:"model_measurements" csv:"model_measurements"`
	ProductMeasurements string             `bson:"product_measurements" json:"product_measurements" csv:"product_measurements"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at" csv:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at" csv:"updated_at"`
	SourceFilePath      string             `bson:"source_file_path" json:"source_file_path" csv:"source_file_path"`
}

// ImportResult summarises a single catalog file import.
type ImportResult struct {
	File     string
	Parsed   int
	Inserted int
	Skipped  int
}

// ReconcileReport summarises one reconciliation pass over the catalog directory.
type ReconcileReport struct {
	RunID           string
	StartTime       time.Time
	EndTime         time.Time
	Discovered      int
	AlreadyImported int
	Imported        []ImportResult
	Failed          map[string]error
	Err             error
}

// FetchResult holds the overall result of a feed download run.
type FetchResult struct {
	Files        []string
	StartTime    time.Time
	EndTime      time.Time
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
}
