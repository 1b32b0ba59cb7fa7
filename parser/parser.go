// Package parser turns supplier XML catalogs into canonical product records.
package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/aluiziolira/go-catalog-sync/models"
)

// DefaultExt is the file extension of catalog files.
const DefaultExt = ".xml"

// Parser builds product records from catalog documents.
type Parser struct {
	rules Rules
	ext   string
	now   func() time.Time
}

// Option customises a Parser.
type Option func(*Parser)

// WithExt sets the catalog file extension.
func WithExt(ext string) Option {
	return func(p *Parser) {
		if ext != "" {
			p.ext = ext
		}
	}
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// New returns a Parser using rules.
func New(rules Rules, opts ...Option) *Parser {
	p := &Parser{
		rules: rules,
		ext:   DefaultExt,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ext returns the catalog file extension.
func (p *Parser) Ext() string {
	return p.ext
}

// IsCatalogFile reports whether name carries the catalog extension.
func (p *Parser) IsCatalogFile(name string) bool {
	return strings.HasSuffix(name, p.ext)
}

// ParseFile parses the catalog at path. One failing product fails the whole file.
func (p *Parser) ParseFile(path string) ([]*models.Product, error) {
	if !p.IsCatalogFile(path) {
		return nil, FormatError{Path: path}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, ParseError{Path: path, Err: err}
	}
	defer f.Close()

	return p.Parse(f, path)
}

// Parse reads a catalog document and returns one record per <Product> child of the
// root element, in document order. sourcePath is stamped on every record.
func (p *Parser) Parse(r io.Reader, sourcePath string) ([]*models.Product, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, ParseError{Path: sourcePath, Err: err}
	}
	root := firstElement(doc)
	if root == nil {
		return nil, ParseError{Path: sourcePath, Err: errors.New("document has no root element")}
	}

	now := p.now().UTC()
	nodes := childElements(root, "Product")
	products := make([]*models.Product, 0, len(nodes))
	for _, node := range nodes {
		product, err := p.BuildProduct(node, sourcePath, now)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// BuildProduct builds the record for one <Product> element.
func (p *Parser) BuildProduct(node *xmlquery.Node, sourcePath string, now time.Time) (*models.Product, error) {
	sentinel := p.rules.Sentinel
	stockCode := attrOr(node, "ProductId", sentinel)
	fail := func(err error) (*models.Product, error) {
		return nil, BuildError{StockCode: stockCode, Err: err}
	}

	details := productDetails(node)
	detail := func(name string) string {
		if v, ok := details[name]; ok {
			return v
		}
		return sentinel
	}

	descNode := childElement(node, "Description")
	if descNode == nil {
		return fail(errors.New("missing Description element"))
	}
	desc, err := ParseDescription(descriptionMarkup(descNode))
	if err != nil {
		return fail(err)
	}

	price, err := ToFloat(detail("Price"))
	if err != nil {
		return fail(fmt.Errorf("price: %w", err))
	}

	var discounted *float64
	isDiscounted := false
	if raw, ok := details["DiscountedPrice"]; ok {
		value, err := ToFloat(raw)
		if err != nil {
			return fail(fmt.Errorf("discounted price: %w", err))
		}
		discounted = &value
		isDiscounted = value < price
	}

	quantity, err := ToInt(detail("Quantity"))
	if err != nil {
		return fail(fmt.Errorf("quantity: %w", err))
	}

	var sampleSize *string
	if size, ok := ExtractSampleSize(desc.Residual, p.rules.SampleSizePatterns); ok {
		sampleSize = &size
	}

	product := &models.Product{
		StockCode:           stockCode,
		Name:                attrOr(node, "Name", sentinel),
		Colors:              []string{detail("Color")},
		Price:               price,
		DiscountedPrice:     discounted,
		IsDiscounted:        isDiscounted,
		PriceUnit:           p.rules.PriceUnit,
		Images:              imagePaths(node),
		ProductType:         detail("ProductType"),
		Quantity:            quantity,
		SampleSize:          sampleSize,
		Series:              detail("Series"),
		Status:              models.StatusFor(quantity),
		Fabric:              lookup(p.rules.Targets.Fabric, desc, sentinel),
		ModelMeasurements:   lookup(p.rules.Targets.ModelMeasurements, desc, sentinel),
		ProductMeasurements: lookup(p.rules.Targets.ProductMeasurements, desc, sentinel),
		CreatedAt:           now,
		UpdatedAt:           now,
		SourceFilePath:      sourcePath,
	}
	if err := ValidateProduct(product); err != nil {
		return fail(err)
	}
	return product, nil
}

// ValidateProduct ensures the builder captured the required fields. A blank stock
// code is kept as given: only an absent ProductId is replaced by the sentinel.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if len(p.Colors) == 0 {
		return fmt.Errorf("product missing colors for %s", p.StockCode)
	}
	if p.Status != models.StatusActive && p.Status != models.StatusDeactive {
		return fmt.Errorf("product %s has unknown status %q", p.StockCode, p.Status)
	}
	return nil
}

func firstElement(n *xmlquery.Node) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func childElements(n *xmlquery.Node, name string) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			out = append(out, c)
		}
	}
	return out
}

func childElement(n *xmlquery.Node, name string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return c
		}
	}
	return nil
}

func attr(n *xmlquery.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func attrOr(n *xmlquery.Node, name, fallback string) string {
	if v, ok := attr(n, name); ok {
		return v
	}
	return fallback
}

func productDetails(n *xmlquery.Node) map[string]string {
	details := make(map[string]string)
	container := childElement(n, "ProductDetails")
	if container == nil {
		return details
	}
	for _, d := range childElements(container, "ProductDetail") {
		name, _ := attr(d, "Name")
		value, _ := attr(d, "Value")
		details[name] = value
	}
	return details
}

func imagePaths(n *xmlquery.Node) []string {
	container := childElement(n, "Images")
	if container == nil {
		return []string{}
	}
	images := childElements(container, "Image")
	paths := make([]string, 0, len(images))
	for _, img := range images {
		path, _ := attr(img, "Path")
		paths = append(paths, path)
	}
	return paths
}

// descriptionMarkup returns the HTML carried by a <Description> element, either as
// CDATA/text or as inline child elements.
func descriptionMarkup(n *xmlquery.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return strings.TrimSpace(n.OutputXML(false))
		}
	}
	return strings.TrimSpace(n.InnerText())
}
