package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Description is the label:value data recovered from a product description block.
// Labels keep the order in which they first appeared.
type Description struct {
	Labels   []string
	Values   map[string]string
	Residual []string
}

func newDescription() *Description {
	return &Description{Values: make(map[string]string)}
}

// Get returns the value stored under label.
func (d *Description) Get(label string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.Values[label]
	return v, ok
}

func (d *Description) set(label, value string) {
	if _, ok := d.Values[label]; !ok {
		d.Labels = append(d.Labels, label)
	}
	d.Values[label] = value
}

// ParseDescription splits every <li> of markup at its first colon. Items without a
// colon are kept, in order, as residual fragments.
func ParseDescription(markup string) (*Description, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, ParseError{Err: err}
	}

	desc := newDescription()
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		item := strippedText(s)
		label, value, found := strings.Cut(item, ":")
		if !found {
			desc.Residual = append(desc.Residual, item)
			return
		}
		desc.set(strings.TrimSpace(label), strings.TrimSpace(value))
	})
	return desc, nil
}

// strippedText joins the trimmed text nodes under s, dropping empty ones.
func strippedText(s *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return sb.String()
}
