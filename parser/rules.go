package parser

import "regexp"

// NotAvailable is the placeholder for absent attributes and unresolved labels.
const NotAvailable = "N/A"

// LabelTargets holds the label substrings resolved against description labels.
type LabelTargets struct {
	Fabric              string
	ModelMeasurements   string
	ProductMeasurements string
}

// Rules holds the locale specific data driving record extraction.
type Rules struct {
	Sentinel           string
	PriceUnit          string
	Targets            LabelTargets
	SampleSizePatterns []*regexp.Regexp
}

// DefaultRules returns the Turkish/English rule set used by the supplier catalogs.
func DefaultRules() Rules {
	return Rules{
		Sentinel:  NotAvailable,
		PriceUnit: "USD",
		Targets: LabelTargets{
			Fabric:              "Kumaş Bilgisi",
			ModelMeasurements:   "Model Ölçüleri",
			ProductMeasurements: "Ürün Ölçüleri",
		},
		// Each pattern captures the size between its two anchors.
		SampleSizePatterns: []*regexp.Regexp{
			regexp.MustCompile(`ürün(.*?)bedendir`),
			regexp.MustCompile(`(?i)model is wearing(.*?)size`),
		},
	}
}
