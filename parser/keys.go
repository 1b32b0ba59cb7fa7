package parser

import (
	"regexp"
	"strings"
)

// ResolveKey returns the first label of d that contains target. Supplier labels
// often carry suffixes, so "Ürün Ölçüleri" resolves to "Ürün Ölçüleri1".
func ResolveKey(target string, d *Description) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, label := range d.Labels {
		if strings.Contains(label, target) {
			return label, true
		}
	}
	return "", false
}

// lookup resolves target against d and returns its value or fallback.
func lookup(target string, d *Description, fallback string) string {
	label, ok := ResolveKey(target, d)
	if !ok {
		return fallback
	}
	return d.Values[label]
}

// ExtractSampleSize scans residual fragments for the size worn by the model, for
// example "S/36" in "Modelin üzerindeki ürün S/36 bedendir.". The size is optional
// metadata: ok is false when nothing matches. The first matching fragment decides,
// even when its captured span is blank.
func ExtractSampleSize(fragments []string, patterns []*regexp.Regexp) (size string, ok bool) {
	for _, fragment := range fragments {
		for _, re := range patterns {
			if re == nil {
				continue
			}
			m := re.FindStringSubmatch(fragment)
			if len(m) < 2 {
				continue
			}
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}
