package scraper

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/simu18/CUNYServe/internal/logging"
	"github.com/simu18/CUNYServe/internal/storage"
)

// Variant extracts candidates from one known revision of a page layout.
type Variant struct {
	Name string
	// Selector marks the layout; it is also what a renderer waits for.
	Selector string
	Extract  func(doc *goquery.Document) []storage.RawEvent
}

// extractFirst tries variants in order and returns the first non-empty
// extraction along with the name of the variant that produced it.
func extractFirst(doc *goquery.Document, variants []Variant) ([]storage.RawEvent, string) {
	for _, v := range variants {
		if doc.Find(v.Selector).Length() == 0 {
			logging.Debugf("variant %s: selector %q absent", v.Name, v.Selector)
			continue
		}
		if events := v.Extract(doc); len(events) > 0 {
			return events, v.Name
		}
		logging.Debugf("variant %s: matched layout but extracted nothing", v.Name)
	}
	return nil, ""
}

// waitSelector joins the variant selectors into one group so a renderer
// returns as soon as any layout appears.
func waitSelector(variants []Variant) string {
	sel := ""
	for i, v := range variants {
		if i > 0 {
			sel += ", "
		}
		sel += v.Selector
	}
	return sel
}
