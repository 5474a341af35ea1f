// Package extract locates and pulls typed rows out of hostile upstream
// payloads. Neither source publishes a schema contract: the markup
// report moves its tables around between requests and the JSON proxy
// nests a stringified array inside its response. Extraction is driven by
// content heuristics, and a failed structural check yields zero records
// plus a typed mismatch instead of a panic.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TableSchema describes what the markup-table strategy expects to find.
type TableSchema struct {
	// Keywords are lowercase header fragments that must all co-occur in
	// the candidate table's text. Their absence is the canary for an
	// upstream redesign.
	Keywords []string

	// MinCells is the row acceptance threshold; shorter rows are
	// discarded as layout filler.
	MinCells int

	// CategoryCell indexes the cell whose text identifies the row.
	CategoryCell int

	// FooterMarkers are substrings (matched case-insensitively against
	// the category cell) that mark totals/footer rows.
	FooterMarkers []string

	// PadTo pads accepted rows with empty cells up to this count, so
	// positional mapping tolerates optional trailing columns.
	PadTo int
}

// SchemaCheck is the result of validating a document against a schema.
// When OK is false, Missing lists exactly which header keywords were not
// found, so the operator can see what changed upstream.
type SchemaCheck struct {
	OK      bool
	Missing []string
}

// Table scans every table in the document for the co-occurrence of the
// schema's header keywords, picks the best candidate, and extracts its
// rows. Table position is deliberately ignored: upstream reshuffles the
// layout between requests. If any expected keyword is missing from the
// best candidate the extraction aborts with a mismatch and no rows.
func Table(doc *goquery.Document, schema TableSchema) ([][]string, SchemaCheck) {
	best, missing := findCandidate(doc, schema.Keywords)
	if len(missing) > 0 {
		return nil, SchemaCheck{OK: false, Missing: missing}
	}
	return tableRows(best, schema), SchemaCheck{OK: true}
}

// findCandidate returns the table matching the most keywords and the
// keywords it still lacks. With no tables at all, every keyword is
// reported missing.
func findCandidate(doc *goquery.Document, keywords []string) (*goquery.Selection, []string) {
	var best *goquery.Selection
	bestHits := -1

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		text := strings.ToLower(table.Text())
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = table, hits
		}
	})

	if best == nil {
		return nil, append([]string{}, keywords...)
	}

	text := strings.ToLower(best.Text())
	var missing []string
	for _, kw := range keywords {
		if !strings.Contains(text, kw) {
			missing = append(missing, kw)
		}
	}
	return best, missing
}

func tableRows(table *goquery.Selection, schema TableSchema) [][]string {
	var rows [][]string

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})

		if len(cells) < schema.MinCells || schema.CategoryCell >= len(cells) {
			return
		}

		category := cells[schema.CategoryCell]
		if category == "" || isFooter(category, schema.FooterMarkers) {
			return
		}

		for len(cells) < schema.PadTo {
			cells = append(cells, "")
		}
		rows = append(rows, cells)
	})

	return rows
}

func isFooter(category string, markers []string) bool {
	lower := strings.ToLower(category)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
