// Package assemble maps extracted raw fields into canonical PriceRecords,
// applying the locale normalizer to every numeric and date field and
// enforcing the storage invariants: a record without a positive average
// price, or with an explicit zero head count, is dropped here rather
// than stored.
package assemble

import (
	"strings"
	"time"

	"github.com/ortiz-cia/precios-cli/internal/extract"
	"github.com/ortiz-cia/precios-cli/internal/model"
	"github.com/ortiz-cia/precios-cli/internal/normalize"
)

// Markup report cell layout. The table usually publishes twelve columns;
// rows are padded by the extractor so trailing indices stay valid.
const (
	cellCategory = 1
	cellBreed    = 2
	cellWeight   = 3
	cellMax      = 4
	cellMin      = 5
	cellAvg      = 6
	cellHead     = 8
	cellKilos    = 9
	cellAmount   = 11
)

// SlaughterRow maps one markup-table row into a PriceRecord. The bool is
// false when the row violates a storage invariant and must be dropped.
func SlaughterRow(cells []string, day time.Time, extractedAt time.Time) (model.PriceRecord, bool) {
	if len(cells) <= cellAmount {
		return model.PriceRecord{}, false
	}

	category := strings.TrimSpace(cells[cellCategory])
	if category == "" {
		return model.PriceRecord{}, false
	}

	avg, ok := normalize.ParseAmount(cells[cellAvg])
	if !ok || avg <= 0 {
		return model.PriceRecord{}, false
	}

	headF, _ := normalize.ParseAmount(cells[cellHead])
	head := int(headF)
	if head <= 0 {
		// Zero head count means nothing actually traded.
		return model.PriceRecord{}, false
	}

	rec := model.PriceRecord{
		SourceKind:  model.KindAbattoir,
		PeriodStart: day,
		PeriodEnd:   day,
		Category:    category,
		Breed:       strings.TrimSpace(cells[cellBreed]),
		WeightRange: strings.TrimSpace(cells[cellWeight]),
		PriceAvg:    avg,
		HeadCount:   &head,
		ExtractedAt: extractedAt,
	}

	rec.PriceMax = optAmount(cells[cellMax], &rec)
	rec.PriceMin = optAmount(cells[cellMin], &rec)
	rec.TotalKilograms = optAmount(cells[cellKilos], &rec)

	// Total amount is usually the last published column; older layouts
	// put it one cell earlier.
	amountText := cells[cellAmount]
	if strings.TrimSpace(amountText) == "" {
		amountText = cells[cellAmount-1]
	}
	rec.TotalAmount = optAmount(amountText, &rec)

	return rec, true
}

// WeeklyRecord maps one current-period listing item into a PriceRecord.
// kind comes from the endpoint discriminator; start/end are the
// completed week bounds, with ok flags from the partial-date parser.
func WeeklyRecord(item extract.WeeklyItem, kind model.SourceKind, start, end time.Time, startOK, endOK bool, extractedAt time.Time) (model.PriceRecord, bool) {
	category := strings.TrimSpace(item.Category)
	if category == "" {
		return model.PriceRecord{}, false
	}

	price, ok := normalize.ParseAmount(string(item.Price))
	if !ok || price <= 0 {
		return model.PriceRecord{}, false
	}

	rec := model.PriceRecord{
		SourceKind:  kind,
		PeriodStart: start,
		PeriodEnd:   end,
		Category:    category,
		PriceAvg:    price,
		ExtractedAt: extractedAt,
	}
	if !startOK || !endOK {
		rec.Flag(model.FlagDateDefaulted)
	}

	// A missing count means this series publishes none (unknown, kept);
	// an explicit zero marks a non-actionable record (dropped).
	if countText := strings.TrimSpace(string(item.Count)); countText != "" {
		countF, countOK := normalize.ParseAmount(countText)
		count := int(countF)
		if countOK && count == 0 {
			return model.PriceRecord{}, false
		}
		if !countOK {
			rec.Flag(model.FlagAmountDefaulted)
		} else {
			rec.HeadCount = &count
		}
	}

	if changeText := strings.TrimSpace(string(item.Change)); changeText != "" {
		change, changeOK := normalize.ParseAmount(changeText)
		if !changeOK {
			rec.Flag(model.FlagAmountDefaulted)
		}
		rec.WeekPriceChange = &change
	}

	return rec, true
}

// MonthlyRecord maps one historical series observation into a
// PriceRecord. The label is a "Mon YY" fragment; unparseable labels drop
// the observation since a monthly point without its month is
// meaningless. Head counts are not published for this series.
func MonthlyRecord(category string, obs extract.Observation, runDay time.Time, extractedAt time.Time) (model.PriceRecord, bool) {
	if obs.Value == nil || *obs.Value <= 0 {
		return model.PriceRecord{}, false
	}

	day, ok := normalize.ParsePartialDate(obs.Label, runDay)
	if !ok {
		return model.PriceRecord{}, false
	}

	return model.PriceRecord{
		SourceKind:  ClassifyKind(category),
		PeriodStart: day,
		PeriodEnd:   day,
		Category:    category,
		PriceAvg:    *obs.Value,
		ExtractedAt: extractedAt,
	}, true
}

// ClassifyKind derives the market segment from a category label's
// gender/weight keywords. Vaquillonas with an explicit weight range sell
// as restocking females; without one they are breeding stock.
func ClassifyKind(category string) model.SourceKind {
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "ternera"):
		return model.KindFeedlotFemale
	case strings.Contains(lower, "ternero"), strings.Contains(lower, "novill"):
		return model.KindFeedlotMale
	case strings.Contains(lower, "vaquillona"):
		if strings.Contains(lower, "kg") {
			return model.KindFeedlotFemale
		}
		return model.KindFeedlotBreeding
	case strings.Contains(lower, "vaca"):
		return model.KindFeedlotBreeding
	default:
		return model.KindFeedlotBreeding
	}
}

// optAmount parses an optional numeric cell. Empty cells stay nil; a
// non-empty cell that fails to parse keeps the 0 default but flags the
// record so the substitution is visible downstream.
func optAmount(text string, rec *model.PriceRecord) *float64 {
	s := strings.TrimSpace(text)
	if s == "" || s == "-" {
		return nil
	}
	v, ok := normalize.ParseAmount(s)
	if !ok {
		rec.Flag(model.FlagAmountDefaulted)
	}
	return &v
}
