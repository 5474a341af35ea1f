package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ortiz-cia/precios-cli/internal/model"
)

// recordArgs flattens a record into recordColumns order. Dates are
// serialized as ISO text so both backends store them in sortable
// canonical form; nil pointers become SQL NULLs.
func recordArgs(r model.PriceRecord) ([]any, error) {
	var flags any
	if len(r.QualityFlags) > 0 {
		b, err := json.Marshal(r.QualityFlags)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal quality flags")
		}
		flags = string(b)
	}

	return []any{
		string(r.SourceKind),
		r.PeriodStart.Format(dateLayout),
		r.PeriodEnd.Format(dateLayout),
		r.Category,
		r.Breed,
		r.WeightRange,
		r.PriceAvg,
		optF(r.PriceMin),
		optF(r.PriceMax),
		optI(r.HeadCount),
		optF(r.TotalKilograms),
		optF(r.TotalAmount),
		optF(r.WeekPriceChange),
		flags,
		r.ExtractedAt.UTC(),
	}, nil
}

func optF(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optI(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// recordScanner receives a row's column pointers in recordColumns order
// and produces the record once scanned.
type recordScanner struct {
	rec         model.PriceRecord
	kind        string
	periodStart string
	periodEnd   string
	priceMin    sql.NullFloat64
	priceMax    sql.NullFloat64
	headCount   sql.NullInt64
	totalKilos  sql.NullFloat64
	totalAmount sql.NullFloat64
	weekChange  sql.NullFloat64
	flags       sql.NullString
}

func (s *recordScanner) dest() []any {
	return []any{
		&s.kind,
		&s.periodStart,
		&s.periodEnd,
		&s.rec.Category,
		&s.rec.Breed,
		&s.rec.WeightRange,
		&s.rec.PriceAvg,
		&s.priceMin,
		&s.priceMax,
		&s.headCount,
		&s.totalKilos,
		&s.totalAmount,
		&s.weekChange,
		&s.flags,
		&s.rec.ExtractedAt,
	}
}

func (s *recordScanner) record() (model.PriceRecord, error) {
	rec := s.rec
	rec.SourceKind = model.SourceKind(s.kind)

	var err error
	if rec.PeriodStart, err = time.Parse(dateLayout, s.periodStart); err != nil {
		return rec, eris.Wrapf(err, "store: parse period_start %q", s.periodStart)
	}
	if rec.PeriodEnd, err = time.Parse(dateLayout, s.periodEnd); err != nil {
		return rec, eris.Wrapf(err, "store: parse period_end %q", s.periodEnd)
	}

	rec.PriceMin = nullF(s.priceMin)
	rec.PriceMax = nullF(s.priceMax)
	rec.TotalKilograms = nullF(s.totalKilos)
	rec.TotalAmount = nullF(s.totalAmount)
	rec.WeekPriceChange = nullF(s.weekChange)
	if s.headCount.Valid {
		h := int(s.headCount.Int64)
		rec.HeadCount = &h
	}
	if s.flags.Valid && s.flags.String != "" {
		if err := json.Unmarshal([]byte(s.flags.String), &rec.QualityFlags); err != nil {
			return rec, eris.Wrap(err, "store: unmarshal quality flags")
		}
	}
	return rec, nil
}

func nullF(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
