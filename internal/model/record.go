package model

import "time"

// SourceKind classifies a price observation by upstream market segment.
type SourceKind string

const (
	// KindAbattoir covers per-animal slaughter sales from the auction market.
	KindAbattoir SourceKind = "abattoir"
	// KindFeedlotMale covers male restocking categories (terneros, novillitos).
	KindFeedlotMale SourceKind = "feedlot_male"
	// KindFeedlotFemale covers female restocking categories (terneras, vaquillonas by weight).
	KindFeedlotFemale SourceKind = "feedlot_female"
	// KindFeedlotBreeding covers breeding stock (vientres: pregnant cows, cows with calf).
	KindFeedlotBreeding SourceKind = "feedlot_breeding"
)

// Quality flags recorded when a parse fallback substituted a default value.
// A flagged record is kept (availability over correctness) but the
// substitution is visible to downstream consumers.
const (
	FlagAmountDefaulted = "amount_defaulted"
	FlagDateDefaulted   = "date_defaulted"
)

// PriceRecord is the canonical observation emitted by the pipeline.
// Optional numeric fields are nil when the source did not publish them,
// which is distinct from a published zero.
type PriceRecord struct {
	SourceKind  SourceKind `json:"source_kind"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`

	// Category is the label exactly as published upstream. Taxonomies differ
	// between sources and are deliberately not unified.
	Category    string `json:"category"`
	Breed       string `json:"breed,omitempty"`
	WeightRange string `json:"weight_range,omitempty"`

	PriceAvg float64  `json:"price_avg"`
	PriceMin *float64 `json:"price_min,omitempty"`
	PriceMax *float64 `json:"price_max,omitempty"`

	// HeadCount nil means the source publishes no counts for this series.
	// An explicit zero marks a non-actionable record and is dropped during
	// assembly.
	HeadCount *int `json:"head_count,omitempty"`

	TotalKilograms *float64 `json:"total_kilograms,omitempty"`
	TotalAmount    *float64 `json:"total_amount,omitempty"`

	WeekPriceChange *float64 `json:"week_over_week_price_change,omitempty"`

	QualityFlags []string  `json:"quality_flags,omitempty"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

// Flag appends a quality flag once.
func (r *PriceRecord) Flag(flag string) {
	for _, f := range r.QualityFlags {
		if f == flag {
			return
		}
	}
	r.QualityFlags = append(r.QualityFlags, flag)
}

// SourceReport summarizes one source's outcome within a run. FailedUnits
// names the units (a table, a category, an endpoint) that yielded zero
// records because of an error, letting an operator tell "no data today"
// apart from "source changed shape".
type SourceReport struct {
	Source             string   `json:"source"`
	Extracted          int      `json:"extracted"`
	Written            int      `json:"written"`
	FailedUnits        []string `json:"failed_units,omitempty"`
	StructuralMismatch bool     `json:"structural_mismatch"`
	MissingFields      []string `json:"missing_fields,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// RunSummary is the orchestrator's aggregate outcome for one ingestion run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Day        time.Time      `json:"day"`
	Sources    []SourceReport `json:"sources"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
}
