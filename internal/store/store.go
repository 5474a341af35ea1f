// Package store persists assembled price records idempotently and
// serves the range queries the reporting side consumes. Two backends
// implement the same contract behind a deployment-time driver switch.
package store

import (
	"context"
	"time"

	"github.com/ortiz-cia/precios-cli/internal/model"
)

// Table names one of the two logical tables, split by source kind.
type Table string

const (
	// TableSlaughter holds per-animal abattoir observations.
	TableSlaughter Table = "slaughter"
	// TableRestocking holds weekly/monthly feedlot observations.
	TableRestocking Table = "restocking"
)

// TableFor maps a source kind to its logical table.
func TableFor(kind model.SourceKind) Table {
	if kind == model.KindAbattoir {
		return TableSlaughter
	}
	return TableRestocking
}

// DateColumn returns the column that anchors a table's composite key and
// its query ordering: slaughter records key on the observation day,
// restocking records on the period's end date.
func DateColumn(table Table) string {
	if table == TableSlaughter {
		return "period_start"
	}
	return "period_end"
}

// WritePolicy decides what a duplicate-key write does. This is a
// deployment-time configuration: under re-ingestion of the same period,
// PolicyIgnore preserves the first-seen value while PolicyReplace keeps
// the most recent one.
type WritePolicy string

const (
	PolicyIgnore  WritePolicy = "ignore"
	PolicyReplace WritePolicy = "replace"
)

// Valid reports whether p is a known policy.
func (p WritePolicy) Valid() bool {
	return p == PolicyIgnore || p == PolicyReplace
}

// Filters narrows a range query. Empty fields do not filter.
type Filters struct {
	Kind        model.SourceKind `json:"kind,omitempty"`
	Category    string           `json:"category,omitempty"`
	Breed       string           `json:"breed,omitempty"`
	WeightRange string           `json:"weight_range,omitempty"`
}

// Store is the persistence contract the pipeline writes through and the
// reporting side reads through.
type Store interface {
	// UpsertBatch writes records atomically: the whole batch commits or
	// none of it does. Duplicate composite keys follow the configured
	// write policy. Returns the number of rows the write affected.
	UpsertBatch(ctx context.Context, table Table, records []model.PriceRecord) (int, error)

	// QueryRange returns records whose anchor date falls in [start, end],
	// ordered ascending by calendar date.
	QueryRange(ctx context.Context, table Table, start, end time.Time, f Filters) ([]model.PriceRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// dateLayout is the canonical on-disk date representation. ISO dates
// sort lexicographically in calendar order, which is what makes range
// predicates and ORDER BY correct on the TEXT date columns.
const dateLayout = "2006-01-02"

// recordColumns is the shared column set, in insert/scan order.
var recordColumns = []string{
	"source_kind",
	"period_start",
	"period_end",
	"category",
	"breed",
	"weight_range",
	"price_avg",
	"price_min",
	"price_max",
	"head_count",
	"total_kilograms",
	"total_amount",
	"week_price_change",
	"quality_flags",
	"extracted_at",
}

// conflictColumns is the composite natural key for a table.
func conflictColumns(table Table) []string {
	return []string{DateColumn(table), "category", "breed", "weight_range"}
}

// updateColumns lists the non-key columns refreshed under PolicyReplace.
func updateColumns(table Table) []string {
	keys := map[string]bool{}
	for _, k := range conflictColumns(table) {
		keys[k] = true
	}
	var cols []string
	for _, c := range recordColumns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}
