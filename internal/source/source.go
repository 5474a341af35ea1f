// Package source implements the acquisition strategies, one per
// upstream. Each strategy owns its transport quirks end to end and
// reports its outcome instead of failing the run: a hostile upstream
// yields a zero-record report, never an aborted ingestion.
package source

import (
	"context"
	"time"

	"github.com/ortiz-cia/precios-cli/internal/model"
	"github.com/ortiz-cia/precios-cli/internal/store"
)

// Source is one upstream acquisition strategy.
type Source interface {
	// Name identifies the source in reports and logs.
	Name() string

	// Table names the logical table this source's records belong to.
	Table() store.Table

	// Fetch acquires and assembles the records for one run day. Errors
	// are folded into the report; the record slice may be empty.
	Fetch(ctx context.Context, day time.Time) ([]model.PriceRecord, model.SourceReport)
}
