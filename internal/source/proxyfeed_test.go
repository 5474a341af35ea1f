package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortiz-cia/precios-cli/internal/model"
	"github.com/ortiz-cia/precios-cli/internal/store"
	"github.com/ortiz-cia/precios-cli/internal/transport"
)

func newFeedClient() *transport.Client {
	return transport.New(transport.Options{
		Timeout:        2 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		PaceMin:        time.Millisecond,
		PaceMax:        2 * time.Millisecond,
	})
}

func listingBody(category string) string {
	return `{
		"semana_actual": {"desde": "14/01", "hasta": "20/01"},
		"data": [
			{"categoria": "` + category + `", "precio_semana_1": "3.100,50", "cantidad_semana_1": "120", "variacion_precio_semana_1": 1.5},
			{"categoria": "Sin operaciones", "precio_semana_1": "-", "cantidad_semana_1": "0", "variacion_precio_semana_1": null}
		]
	}`
}

func TestProxyFeed_Fetch(t *testing.T) {
	day := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getListadoPreciosInvernada", r.URL.Query().Get("function"))
		assert.Equal(t, "peso", r.URL.Query().Get("m"))
		switch r.URL.Query().Get("p") {
		case "1":
			w.Write([]byte(listingBody("Terneros 160-180 Kg.")))
		case "2":
			w.Write([]byte(listingBody("Terneras -150 Kg.")))
		case "3":
			w.Write([]byte(listingBody("Vacas de Invernada")))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewProxyFeed(newFeedClient(), ProxyFeedConfig{ListingURL: srv.URL})
	assert.Equal(t, store.TableRestocking, src.Table())

	records, report := src.Fetch(context.Background(), day)
	require.Empty(t, report.Error)
	assert.Empty(t, report.FailedUnits)

	// One priced category per segment; the zero-count entry is dropped.
	require.Len(t, records, 3)
	assert.Equal(t, 3, report.Extracted)

	kinds := []model.SourceKind{records[0].SourceKind, records[1].SourceKind, records[2].SourceKind}
	assert.Equal(t, []model.SourceKind{model.KindFeedlotMale, model.KindFeedlotFemale, model.KindFeedlotBreeding}, kinds)

	rec := records[0]
	assert.Equal(t, "Terneros 160-180 Kg.", rec.Category)
	assert.Equal(t, 3100.50, rec.PriceAvg)
	require.NotNil(t, rec.HeadCount)
	assert.Equal(t, 120, *rec.HeadCount)
	assert.Equal(t, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), rec.PeriodStart)
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), rec.PeriodEnd)
	assert.Empty(t, rec.QualityFlags)
}

func TestProxyFeed_Fetch_SegmentIsolation(t *testing.T) {
	day := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") == "2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(listingBody("Terneros 200-230 Kg.")))
	}))
	defer srv.Close()

	src := NewProxyFeed(newFeedClient(), ProxyFeedConfig{ListingURL: srv.URL})

	records, report := src.Fetch(context.Background(), day)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"females"}, report.FailedUnits)
}

func TestProxyFeed_Backfill(t *testing.T) {
	day := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	var queried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getTendenciaPreciosInvernadaTotalMonthly", r.URL.Query().Get("function"))
		assert.Equal(t, "3 years", r.URL.Query().Get("f"))
		assert.NotEmpty(t, r.URL.Query().Get("_"))
		queried = append(queried, r.URL.Query().Get("p"))
		w.Write([]byte(`{
			"categorias": "[\"Ene 24\", \"Feb 24\", \"Mar 24\"]",
			"series": [{"data": [{"x": 1, "y": 2890.5}, {"x": 2, "y": null}, {"x": 3, "y": 2950.0}]}]
		}`))
	}))
	defer srv.Close()

	src := NewProxyFeed(newFeedClient(), ProxyFeedConfig{
		HistoryURL:    srv.URL,
		Categories:    []string{"Terneros -160 Kg.", "Vacas CUT Preñadas"},
		HistoryWindow: "3 years",
	})

	records, report := src.Backfill(context.Background(), day)
	require.Empty(t, report.Error)
	assert.Equal(t, []string{"Terneros -160 Kg.", "Vacas CUT Preñadas"}, queried)

	// Two non-null points per category.
	require.Len(t, records, 4)
	assert.Equal(t, 4, report.Extracted)

	rec := records[0]
	assert.Equal(t, "Terneros -160 Kg.", rec.Category)
	assert.Equal(t, 2890.5, rec.PriceAvg)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rec.PeriodStart)
	assert.Equal(t, rec.PeriodStart, rec.PeriodEnd)
	assert.Nil(t, rec.HeadCount)
	assert.Equal(t, model.KindFeedlotMale, rec.SourceKind)
}

func TestProxyFeed_Backfill_CategoryIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") == "bad" {
			w.Write([]byte(`{"categorias": "[\"Ene 24\"]", "series": [{"data": []}]}`))
			return
		}
		w.Write([]byte(`{"categorias": "[\"Ene 24\"]", "series": [{"data": [{"y": 3000.0}]}]}`))
	}))
	defer srv.Close()

	src := NewProxyFeed(newFeedClient(), ProxyFeedConfig{
		HistoryURL:    srv.URL,
		Categories:    []string{"bad", "Terneras 170-190 Kg."},
		HistoryWindow: "3 years",
	})

	records, report := src.Backfill(context.Background(), time.Now().UTC())
	require.Len(t, records, 1)
	assert.Equal(t, []string{"bad"}, report.FailedUnits)
	assert.Equal(t, "Terneras 170-190 Kg.", records[0].Category)
}
