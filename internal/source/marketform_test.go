package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortiz-cia/precios-cli/internal/session"
	"github.com/ortiz-cia/precios-cli/internal/store"
	"github.com/ortiz-cia/precios-cli/internal/transport"
)

const warmupPage = `<html><body><form>
<input type="hidden" name="ID" value="77">
<input type="hidden" name="CP" value="0">
<input type="hidden" name="USUARIO" value="tok-form-1">
<input type="hidden" name="FLASH" value="">
</form></body></html>`

// reportPage is the POST response in its upstream windows-1252 charset.
// 0xED is the encoded í of "Categoría".
var reportPage = []byte(`<html><body>
<table><tr><td>noise</td><td>noise</td></tr></table>
<table>
<tr><td></td><td>Categor` + "\xed" + `a</td><td>Raza</td><td>Peso</td><td>Max</td><td>Min</td><td>Prom</td><td>Mediana</td><td>Cabezas</td><td>Kgs</td><td>CabProm</td><td>Importe</td></tr>
<tr><td></td><td>NOVILLOS</td><td>Angus</td><td>380-420</td><td>3.000,00</td><td>2.800,00</td><td>2.900,00</td><td></td><td>50</td><td>20.000</td><td></td><td>58.000.000,00</td></tr>
<tr><td></td><td>Totales</td><td></td><td></td><td></td><td></td><td></td><td></td><td>50</td><td>20.000</td><td></td><td>58.000.000,00</td></tr>
</table>
</body></html>`)

func newFormClient(srv *httptest.Server) (*transport.Client, *session.Acquirer) {
	client := transport.New(transport.Options{
		Timeout:        2 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		PaceMin:        time.Millisecond,
		PaceMax:        2 * time.Millisecond,
	})
	acquirer := session.New(client, session.Config{
		WarmupURL:     srv.URL,
		CookieName:    "session",
		TokenField:    "USUARIO",
		HiddenFields:  []string{"ID", "CP", "FLASH"},
		FallbackToken: "tok-static",
	})
	return client, acquirer
}

func TestMarketForm_Fetch(t *testing.T) {
	day := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	var posted map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(warmupPage))
			return
		}
		require.NoError(t, r.ParseForm())
		posted = map[string]string{}
		for k := range r.PostForm {
			posted[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		w.Write(reportPage)
	}))
	defer srv.Close()

	client, acquirer := newFormClient(srv)
	src := NewMarketForm(client, acquirer, MarketFormConfig{
		FormURL:    srv.URL,
		ReportType: "1",
		TokenField: "USUARIO",
	})

	assert.Equal(t, store.TableSlaughter, src.Table())

	records, report := src.Fetch(context.Background(), day)
	require.Empty(t, report.Error)
	assert.False(t, report.StructuralMismatch)
	assert.Equal(t, 1, report.Extracted)

	// The header, footer and junk tables all fall away; only the
	// tradable category row survives.
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "NOVILLOS", rec.Category)
	assert.Equal(t, "Angus", rec.Breed)
	assert.Equal(t, 2900.0, rec.PriceAvg)
	require.NotNil(t, rec.HeadCount)
	assert.Equal(t, 50, *rec.HeadCount)
	require.NotNil(t, rec.TotalAmount)
	assert.Equal(t, 58000000.0, *rec.TotalAmount)
	assert.Equal(t, day, rec.PeriodStart)
	assert.Empty(t, rec.QualityFlags)

	// The POST replays the query range, the report selector and the
	// hidden state from the warm-up form.
	assert.Equal(t, "20/01/2025", posted["txtFechaIni"])
	assert.Equal(t, "20/01/2025", posted["txtFechaFin"])
	assert.Equal(t, "1", posted["LisTipo"])
	assert.Equal(t, "77", posted["ID"])
	assert.Equal(t, "tok-form-1", posted["USUARIO"])
}

func TestMarketForm_Fetch_StructuralMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(warmupPage))
			return
		}
		w.Write([]byte(`<html><body><table><tr><td>Categoria</td><td>Media</td></tr></table></body></html>`))
	}))
	defer srv.Close()

	client, acquirer := newFormClient(srv)
	src := NewMarketForm(client, acquirer, MarketFormConfig{FormURL: srv.URL, ReportType: "1", TokenField: "USUARIO"})

	records, report := src.Fetch(context.Background(), time.Now())
	assert.Empty(t, records)
	assert.True(t, report.StructuralMismatch)
	assert.Contains(t, report.MissingFields, "prom")
}

func TestMarketForm_Fetch_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, acquirer := newFormClient(srv)
	src := NewMarketForm(client, acquirer, MarketFormConfig{FormURL: srv.URL, ReportType: "1", TokenField: "USUARIO"})

	records, report := src.Fetch(context.Background(), time.Now())
	assert.Empty(t, records)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, 0, report.Extracted)
}
