package source

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ortiz-cia/precios-cli/internal/assemble"
	"github.com/ortiz-cia/precios-cli/internal/extract"
	"github.com/ortiz-cia/precios-cli/internal/model"
	"github.com/ortiz-cia/precios-cli/internal/session"
	"github.com/ortiz-cia/precios-cli/internal/store"
	"github.com/ortiz-cia/precios-cli/internal/transport"
)

// formDateLayout is the dd/mm/yyyy format the report form expects.
const formDateLayout = "02/01/2006"

// slaughterSchema describes the per-category results table. Keyword
// co-occurrence locates it regardless of page position; rows shorter
// than the category-to-head-count span are layout filler.
var slaughterSchema = extract.TableSchema{
	Keywords:      []string{"categor", "prom"},
	MinCells:      9,
	CategoryCell:  1,
	FooterMarkers: []string{"total", "categor"},
	PadTo:         12,
}

// MarketFormConfig configures the report-form source.
type MarketFormConfig struct {
	FormURL string

	// ReportType selects the report on the form. "1" is the per-category
	// slaughter summary.
	ReportType string

	// TokenField is the form input that carries the session token when
	// the upstream did not set a cookie.
	TokenField string
}

// MarketForm scrapes the auction market's historical report form: a
// warm-up GET for session state, then a POST replaying the form fields
// for the requested day.
type MarketForm struct {
	client  *transport.Client
	session *session.Acquirer
	cfg     MarketFormConfig
}

// NewMarketForm creates the report-form source.
func NewMarketForm(client *transport.Client, acquirer *session.Acquirer, cfg MarketFormConfig) *MarketForm {
	return &MarketForm{client: client, session: acquirer, cfg: cfg}
}

func (m *MarketForm) Name() string { return "slaughter-market" }

func (m *MarketForm) Table() store.Table { return store.TableSlaughter }

// Fetch runs the warm-up handshake, replays the query POST for day and
// assembles the per-category rows.
func (m *MarketForm) Fetch(ctx context.Context, day time.Time) ([]model.PriceRecord, model.SourceReport) {
	report := model.SourceReport{Source: m.Name()}
	log := zap.L().With(zap.String("source", m.Name()))

	creds := m.session.Acquire(ctx)
	log.Debug("session acquired", zap.String("origin", string(creds.Origin)))

	form := url.Values{}
	form.Set("txtFechaIni", day.Format(formDateLayout))
	form.Set("txtFechaFin", day.Format(formDateLayout))
	form.Set("LisTipo", m.cfg.ReportType)
	form.Set("OPCIONMENU", "")
	form.Set("OPCIONSUBMENU", "")
	for name, value := range creds.Hidden {
		form.Set(name, value)
	}
	// A cookie token rides in the jar; anything else goes in the form.
	if creds.Origin != session.OriginCookie && creds.Token != "" {
		form.Set(m.cfg.TokenField, creds.Token)
	}

	if err := m.client.Pace(ctx); err != nil {
		report.Error = err.Error()
		return nil, report
	}

	resp, err := m.client.PostForm(ctx, m.cfg.FormURL, form)
	if err != nil {
		report.Error = err.Error()
		return nil, report
	}
	if resp.StatusCode != 200 {
		log.Warn("report query rejected", zap.Int("status", resp.StatusCode))
		report.Error = "unexpected status " + strconv.Itoa(resp.StatusCode)
		return nil, report
	}

	body, err := transport.DecodeWindows1252(resp.Body)
	if err != nil {
		report.Error = err.Error()
		return nil, report
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		report.Error = err.Error()
		return nil, report
	}

	rows, check := extract.Table(doc, slaughterSchema)
	if !check.OK {
		log.Error("results table not recognized", zap.Strings("missing", check.Missing))
		report.StructuralMismatch = true
		report.MissingFields = check.Missing
		return nil, report
	}

	now := time.Now().UTC()
	var records []model.PriceRecord
	for _, cells := range rows {
		if rec, ok := assemble.SlaughterRow(cells, day, now); ok {
			records = append(records, rec)
		}
	}
	report.Extracted = len(records)
	return records, report
}
