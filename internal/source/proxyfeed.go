package source

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ortiz-cia/precios-cli/internal/assemble"
	"github.com/ortiz-cia/precios-cli/internal/extract"
	"github.com/ortiz-cia/precios-cli/internal/model"
	"github.com/ortiz-cia/precios-cli/internal/normalize"
	"github.com/ortiz-cia/precios-cli/internal/store"
	"github.com/ortiz-cia/precios-cli/internal/transport"
)

// segments maps each listing endpoint to the market segment it serves.
// The endpoint order is stable upstream: 1 males, 2 females, 3 breeding.
var segments = []struct {
	name  string
	param string
	kind  model.SourceKind
}{
	{"males", "1", model.KindFeedlotMale},
	{"females", "2", model.KindFeedlotFemale},
	{"breeding", "3", model.KindFeedlotBreeding},
}

// ProxyFeedConfig configures the price-proxy source.
type ProxyFeedConfig struct {
	// ListingURL serves the current-week listings per segment.
	ListingURL string

	// HistoryURL serves the monthly trend series per category.
	HistoryURL string

	// Categories is the full category list queried on backfill. The
	// upstream adds categories over time; new ones take a config change,
	// not a release.
	Categories []string

	// HistoryWindow is the trend lookback the history endpoint accepts,
	// e.g. "3 years".
	HistoryWindow string
}

// ProxyFeed reads the restocking price proxy: a JSON API that is
// friendly on the wire and hostile in the payload, with numbers as
// locale strings and dates missing their year.
type ProxyFeed struct {
	client *transport.Client
	cfg    ProxyFeedConfig
}

// NewProxyFeed creates the price-proxy source.
func NewProxyFeed(client *transport.Client, cfg ProxyFeedConfig) *ProxyFeed {
	return &ProxyFeed{client: client, cfg: cfg}
}

func (p *ProxyFeed) Name() string { return "restocking-feed" }

func (p *ProxyFeed) Table() store.Table { return store.TableRestocking }

// Fetch pulls the three current-week segment listings. A failing
// segment is recorded and skipped; the remaining segments still yield.
func (p *ProxyFeed) Fetch(ctx context.Context, day time.Time) ([]model.PriceRecord, model.SourceReport) {
	report := model.SourceReport{Source: p.Name()}
	log := zap.L().With(zap.String("source", p.Name()))
	now := time.Now().UTC()

	var records []model.PriceRecord
	for _, seg := range segments {
		if err := p.client.Pace(ctx); err != nil {
			report.Error = err.Error()
			return records, report
		}

		resp, err := p.client.Get(ctx, p.listingURL(seg.param))
		if err != nil {
			log.Warn("segment listing failed", zap.String("segment", seg.name), zap.Error(err))
			report.FailedUnits = append(report.FailedUnits, seg.name)
			continue
		}
		if resp.StatusCode != 200 {
			log.Warn("segment listing rejected", zap.String("segment", seg.name), zap.Int("status", resp.StatusCode))
			report.FailedUnits = append(report.FailedUnits, seg.name)
			continue
		}

		listing, err := extract.Listing(resp.Body)
		if err != nil {
			log.Warn("segment payload unreadable", zap.String("segment", seg.name), zap.Error(err))
			report.FailedUnits = append(report.FailedUnits, seg.name)
			continue
		}

		start, startOK := normalize.ParsePartialDate(listing.WeekStart, day)
		end, endOK := normalize.ParsePartialDate(listing.WeekEnd, day)

		for _, item := range listing.Items {
			if rec, ok := assemble.WeeklyRecord(item, seg.kind, start, end, startOK, endOK, now); ok {
				records = append(records, rec)
			}
		}
	}

	report.Extracted = len(records)
	return records, report
}

// Backfill pulls the monthly trend series for every configured category
// over the history window. Failures are isolated per category.
func (p *ProxyFeed) Backfill(ctx context.Context, day time.Time) ([]model.PriceRecord, model.SourceReport) {
	report := model.SourceReport{Source: p.Name() + "-history"}
	log := zap.L().With(zap.String("source", report.Source))
	now := time.Now().UTC()

	var records []model.PriceRecord
	for _, category := range p.cfg.Categories {
		if err := p.client.Pace(ctx); err != nil {
			report.Error = err.Error()
			return records, report
		}

		resp, err := p.client.Get(ctx, p.historyURL(category))
		if err != nil {
			log.Warn("category history failed", zap.String("category", category), zap.Error(err))
			report.FailedUnits = append(report.FailedUnits, category)
			continue
		}
		if resp.StatusCode != 200 {
			log.Warn("category history rejected", zap.String("category", category), zap.Int("status", resp.StatusCode))
			report.FailedUnits = append(report.FailedUnits, category)
			continue
		}

		series, err := extract.Series(resp.Body)
		if err != nil {
			log.Warn("category series unreadable", zap.String("category", category), zap.Error(err))
			report.FailedUnits = append(report.FailedUnits, category)
			continue
		}

		for _, obs := range series {
			if rec, ok := assemble.MonthlyRecord(category, obs, day, now); ok {
				records = append(records, rec)
			}
		}
	}

	report.Extracted = len(records)
	return records, report
}

func (p *ProxyFeed) listingURL(segment string) string {
	q := url.Values{}
	q.Set("function", "getListadoPreciosInvernada")
	q.Set("p", segment)
	q.Set("m", "peso")
	return p.cfg.ListingURL + "?" + q.Encode()
}

func (p *ProxyFeed) historyURL(category string) string {
	q := url.Values{}
	q.Set("function", "getTendenciaPreciosInvernadaTotalMonthly")
	q.Set("p", category)
	q.Set("m", "peso")
	q.Set("f", p.cfg.HistoryWindow)
	q.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return p.cfg.HistoryURL + "?" + q.Encode()
}
