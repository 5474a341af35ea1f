package main

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ortiz-cia/precios-cli/internal/session"
	"github.com/ortiz-cia/precios-cli/internal/source"
	"github.com/ortiz-cia/precios-cli/internal/store"
	"github.com/ortiz-cia/precios-cli/internal/transport"
)

func initStore(ctx context.Context) (store.Store, error) {
	policy := store.WritePolicy(cfg.Store.WritePolicy)
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path, policy)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, policy, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newFormClient builds the transport for the report form, presenting the
// browser identity the upstream expects on form submissions.
func newFormClient() *transport.Client {
	return transport.New(transport.Options{
		Profile: transport.Profile{
			UserAgent: cfg.HTTP.UserAgent,
			Accept:    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			Referer:   cfg.MarketForm.FormURL,
			Origin:    siteOrigin(cfg.MarketForm.FormURL),
		},
		Timeout:        cfg.HTTP.Timeout(),
		MaxAttempts:    cfg.HTTP.MaxAttempts,
		InitialBackoff: cfg.HTTP.Backoff(),
		PaceMin:        cfg.HTTP.PaceMin(),
		PaceMax:        cfg.HTTP.PaceMax(),
	})
}

// newFeedClient builds the transport for the price proxy, which expects
// an AJAX identity.
func newFeedClient() *transport.Client {
	return transport.New(transport.Options{
		Profile: transport.Profile{
			UserAgent:      cfg.HTTP.UserAgent,
			Accept:         "application/json, text/javascript, */*; q=0.01",
			Referer:        cfg.ProxyFeed.Referer,
			XRequestedWith: "XMLHttpRequest",
		},
		Timeout:        cfg.HTTP.Timeout(),
		MaxAttempts:    cfg.HTTP.MaxAttempts,
		InitialBackoff: cfg.HTTP.Backoff(),
		PaceMin:        cfg.HTTP.PaceMin(),
		PaceMax:        cfg.HTTP.PaceMax(),
	})
}

func newMarketForm() *source.MarketForm {
	client := newFormClient()
	acquirer := session.New(client, session.Config{
		WarmupURL:     cfg.MarketForm.FormURL,
		CookieName:    cfg.MarketForm.CookieName,
		TokenField:    cfg.MarketForm.TokenField,
		HiddenFields:  cfg.MarketForm.HiddenFields,
		FallbackToken: cfg.MarketForm.FallbackToken,
	})
	return source.NewMarketForm(client, acquirer, source.MarketFormConfig{
		FormURL:    cfg.MarketForm.FormURL,
		ReportType: cfg.MarketForm.ReportType,
		TokenField: cfg.MarketForm.TokenField,
	})
}

func newProxyFeed() *source.ProxyFeed {
	return source.NewProxyFeed(newFeedClient(), source.ProxyFeedConfig{
		ListingURL:    cfg.ProxyFeed.ListingURL,
		HistoryURL:    cfg.ProxyFeed.HistoryURL,
		Categories:    cfg.ProxyFeed.Categories,
		HistoryWindow: cfg.ProxyFeed.HistoryWindow,
	})
}

func siteOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// parseDay accepts the upstream dd/mm/yyyy convention and ISO dates.
func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized date %q, want dd/mm/yyyy or yyyy-mm-dd", s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
