// Package session obtains the pseudo-session token the markup source
// expects on its query POST. The source issues tokens inconsistently, so
// acquisition runs a three-tier fallback and always yields something:
// a freshly set cookie is least likely to be rejected, a token embedded
// in the form body is next best, and a configured last-known-good value
// is the degraded last resort.
package session

import (
	"bytes"
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ortiz-cia/precios-cli/internal/transport"
)

// Origin records which fallback tier produced the token.
type Origin string

const (
	OriginCookie   Origin = "cookie"
	OriginForm     Origin = "form"
	OriginFallback Origin = "fallback"
)

// Credentials is the outcome of one warm-up handshake. Hidden carries
// the form's other hidden inputs, echoed back verbatim on the POST.
type Credentials struct {
	Token  string
	Origin Origin
	Hidden map[string]string
}

// Config names the markers the acquirer looks for and the injected
// fallback token. The fallback lives in configuration so it can be
// rotated without touching extraction code.
type Config struct {
	WarmupURL     string
	CookieName    string
	TokenField    string
	HiddenFields  []string
	FallbackToken string
}

// Acquirer performs the warm-up handshake against the markup source.
type Acquirer struct {
	client *transport.Client
	cfg    Config
}

// New creates an Acquirer using the given transport client.
func New(client *transport.Client, cfg Config) *Acquirer {
	return &Acquirer{client: client, cfg: cfg}
}

// Acquire runs the three tiers in order and returns the first token
// found. It never fails: if the warm-up request itself errors, the
// configured fallback token is returned so the downstream request can
// proceed best-effort.
func (a *Acquirer) Acquire(ctx context.Context) Credentials {
	log := zap.L().With(zap.String("url", a.cfg.WarmupURL))

	resp, err := a.client.Get(ctx, a.cfg.WarmupURL)
	if err != nil {
		log.Warn("session: warm-up request failed, using fallback token", zap.Error(err))
		return Credentials{Token: a.cfg.FallbackToken, Origin: OriginFallback}
	}

	creds := Credentials{Hidden: a.hiddenFields(resp.Body)}

	for _, ck := range resp.Cookies {
		if ck.Name == a.cfg.CookieName && ck.Value != "" {
			creds.Token = ck.Value
			creds.Origin = OriginCookie
			return creds
		}
	}

	if tok, ok := creds.Hidden[a.cfg.TokenField]; ok && tok != "" {
		creds.Token = tok
		creds.Origin = OriginForm
		return creds
	}

	log.Debug("session: no cookie or embedded token, using fallback")
	creds.Token = a.cfg.FallbackToken
	creds.Origin = OriginFallback
	return creds
}

// hiddenFields scans the warm-up body for the configured hidden inputs.
func (a *Acquirer) hiddenFields(body []byte) map[string]string {
	fields := make(map[string]string)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fields
	}

	names := a.cfg.HiddenFields
	if a.cfg.TokenField != "" {
		names = append(append([]string{}, names...), a.cfg.TokenField)
	}
	for _, name := range names {
		sel := doc.Find(`input[name="` + name + `"]`).First()
		if val, ok := sel.Attr("value"); ok {
			fields[name] = val
		}
	}
	return fields
}
