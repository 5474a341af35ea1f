package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ortiz-cia/precios-cli/internal/transport"
)

func testAcquirer(srvURL string) Config {
	return Config{
		WarmupURL:     srvURL,
		CookieName:    "SESION",
		TokenField:    "USUARIO",
		HiddenFields:  []string{"ID", "CP", "FLASH"},
		FallbackToken: "last-known-good",
	}
}

func newClient() *transport.Client {
	return transport.New(transport.Options{
		Timeout:        2 * time.Second,
		InitialBackoff: time.Millisecond,
		PaceMin:        time.Millisecond,
	})
}

func TestAcquire_CookieWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SESION", Value: "fresh-cookie"})
		// Even with an embedded token present, the cookie takes priority.
		w.Write([]byte(`<form><input type="hidden" name="USUARIO" value="embedded"/></form>`)) //nolint:errcheck
	}))
	defer srv.Close()

	creds := New(newClient(), testAcquirer(srv.URL)).Acquire(context.Background())
	assert.Equal(t, "fresh-cookie", creds.Token)
	assert.Equal(t, OriginCookie, creds.Origin)
}

func TestAcquire_BodyEmbeddedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<form>
			<input type="hidden" name="ID" value="77"/>
			<input type="hidden" name="USUARIO" value="embedded-token"/>
		</form>`)) //nolint:errcheck
	}))
	defer srv.Close()

	creds := New(newClient(), testAcquirer(srv.URL)).Acquire(context.Background())
	assert.Equal(t, "embedded-token", creds.Token)
	assert.Equal(t, OriginForm, creds.Origin)
	assert.Equal(t, "77", creds.Hidden["ID"])
}

func TestAcquire_StaticFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>no form here</body></html>`)) //nolint:errcheck
	}))
	defer srv.Close()

	creds := New(newClient(), testAcquirer(srv.URL)).Acquire(context.Background())
	assert.Equal(t, "last-known-good", creds.Token)
	assert.Equal(t, OriginFallback, creds.Origin)
}

func TestAcquire_WarmupFailureStillYieldsToken(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // connection refused

	creds := New(newClient(), testAcquirer(srv.URL)).Acquire(context.Background())
	assert.Equal(t, "last-known-good", creds.Token)
	assert.Equal(t, OriginFallback, creds.Origin)
}
