package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(profile Profile) *Client {
	return New(Options{
		Profile:        profile,
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		PaceMin:        time.Millisecond,
		PaceMax:        2 * time.Millisecond,
	})
}

func TestClient_AppliesProfile(t *testing.T) {
	var gotUA, gotReferer, gotAccept, gotXRW string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotAccept = r.Header.Get("Accept")
		gotXRW = r.Header.Get("X-Requested-With")
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	c := fastClient(Profile{
		UserAgent:      "precios-cli/1.0",
		Referer:        "https://example.com/",
		Accept:         "application/json, text/javascript, */*; q=0.01",
		XRequestedWith: "XMLHttpRequest",
	})

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, "precios-cli/1.0", gotUA)
	assert.Equal(t, "https://example.com/", gotReferer)
	assert.Equal(t, "application/json, text/javascript, */*; q=0.01", gotAccept)
	assert.Equal(t, "XMLHttpRequest", gotXRW)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered")) //nolint:errcheck
	}))
	defer srv.Close()

	c := fastClient(Profile{})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := fastClient(Profile{})
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := fastClient(Profile{})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_PostFormAndCookieJar(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /form", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SESION", Value: "abc123"})
		w.Write([]byte("<html></html>")) //nolint:errcheck
	})
	var postCookie, postBody string
	mux.HandleFunc("POST /form", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("SESION"); err == nil {
			postCookie = ck.Value
		}
		require.NoError(t, r.ParseForm())
		postBody = r.PostForm.Get("txtFechaIni")
		w.Write([]byte("result")) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := fastClient(Profile{})
	ctx := context.Background()

	warm, err := c.Get(ctx, srv.URL+"/form")
	require.NoError(t, err)
	require.Len(t, warm.Cookies, 1)

	resp, err := c.PostForm(ctx, srv.URL+"/form", url.Values{"txtFechaIni": {"09/10/2025"}})
	require.NoError(t, err)
	assert.Equal(t, "result", string(resp.Body))
	assert.Equal(t, "abc123", postCookie)
	assert.Equal(t, "09/10/2025", postBody)
}

func TestClient_PaceRespectsContext(t *testing.T) {
	c := New(Options{PaceMin: time.Minute, PaceMax: 2 * time.Minute})
	// First token is available immediately.
	require.NoError(t, c.limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Pace(ctx)
	assert.Error(t, err)
}

func TestDecodeWindows1252(t *testing.T) {
	// "Categoría" with 0xED for í in windows-1252.
	raw := []byte{'C', 'a', 't', 'e', 'g', 'o', 'r', 0xED, 'a'}
	out, err := DecodeWindows1252(raw)
	require.NoError(t, err)
	assert.Equal(t, "Categoría", string(out))
}
