package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return NewClient(10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetHTMLFollowsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved":
			http.Redirect(w, r, "/final", http.StatusMovedPermanently)
		case "/final":
			w.Write([]byte("<html><body>catalog</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	page, err := testClient().GetHTML(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "catalog")
	assert.Equal(t, srv.URL+"/final", page.FinalURL)
	assert.Equal(t, http.StatusOK, page.Status)
}

func TestGetHTMLReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient().GetHTML(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestProbeDelisted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := testClient()
	ctx := context.Background()

	gone, err := c.ProbeDelisted(ctx, srv.URL+"/gone")
	require.NoError(t, err)
	assert.True(t, gone)

	gone, err = c.ProbeDelisted(ctx, srv.URL+"/missing")
	require.NoError(t, err)
	assert.True(t, gone)

	gone, err = c.ProbeDelisted(ctx, srv.URL+"/live")
	require.NoError(t, err)
	assert.False(t, gone)

	// Odd but live statuses are not delistings.
	gone, err = c.ProbeDelisted(ctx, srv.URL+"/teapot")
	require.NoError(t, err)
	assert.False(t, gone)
}

func TestProbeDelistedTransportErrorIsNotDelisted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	gone, err := testClient().ProbeDelisted(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.False(t, gone)
}
