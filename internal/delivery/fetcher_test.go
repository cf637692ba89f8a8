package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file body"))
	}))
	defer srv.Close()

	f := NewFetcherWithClient(srv.Client())
	data, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, []byte("file body"), data)
}

func TestFetch_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcherWithClient(srv.Client())
	_, err := f.Fetch(context.Background(), srv.URL)

	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetch_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)

	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetch_StopsReadingPastThreshold(t *testing.T) {
	// The server offers far more than the attachment cap; Fetch must
	// return just past the cap so callers can detect oversize without
	// the whole payload in memory.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := make([]byte, 1024*1024)
		for i := 0; i < 30; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := NewFetcherWithClient(srv.Client())
	data, err := f.Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, MaxAttachmentBytes+1, len(data))
	assert.Greater(t, len(data), MaxAttachmentBytes)
}
