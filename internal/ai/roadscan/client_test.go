package roadscan

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raahi-app/raahi/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(Config{Endpoint: endpoint, Timeout: 5 * time.Second}, logger)
	require.NoError(t, err)
	return c
}

func TestAnnotate_ReturnsAnnotatedImage(t *testing.T) {
	annotated := []byte("annotated-jpeg-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()

		uploaded, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("original-jpeg"), uploaded)
		assert.NotEmpty(t, header.Filename)

		w.Header().Set("Content-Type", "image/png")
		w.Write(annotated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.Annotate(context.Background(), []byte("original-jpeg"))

	require.NoError(t, err)
	assert.Equal(t, annotated, got.Data)
	assert.Equal(t, "image/png", got.ContentType)
}

func TestAnnotate_DefaultsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.Annotate(context.Background(), []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", got.ContentType)
}

func TestAnnotate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "bad request", status: http.StatusBadRequest, wantErr: ai.EInvalidImage},
		{name: "timeout", status: http.StatusRequestTimeout, wantErr: ai.ETimeout},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: ai.ERateLimit},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ai.EUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.Annotate(context.Background(), []byte("img"))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAnnotate_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Annotate(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ai.EMalformedResponse)
}

func TestAnnotate_EmptyInput(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	_, err := c.Annotate(context.Background(), nil)
	assert.ErrorIs(t, err, ai.EInvalidImage)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(Config{}, logger)
	assert.Error(t, err)
}
