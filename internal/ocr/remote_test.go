package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
)

func TestRemoteOCR(t *testing.T) {
	var got remoteOCRRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"text":"EICR report","confidence":87,"pages":3}`))
	}))
	defer srv.Close()

	s, err := NewRemoteOCR(srv.URL, "secret", time.Second, nil)
	require.NoError(t, err)
	rec, err := s.Extract(context.Background(), []byte("abc"), "image/jpg")
	require.NoError(t, err)

	assert.Equal(t, constants.MIMEJPEG, got.MIMEType)
	assert.Equal(t, "YWJj", got.ContentBase64)
	assert.Equal(t, "EICR report", rec.Text)
	assert.Equal(t, 3, rec.Pages)
	assert.InDelta(t, 0.87, rec.Confidence, 1e-9)
}

func TestRemoteOCRNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewRemoteOCR(srv.URL, "", time.Second, nil)
	require.NoError(t, err)
	_, err = s.Extract(context.Background(), []byte("abc"), constants.MIMEPNG)
	assert.ErrorContains(t, err, "503")
}
