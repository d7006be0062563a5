package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/liftlog-io/liftlog/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer

	log := New(config.LogConfig{Level: "warn"}, &buf)
	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	assert.Equal(t, zerolog.InfoLevel, New(config.LogConfig{Level: "bogus"}, &buf).GetLevel())
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: "info"}, &buf)

	h := middleware.RequestID(RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))

	assert.Equal(t, "inside", inner["message"])
	assert.NotEmpty(t, inner["request_id"])
	assert.Equal(t, inner["request_id"], access["request_id"])
	assert.Equal(t, "/users/me", access["path"])
	assert.EqualValues(t, http.StatusTeapot, access["status"])
}
