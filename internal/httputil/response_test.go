package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/unitmatch/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["error"]
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message": "hello"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"count": 42})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count": 42}`, rec.Body.String())
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, math.NaN())
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "failed to encode")
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(http.ResponseWriter)
		code  int
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "boom") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "boom") }, http.StatusNotFound},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError},
		{"custom", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusTeapot, "boom") }, http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "boom", decodeError(t, rec))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()
	errMissing := errors.New("missing")

	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("run x: %w", errMissing), errMissing)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run x: missing", decodeError(t, rec))

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("disk on fire"), errMissing)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
