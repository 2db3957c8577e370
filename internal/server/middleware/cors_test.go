package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	t.Run("preflight from an allowed origin", func(t *testing.T) {
		var called bool
		h := CORS([]string{"https://app.rushtrade.io"})(okHandler(&called))

		r := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
		r.Header.Set("Origin", "https://app.rushtrade.io")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.rushtrade.io", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "RUSH-SIGNATURE")
		assert.False(t, called)
	})

	t.Run("disallowed origin gets no cors headers", func(t *testing.T) {
		var called bool
		h := CORS([]string{"https://app.rushtrade.io"})(okHandler(&called))

		r := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
		r.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.True(t, called)
	})

	t.Run("empty allow list allows every origin", func(t *testing.T) {
		var called bool
		h := CORS(nil)(okHandler(&called))

		r := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
		r.Header.Set("Origin", "https://anywhere.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, "https://anywhere.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.True(t, called)
	})
}
