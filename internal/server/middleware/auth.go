package middleware

import (
	"bytes"
	"crypto/hmac"
	"io"
	"net/http"

	"github.com/madschristensen99/rushTrade/internal/crypto"
)

// maxSignedBodySize bounds how much request body the verifier will buffer.
const maxSignedBodySize = 1 << 20

// Auth returns middleware enforcing API authentication on mutating requests.
// Reads pass through: order books and market data are public, and order
// authenticity on submission comes from the EIP-712 signature itself.
//
// A request authenticates either with the three HMAC headers (key, unix
// timestamp, base64 signature over timestamp+method+path+body) or, as a
// fallback, with the bare key in X-API-Key. A nil auth disables the check.
func Auth(auth *crypto.APIAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if key := r.Header.Get("X-API-Key"); key != "" {
				if hmac.Equal([]byte(key), []byte(auth.Key)) {
					next.ServeHTTP(w, r)
					return
				}
				writeUnauthorized(w, "invalid api key")
				return
			}

			sig := r.Header.Get(crypto.HeaderSignature)
			if sig == "" {
				writeUnauthorized(w, "missing authentication headers")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodySize+1))
			if err != nil || len(body) > maxSignedBodySize {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := auth.Verify(
				r.Header.Get(crypto.HeaderAPIKey),
				r.Header.Get(crypto.HeaderTimestamp),
				sig,
				r.Method, r.URL.Path, string(body),
			); err != nil {
				writeUnauthorized(w, "invalid request signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
