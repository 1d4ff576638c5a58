package idempotency

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "Idempotent-Replay"

	maxKeyLen  = 128
	maxBodyLen = 1 << 20
)

// SubjectFunc names the principal a cached response belongs to.
type SubjectFunc func(*http.Request) string

// Middleware replays cached responses for repeated mutating requests carrying
// an Idempotency-Key header. Requests without the header pass through.
// Server errors are not cached so the client may retry them.
func Middleware(store *Store, subject SubjectFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLen {
				writeError(w, http.StatusBadRequest, "idempotency key too long", "invalid_idempotency_key")
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyLen+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "unable to read request body", "invalid_body")
				return
			}
			if len(body) > maxBodyLen {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			owner := subject(r)
			hash := HashRequest(r.Method, r.URL.Path, body)
			cached, err := store.Lookup(r.Context(), owner, key, hash)
			switch {
			case errors.Is(err, ErrMismatch):
				writeError(w, http.StatusConflict, err.Error(), "idempotency_conflict")
				return
			case err != nil:
				logger.Error("idempotency lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error", "internal")
				return
			case cached != nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(HeaderReplay, "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if !cacheable(rec.status) {
				return
			}
			if err := store.Save(r.Context(), &Response{
				Subject:     owner,
				Key:         key,
				RequestHash: hash,
				Status:      rec.status,
				Body:        rec.body.Bytes(),
			}); err != nil {
				logger.Error("idempotency save failed", "error", err)
			}
		})
	}
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// cacheable reports whether a response is stored for replay. Server errors and
// ledger refusals (422) are left uncached: both can succeed on a retry once the
// fault clears or the account is funded.
func cacheable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusUnprocessableEntity
}
