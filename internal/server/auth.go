// Package server provides the HTTP API server, middleware, and handlers for
// redactx.
package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/TheNetJedi/pii-redaction-openmed/internal/quota"
	"github.com/TheNetJedi/pii-redaction-openmed/internal/requestctx"
)

const anonymousClient = "anonymous"

// ParseAPIKeys maps each key to a client id. "acme:s3cret" maps s3cret to
// acme; a bare key maps to "client_" plus the first 8 hex digits of its
// SHA-256, so ids never reveal keys.
func ParseAPIKeys(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if client, key, ok := strings.Cut(e, ":"); ok && client != "" && key != "" {
			out[key] = client
			continue
		}
		sum := sha256.Sum256([]byte(e))
		out[e] = "client_" + hex.EncodeToString(sum[:4])
	}
	return out
}

// AuthMiddleware validates X-API-Key or Authorization: Bearer <key> and sets
// the client id in context. With no keys configured every request passes as
// the anonymous client.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(apiKeys) == 0 {
				next.ServeHTTP(w, r.WithContext(requestctx.SetClientID(r.Context(), anonymousClient)))
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			var clientID string
			for k, c := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					clientID = c
					break
				}
			}
			if clientID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.SetClientID(r.Context(), clientID)))
		})
	}
}

// rateKey buckets anonymous callers by address and authenticated callers by
// client id.
func rateKey(r *http.Request) string {
	if c := requestctx.ClientID(r.Context()); c != "" && c != anonymousClient {
		return c
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware applies the per-client token bucket and returns 429
// with Retry-After when it is empty.
func RateLimitMiddleware(m *quota.Manager) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.Allow(rateKey(r)); err != nil {
				writeQuotaError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeQuotaError(w http.ResponseWriter, err error) {
	wait, _ := quota.RetryAfter(err)
	secs := int(wait.Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	code := "rate_limit_exceeded"
	if errors.Is(err, quota.ErrDailyQuotaExceeded) {
		code = "quota_exceeded"
	}
	writeError(w, http.StatusTooManyRequests, code, err.Error())
}

// CORSMiddleware returns a middleware that sets CORS headers. allowedOrigins can be ["*"] for any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Entity-Count, X-Original-Filename, X-Render-Tier, X-Redaction-Destructive, X-Audit-ID")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
