package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const redacted = "REDACTED"

// RedactedLogger is chi's request logger with the named query parameters
// masked in the log line. Handlers still see the original URL.
func RedactedLogger(f chimw.LogFormatter, params ...string) func(http.Handler) http.Handler {
	logger := chimw.RequestLogger(f)
	return func(next http.Handler) http.Handler {
		plain := logger(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			masked, ok := redactQuery(r, params)
			if !ok {
				plain.ServeHTTP(w, r)
				return
			}
			url, uri := r.URL, r.RequestURI
			restore := http.HandlerFunc(func(w http.ResponseWriter, lr *http.Request) {
				lr.URL, lr.RequestURI = url, uri
				next.ServeHTTP(w, lr)
			})
			logger(restore).ServeHTTP(w, masked)
		})
	}
}

func redactQuery(r *http.Request, params []string) (*http.Request, bool) {
	if r.URL.RawQuery == "" {
		return r, false
	}
	q := r.URL.Query()
	changed := false
	for _, p := range params {
		if q.Has(p) {
			q.Set(p, redacted)
			changed = true
		}
	}
	if !changed {
		return r, false
	}

	u := *r.URL
	u.RawQuery = q.Encode()
	masked := r.WithContext(r.Context())
	masked.URL = &u
	masked.RequestURI = u.RequestURI()
	return masked, true
}
