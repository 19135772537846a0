// Package middleware provides HTTP middleware for the Jarvis API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// corsMethods are the methods a preflight may be granted, in header order.
var corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

const (
	corsAllowHeaders  = "Content-Type, X-Request-Id"
	corsExposeHeaders = "Retry-After, X-Request-Id"
	corsMaxAge        = 10 * time.Minute
)

// CORS answers cross-origin requests for the routes mounted on a chi router.
type CORS struct {
	origins  map[string]bool
	wildcard bool
	routes   chi.Routes
}

// NewCORS creates the middleware. "*" allows any origin but never grants
// credentials. Preflights advertise the methods routes actually serves for
// the requested path; with nil routes they advertise GET and POST.
func NewCORS(allowedOrigins []string, routes chi.Routes) *CORS {
	c := &CORS{origins: make(map[string]bool, len(allowedOrigins)), routes: routes}
	for _, o := range allowedOrigins {
		if o == "*" {
			c.wildcard = true
			continue
		}
		c.origins[strings.TrimRight(o, "/")] = true
	}
	return c
}

// Handler is the chi middleware.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Add("Vary", "Origin")
		}

		explicit := c.origins[origin]
		if origin != "" && (explicit || c.wildcard) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
			// Echoing a wildcard match with credentials would enable CSRF.
			if explicit {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", c.allowedMethods(r.URL.Path))
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(corsMaxAge.Seconds())))
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c *CORS) allowedMethods(path string) string {
	if c.routes == nil {
		return "GET, POST, OPTIONS"
	}
	var methods []string
	for _, m := range corsMethods {
		if c.routes.Match(chi.NewRouteContext(), m, path) {
			methods = append(methods, m)
		}
	}
	return strings.Join(append(methods, http.MethodOptions), ", ")
}
