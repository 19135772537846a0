// Package web renders and serves the browser page.
package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

// NotificationsPath is where the notification hub is mounted.
const NotificationsPath = "/ws/notifications"

//go:embed templates/index.html
var indexTemplate string

// Options configures the rendered page.
type Options struct {
	// PollInterval is how often the page polls the desktop trigger endpoints.
	// Zero means one second.
	PollInterval time.Duration
	// Notifications makes the page subscribe to the notification hub.
	Notifications bool
}

type pageData struct {
	PollMillis        int64
	Notifications     bool
	NotificationsPath string
}

// Handler renders the page once and serves it at / and /index.html.
// Everything else is 404, so unknown API paths are not answered with HTML.
func Handler(opts Options) (http.Handler, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pageData{
		PollMillis:        opts.PollInterval.Milliseconds(),
		Notifications:     opts.Notifications,
		NotificationsPath: NotificationsPath,
	}); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	page := buf.Bytes()
	rendered := time.Now()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/index.html" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, "index.html", rendered, bytes.NewReader(page))
	}), nil
}
