package api

import (
	"net/http"

	"github.com/ashureev/jarvis/internal/desktop"
	"github.com/go-chi/chi/v5"
)

// DesktopHandler exposes the desktop signals to the page and the desktop
// shell. The page polls /trigger_*; the shell raises /desktop/*.
type DesktopHandler struct {
	signals *desktop.Signals
}

// NewDesktopHandler creates a DesktopHandler.
func NewDesktopHandler(signals *desktop.Signals) *DesktopHandler {
	return &DesktopHandler{signals: signals}
}

// RegisterRoutes registers the desktop signal routes.
func (h *DesktopHandler) RegisterRoutes(r chi.Router) {
	r.Post("/wake", h.Wake)
	r.Post("/sleep", h.Sleep)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		r.Method(method, "/trigger_listen", http.HandlerFunc(h.TriggerListen))
		r.Method(method, "/trigger_stop", http.HandlerFunc(h.TriggerStop))
	}

	r.Route("/desktop", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Post("/listen", h.RaiseListen)
		r.Post("/stop", h.RaiseStop)
	})
}

// Wake marks the assistant awake.
func (h *DesktopHandler) Wake(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": h.signals.Wake()})
}

// Sleep marks the assistant asleep.
func (h *DesktopHandler) Sleep(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": h.signals.Sleep()})
}

// TriggerListen consumes the listen flag.
func (h *DesktopHandler) TriggerListen(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": h.signals.ConsumeListen()})
}

// TriggerStop consumes the stop-speaking flag.
func (h *DesktopHandler) TriggerStop(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": h.signals.ConsumeStop()})
}

// RaiseListen asks the page to start listening on its next poll.
func (h *DesktopHandler) RaiseListen(w http.ResponseWriter, _ *http.Request) {
	h.signals.RequestListen()
	JSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// RaiseStop asks the page to stop speaking on its next poll.
func (h *DesktopHandler) RaiseStop(w http.ResponseWriter, _ *http.Request) {
	h.signals.RequestStop()
	JSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// State reports the wake state without consuming any flag.
func (h *DesktopHandler) State(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": h.signals.State()})
}
