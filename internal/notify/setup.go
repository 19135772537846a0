package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config selects and tunes the sinks.
type Config struct {
	Sinks         []string
	QueueSize     int
	Timeout       time.Duration
	SpeechCommand string
	AllowedOrigin string
}

// Build assembles the notifier described by cfg. The returned hub is nil
// unless the ws sink is enabled. An empty sink list yields Noop.
func Build(cfg Config, logger *slog.Logger) (Notifier, *Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		sinks []Sink
		hub   *Hub
		seen  = make(map[string]bool)
	)
	for _, raw := range cfg.Sinks {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case SinkLog:
			sinks = append(sinks, NewLogSink(logger))
		case SinkSpeech:
			s, err := NewSpeechSink(cfg.SpeechCommand)
			if err != nil {
				return nil, nil, err
			}
			sinks = append(sinks, s)
		case SinkWS:
			hub = NewHub(cfg.AllowedOrigin, logger)
			sinks = append(sinks, hub)
		default:
			return nil, nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}

	if len(sinks) == 0 {
		logger.Info("Notifications disabled")
		return Noop{}, nil, nil
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("Notification sinks enabled", "sinks", names, "queue_size", cfg.QueueSize)

	return NewDispatcher(sinks, cfg.QueueSize, cfg.Timeout, logger), hub, nil
}
