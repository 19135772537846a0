package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/ashureev/jarvis/internal/domain"
)

// Sink names accepted by Config.Sinks.
const (
	SinkLog    = "log"
	SinkSpeech = "speech"
	SinkWS     = "ws"
)

// LogSink writes every notification to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Name implements Sink.
func (s *LogSink) Name() string { return SinkLog }

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, n domain.Notification) error {
	s.logger.Info("Jarvis says", "session_id", n.SessionID, "text", n.Text)
	return nil
}

// SpeechSink speaks notifications by running an external text-to-speech
// command with the text as its final argument.
type SpeechSink struct {
	command string
	args    []string
}

// NewSpeechSink parses a command line such as "espeak -s 150".
func NewSpeechSink(commandLine string) (*SpeechSink, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("speech command is empty")
	}
	return &SpeechSink{command: fields[0], args: fields[1:]}, nil
}

// Name implements Sink.
func (s *SpeechSink) Name() string { return SinkSpeech }

// Send implements Sink. It waits for the command to finish or ctx to end.
func (s *SpeechSink) Send(ctx context.Context, n domain.Notification) error {
	if strings.TrimSpace(n.Text) == "" {
		return nil
	}

	args := append(append(make([]string, 0, len(s.args)+1), s.args...), n.Text)
	cmd := exec.CommandContext(ctx, s.command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("speech command %s (exit code %d): %s", s.command, exitErr.ExitCode(), strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("speech command %s: %w", s.command, err)
	}
	return nil
}
