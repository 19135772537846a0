package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ashureev/jarvis/internal/domain"
	"github.com/ashureev/jarvis/internal/health"
	"github.com/spf13/cobra"
)

// DefaultServerURL is used when neither --server nor JARVIS_URL is set.
const DefaultServerURL = "http://localhost:8080"

type rootOptions struct {
	server  string
	timeout time.Duration
}

func (o *rootOptions) client() *Client {
	return NewClient(o.server, o.timeout)
}

// NewRootCommand builds the jarvisctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	defaultServer := os.Getenv("JARVIS_URL")
	if defaultServer == "" {
		defaultServer = DefaultServerURL
	}

	root := &cobra.Command{
		Use:   "jarvisctl",
		Short: "Talk to a running Jarvis server",
		Long: `jarvisctl sends utterances to a Jarvis server, manages conversation
sessions and raises desktop signals from the command line.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "Jarvis server URL (env JARVIS_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newAskCommand(opts),
		newNewCommand(opts),
		newHistoryCommand(opts),
		newSessionsCommand(opts),
		newSignalCommand(opts),
		newHealthCommand(opts),
	)
	return root
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <utterance...>",
		Short: "Send an utterance and print the reply",
		Long: `Send an utterance to Jarvis and print the reply.

With --session the utterance and the reply are also recorded in that
session's transcript.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := opts.client()
			utterance := strings.Join(args, " ")

			reply, err := c.Ask(ctx, sessionID, utterance)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Text)

			if sessionID == "" {
				return nil
			}
			if err := c.SaveMessage(ctx, sessionID, domain.SpeakerUser, utterance); err != nil {
				return fmt.Errorf("record utterance: %w", err)
			}
			if err := c.SaveMessage(ctx, sessionID, domain.SpeakerAssistant, reply.Text); err != nil {
				return fmt.Errorf("record reply: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Record the exchange in this session")
	return cmd
}

func newNewCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := opts.client().StartSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.client().History(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(session.Messages) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No messages in session "+session.SessionID))
				return nil
			}

			tbl := newTable(out, "SPEAKER", "TIME", "TEXT")
			for _, m := range session.Messages {
				tbl.AddRow(m.Speaker, m.Timestamp.Local().Format(time.DateTime), truncate(m.Text, 80))
			}
			tbl.Print()
			return nil
		},
	}
}

func newSessionsCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := opts.client().Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No sessions"))
				return nil
			}

			tbl := newTable(out, "SESSION", "CREATED", "MESSAGES")
			for _, s := range sessions {
				tbl.AddRow(s.SessionID, s.CreatedAt.Local().Format(time.DateTime), s.MessageCount)
			}
			tbl.Print()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to list")
	return cmd
}

func newSignalCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "signal <listen|stop|wake|sleep>",
		Short:     "Raise a desktop signal",
		Long:      `Queue a listen or stop request for the browser page, or wake or sleep the assistant.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"listen", "stop", "wake", "sleep"},
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().Signal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(args[0]+": "+status))
			return nil
		},
	}
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	var grpcAddr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `Check server health over HTTP, or over the gRPC health service
when --grpc is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			out := cmd.OutOrStdout()

			if grpcAddr != "" {
				status, err := health.Check(ctx, grpcAddr)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderStatus(status.String(), status.String() == "SERVING"))
				return nil
			}

			doc, err := opts.client().Health(ctx)
			if err != nil {
				return err
			}
			status, _ := doc["status"].(string)
			fmt.Fprintln(out, renderStatus(status, status == "healthy"))
			return nil
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "Address of the gRPC health service")
	return cmd
}

func renderStatus(status string, ok bool) string {
	if ok {
		return SuccessStyle.Render(status)
	}
	return WarningStyle.Render(status)
}
