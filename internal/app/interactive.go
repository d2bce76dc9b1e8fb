package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gmsas95/carecache/internal/chat"
	apperrors "github.com/gmsas95/carecache/internal/errors"
)

// Renderer displays the parts of an assistant reply
type Renderer func(parts []chat.Response)

// OneShot sends a single message and renders the reply
func OneShot(ctx context.Context, session *chat.Session, msg string, out io.Writer, render Renderer) error {
	reply, err := session.Send(ctx, msg)
	if err != nil {
		return err
	}
	render(reply.Parts)
	if prompt := session.PendingAnalysis(); prompt != "" {
		fmt.Fprintf(out, "\n%s (type 'analyze')\n", prompt)
	}
	return nil
}

// Interactive reads messages line by line until exit or EOF
func Interactive(ctx context.Context, session *chat.Session, in io.Reader, out io.Writer, render Renderer) error {
	fmt.Fprintln(out, "Type 'exit' or 'quit' to exit, 'help' for commands")
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "You: ")
		input, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) && strings.TrimSpace(input) == "" {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit", "q":
			return nil
		case "help", "h":
			PrintInteractiveHelp(out)
			continue
		case "new", "n":
			session.ClearSession()
			fmt.Fprintln(out, "New conversation started")
			continue
		case "skip":
			session.DeclineAnalysis()
			continue
		case "analyze":
			start := time.Now()
			reply, err := session.Analyze(ctx)
			if err != nil {
				if stop := reportError(out, err); stop {
					return err
				}
				continue
			}
			fmt.Fprintln(out)
			render(reply.Parts)
			printReminders(out, reply.Reminders)
			fmt.Fprintf(out, "\nResponse time: %v\n\n", time.Since(start).Round(time.Millisecond))
			continue
		}

		start := time.Now()
		if err := OneShot(ctx, session, input, out, render); err != nil {
			if stop := reportError(out, err); stop {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "\nResponse time: %v\n\n", time.Since(start).Round(time.Millisecond))
	}
}

// reportError prints err and reports whether the loop should end
func reportError(out io.Writer, err error) bool {
	fmt.Fprintf(out, "Error: %s\n", apperrors.Message(err))
	return errors.Is(err, apperrors.ErrUnauthorized)
}

func printReminders(out io.Writer, reminders []chat.ReminderSuggestion) {
	if len(reminders) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSuggested reminders:")
	for _, r := range reminders {
		line := r.Title
		if r.Frequency != "" {
			line += " (" + r.Frequency + ")"
		}
		if r.SuggestedAt != "" {
			line += " at " + r.SuggestedAt
		}
		fmt.Fprintf(out, "  - %s\n", line)
	}
}

func PrintInteractiveHelp(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Interactive Commands:")
	fmt.Fprintln(out, "  help, h     - Show this help")
	fmt.Fprintln(out, "  analyze     - Analyze the symptoms discussed so far")
	fmt.Fprintln(out, "  skip        - Decline the pending analysis")
	fmt.Fprintln(out, "  new, n      - Start new conversation")
	fmt.Fprintln(out, "  exit, quit  - Exit the program")
	fmt.Fprintln(out)
}
