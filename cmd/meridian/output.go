package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nvoss/meridian/internal/apierr"
	"github.com/nvoss/meridian/internal/query"
	"github.com/nvoss/meridian/internal/stream"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// reportError renders an error for the terminal. Normalized backend
// errors get their user-facing copy and, for validation failures,
// example rephrasings.
func reportError(err error) {
	var pe *apierr.ParsedError
	if !errors.As(err, &pe) {
		printError("%v", err)
		return
	}

	printError("%s", pe.UserMessage)
	if pe.Retryable {
		fmt.Fprintln(os.Stderr, "  This is likely transient; try the same query again.")
	}
	if suggestions := apierr.ValidationSuggestions(pe.Code); len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr, "  For example:")
		for _, s := range suggestions {
			fmt.Fprintf(os.Stderr, "    • %s\n", s)
		}
	}
}

// watchQuery consumes the handle's channel until the terminal event,
// printing progress along the way, and returns the terminal event.
func watchQuery(handle *query.Handle) (*stream.StatusEvent, error) {
	defer handle.Channel.Close()

	printStep("Analyzing (query %s)...", handle.QueryID)

	var steps []stream.StepRecord
	lastProgress := -1
	for ev := range handle.Channel.Events() {
		if ev.Progress != lastProgress {
			fmt.Fprintf(os.Stderr, "  %3d%%\r", ev.Progress)
			lastProgress = ev.Progress
		}
		for _, step := range ev.Steps {
			steps = append(steps, step)
			fmt.Fprintf(os.Stderr, "  %s %s: %s\n",
				colorize(colorCyan, "•"), colorize(colorBold, step.Agent), step.Action)
		}
		if ev.Status.Terminal() {
			if len(steps) > 0 {
				fmt.Fprintln(os.Stderr)
				fmt.Fprintln(os.Stderr, renderSteps(steps))
			}
			return &ev, nil
		}
	}
	if err := handle.Channel.Err(); err != nil {
		return nil, fmt.Errorf("stream for query %s broke: %w", handle.QueryID, err)
	}
	return nil, fmt.Errorf("stream for query %s ended without a terminal status", handle.QueryID)
}

// renderResult prints a terminal event: the result payload for
// completed runs, the failure message otherwise.
func renderResult(ev *stream.StatusEvent) error {
	switch ev.Status {
	case stream.StatusCompleted:
		printSuccess("Analysis complete")
		if len(ev.Result) > 0 {
			var pretty any
			if err := json.Unmarshal(ev.Result, &pretty); err == nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(pretty)
			}
			fmt.Println(string(ev.Result))
		}
		return nil
	case stream.StatusPendingApproval:
		printWarning("Analysis is waiting on your approval. Respond with: meridian approve %s <message>", ev.QueryID)
		return nil
	case stream.StatusRejected:
		printWarning("The analysis plan was rejected.")
		if ev.Message != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ev.Message)
		}
		return nil
	default:
		msg := ev.Message
		if msg == "" {
			msg = "the analysis failed without a reason"
		}
		return fmt.Errorf("query %s failed: %s", ev.QueryID, msg)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
