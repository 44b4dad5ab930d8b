package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/formlink/internal/canonical"
	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	FormID  string
	Type    string // optional event type prefix, e.g. "field." or "form.submit"
}

// TraceResult is the timeline of one form.
type TraceResult struct {
	FormID   string          `json:"form_id"`
	Timeline []journal.Entry `json:"timeline"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats summarises a timeline.
type TraceStats struct {
	TotalEvents       int `json:"total_events"`
	ValueChanges      int `json:"value_changes"`
	ValidationFailure int `json:"validation_failures"`
	Submits           int `json:"submits"`
	FailedSubmits     int `json:"failed_submits"`
}

// FormList is the output when no form is selected.
type FormList struct {
	Forms []string `json:"forms"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the event timeline of a journaled form",
		Long: `Read lifecycle events back from a journal written by run --journal.

Without --form the journaled forms are listed. With --form the events of
that form are printed in the order they were recorded.

Examples:
  formlink trace --journal ./events.db
  formlink trace --journal ./events.db --form signup
  formlink trace --journal ./events.db --form signup --type field. --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.FormID, "form", "", "form to trace")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only events whose type starts with this prefix")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Open would create a missing file.
	if _, err := os.Stat(opts.Journal); err != nil {
		if ferr := out.Error(ErrCodeJournal, fmt.Sprintf("journal not found: %s", opts.Journal), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Journal, journal.WithLogger(opts.Logger(cmd.ErrOrStderr())))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	if opts.FormID == "" {
		forms, err := j.Forms(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list forms", err)
		}
		if out.JSON() {
			return out.Encode(CLIResponse{Status: "ok", Data: FormList{Forms: forms}})
		}
		if len(forms) == 0 {
			fmt.Fprintln(out.Writer, "No forms recorded.")
			return nil
		}
		for _, id := range forms {
			fmt.Fprintln(out.Writer, id)
		}
		return nil
	}

	entries, err := j.Events(ctx, opts.FormID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		FormID:   opts.FormID,
		Timeline: filterEntries(entries, opts.Type),
	}
	result.Stats = traceStats(result.Timeline)

	if out.JSON() {
		return out.Encode(CLIResponse{Status: "ok", Data: result})
	}
	if len(entries) == 0 {
		fmt.Fprintf(out.Writer, "No events found for form: %s\n", opts.FormID)
		return nil
	}
	outputTraceText(out.Writer, result, opts.Verbose)
	return nil
}

func filterEntries(entries []journal.Entry, prefix string) []journal.Entry {
	timeline := make([]journal.Entry, 0, len(entries))
	for _, e := range entries {
		if prefix == "" || strings.HasPrefix(string(e.Type), prefix) {
			timeline = append(timeline, e)
		}
	}
	return timeline
}

func traceStats(timeline []journal.Entry) TraceStats {
	s := TraceStats{TotalEvents: len(timeline)}
	for _, e := range timeline {
		switch e.Type {
		case form.EventFieldValueChange:
			s.ValueChanges++
		case form.EventFieldValidateFailed:
			s.ValidationFailure++
		case form.EventFormSubmitStart:
			s.Submits++
		case form.EventFormSubmitFailed:
			s.FailedSubmits++
		}
	}
	return s
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Form: %s\n", result.FormID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Timeline {
		if e.Path != "" {
			fmt.Fprintf(w, "  [%d] %s %s\n", e.Seq, e.Type, e.Path)
		} else {
			fmt.Fprintf(w, "  [%d] %s\n", e.Seq, e.Type)
		}
		if verbose && len(e.Payload) > 0 {
			fmt.Fprintf(w, "       Payload: %s\n", formatArgs(e.Payload))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events:        %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Value Changes:       %d\n", result.Stats.ValueChanges)
	fmt.Fprintf(w, "  Validation Failures: %d\n", result.Stats.ValidationFailure)
	fmt.Fprintf(w, "  Submits:             %d (%d failed)\n", result.Stats.Submits, result.Stats.FailedSubmits)
}

// formatArgs renders a payload with sorted keys.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(args))
	for _, k := range canonical.SortedKeys(args) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}
