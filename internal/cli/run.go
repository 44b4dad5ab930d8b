package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/formlink/internal/harness"
	"github.com/roach88/formlink/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal string
}

// RunResult is the outcome of one scenario run.
type RunResult struct {
	Scenario string          `json:"scenario"`
	Pass     bool            `json:"pass"`
	Errors   []string        `json:"errors,omitempty"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a form scenario and print its final state",
		Long: `Run a scenario file against its form definition.

The final values and node states are printed as canonical JSON. With
--journal every lifecycle event of the run is appended to a SQLite
journal, which the trace command reads back.

Examples:
  formlink run ./scenarios/signup.yaml
  formlink run ./scenarios/signup.yaml --journal ./events.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "append events to this SQLite journal")

	return cmd
}

func runScenarioCommand(opts *RunOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := opts.Logger(cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		if ferr := out.Error(ErrCodeScenario, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	runOpts := []harness.Option{harness.WithLogger(logger)}
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal, journal.WithLogger(logger))
		if err != nil {
			if ferr := out.Error(ErrCodeJournal, err.Error(), nil); ferr != nil {
				return ferr
			}
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if cerr := j.Close(); cerr != nil {
				logger.Error("error closing journal", "error", cerr)
			}
		}()
		runOpts = append(runOpts, harness.WithJournal(j))
		out.VerboseLog("Recording events to %s", opts.Journal)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		if ferr := out.Error(ErrCodeScenario, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	snapshot, err := harness.NewSnapshot(scenario.Name, result).Marshal()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode snapshot", err)
	}
	rr := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Snapshot: snapshot,
	}

	if out.JSON() {
		resp := CLIResponse{Status: "ok", Data: rr}
		if !rr.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeScenarioFailed,
				Message: fmt.Sprintf("scenario %s failed", rr.Scenario),
			}
		}
		if err := out.Encode(resp); err != nil {
			return err
		}
	} else {
		outputRunText(out, rr)
	}

	if !rr.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", rr.Scenario))
	}
	return nil
}

func outputRunText(out *OutputFormatter, rr RunResult) {
	w := out.Writer
	if rr.Pass {
		fmt.Fprintf(w, "✓ %s\n", rr.Scenario)
	} else {
		fmt.Fprintf(w, "✗ %s\n", rr.Scenario)
		for _, e := range rr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w, string(rr.Snapshot))
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
