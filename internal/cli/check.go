package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/formlink"
	"github.com/roach88/formlink/internal/formdef"
	"github.com/roach88/formlink/internal/linkage"
)

// CheckResult is the outcome of checking one definition.
type CheckResult struct {
	Definition  string                 `json:"definition"`
	FormID      string                 `json:"form_id"`
	Fields      int                    `json:"fields"`
	Cycles      []linkage.CycleWarning `json:"cycles"`
	Diagnostics []linkage.Diagnostic   `json:"diagnostics"`
	Valid       bool                   `json:"valid"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <definition>",
		Short: "Check a form definition for cycles and broken reactions",
		Long: `Check a CUE or YAML form definition.

The check runs in two passes:
  1. Static: every reaction's watch → target edges are analysed together
     and each dependency cycle is reported.
  2. Runtime: the form is built and every reaction runs once; rejected
     rules, missing targets and failing expressions are reported.

Exit codes:
  0 - Definition is valid
  1 - Cycles or diagnostics were found
  2 - Definition could not be loaded

Examples:
  formlink check ./forms/signup.cue
  formlink check ./forms/signup.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := opts.Logger(cmd.ErrOrStderr())

	def, err := formdef.Load(path)
	if err != nil {
		return definitionError(out, err)
	}
	props, err := def.Props()
	if err != nil {
		return definitionError(out, err)
	}
	out.VerboseLog("Loaded %d field(s) from %s", len(props), path)

	result := CheckResult{
		Definition: path,
		Fields:     len(props),
		Cycles:     linkage.AnalyzeCycles(props),
	}

	f, err := formlink.FromDefinition(def, formlink.WithLogger(logger))
	if err != nil {
		return definitionError(out, err)
	}
	result.FormID = f.ID()
	result.Diagnostics = formlink.Diagnostics(f)
	if result.Diagnostics == nil {
		result.Diagnostics = []linkage.Diagnostic{}
	}
	f.Dispose()

	result.Valid = len(result.Cycles) == 0 && len(result.Diagnostics) == 0

	if out.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeCheckFailed, Message: checkSummary(result)}
		}
		if err := out.Encode(resp); err != nil {
			return err
		}
	} else {
		outputCheckText(out, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, checkSummary(result))
	}
	return nil
}

func definitionError(out *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var details any
	var de *formdef.DefError
	if errors.As(err, &de) {
		code = de.Code
		if de.Pos.IsValid() {
			details = map[string]any{
				"file":   de.Pos.Filename(),
				"line":   de.Pos.Line(),
				"column": de.Pos.Column(),
			}
		}
	}
	if ferr := out.Error(code, err.Error(), details); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitCommandError, "invalid definition", err)
}

func checkSummary(r CheckResult) string {
	return fmt.Sprintf("%d cycle(s), %d diagnostic(s)", len(r.Cycles), len(r.Diagnostics))
}

func outputCheckText(out *OutputFormatter, r CheckResult) {
	w := out.Writer
	name := filepath.Base(r.Definition)
	if r.Valid {
		fmt.Fprintf(w, "✓ %s: %d field(s), no cycles\n", name, r.Fields)
		return
	}

	fmt.Fprintf(w, "✗ %s: %s\n", name, checkSummary(r))
	for _, c := range r.Cycles {
		fmt.Fprintf(w, "  cycle: %s\n", strings.Join(c.Path, " → "))
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "  [%s] %s (%s): %s\n", d.Code, d.Path, d.Rule, d.Message)
	}
}
