package harness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/formlink/internal/expr"
	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/formdef"
	"github.com/roach88/formlink/internal/journal"
	"github.com/roach88/formlink/internal/linkage"
	"github.com/roach88/formlink/internal/path"
	"github.com/roach88/formlink/internal/reactive"
	"github.com/roach88/formlink/internal/testutil"
	"github.com/roach88/formlink/internal/validator"
)

// Harness drives one form through a scenario.
type Harness struct {
	def     *formdef.Definition
	form    *form.Form
	engine  *linkage.Engine
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	journal *journal.Journal

	// mu guards result.Trace; debounced reactions and loads emit from
	// their own goroutines.
	mu     sync.Mutex
	result *Result
}

// Option configures a run.
type Option func(*Harness)

// WithJournal also records every event of the run in j.
func WithJournal(j *journal.Journal) Option {
	return func(h *Harness) {
		h.journal = j
	}
}

// WithLogger sets the logger handed to the form. Defaults to a discarding
// logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes scenario against a fresh form and evaluates its assertions.
//
// Execution flow:
//  1. Load the definition and build the form with deterministic IDs
//  2. Record every lifecycle event with a logical clock
//  3. Execute the steps; an unexpected step failure fails the run
//  4. Wait for pending data-source loads, then capture the final state
//  5. Evaluate the assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	def, err := scenario.LoadDefinition()
	if err != nil {
		return nil, fmt.Errorf("load definition: %w", err)
	}

	h := &Harness{
		def:    def,
		clock:  testutil.NewDeterministicClock(),
		logger: testutil.DiscardLogger(),
		result: NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.build(); err != nil {
		return nil, err
	}
	defer h.form.Dispose()

	for i, step := range scenario.Steps {
		err := h.execute(ctx, step)
		switch {
		case err != nil && !step.ExpectError:
			h.result.AddError(fmt.Sprintf("steps[%d] %s %s: %v", i, step.Action, step.Path, err))
		case err == nil && step.ExpectError:
			h.result.AddError(fmt.Sprintf("steps[%d] %s %s: expected an error", i, step.Action, step.Path))
		}
	}

	h.engine.Wait()
	h.capture()

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) build() error {
	opts := []form.Option{
		form.WithBackend(reactive.NewRuntime(reactive.WithLogger(h.logger))),
		form.WithValidator(validator.New()),
		form.WithEvaluator(expr.New()),
		form.WithLogger(h.logger),
		form.WithIDGenerator(testutil.NewSequenceGenerator("node")),
		form.WithID("form"),
		form.WithLinker(func(f *form.Form) form.Linker {
			h.engine = linkage.New(f)
			return h.engine
		}),
	}
	f, err := form.New(append(opts, h.def.Options()...)...)
	if err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	h.form = f

	f.Events().OnAny(h.record)
	if h.journal != nil {
		h.journal.Attach(f)
	}

	if err := h.def.Apply(f); err != nil {
		f.Dispose()
		return fmt.Errorf("apply definition: %w", err)
	}
	return nil
}

func (h *Harness) record(e form.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:     h.clock.Next(),
		Type:    e.Type,
		Path:    e.Path,
		Payload: e.Payload,
	})
}

func (h *Harness) execute(ctx context.Context, st Step) error {
	f := h.form
	switch st.Action {
	case StepSet:
		fd, err := h.field(st.Path)
		if err != nil {
			return err
		}
		return fd.SetValue(st.Value)
	case StepInput:
		fd, err := h.field(st.Path)
		if err != nil {
			return err
		}
		return fd.OnInput(ctx, st.Value)
	case StepSetValues:
		return f.SetValues(ctx, st.Values, form.SetValuesStrategy(st.Strategy))
	case StepPush, StepPop, StepInsert, StepRemove, StepMove:
		return h.arrayStep(st)
	case StepFocus:
		fd, err := h.field(st.Path)
		if err != nil {
			return err
		}
		fd.Focus()
		return nil
	case StepBlur:
		fd, err := h.field(st.Path)
		if err != nil {
			return err
		}
		return fd.Blur(ctx)
	case StepValidate:
		return f.Validate(ctx, st.Path)
	case StepSubmit:
		payload, err := f.Submit(ctx, nil)
		if err != nil {
			return err
		}
		h.result.Payload = payload
		return nil
	case StepReset:
		opts := form.ResetOptions{ForceClear: st.ForceClear}
		if st.Path != "" {
			opts.Paths = []string{st.Path}
		}
		return f.Reset(ctx, opts)
	case StepRemoveField:
		f.RemoveField(st.Path)
		return nil
	case StepWait:
		d, err := time.ParseDuration(st.Duration)
		if err != nil {
			return err
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		h.engine.Wait()
		return nil
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

func (h *Harness) arrayStep(st Step) error {
	a, ok := h.form.ArrayField(st.Path)
	if !ok {
		return fmt.Errorf("array %s not found", st.Path)
	}
	var err error
	switch st.Action {
	case StepPush:
		if st.Value != nil {
			err = a.Push(st.Value)
		} else {
			err = a.Push()
		}
	case StepPop:
		err = a.Pop()
	case StepInsert:
		if st.Value != nil {
			err = a.Insert(st.Index, st.Value)
		} else {
			err = a.Insert(st.Index)
		}
	case StepRemove:
		err = a.Remove(st.Index)
	case StepMove:
		err = a.Move(st.From, st.To)
	}
	if err != nil {
		return err
	}
	return h.def.ExpandRows(h.form, st.Path)
}

func (h *Harness) field(p string) (*form.Field, error) {
	fd, ok := h.form.Field(p)
	if !ok {
		return nil, fmt.Errorf("field %s not found", p)
	}
	return fd, nil
}

// capture copies the final form state into the result.
func (h *Harness) capture() {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.result
	r.FormID = h.form.ID()
	r.Values = h.form.Values()
	r.Diagnostics = h.engine.Diagnostics()

	for _, n := range h.form.Nodes() {
		s := n.State()
		ns := NodeState{
			Kind:       n.Kind(),
			Visible:    s.Visible,
			Disabled:   s.Disabled,
			ReadOnly:   s.ReadOnly,
			Required:   s.Required,
			Loading:    s.Loading,
			Component:  n.Component(),
			DataSource: n.DataSource(),
		}
		switch node := n.(type) {
		case *form.Field:
			ns.Value = node.Value()
			ns.Errors = node.Errors()
			ns.Warnings = node.Warnings()
		case *form.ArrayField:
			ns.Value = node.Items()
			ns.Errors = node.Errors()
			ns.Warnings = node.Warnings()
		}
		if len(ns.Errors) == 0 {
			ns.Errors = nil
		}
		if len(ns.Warnings) == 0 {
			ns.Warnings = nil
		}
		r.Nodes[n.Path()] = ns
	}
}

// Paths returns the node paths of r in order.
func (r *Result) Paths() []string {
	paths := make([]string, 0, len(r.Nodes))
	for p := range r.Nodes {
		paths = append(paths, p)
	}
	slices.SortFunc(paths, comparePaths)
	return paths
}

// comparePaths orders numeric segments by value so rows sort naturally.
func comparePaths(a, b string) int {
	as, bs := path.Parse(a), path.Parse(b)
	for i := range min(len(as), len(bs)) {
		if as[i] == bs[i] {
			continue
		}
		ai, aok := path.Index(as[i])
		bi, bok := path.Index(bs[i])
		if aok && bok {
			return ai - bi
		}
		if as[i] < bs[i] {
			return -1
		}
		return 1
	}
	return len(as) - len(bs)
}
