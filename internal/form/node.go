package form

import (
	"sync"
	"sync/atomic"

	"github.com/mohae/deepcopy"

	"github.com/roach88/formlink/internal/path"
)

// Node is a registered element of a form: a Field, an ArrayField or a
// VoidField.
type Node interface {
	ID() string
	Path() string
	Name() string
	Label() string
	Kind() Kind
	Form() *Form

	State() State
	Visible() bool
	ApplyState(p StatePatch)

	Reactions() []Reaction

	Component() string
	SetComponent(name string)
	ComponentProps() map[string]any
	MergeComponentProps(props map[string]any)
	DataSource() []any
	SetDataSource(items []any)

	// NextLoad starts a data-source load and returns its generation. A load
	// may only apply its items while its generation is still current.
	NextLoad() uint64
	CurrentLoad() uint64

	// Snapshot describes the node as plain data for expression scopes.
	Snapshot() map[string]any

	Mount()
	Unmount()

	dispose()
}

// base holds what every node kind shares.
type base struct {
	form  *Form
	id    string
	path  string
	name  string
	label string

	mu             sync.RWMutex
	state          State
	component      string
	componentProps map[string]any
	dataSource     []any
	reactions      []Reaction

	loadGen  atomic.Uint64
	disposed atomic.Bool
}

func (b *base) init(f *Form, props Props) {
	visible := true
	if props.Visible != nil {
		visible = *props.Visible
	}
	b.form = f
	b.id = f.ids.Generate()
	b.path = props.Path()
	b.name = path.Base(b.path)
	b.label = props.Label
	if b.label == "" {
		b.label = labelFromName(b.name)
	}
	b.state = State{
		Visible:  visible,
		Disabled: props.Disabled,
		ReadOnly: props.ReadOnly,
		Required: props.Required,
		Mode:     props.Mode,
	}
	b.component = props.Component
	b.componentProps = cloneMap(props.ComponentProps)
	b.dataSource = cloneSlice(props.DataSource)
	b.reactions = append([]Reaction(nil), props.Reactions...)
}

func (b *base) ID() string    { return b.id }
func (b *base) Path() string  { return b.path }
func (b *base) Name() string  { return b.name }
func (b *base) Label() string { return b.label }
func (b *base) Form() *Form   { return b.form }

// State returns a snapshot of the UI-state flags. An unset mode is
// inherited from the form.
func (b *base) State() State {
	b.mu.RLock()
	s := b.state
	b.mu.RUnlock()
	if s.Mode == "" {
		s.Mode = b.form.Mode()
	}
	return s
}

func (b *base) Visible() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Visible
}

// ApplyState sets the flags present in p. Expression flags are resolved
// by the linkage engine before they reach a node.
func (b *base) ApplyState(p StatePatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Visible != nil {
		b.state.Visible = *p.Visible
	}
	if p.Disabled != nil {
		b.state.Disabled = *p.Disabled
	}
	if p.ReadOnly != nil {
		b.state.ReadOnly = *p.ReadOnly
	}
	if p.Loading != nil {
		b.state.Loading = *p.Loading
	}
	if p.Required != nil {
		b.state.Required = *p.Required
	}
}

func (b *base) Reactions() []Reaction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Reaction(nil), b.reactions...)
}

func (b *base) Component() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.component
}

func (b *base) SetComponent(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.component = name
}

func (b *base) ComponentProps() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneMap(b.componentProps)
}

func (b *base) MergeComponentProps(props map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range cloneMap(props) {
		b.componentProps[k] = v
	}
}

func (b *base) DataSource() []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneSlice(b.dataSource)
}

func (b *base) SetDataSource(items []any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataSource = cloneSlice(items)
}

func (b *base) NextLoad() uint64    { return b.loadGen.Add(1) }
func (b *base) CurrentLoad() uint64 { return b.loadGen.Load() }

func (b *base) snapshot() map[string]any {
	s := b.State()
	return map[string]any{
		"path":      b.path,
		"name":      b.name,
		"label":     b.label,
		"visible":   s.Visible,
		"disabled":  s.Disabled,
		"readOnly":  s.ReadOnly,
		"loading":   s.Loading,
		"required":  s.Required,
		"mode":      string(s.Mode),
		"component": b.Component(),
	}
}

func (b *base) setFocus(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Active = active
	if !active {
		b.state.Visited = true
	}
}

func (b *base) clearInteraction() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Active = false
	b.state.Visited = false
	b.state.Modified = false
}

func (b *base) emit(t EventType, payload map[string]any) {
	b.form.events.Emit(Event{
		Type:    t,
		FormID:  b.form.id,
		Path:    b.path,
		Payload: payload,
	})
}

func cloneSlice(s []any) []any {
	if s == nil {
		return nil
	}
	out, _ := deepcopy.Copy(s).([]any)
	return out
}
