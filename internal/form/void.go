package form

// VoidField is a layout node. It has a path and UI state but no value and
// never appears in the Store.
type VoidField struct {
	base
}

func newVoidField(f *Form, props Props) *VoidField {
	v := &VoidField{}
	v.base.init(f, props)
	return v
}

func (v *VoidField) Kind() Kind { return KindVoid }

func (v *VoidField) Snapshot() map[string]any { return v.snapshot() }

func (v *VoidField) Mount()   { v.emit(EventFieldMount, nil) }
func (v *VoidField) Unmount() { v.emit(EventFieldUnmount, nil) }

func (v *VoidField) dispose() {
	v.disposed.Store(true)
}
