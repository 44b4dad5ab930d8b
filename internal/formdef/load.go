package formdef

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/formlink/internal/form"
	"github.com/roach88/formlink/internal/path"
)

// Error codes reported by DefError.
const (
	CodeNotFound        = "E005" // definition file not found
	CodeParseFailed     = "E201" // CUE or YAML syntax/evaluation error
	CodeInvalidField    = "E202" // malformed field declaration
	CodeInvalidReaction = "E203" // malformed reaction declaration
	CodeUnknownFormat   = "E204" // unsupported file extension
)

// DefError is a definition error with an optional source position.
type DefError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *DefError) Error() string {
	where := e.Code
	if e.Field != "" {
		where = e.Code + ": " + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Format names a definition syntax.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension. JSON is read as YAML.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	}
	return "", &DefError{Code: CodeUnknownFormat, Message: fmt.Sprintf("unsupported definition file %s", path)}
}

// Load reads and parses the definition at path.
func Load(path string) (*Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DefError{Code: CodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
		}
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(data, format, filepath.Base(path))
}

// Parse decodes a definition. name is used in error positions.
func Parse(data []byte, format Format, name string) (*Definition, error) {
	switch format {
	case FormatCUE:
		return parseCUE(data, name)
	case FormatYAML:
		return parseYAML(data)
	}
	return nil, &DefError{Code: CodeUnknownFormat, Message: fmt.Sprintf("unsupported format %q", format)}
}

func parseCUE(data []byte, name string) (*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	var def Definition
	if err := v.Decode(&def); err != nil {
		return nil, formatCUEError(err)
	}
	return &def, nil
}

func parseYAML(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, &DefError{Code: CodeParseFailed, Message: err.Error()}
	}
	return &def, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &DefError{Code: CodeParseFailed, Message: err.Error()}
	}
	first := errs[0]
	de := &DefError{Code: CodeParseFailed, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		de.Pos = positions[0]
	}
	return de
}

// Options returns the form options carrying the definition's identity and
// values. Pass them to form.New before calling Apply.
func (def *Definition) Options() []form.Option {
	var opts []form.Option
	if def.ID != "" {
		opts = append(opts, form.WithID(def.ID))
	}
	if len(def.InitialValues) > 0 {
		opts = append(opts, form.WithInitialValues(def.InitialValues))
	}
	if len(def.Values) > 0 {
		opts = append(opts, form.WithValues(def.Values))
	}
	return opts
}

// Apply creates the definition's nodes on f in declaration order. A
// reaction runs as soon as its owner is created, so explicit targets must be
// declared before the fields whose reactions write them.
//
// A field whose path contains "*" is a row template: it is created once
// for every item present in the enclosing array. Call ExpandRows after
// structural array changes to create the fields of new rows.
func (def *Definition) Apply(f *form.Form) error {
	props, err := def.Props()
	if err != nil {
		return err
	}
	for i, p := range props {
		if err := expand(f, p, def.Fields[i].NodeKind()); err != nil {
			return err
		}
	}
	return nil
}

// ExpandRows creates the missing row fields of every template declared
// under array. Existing fields are left untouched.
func (def *Definition) ExpandRows(f *form.Form, array string) error {
	props, err := def.Props()
	if err != nil {
		return err
	}
	for i, p := range props {
		if !path.IsPattern(p.Path()) || !path.HasPrefix(p.Path(), array) {
			continue
		}
		if err := expand(f, p, def.Fields[i].NodeKind()); err != nil {
			return err
		}
	}
	return nil
}

// expand creates p, substituting the first "*" with every index of the
// list it stands for.
func expand(f *form.Form, p form.Props, kind form.Kind) error {
	full := p.Path()
	if !path.IsPattern(full) {
		return create(f, p, kind)
	}
	segs := path.Parse(full)
	star := slices.Index(segs, "*")
	list, _ := f.Value(path.Join(segs[:star]...))
	items, _ := list.([]any)
	for i := range items {
		row := slices.Clone(segs)
		row[star] = strconv.Itoa(i)
		concrete := path.Join(row...)
		rp := p
		rp.Name = path.Base(concrete)
		rp.BasePath = path.Parent(concrete)
		if err := expand(f, rp, kind); err != nil {
			return err
		}
	}
	return nil
}

func create(f *form.Form, p form.Props, kind form.Kind) error {
	var err error
	switch kind {
	case form.KindArray:
		_, err = f.CreateArrayField(p)
	case form.KindVoid:
		_, err = f.CreateVoidField(p)
	default:
		_, err = f.CreateField(p)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", p.Path(), err)
	}
	return nil
}
