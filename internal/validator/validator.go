// Package validator is the default rule validator for forms.
//
// Rules are checked in declaration order and every failing check yields one
// message. Empty values only fail required checks; the other checks skip
// them so optional fields stay valid until filled. String lengths are
// counted in runes after NFC normalization.
package validator

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/formlink/internal/form"
)

// Validator implements form.Validator.
//
// Thread-safety: Validator is safe for concurrent use. Compiled patterns
// are cached.
type Validator struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

var _ form.Validator = (*Validator)(nil)

// New creates a validator.
func New() *Validator {
	return &Validator{patterns: make(map[string]*regexp.Regexp)}
}

// Validate checks value against the rules that apply to trigger.
func (v *Validator) Validate(ctx context.Context, value any, rules []form.Rule, vctx form.ValidateContext, trigger form.Trigger) (form.ValidateResult, error) {
	res := form.ValidateResult{}
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return form.ValidateResult{}, err
		}
		if !r.AppliesTo(trigger) {
			continue
		}
		msgs, err := v.check(value, r, vctx)
		if err != nil {
			return form.ValidateResult{}, err
		}
		if r.Warning {
			res.Warnings = append(res.Warnings, msgs...)
		} else {
			res.Errors = append(res.Errors, msgs...)
		}
	}
	return res, nil
}

// check returns the messages for every check of r that value fails.
func (v *Validator) check(value any, r form.Rule, vctx form.ValidateContext) ([]string, error) {
	label := vctx.Label
	if label == "" {
		label = vctx.Path
	}
	var msgs []string
	fail := func(def string) {
		if r.Message != "" {
			msgs = append(msgs, r.Message)
			return
		}
		msgs = append(msgs, def)
	}

	empty := IsEmpty(value)
	if r.Required && empty {
		fail(label + " is required")
	}

	if !empty {
		if r.MinLength != nil || r.MaxLength != nil {
			if n, ok := length(value); ok {
				if r.MinLength != nil && n < *r.MinLength {
					fail(fmt.Sprintf("%s must be at least %d characters", label, *r.MinLength))
				}
				if r.MaxLength != nil && n > *r.MaxLength {
					fail(fmt.Sprintf("%s must be at most %d characters", label, *r.MaxLength))
				}
			}
		}

		if r.Min != nil || r.Max != nil {
			n, ok := toFloat(value)
			switch {
			case !ok:
				fail(label + " must be a number")
			case r.Min != nil && n < *r.Min:
				fail(fmt.Sprintf("%s must be at least %s", label, formatFloat(*r.Min)))
			case r.Max != nil && n > *r.Max:
				fail(fmt.Sprintf("%s must be at most %s", label, formatFloat(*r.Max)))
			}
		}

		if r.Pattern != "" {
			re, err := v.compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule pattern for %s: %w", vctx.Path, err)
			}
			if s, ok := value.(string); !ok || !re.MatchString(s) {
				fail(label + " has an invalid format")
			}
		}

		if len(r.Enum) > 0 && !oneOf(value, r.Enum) {
			fail(fmt.Sprintf("%s must be one of %s", label, joinAny(r.Enum)))
		}
	}

	if r.Custom != nil {
		if msg := r.Custom(value, vctx); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func (v *Validator) compile(pattern string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns[pattern] = re
	return re, nil
}

// IsEmpty reports whether value counts as missing: nil, an empty or blank
// string, or an empty list or map.
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func length(value any) (int, bool) {
	if s, ok := value.(string); ok {
		return utf8.RuneCountInString(norm.NFC.String(s)), true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len(), true
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// oneOf compares numbers by value so that 1 and 1.0 decoded from different
// sources match.
func oneOf(value any, options []any) bool {
	n, numeric := toNumber(value)
	for _, opt := range options {
		if reflect.DeepEqual(value, opt) {
			return true
		}
		if m, ok := toNumber(opt); numeric && ok && n == m {
			return true
		}
	}
	return false
}

func toNumber(value any) (float64, bool) {
	if _, isString := value.(string); isString {
		return 0, false
	}
	return toFloat(value)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinAny(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
