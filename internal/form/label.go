package form

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/formlink/internal/path"
)

// labelFromName derives a display label from a field name:
// "first_name" and "firstName" both become "First Name". Array indices
// produce no label.
func labelFromName(name string) string {
	if name == "" {
		return ""
	}
	if _, isIndex := path.Index(name); isIndex {
		return ""
	}

	var b strings.Builder
	prev := rune(0)
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
		case unicode.IsUpper(r) && prev != 0 && unicode.IsLower(prev):
			b.WriteRune(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return cases.Title(language.English).String(strings.Join(strings.Fields(b.String()), " "))
}
