package registry

import "strings"

// irregularPlurals covers the nouns AI-proposed schemas actually use.
var irregularPlurals = map[string]string{
	"person": "people",
	"child":  "children",
	"staff":  "staff",
	"status": "statuses",
}

// pluralize derives a plural identifier from a singular table name
// using English inflection rules. A ui_hints plural_name override wins
// over this derivation.
func pluralize(name string) string {
	if p, ok := irregularPlurals[name]; ok {
		return p
	}

	switch {
	case strings.HasSuffix(name, "y") && !hasVowelBefore(name, "y"):
		return name[:len(name)-1] + "ies"
	case strings.HasSuffix(name, "s"),
		strings.HasSuffix(name, "x"),
		strings.HasSuffix(name, "z"),
		strings.HasSuffix(name, "ch"),
		strings.HasSuffix(name, "sh"):
		return name + "es"
	default:
		return name + "s"
	}
}

func hasVowelBefore(name, suffix string) bool {
	i := len(name) - len(suffix) - 1
	if i < 0 {
		return false
	}
	return strings.ContainsRune("aeiou", rune(name[i]))
}
