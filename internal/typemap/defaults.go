package typemap

import (
	"regexp"
	"strings"
)

var (
	// 'abc'::text, now()::timestamp with time zone, 42::double precision
	castSuffix         = regexp.MustCompile(`::["a-zA-Z_][a-zA-Z0-9_ ."]*(\[\])?$`)
	// "workspace_x"."status_enum" qualifiers left on enum casts
	quotedIdent        = regexp.MustCompile(`"[^"]*"\.`)
	// _utf8mb4'abc' as MySQL reports expression defaults
	charsetIntroducer  = regexp.MustCompile(`(^|\()_[a-zA-Z0-9]+'`)
	// CURRENT_TIMESTAMP(6), now(3)
	timestampPrecision = regexp.MustCompile(`^(current_timestamp|localtimestamp|now)\(\d*\)$`)
)

var mysqlEscapes = strings.NewReplacer(`\\`, `\`, `\'`, `'`)

var equivalentDefaults = map[string]string{
	"current_timestamp":   "now()",
	"current_timestamp()": "now()",
	"localtimestamp":      "now()",
	"gen_random_uuid()":   "uuid()",
	"uuid_generate_v4()":  "uuid()",
}

// NormalizeDefault reduces a default expression to a comparable form:
// casts and schema qualifiers are dropped, string literals unquoted and
// engine spellings of the same function unified. nil stays empty.
func NormalizeDefault(e Engine, expr *string) string {
	if expr == nil {
		return ""
	}

	s := strings.TrimSpace(*expr)
	if e == MySQL {
		s = mysqlEscapes.Replace(s)
		s = charsetIntroducer.ReplaceAllString(s, "$1'")
	}
	for {
		trimmed := stripParens(s)
		trimmed = quotedIdent.ReplaceAllString(trimmed, "")
		trimmed = castSuffix.ReplaceAllString(trimmed, "")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			break
		}
		s = trimmed
	}

	if strings.EqualFold(s, "null") {
		return ""
	}

	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}

	lower := strings.ToLower(s)
	if eq, ok := equivalentDefaults[lower]; ok {
		return eq
	}
	if timestampPrecision.MatchString(lower) {
		return "now()"
	}

	// MySQL and SQLite keep booleans as integers
	if e != Postgres {
		switch lower {
		case "true":
			return "1"
		case "false":
			return "0"
		}
	}

	return lower
}

// DefaultsEqual compares a declared default against a live one. MySQL
// reports string defaults unquoted, so its comparison ignores case.
func DefaultsEqual(e Engine, declared, live *string) bool {
	d, l := NormalizeDefault(e, declared), NormalizeDefault(e, live)
	if e == MySQL {
		return strings.EqualFold(d, l)
	}
	return d == l
}

func stripParens(s string) string {
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && balanced(s[1:len(s)-1]) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
