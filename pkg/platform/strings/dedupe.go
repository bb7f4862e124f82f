package strings

import "strings"

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence's position. A nil or empty input is returned as is.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, false)
}

// DedupeAndTrimLower is DedupeAndTrim with case folded before comparison and
// in the output.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, true)
}

func dedupe(values []string, lower bool) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
