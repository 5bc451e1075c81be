// Package strings holds small text normalisers shared by the shelter packages.
package strings

import (
	"strings"
)

// NormalizeTags lowercases each label, collapses inner whitespace, and drops
// blanks and repeats. Order of first appearance is kept. It returns nil when
// nothing survives so an untagged record stays untagged.
//
//	NormalizeTags([]string{" Wheelchair  User", "diabetic", "wheelchair user", ""})
//	// []string{"wheelchair user", "diabetic"}
func NormalizeTags(values []string) []string {
	var result []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		tag := strings.ToLower(strings.Join(strings.Fields(v), " "))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	return result
}
