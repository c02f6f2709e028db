// Package validate rejects submissions that smuggle target words into the
// description. A submission is invalid if any target token of length >= 2
// appears in it as a whole word, case-insensitively.
package validate

import (
	"regexp"
	"strings"
)

// Prompt checks text against target and reports every offending target token,
// in target order. Empty text or target validates.
func Prompt(text, target string) (bool, []string) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(target) == "" {
		return true, nil
	}

	lower := strings.ToLower(strings.TrimSpace(text))

	var offending []string
	for _, token := range strings.Fields(strings.ToLower(target)) {
		if len(token) < 2 {
			continue
		}
		// Tokens may contain regex metacharacters; escape before matching.
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(token) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(lower) {
			offending = append(offending, token)
		}
	}

	return len(offending) == 0, offending
}
