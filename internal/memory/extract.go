package memory

import (
	"regexp"
	"strings"
	"unicode"
)

// Heuristic, model-free extraction of entities and preferences from query
// text. Deliberately cheap: it runs on every exchange and must never block
// on a service call.

var (
	// Code-like identifiers: SKU-123, ORD_9, ticket IDs.
	identifierRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]*[-_][A-Za-z0-9-]+\b`)

	preferencePatterns = []struct {
		re  *regexp.Regexp
		key string
	}{
		{regexp.MustCompile(`(?i)\bmy name is ([\p{L}][\p{L} '-]{0,40}?)(?:[.,!?]|$)`), "name"},
		{regexp.MustCompile(`(?i)\bcall me ([\p{L}][\p{L} '-]{0,40}?)(?:[.,!?]|$)`), "name"},
		{regexp.MustCompile(`(?i)\bi prefer ([^.,!?]{1,60})`), "preference"},
		{regexp.MustCompile(`(?i)\banswer in ([\p{L}]+)`), "language"},
	}
)

// ExtractEntities pulls probable entity names out of free text: code-like
// identifiers and capitalized word runs that do not open a sentence.
func ExtractEntities(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, id := range identifierRe.FindAllString(text, -1) {
		add(id)
	}

	words := strings.Fields(text)
	sentenceStart := true
	var run []string
	flush := func() {
		// Single capitalized words are too noisy; keep runs of two or
		// more only.
		if len(run) >= 2 {
			add(strings.Join(run, " "))
		}
		run = nil
	}
	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		capitalized := trimmed != "" && unicode.IsUpper([]rune(trimmed)[0]) && !isAllUpper(trimmed)
		if capitalized && !sentenceStart {
			run = append(run, trimmed)
		} else {
			flush()
		}
		sentenceStart = strings.ContainsAny(w, ".!?")
	}
	flush()

	return out
}

// ExtractPreferences scans text for explicitly stated user preferences.
func ExtractPreferences(text string) map[string]string {
	out := make(map[string]string)
	for _, p := range preferencePatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			if _, taken := out[p.key]; !taken {
				out[p.key] = strings.TrimSpace(m[1])
			}
		}
	}
	return out
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
