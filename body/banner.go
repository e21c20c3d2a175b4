package body

import "strings"

// FilterBanner removes external-sender warning lines from text. Line endings
// are normalised to "\n"; blank lines are kept.
func FilterBanner(text string) string {
	text = normalizeNewlines(text)
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isBannerLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isBannerLine(line string) bool {
	l := strings.ToLower(strings.TrimSpace(line))
	if l == "" {
		return false
	}

	if strings.Contains(l, "external email") {
		for _, marker := range []string{"caution", "warning", "external sender", "originated"} {
			if strings.Contains(l, marker) {
				return true
			}
		}
	}
	if (strings.HasPrefix(l, "caution") || strings.HasPrefix(l, "warning")) && strings.Contains(l, "external") {
		return true
	}
	switch {
	case strings.HasPrefix(l, "this email originated"),
		strings.HasPrefix(l, "do not click"),
		strings.HasPrefix(l, "don't click"),
		strings.Contains(l, "unless you recognise"),
		strings.Contains(l, "unless you recognize"),
		strings.Contains(l, "expected and known to be safe"):
		return true
	}
	return false
}

// StripTags removes every character between '<' and '>' inclusive. It is a
// scoring aid, not an HTML renderer.
func StripTags(html string) string {
	var sb strings.Builder
	sb.Grow(len(html))
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// AlnumCount counts ASCII letters and digits.
func AlnumCount(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			n++
		}
	}
	return n
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
