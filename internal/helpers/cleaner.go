package helpers

import (
	"strings"
)

// UnwrapFence returns the body of s when the whole of s is one fenced block
// (``` or ~~~, optional info string such as "markdown"). Fenced blocks nested
// inside the wrapper are kept. Anything else is returned trimmed but
// otherwise unchanged.
func UnwrapFence(s string) string {
	s = strings.TrimSpace(trimBOM(s))
	for _, fence := range []string{"```", "~~~"} {
		if !strings.HasPrefix(s, fence) || !strings.HasSuffix(s, fence) {
			continue
		}
		nl := strings.IndexByte(s, '\n')
		if nl == -1 || nl > len(s)-len(fence) {
			return s
		}
		body := s[nl+1 : len(s)-len(fence)]
		depth := 0
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, fence) {
				continue
			}
			if strings.TrimSpace(line[len(fence):]) != "" {
				depth++
				continue
			}
			if depth == 0 {
				// the wrapper closes early: s is several blocks
				return s
			}
			depth--
		}
		return strings.TrimSpace(body)
	}
	return s
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
