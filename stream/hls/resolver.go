package hls

import (
	"net/url"
	"strings"
)

// ResolveURIs rewrites every URI line of text to an absolute URL using
// baseURL as the base. Directive lines (leading '#') and empty lines pass
// through verbatim, as does any reference that cannot be parsed.
func ResolveURIs(text, baseURL string) string {
	resolved, _ := resolveURIs(text, baseURL)
	return resolved
}

// resolveURIs is ResolveURIs that also reports how many URI lines could not
// be resolved.
func resolveURIs(text, baseURL string) (string, int) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return text, countURILines(text)
	}

	lines := strings.Split(text, "\n")
	malformed := 0
	for i, line := range lines {
		content, cr := strings.CutSuffix(line, "\r")
		if !isURILine(content) {
			continue
		}

		ref, err := url.Parse(strings.TrimSpace(content))
		if err != nil {
			malformed++
			continue
		}

		abs := base.ResolveReference(ref).String()
		if cr {
			abs += "\r"
		}
		lines[i] = abs
	}

	return strings.Join(lines, "\n"), malformed
}

func isURILine(line string) bool {
	return line != "" && !strings.HasPrefix(line, "#")
}

func countURILines(text string) int {
	n := 0
	for line := range strings.SplitSeq(text, "\n") {
		if isURILine(strings.TrimSuffix(line, "\r")) {
			n++
		}
	}
	return n
}
