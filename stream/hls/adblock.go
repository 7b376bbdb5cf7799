package hls

import (
	"regexp"
	"slices"
	"strings"
)

const (
	minBracketLines = 18
	maxBracketLines = 24
)

// Signature names, in evaluation order
const (
	SignatureIsolatedBracket     = "isolated-bracket"
	SignatureKeyResetBracket     = "key-reset-bracket"
	SignatureDurationFingerprint = "duration-fingerprint"
)

// fingerprintDurations is the EXTINF sequence of a recurring ad creative
var fingerprintDurations = []string{
	"3.92", "0.76", "2.00", "2.50", "2.00", "2.42", "2.00", "0.78", "1.96",
	"2.00", "1.76", "3.20", "2.00", "1.36", "2.00", "2.00", "0.72",
}

// AdSignature is a stateless structural ad pattern. Strip removes every
// occurrence and reports how many spans were removed.
type AdSignature struct {
	Name  string
	strip func(text string) (string, int)
}

// Matches reports whether the signature occurs in text
func (s AdSignature) Matches(text string) bool {
	_, n := s.strip(text)
	return n > 0
}

// Strip removes every occurrence of the signature from text
func (s AdSignature) Strip(text string) (string, int) {
	return s.strip(text)
}

var defaultSignatures = []AdSignature{
	{Name: SignatureIsolatedBracket, strip: stripIsolatedBracket},
	{Name: SignatureKeyResetBracket, strip: regexpStripper(keyResetPattern)},
	{Name: SignatureDurationFingerprint, strip: regexpStripper(fingerprintPattern)},
}

var (
	keyResetPattern = regexp.MustCompile(
		`#EXT-X-DISCONTINUITY\r?\n(?:#EXT-X-KEY:METHOD=NONE\r?\n(?:.*\n){18,24})?#EXT-X-DISCONTINUITY\r?\n|convertv7/`)
	fingerprintPattern = regexp.MustCompile(buildFingerprintPattern(fingerprintDurations))
)

// DefaultSignatures returns the built-in signatures in priority order
func DefaultSignatures() []AdSignature {
	return slices.Clone(defaultSignatures)
}

// AdMatcher strips ad blocks from playlist text using an ordered list of
// signatures. Each signature sees the output of the previous one.
type AdMatcher struct {
	signatures []AdSignature
}

// NewAdMatcher creates a matcher. With no signatures the built-in list is used.
func NewAdMatcher(signatures ...AdSignature) *AdMatcher {
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	return &AdMatcher{signatures: signatures}
}

// Signatures returns the matcher's signatures in evaluation order
func (m *AdMatcher) Signatures() []AdSignature {
	return slices.Clone(m.signatures)
}

// Detect reports whether any signature occurs in text
func (m *AdMatcher) Detect(text string) bool {
	for _, sig := range m.signatures {
		if sig.Matches(text) {
			return true
		}
	}
	return false
}

// Strip removes all ad spans from text
func (m *AdMatcher) Strip(text string) string {
	out, _ := m.StripWithReport(text)
	return out
}

// StripWithReport removes all ad spans from text and returns the number of
// spans each signature removed. The ordered pass repeats until the text stops
// changing, since one removal can bring a new bracket to an extremity.
func (m *AdMatcher) StripWithReport(text string) (string, map[string]int) {
	removed := make(map[string]int)
	for {
		out := text
		for _, sig := range m.signatures {
			var n int
			out, n = sig.strip(out)
			if n > 0 {
				removed[sig.Name] += n
			}
		}
		if out == text {
			return out, removed
		}
		text = out
	}
}

// stripIsolatedBracket removes the span from the first discontinuity marker
// line to the last one when 18-24 lines separate them. At most one such span
// exists in any text.
func stripIsolatedBracket(text string) (string, int) {
	lines := strings.SplitAfter(text, "\n")

	first, last := -1, -1
	for i, line := range lines {
		if isDiscontinuityLine(line) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 || last == first {
		return text, 0
	}
	if between := last - first - 1; between < minBracketLines || between > maxBracketLines {
		return text, 0
	}
	if !strings.HasSuffix(lines[last], "\n") {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, line := range lines[:first] {
		b.WriteString(line)
	}
	for _, line := range lines[last+1:] {
		b.WriteString(line)
	}
	return b.String(), 1
}

func isDiscontinuityLine(line string) bool {
	return strings.TrimRight(line, "\r\n") == tagDiscontinuity
}

func regexpStripper(re *regexp.Regexp) func(string) (string, int) {
	return func(text string) (string, int) {
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			return text, 0
		}

		var b strings.Builder
		b.Grow(len(text))
		prev := 0
		for _, m := range matches {
			b.WriteString(text[prev:m[0]])
			prev = m[1]
		}
		b.WriteString(text[prev:])
		return b.String(), len(matches)
	}
}

// buildFingerprintPattern builds a pattern matching a discontinuity marker
// followed by one EXTINF declaration per duration, each followed by a single
// reference line. Durations compare by value, so 2.00 matches "2", "2.0" and
// "2.000000".
func buildFingerprintPattern(durations []string) string {
	parts := make([]string, len(durations))
	for i, d := range durations {
		parts[i] = `#EXTINF:` + durationPattern(d) + `,.*\n.*`
	}
	return `#EXT-X-DISCONTINUITY\r?\n` + strings.Join(parts, `\n`) + `\n?`
}

func durationPattern(d string) string {
	whole, frac, _ := strings.Cut(d, ".")
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return regexp.QuoteMeta(whole) + `(?:\.0*)?`
	}
	return regexp.QuoteMeta(whole) + `\.` + regexp.QuoteMeta(frac) + `0*`
}
