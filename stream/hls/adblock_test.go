package hls

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainLines(n int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "part%d.ts\n", i)
	}
	return b.String()
}

func bracketPlaylist(between int) string {
	return TestHeader +
		"#EXT-X-DISCONTINUITY\n" +
		plainLines(between) +
		"#EXT-X-DISCONTINUITY\n" +
		"#EXT-X-ENDLIST\n"
}

// isSubsequence reports whether every line of out appears in in, in order
func isSubsequence(out, in string) bool {
	inLines := strings.Split(in, "\n")
	i := 0
	for line := range strings.SplitSeq(out, "\n") {
		for i < len(inLines) && inLines[i] != line {
			i++
		}
		if i == len(inLines) {
			return false
		}
		i++
	}
	return true
}

func TestDefaultSignatures(t *testing.T) {
	sigs := DefaultSignatures()
	require.Len(t, sigs, 3)
	assert.Equal(t, SignatureIsolatedBracket, sigs[0].Name)
	assert.Equal(t, SignatureKeyResetBracket, sigs[1].Name)
	assert.Equal(t, SignatureDurationFingerprint, sigs[2].Name)

	// callers get a copy
	sigs[0].Name = "changed"
	assert.Equal(t, SignatureIsolatedBracket, DefaultSignatures()[0].Name)
}

func TestStripIsolatedBracket(t *testing.T) {
	matcher := NewAdMatcher()

	out, removed := matcher.StripWithReport(TestIsolatedBracketPlaylist)
	assert.Equal(t, TestIsolatedBracketStripped, out)
	assert.Equal(t, map[string]int{SignatureIsolatedBracket: 1}, removed)

	t.Run("bracket length bounds", func(t *testing.T) {
		tests := []struct {
			between int
			removed bool
		}{
			{17, false},
			{18, true},
			{21, true},
			{24, true},
			{25, false},
		}

		for _, tt := range tests {
			text := bracketPlaylist(tt.between)
			out := matcher.Strip(text)
			if tt.removed {
				assert.Equal(t, TestHeader+"#EXT-X-ENDLIST\n", out, "between=%d", tt.between)
			} else {
				assert.Equal(t, text, out, "between=%d", tt.between)
			}
		}
	})

	t.Run("CRLF line endings", func(t *testing.T) {
		crlf := strings.ReplaceAll(TestIsolatedBracketPlaylist, "\n", "\r\n")
		want := strings.ReplaceAll(TestIsolatedBracketStripped, "\n", "\r\n")
		assert.Equal(t, want, matcher.Strip(crlf))
	})

	t.Run("unterminated closing marker", func(t *testing.T) {
		text := TestHeader + "#EXT-X-DISCONTINUITY\n" + plainLines(20) + "#EXT-X-DISCONTINUITY"
		assert.Equal(t, text, matcher.Strip(text))
	})

	t.Run("discontinuity sequence is not a marker", func(t *testing.T) {
		text := TestHeader +
			"#EXT-X-DISCONTINUITY-SEQUENCE:3\n" +
			plainLines(20) +
			"#EXT-X-DISCONTINUITY\n" +
			"#EXT-X-ENDLIST\n"
		assert.Equal(t, text, matcher.Strip(text))
	})
}

func TestStripKeyResetBracket(t *testing.T) {
	matcher := NewAdMatcher()

	out, removed := matcher.StripWithReport(TestKeyResetPlaylist)
	assert.Equal(t, TestKeyResetStripped, out)
	assert.Equal(t, map[string]int{SignatureKeyResetBracket: 1}, removed)

	t.Run("adjacent markers", func(t *testing.T) {
		text := TestHeader +
			TestSegments("seg", 2) +
			"#EXT-X-DISCONTINUITY\n#EXT-X-DISCONTINUITY\n" +
			TestSegments("tail", 2) +
			"#EXT-X-DISCONTINUITY\n" +
			TestSegments("end", 20) +
			"#EXT-X-ENDLIST\n"
		want := TestHeader +
			TestSegments("seg", 2) +
			TestSegments("tail", 2) +
			"#EXT-X-DISCONTINUITY\n" +
			TestSegments("end", 20) +
			"#EXT-X-ENDLIST\n"
		assert.Equal(t, want, matcher.Strip(text))
	})

	t.Run("convertv7 literal", func(t *testing.T) {
		out, removed := matcher.StripWithReport(TestConvertPlaylist)
		assert.Contains(t, out, "https://cdn.example.com/seg0.ts\n")
		assert.NotContains(t, out, "convertv7/")
		assert.Equal(t, 1, removed[SignatureKeyResetBracket])
	})
}

func TestStripDurationFingerprint(t *testing.T) {
	matcher := NewAdMatcher()

	out, removed := matcher.StripWithReport(TestFingerprintPlaylist)
	assert.Equal(t, TestFingerprintStripped, out)
	assert.Equal(t, map[string]int{SignatureDurationFingerprint: 1}, removed)

	t.Run("durations compare by value", func(t *testing.T) {
		block := strings.ReplaceAll(TestFingerprintBlock("fp"), "#EXTINF:2.00,", "#EXTINF:2,")
		block = strings.ReplaceAll(block, "#EXTINF:3.92,", "#EXTINF:3.920000,")
		text := TestHeader + TestSegments("seg", 2) + block + TestSegments("tail", 2)
		assert.Equal(t, TestHeader+TestSegments("seg", 2)+TestSegments("tail", 2), matcher.Strip(text))
	})

	t.Run("titles after the duration", func(t *testing.T) {
		block := strings.ReplaceAll(TestFingerprintBlock("fp"), "#EXTINF:3.92,", "#EXTINF:3.92,Sponsor")
		text := TestHeader + block + TestSegments("tail", 2)
		assert.Equal(t, TestHeader+TestSegments("tail", 2), matcher.Strip(text))
	})

	t.Run("closing marker after the block survives", func(t *testing.T) {
		text := TestHeader + TestSegments("seg", 2) + TestFingerprintBlock("fp") +
			"#EXT-X-DISCONTINUITY\n" + TestSegments("tail", 2)

		out, removed := matcher.StripWithReport(text)
		assert.Equal(t, TestHeader+TestSegments("seg", 2)+"#EXT-X-DISCONTINUITY\n"+TestSegments("tail", 2), out)
		assert.Equal(t, map[string]int{SignatureDurationFingerprint: 1}, removed)
	})

	t.Run("one duration off", func(t *testing.T) {
		block := strings.ReplaceAll(TestFingerprintBlock("fp"), "#EXTINF:0.72,", "#EXTINF:0.73,")
		text := TestHeader + block + TestSegments("tail", 2)
		assert.Equal(t, text, matcher.Strip(text))
	})
}

func TestStripLeavesCleanPlaylistUntouched(t *testing.T) {
	matcher := NewAdMatcher()

	out, removed := matcher.StripWithReport(TestMediaPlaylist)
	assert.Equal(t, TestMediaPlaylist, out)
	assert.Empty(t, removed)
	assert.False(t, matcher.Detect(TestMediaPlaylist))

	assert.Equal(t, "", matcher.Strip(""))
}

func TestStripProperties(t *testing.T) {
	matcher := NewAdMatcher()

	fixtures := map[string]string{
		"clean":            TestMediaPlaylist,
		"isolated bracket": TestIsolatedBracketPlaylist,
		"key reset":        TestKeyResetPlaylist,
		"fingerprint":      TestFingerprintPlaylist,
		"convertv7":        TestConvertPlaylist,
		"nested brackets": TestHeader +
			"#EXT-X-DISCONTINUITY\n" + plainLines(9) +
			"#EXT-X-DISCONTINUITY\n#EXT-X-DISCONTINUITY\n" + plainLines(9) +
			"#EXT-X-DISCONTINUITY\n",
	}

	for name, text := range fixtures {
		t.Run(name, func(t *testing.T) {
			once := matcher.Strip(text)
			assert.Equal(t, once, matcher.Strip(once), "strip must be idempotent")
			assert.LessOrEqual(t, len(once), len(text))

			if !strings.Contains(text, "convertv7/") {
				assert.True(t, isSubsequence(once, text), "surviving lines must keep their order")
			}
			if name != "clean" {
				assert.True(t, matcher.Detect(text))
			}
		})
	}
}

func TestNewAdMatcherWithSignatures(t *testing.T) {
	var fingerprintOnly AdSignature
	for _, sig := range DefaultSignatures() {
		if sig.Name == SignatureDurationFingerprint {
			fingerprintOnly = sig
		}
	}

	matcher := NewAdMatcher(fingerprintOnly)
	require.Len(t, matcher.Signatures(), 1)

	assert.Equal(t, TestIsolatedBracketPlaylist, matcher.Strip(TestIsolatedBracketPlaylist))
	assert.Equal(t, TestFingerprintStripped, matcher.Strip(TestFingerprintPlaylist))
	assert.True(t, fingerprintOnly.Matches(TestFingerprintPlaylist))
	assert.False(t, fingerprintOnly.Matches(TestMediaPlaylist))
}

func TestDurationPattern(t *testing.T) {
	tests := []struct {
		duration string
		input    string
		match    bool
	}{
		{"2.00", "2", true},
		{"2.00", "2.0", true},
		{"2.00", "2.000000", true},
		{"2.00", "2.5", false},
		{"0.76", "0.76", true},
		{"0.76", "0.760", true},
		{"0.76", "0.7", false},
		{"3.92", "3.921", false},
	}

	for _, tt := range tests {
		re := `^` + durationPattern(tt.duration) + `$`
		if tt.match {
			assert.Regexp(t, re, tt.input, "%s vs %s", tt.duration, tt.input)
		} else {
			assert.NotRegexp(t, re, tt.input, "%s vs %s", tt.duration, tt.input)
		}
	}
}
