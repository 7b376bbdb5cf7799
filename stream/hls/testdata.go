package hls

import (
	"fmt"
	"strings"
)

// Playlist fixtures used across test files. Segment URIs are relative so the
// resolver has work to do.
var (
	TestHeader = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n"

	// Media playlist with no ad structure at all
	TestMediaPlaylist = TestHeader + TestSegments("seg", 4) + "#EXT-X-ENDLIST\n"

	// Master playlist listing a low and a high variant, high last
	TestMasterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1280x720
high/index.m3u8
`

	// Master playlist that lists itself
	TestSelfReferencingMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000
master.m3u8
`

	// Master playlist without any variant line
	TestEmptyMasterPlaylist = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000\n"

	// Two discontinuity markers with ten segments (20 lines) between them
	TestIsolatedBracketPlaylist = TestHeader +
		TestSegments("seg", 2) +
		"#EXT-X-DISCONTINUITY\n" +
		TestSegments("ad", 10) +
		"#EXT-X-DISCONTINUITY\n" +
		TestSegments("tail", 2) +
		"#EXT-X-ENDLIST\n"

	TestIsolatedBracketStripped = TestHeader +
		TestSegments("seg", 2) +
		TestSegments("tail", 2) +
		"#EXT-X-ENDLIST\n"

	// A key reset opens the ad. The third marker keeps the outer span too
	// long for an isolated bracket.
	TestKeyResetPlaylist = TestHeader +
		TestSegments("seg", 2) +
		"#EXT-X-DISCONTINUITY\n" +
		"#EXT-X-KEY:METHOD=NONE\n" +
		TestSegments("ad", 10) +
		"#EXT-X-DISCONTINUITY\n" +
		TestSegments("mid", 2) +
		"#EXT-X-DISCONTINUITY\n" +
		TestSegments("tail", 2) +
		"#EXT-X-ENDLIST\n"

	TestKeyResetStripped = TestHeader +
		TestSegments("seg", 2) +
		TestSegments("mid", 2) +
		"#EXT-X-DISCONTINUITY\n" +
		TestSegments("tail", 2) +
		"#EXT-X-ENDLIST\n"

	// The recurring ad creative behind a single marker
	TestFingerprintPlaylist = TestHeader +
		TestSegments("seg", 2) +
		TestFingerprintBlock("fp") +
		TestSegments("tail", 2) +
		"#EXT-X-ENDLIST\n"

	TestFingerprintStripped = TestHeader +
		TestSegments("seg", 2) +
		TestSegments("tail", 2) +
		"#EXT-X-ENDLIST\n"

	// Segment path carrying the convertv7 marker
	TestConvertPlaylist = TestHeader +
		"#EXTINF:2.000,\n" +
		"https://cdn.example.com/convertv7/seg0.ts\n" +
		"#EXT-X-ENDLIST\n"
)

// TestSegments returns n EXTINF/URI pairs named <prefix><i>.ts
func TestSegments(prefix string, n int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "#EXTINF:2.000,\n%s%d.ts\n", prefix, i)
	}
	return b.String()
}

// TestFingerprintBlock returns a marker followed by the fingerprint
// durations, one segment each
func TestFingerprintBlock(prefix string) string {
	var b strings.Builder
	b.WriteString("#EXT-X-DISCONTINUITY\n")
	for i, d := range fingerprintDurations {
		fmt.Fprintf(&b, "#EXTINF:%s,\n%s%d.ts\n", d, prefix, i)
	}
	return b.String()
}
