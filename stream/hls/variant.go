package hls

import (
	"strings"
)

const (
	tagStreamInf     = "#EXT-X-STREAM-INF"
	tagDiscontinuity = "#EXT-X-DISCONTINUITY"
	tagKeyNone       = "#EXT-X-KEY:METHOD=NONE"
	tagInf           = "#EXTINF"
	tagEndList       = "#EXT-X-ENDLIST"
)

// IsMaster reports whether text is a master playlist
func IsMaster(text string) bool {
	return strings.Contains(text, tagStreamInf)
}

// SelectVariant returns the last non-empty, non-comment line of a master
// playlist. Selection is positional: the last listed stream wins regardless
// of its bandwidth or resolution.
func SelectVariant(text string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if isURILine(line) {
			return line, true
		}
	}
	return "", false
}
