package hls

import (
	"strconv"
	"strings"
)

// Parser builds PlaylistSummary values. It reads only the handful of tags the
// diagnostics need; everything else is skipped.
type Parser struct {
	tagHandlers map[string]TagHandler
}

// TagHandler defines how to handle a specific M3U8 tag
type TagHandler struct {
	Name        string
	Handler     func(value string, summary *PlaylistSummary, context *ParseContext)
	Description string
}

// ParseContext holds the current parsing state
type ParseContext struct {
	PendingSegment bool
	PendingVariant bool
	LineNumber     int
}

// NewParser creates a parser with the default tag handlers
func NewParser() *Parser {
	parser := &Parser{
		tagHandlers: make(map[string]TagHandler),
	}

	parser.registerDefaultTagHandlers()

	return parser
}

// Summarize describes text. It never fails: unknown tags and stray lines are
// ignored.
func (p *Parser) Summarize(text string) PlaylistSummary {
	summary := PlaylistSummary{IsLive: true}
	context := &ParseContext{}

	for raw := range strings.SplitSeq(text, "\n") {
		context.LineNumber++
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			p.parseTag(line, &summary, context)
		default:
			p.handleURI(&summary, context)
		}
	}

	return summary
}

// parseTag dispatches a tag line to its registered handler
func (p *Parser) parseTag(line string, summary *PlaylistSummary, context *ParseContext) {
	tag, value, _ := strings.Cut(line, ":")
	if handler, exists := p.tagHandlers[tag]; exists {
		handler.Handler(value, summary, context)
	}
}

// handleURI completes the pending segment or variant
func (p *Parser) handleURI(summary *PlaylistSummary, context *ParseContext) {
	switch {
	case context.PendingVariant:
		summary.Variants++
		context.PendingVariant = false
	case context.PendingSegment:
		summary.Segments++
		context.PendingSegment = false
	default:
		// URI without a preceding EXTINF still plays as a segment
		summary.Segments++
	}
}

// registerDefaultTagHandlers registers the tags the summary depends on
func (p *Parser) registerDefaultTagHandlers() {
	handlers := []TagHandler{
		{
			Name:        tagInf,
			Description: "Segment information",
			Handler: func(value string, summary *PlaylistSummary, context *ParseContext) {
				context.PendingSegment = true
				durationStr, _, _ := strings.Cut(value, ",")
				if duration, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64); err == nil {
					summary.TotalDuration += duration
				}
			},
		},
		{
			Name:        tagStreamInf,
			Description: "Stream variant information",
			Handler: func(value string, summary *PlaylistSummary, context *ParseContext) {
				context.PendingVariant = true
				summary.IsMaster = true
			},
		},
		{
			Name:        tagDiscontinuity,
			Description: "Content discontinuity",
			Handler: func(value string, summary *PlaylistSummary, context *ParseContext) {
				summary.Discontinuities++
			},
		},
		{
			Name:        tagEndList,
			Description: "End of playlist marker",
			Handler: func(value string, summary *PlaylistSummary, context *ParseContext) {
				summary.IsLive = false
			},
		},
	}

	for _, handler := range handlers {
		p.RegisterTagHandler(handler)
	}
}

// RegisterTagHandler registers a new tag handler
func (p *Parser) RegisterTagHandler(handler TagHandler) {
	p.tagHandlers[handler.Name] = handler
}

// GetRegisteredTags returns a list of all registered tag handlers
func (p *Parser) GetRegisteredTags() []string {
	tags := make([]string, 0, len(p.tagHandlers))
	for tag := range p.tagHandlers {
		tags = append(tags, tag)
	}
	return tags
}
