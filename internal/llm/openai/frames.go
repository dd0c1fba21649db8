package openai

import (
	"encoding/json"
	"strings"
)

// EventKind tags a parsed stream event.
type EventKind int

const (
	// EventReasoningDelta carries intermediate reasoning text; it is diagnostic only.
	EventReasoningDelta EventKind = iota + 1
	// EventContentDelta carries answer text.
	EventContentDelta
	// EventDone is terminal; no event follows it.
	EventDone
	// EventMalformed carries input that is not a recognized frame, for degraded display.
	EventMalformed
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventReasoningDelta:
		return "reasoning_delta"
	case EventContentDelta:
		return "content_delta"
	case EventDone:
		return "done"
	case EventMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Event is a single unit produced by the FrameParser.
type Event struct {
	// Kind identifies the variant.
	Kind EventKind
	// Text is the delta or the raw malformed input; empty for EventDone.
	Text string
}

const (
	// dataMarker prefixes every SSE data line.
	dataMarker = "data:"
	// doneSentinel terminates an OpenAI-compatible stream.
	doneSentinel = "[DONE]"
)

// framingPrefixes are line prefixes that belong to SSE framing.
var framingPrefixes = []string{dataMarker, ":", "event:", "id:", "retry:"}

// FrameParser turns arbitrarily split chunks of an SSE body into Events.
//
// Data lines are buffered until their newline, so a frame split across two
// reads (even inside the "data:" marker) is reassembled. Providers that omit
// newlines between frames are split on each further "data:" marker. Text that
// cannot be the start of an SSE line is passed through eagerly as
// EventMalformed; a degraded line ends when a later read starts a data line.
type FrameParser struct {
	// pending holds an unterminated line that may still become a frame.
	pending strings.Builder
	// raw reports that the current line was classified as degraded text.
	raw bool
	// finished is set after EventDone or Close.
	finished bool
	// summary accumulates stream metadata.
	summary StreamSummary
}

// NewFrameParser constructs an empty parser.
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Feed consumes the next chunk and returns the events it completes, in order.
func (p *FrameParser) Feed(chunk string) []Event {
	var events []Event
	if p.raw && chunk != "" && startsDataLine(chunk) {
		p.raw = false
	}
	rest := chunk
	for rest != "" && !p.finished {
		newline := strings.IndexByte(rest, '\n')

		if p.raw {
			if newline < 0 {
				events = append(events, Event{Kind: EventMalformed, Text: rest})
				return events
			}
			events = append(events, Event{Kind: EventMalformed, Text: rest[:newline+1]})
			rest = rest[newline+1:]
			p.raw = false
			continue
		}

		if newline < 0 {
			p.pending.WriteString(rest)
			line := p.pending.String()
			if !isFramingLine(line) {
				p.pending.Reset()
				p.raw = true
				return append(events, Event{Kind: EventMalformed, Text: line})
			}
			return p.drainPending(events)
		}

		p.pending.WriteString(rest[:newline])
		rest = rest[newline+1:]
		line := p.pending.String()
		p.pending.Reset()

		if !isFramingLine(line) {
			events = append(events, Event{Kind: EventMalformed, Text: line + "\n"})
			continue
		}
		events = p.appendLine(events, line)
	}
	return events
}

// Close flushes an unterminated trailing line at end of stream. It never
// synthesizes EventDone.
func (p *FrameParser) Close() []Event {
	if p.finished {
		return nil
	}
	p.raw = false
	line := p.pending.String()
	p.pending.Reset()
	defer func() { p.finished = true }()
	if line == "" {
		return nil
	}

	trimmed := strings.TrimRight(line, "\r")
	switch {
	case strings.HasPrefix(trimmed, dataMarker):
		return p.appendLine(nil, trimmed)
	case trimmed == "" || hasFramingPrefix(trimmed):
		return nil
	default:
		// A dangling partial marker such as "dat" is still text the user should see.
		return []Event{{Kind: EventMalformed, Text: line}}
	}
}

// Finished reports whether EventDone was emitted or Close was called.
func (p *FrameParser) Finished() bool {
	return p.finished
}

// Summary returns metadata gathered from decoded frames.
func (p *FrameParser) Summary() StreamSummary {
	return p.summary
}

// drainPending emits the complete frames at the head of an unterminated data
// line that already holds further markers, keeping the tail buffered.
func (p *FrameParser) drainPending(events []Event) []Event {
	line := p.pending.String()
	if !strings.HasPrefix(line, dataMarker) {
		return events
	}
	body := line[len(dataMarker):]
	for !p.finished {
		next := strings.Index(body, dataMarker)
		if next < 0 {
			break
		}
		head := strings.TrimSpace(body[:next])
		if !isCompletePayload(head) {
			break
		}
		events = p.appendPayload(events, head)
		body = body[next+len(dataMarker):]
	}
	p.pending.Reset()
	if p.finished {
		return events
	}
	if strings.TrimSpace(body) == doneSentinel {
		return p.appendPayload(events, doneSentinel)
	}
	p.pending.WriteString(dataMarker + body)
	return events
}

// appendLine handles one complete SSE line.
func (p *FrameParser) appendLine(events []Event, line string) []Event {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataMarker) {
		// Blank lines, comments and event/id/retry fields carry no content.
		return events
	}
	for _, payload := range splitPayloads(line[len(dataMarker):]) {
		if p.finished {
			break
		}
		events = p.appendPayload(events, payload)
	}
	return events
}

// appendPayload decodes the payload of one data frame.
func (p *FrameParser) appendPayload(events []Event, payload string) []Event {
	if payload == "" {
		return events
	}
	if payload == doneSentinel {
		p.finished = true
		return append(events, Event{Kind: EventDone})
	}

	var frame StreamResponse
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return append(events, Event{Kind: EventMalformed, Text: payload})
	}
	p.record(frame)

	if len(frame.Choices) == 0 {
		if frame.Error != nil {
			return append(events, Event{Kind: EventMalformed, Text: payload})
		}
		return events
	}
	delta := frame.Choices[0].Delta
	if delta.ReasoningContent != "" {
		events = append(events, Event{Kind: EventReasoningDelta, Text: delta.ReasoningContent})
	}
	if delta.Content != "" {
		events = append(events, Event{Kind: EventContentDelta, Text: delta.Content})
	}
	return events
}

// record folds frame metadata into the summary.
func (p *FrameParser) record(frame StreamResponse) {
	p.summary.Frames++
	if p.summary.ID == "" && frame.ID != "" {
		p.summary.ID = frame.ID
	}
	if p.summary.Model == "" && frame.Model != "" {
		p.summary.Model = frame.Model
	}
	if frame.Usage != nil {
		p.summary.Usage = *frame.Usage
		p.summary.HasUsage = true
	}
	if len(frame.Choices) > 0 && frame.Choices[0].FinishReason != nil {
		p.summary.FinishReason = *frame.Choices[0].FinishReason
	}
}

// splitPayloads returns the payloads of a data line. A line that is not one
// complete payload is split on every further marker.
func splitPayloads(body string) []string {
	whole := strings.TrimSpace(body)
	if !strings.Contains(whole, dataMarker) || isCompletePayload(whole) {
		return []string{whole}
	}
	parts := strings.Split(body, dataMarker)
	payloads := make([]string, 0, len(parts))
	for _, part := range parts {
		payloads = append(payloads, strings.TrimSpace(part))
	}
	return payloads
}

// isCompletePayload reports whether payload is a whole frame on its own.
func isCompletePayload(payload string) bool {
	return payload == doneSentinel || json.Valid([]byte(payload))
}

// startsDataLine reports whether chunk begins, or may begin, a data line.
func startsDataLine(chunk string) bool {
	return strings.HasPrefix(chunk, dataMarker) || strings.HasPrefix(dataMarker, chunk)
}

// isFramingLine reports whether a (possibly partial) line is, or may still
// become, an SSE line.
func isFramingLine(line string) bool {
	line = strings.TrimRight(line, "\r")
	for _, prefix := range framingPrefixes {
		if strings.HasPrefix(line, prefix) || strings.HasPrefix(prefix, line) {
			return true
		}
	}
	return false
}

// hasFramingPrefix reports whether a line starts with a complete SSE prefix.
func hasFramingPrefix(line string) bool {
	for _, prefix := range framingPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
