// Package frame turns the raw byte stream of a pulse counter into pulse events.
//
// A Reader splits the stream into delimiter-stripped frames and a Parser
// decodes each frame into a Result. Parsers are pure: the same frame
// always yields the same Result.
package frame

import (
	"fmt"

	"github.com/and161185/s0-pulse-counter/model"
)

// Frame grammars accepted by New.
const (
	FormatS0   = "s0"   // S0 telegram lines, one line per interval for all inputs.
	FormatLine = "line" // "<channel>[:<delta>]", one event per line.
)

// Reason tells why a frame was discarded. ReasonNone means accepted.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonEmpty
	ReasonHeader
	ReasonLength
	ReasonMarker
	ReasonNumber
	ReasonChannelRange
	ReasonTooLong
)

var reasonNames = [...]string{
	ReasonNone:         "none",
	ReasonEmpty:        "empty",
	ReasonHeader:       "header",
	ReasonLength:       "length",
	ReasonMarker:       "marker",
	ReasonNumber:       "number",
	ReasonChannelRange: "channel_range",
	ReasonTooLong:      "too_long",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return reasonNames[r]
}

// Reasons lists every discard reason, for pre-registering metric labels.
func Reasons() []Reason {
	return []Reason{ReasonEmpty, ReasonHeader, ReasonLength, ReasonMarker, ReasonNumber, ReasonChannelRange, ReasonTooLong}
}

// Result is the outcome of parsing one frame: either accepted with zero or
// more events, or discarded with a reason.
type Result struct {
	Events []model.PulseEvent
	Reason Reason
}

// Discarded reports whether the frame was rejected.
func (r Result) Discarded() bool { return r.Reason != ReasonNone }

func discard(reason Reason) Result { return Result{Reason: reason} }

// Parser decodes one delimiter-stripped frame.
type Parser interface {
	Parse(line []byte) Result
}

// New returns the parser for the named grammar. channels bounds the
// channel ids accepted by grammars that carry an explicit id.
func New(format string, channels int) (Parser, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	switch format {
	case FormatS0:
		return S0Parser{}, nil
	case FormatLine:
		return NewLineParser(channels), nil
	default:
		return nil, fmt.Errorf("unknown frame format %q", format)
	}
}
