package frame

import (
	"strconv"
	"strings"

	"github.com/and161185/s0-pulse-counter/model"
)

// LineParser decodes "<channel>" or "<channel>:<delta>" frames.
type LineParser struct {
	channels int
}

func NewLineParser(channels int) *LineParser {
	return &LineParser{channels: channels}
}

func (p *LineParser) Parse(line []byte) Result {
	s := strings.TrimSpace(string(line))
	if s == "" {
		return discard(ReasonEmpty)
	}

	chField, deltaField, hasDelta := strings.Cut(s, ":")
	if strings.Contains(deltaField, ":") {
		return discard(ReasonLength)
	}

	ch, err := strconv.Atoi(chField)
	if err != nil {
		return discard(ReasonNumber)
	}
	if ch < 0 || ch >= p.channels {
		return discard(ReasonChannelRange)
	}

	delta := uint64(1)
	if hasDelta {
		delta, err = parseCount(deltaField)
		if err != nil || delta == 0 {
			return discard(ReasonNumber)
		}
	}

	return Result{Events: []model.PulseEvent{{Channel: model.Channel(ch), Delta: delta}}}
}
