package frame

import (
	"strconv"
	"strings"

	"github.com/and161185/s0-pulse-counter/model"
)

// ID:<device>:I:<interval> followed by M<n>:<pulses>:<total> per input.
const telegramFields = 4 + 3*model.TelegramInputs

// S0Parser decodes S0 telegram lines. It emits one event per input that
// counted pulses during the telegram interval; input n maps to channel n-1.
type S0Parser struct{}

func (S0Parser) Parse(line []byte) Result {
	t, reason := DecodeTelegram(line)
	if reason != ReasonNone {
		return discard(reason)
	}

	var events []model.PulseEvent
	for i, p := range t.Pulses {
		if p > 0 {
			events = append(events, model.PulseEvent{Channel: model.Channel(i), Delta: p})
		}
	}
	return Result{Events: events}
}

// DecodeTelegram parses a single telegram line. Header lines, which start
// with '/', are reported as ReasonHeader.
func DecodeTelegram(line []byte) (model.Telegram, Reason) {
	var t model.Telegram

	s := strings.TrimSpace(string(line))
	if s == "" {
		return t, ReasonEmpty
	}
	if strings.HasPrefix(s, "/") {
		return t, ReasonHeader
	}

	fields := strings.Split(s, ":")
	if len(fields) != telegramFields {
		return t, ReasonLength
	}
	if fields[0] != "ID" || fields[2] != "I" {
		return t, ReasonMarker
	}
	for i := 0; i < model.TelegramInputs; i++ {
		if fields[4+3*i] != "M"+strconv.Itoa(i+1) {
			return t, ReasonMarker
		}
	}

	if _, err := parseCount(fields[1]); err != nil {
		return t, ReasonNumber
	}
	t.DeviceID = fields[1]

	var err error
	if t.Interval, err = parseCount(fields[3]); err != nil {
		return t, ReasonNumber
	}
	for i := 0; i < model.TelegramInputs; i++ {
		if t.Pulses[i], err = parseCount(fields[5+3*i]); err != nil {
			return t, ReasonNumber
		}
		if t.Totals[i], err = parseCount(fields[6+3*i]); err != nil {
			return t, ReasonNumber
		}
	}

	return t, ReasonNone
}

func parseCount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
