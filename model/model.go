// Package model contains core data types for the project.
package model

// Channel is the index of one physical S0 input, in [0, N).
type Channel int

// PulseEvent is a parsed increment for a single channel.
type PulseEvent struct {
	Channel Channel // Input the pulses were counted on.
	Delta   uint64  // Number of pulses to add.
}

// ChannelCount is one entry of a counter snapshot.
type ChannelCount struct {
	Channel Channel `json:"channel"` // Channel index.
	Count   uint64  `json:"count"`   // Cumulative pulses since process start.
}

// TelegramInputs is the number of inputs reported by an S0 telegram line.
const TelegramInputs = 5

// Telegram is one decoded data line of an S0 pulse counter.
type Telegram struct {
	DeviceID string                 // Device id as printed by the counter.
	Interval uint64                 // Telegram interval in seconds.
	Pulses   [TelegramInputs]uint64 // Pulses per input since the previous telegram.
	Totals   [TelegramInputs]uint64 // Pulses per input since device boot.
}
