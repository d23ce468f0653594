// Package storage declares the counter store contracts used by the
// ingestion and query sides.
package storage

import "github.com/and161185/s0-pulse-counter/model"

// Incrementer is the write side of the counter store.
type Incrementer interface {
	Increment(ch model.Channel, delta uint64) error
}

// Snapshotter is the read side of the counter store.
type Snapshotter interface {
	Channels() int
	Snapshot(ch model.Channel) (uint64, error)
	SnapshotAll() []model.ChannelCount
}

// CounterStore is both sides together.
type CounterStore interface {
	Incrementer
	Snapshotter
}
