// Package inmemory holds pulse counts in process memory.
package inmemory

import (
	"fmt"
	"math"
	"sync"

	"github.com/and161185/s0-pulse-counter/internal/errs"
	"github.com/and161185/s0-pulse-counter/model"
)

// CounterStore keeps one cumulative count per channel. A single RWMutex
// guards all channels, so SnapshotAll observes one instant for every channel.
type CounterStore struct {
	counts []uint64
	mu     sync.RWMutex
}

// NewCounterStore returns a store with channels counters, all at zero.
func NewCounterStore(channels int) *CounterStore {
	if channels < 0 {
		channels = 0
	}
	return &CounterStore{
		counts: make([]uint64, channels),
	}
}

// Channels returns the number of channels N.
func (store *CounterStore) Channels() int {
	return len(store.counts)
}

// Increment adds delta to the count of ch. The sum saturates at MaxUint64.
func (store *CounterStore) Increment(ch model.Channel, delta uint64) error {
	if !store.valid(ch) {
		return fmt.Errorf("increment channel %d: %w", ch, errs.ErrInvalidChannel)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	cur := store.counts[ch]
	if delta > math.MaxUint64-cur {
		store.counts[ch] = math.MaxUint64
		return nil
	}
	store.counts[ch] = cur + delta
	return nil
}

// Snapshot returns the current count of ch.
func (store *CounterStore) Snapshot(ch model.Channel) (uint64, error) {
	if !store.valid(ch) {
		return 0, fmt.Errorf("snapshot channel %d: %w", ch, errs.ErrInvalidChannel)
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	return store.counts[ch], nil
}

// SnapshotAll returns every channel's count in channel order.
func (store *CounterStore) SnapshotAll() []model.ChannelCount {
	store.mu.RLock()
	defer store.mu.RUnlock()

	result := make([]model.ChannelCount, len(store.counts))
	for i, c := range store.counts {
		result[i] = model.ChannelCount{Channel: model.Channel(i), Count: c}
	}
	return result
}

func (store *CounterStore) valid(ch model.Channel) bool {
	return ch >= 0 && int(ch) < len(store.counts)
}
