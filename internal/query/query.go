// Package query answers read requests from counter store snapshots. It
// never touches the device.
package query

import (
	"fmt"
	"strconv"

	"github.com/and161185/s0-pulse-counter/internal/errs"
	"github.com/and161185/s0-pulse-counter/model"
	"github.com/and161185/s0-pulse-counter/storage"
)

type Service struct {
	store storage.Snapshotter
}

func NewService(store storage.Snapshotter) *Service {
	return &Service{store: store}
}

// GetChannel returns the count for the channel named by id. A non-integer
// id yields errs.ErrNotFound; an integer outside [0, N) yields
// errs.ErrInvalidChannel.
func (s *Service) GetChannel(id string) (uint64, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, fmt.Errorf("channel %q: %w", id, errs.ErrNotFound)
	}
	return s.store.Snapshot(model.Channel(n))
}

// GetAll returns every channel's count, in channel order.
func (s *Service) GetAll() []model.ChannelCount {
	return s.store.SnapshotAll()
}

// Channels returns N.
func (s *Service) Channels() int {
	return s.store.Channels()
}
