// Package ingest runs the loop that reads the pulse counter and keeps the
// counter store current.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/and161185/s0-pulse-counter/internal/device"
	"github.com/and161185/s0-pulse-counter/internal/errs"
	"github.com/and161185/s0-pulse-counter/internal/frame"
	"github.com/and161185/s0-pulse-counter/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder receives ingestion events for instrumentation.
type Recorder interface {
	FrameAccepted()
	FrameDiscarded(reason frame.Reason)
	StoreError()
	SetUp(up bool)
}

type nopRecorder struct{}

func (nopRecorder) FrameAccepted()             {}
func (nopRecorder) FrameDiscarded(frame.Reason) {}
func (nopRecorder) StoreError()                {}
func (nopRecorder) SetUp(bool)                 {}

// Options configure a Loop. Parser and Store are required.
type Options struct {
	Parser   frame.Parser
	Store    storage.Incrementer
	Logger   *zap.SugaredLogger
	Recorder Recorder
	Status   *Status

	// Reopen and ReconnectDelay enable reconnecting after a read failure.
	// Without both the loop stops on the first failure.
	Reopen         device.Opener
	ReconnectDelay time.Duration

	MaxFrameLen int
}

// Loop is the single writer of the counter store.
type Loop struct {
	src      io.ReadCloser
	parser   frame.Parser
	store    storage.Incrementer
	logger   *zap.SugaredLogger
	recorder Recorder
	status   *Status
	reopen   device.Opener
	delay    time.Duration
	maxLen   int
}

// NewLoop takes ownership of src, an already opened device.
func NewLoop(src io.ReadCloser, opts Options) *Loop {
	l := &Loop{
		src:      src,
		parser:   opts.Parser,
		store:    opts.Store,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		status:   opts.Status,
		reopen:   opts.Reopen,
		delay:    opts.ReconnectDelay,
		maxLen:   opts.MaxFrameLen,
	}
	if l.logger == nil {
		l.logger = zap.NewNop().Sugar()
	}
	if l.recorder == nil {
		l.recorder = nopRecorder{}
	}
	if l.status == nil {
		l.status = NewStatus()
	}
	return l
}

func (l *Loop) Status() *Status {
	return l.status
}

// Run reads frames until ctx is cancelled, which returns nil, or until the
// device fails, which returns an error wrapping errs.ErrDeviceRead. The
// source is closed on return.
func (l *Loop) Run(ctx context.Context) error {
	src := l.src
	for {
		err := l.consume(ctx, src)
		if ctx.Err() != nil {
			l.stop(StateStopped, nil)
			return nil
		}

		err = fmt.Errorf("%w: %w", errs.ErrDeviceRead, err)
		if l.reopen == nil || l.delay <= 0 {
			l.logger.Errorw("device read failed, ingestion stopped", "error", err)
			l.stop(StateFailed, err)
			return err
		}

		l.logger.Warnw("device read failed, reconnecting", "error", err, "retry_in", l.delay)
		l.recorder.SetUp(false)
		l.status.set(StateReconnecting, err)

		src, err = l.reconnect(ctx)
		if err != nil {
			l.stop(StateStopped, nil)
			return nil
		}
	}
}

func (l *Loop) stop(state State, err error) {
	l.recorder.SetUp(false)
	l.status.set(state, err)
}

func (l *Loop) consume(ctx context.Context, src io.ReadCloser) error {
	session := uuid.NewString()
	l.status.begin(session)
	l.recorder.SetUp(true)
	l.logger.Infow("reading pulse counter", "session", session)

	// Closing the source is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer func() {
		if stop() {
			_ = src.Close()
		}
	}()

	r := frame.NewReader(src, l.maxLen)
	for {
		line, err := r.Next()
		if errors.Is(err, errs.ErrFrameTooLong) {
			l.discard(frame.ReasonTooLong, nil)
			continue
		}
		if err != nil {
			return err
		}
		l.handle(line)
	}
}

func (l *Loop) handle(line []byte) {
	res := l.parser.Parse(line)
	if res.Discarded() {
		l.discard(res.Reason, line)
		return
	}

	l.status.frame(time.Now(), true)
	l.recorder.FrameAccepted()

	for _, ev := range res.Events {
		if err := l.store.Increment(ev.Channel, ev.Delta); err != nil {
			l.recorder.StoreError()
			l.logger.Errorw("counter store rejected event",
				"channel", ev.Channel, "delta", ev.Delta, "error", err)
			continue
		}
		l.logger.Debugw("counter incremented", "channel", ev.Channel, "delta", ev.Delta)
	}
}

func (l *Loop) discard(reason frame.Reason, line []byte) {
	l.status.frame(time.Now(), false)
	l.recorder.FrameDiscarded(reason)

	if reason == frame.ReasonHeader {
		l.logger.Debugw("header received", "frame", string(line))
		return
	}
	l.logger.Debugw("frame discarded", "reason", reason.String(), "frame", string(line))
}

func (l *Loop) reconnect(ctx context.Context) (io.ReadCloser, error) {
	t := time.NewTimer(l.delay)
	defer t.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}

		src, err := l.reopen()
		if err == nil {
			l.logger.Infow("device reopened", "attempt", attempt)
			return src, nil
		}
		l.logger.Warnw("device reopen failed", "attempt", attempt, "error", err, "retry_in", l.delay)
		t.Reset(l.delay)
	}
}
