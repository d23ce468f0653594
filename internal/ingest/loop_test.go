package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/and161185/s0-pulse-counter/internal/errs"
	"github.com/and161185/s0-pulse-counter/internal/frame"
	"github.com/and161185/s0-pulse-counter/model"
	"github.com/and161185/s0-pulse-counter/storage/inmemory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeDevice is a byte source fed by the test through a pipe.
type fakeDevice struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newFakeDevice() *fakeDevice {
	r, w := io.Pipe()
	return &fakeDevice{r: r, w: w}
}

func (d *fakeDevice) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *fakeDevice) Close() error               { return d.r.Close() }

func (d *fakeDevice) send(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		_, err := d.w.Write([]byte(l + "\r\n"))
		require.NoError(t, err)
	}
}

func (d *fakeDevice) fail(err error) {
	_ = d.w.CloseWithError(err)
}

type fakeRecorder struct {
	mu        sync.Mutex
	accepted  int
	discarded map[frame.Reason]int
	storeErrs int
	up        bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{discarded: map[frame.Reason]int{}}
}

func (r *fakeRecorder) FrameAccepted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted++
}

func (r *fakeRecorder) FrameDiscarded(reason frame.Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded[reason]++
}

func (r *fakeRecorder) StoreError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeErrs++
}

func (r *fakeRecorder) SetUp(up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.up = up
}

func runLoop(ctx context.Context, l *Loop) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion loop did not stop")
		return nil
	}
}

func counts(st *inmemory.CounterStore) []uint64 {
	var out []uint64
	for _, cc := range st.SnapshotAll() {
		out = append(out, cc.Count)
	}
	return out
}

func TestLoop_AppliesFramesUntilDeviceFails(t *testing.T) {
	st := inmemory.NewCounterStore(5)
	dev := newFakeDevice()
	rec := newFakeRecorder()
	l := NewLoop(dev, Options{Parser: frame.NewLineParser(5), Store: st, Recorder: rec})

	done := runLoop(context.Background(), l)
	dev.send(t, "0", "0", "1", "0", "4:10")
	boom := errors.New("device unplugged")
	dev.fail(boom)

	err := waitDone(t, done)
	require.ErrorIs(t, err, errs.ErrDeviceRead)
	require.ErrorIs(t, err, boom)

	require.Equal(t, []uint64{3, 1, 0, 0, 10}, counts(st))
	require.Equal(t, 5, rec.accepted)
	require.False(t, rec.up)

	snap := l.Status().Snapshot()
	require.Equal(t, StateFailed, snap.State)
	require.EqualValues(t, 5, snap.FramesAccepted)
	require.Contains(t, snap.LastError, "device unplugged")
	require.NotEmpty(t, snap.Session)
	require.NotNil(t, snap.LastFrameAt)
	require.False(t, l.Status().Healthy())
}

func TestLoop_MalformedFramesDoNotChangeCounts(t *testing.T) {
	valid := []string{"0", "2:5", "1", "0", "4"}
	noise := []string{"", "x", "9", "1:0", "1:2:3", "-1", "garbage:1"}

	run := func(lines []string) ([]uint64, *fakeRecorder) {
		st := inmemory.NewCounterStore(5)
		dev := newFakeDevice()
		rec := newFakeRecorder()
		l := NewLoop(dev, Options{Parser: frame.NewLineParser(5), Store: st, Recorder: rec})
		done := runLoop(context.Background(), l)
		dev.send(t, lines...)
		dev.fail(io.EOF)
		require.Error(t, waitDone(t, done))
		return counts(st), rec
	}

	var mixed []string
	for i, v := range valid {
		mixed = append(mixed, noise[i%len(noise)], v)
	}
	mixed = append(mixed, noise...)

	want, _ := run(valid)
	got, rec := run(mixed)
	require.Equal(t, want, got)
	require.Equal(t, len(valid), rec.accepted)

	total := 0
	for _, n := range rec.discarded {
		total += n
	}
	require.Equal(t, len(mixed)-len(valid), total)
}

func TestLoop_S0Telegrams(t *testing.T) {
	st := inmemory.NewCounterStore(5)
	dev := newFakeDevice()
	rec := newFakeRecorder()
	l := NewLoop(dev, Options{Parser: frame.S0Parser{}, Store: st, Recorder: rec})

	done := runLoop(context.Background(), l)
	dev.send(t,
		"/8237:S0 Pulse Counter V0.6",
		"ID:8237:I:10:M1:2:2:M2:0:0:M3:0:0:M4:0:0:M5:1:1",
		"ID:8237:I:10:M1:1:3:M2:0:0:M3:4:4:M4:0:0:M5:0:1",
		"ID:8237:I:10:M1:1:3:M2",
	)
	dev.fail(io.ErrUnexpectedEOF)
	require.Error(t, waitDone(t, done))

	require.Equal(t, []uint64{3, 0, 4, 0, 1}, counts(st))
	require.Equal(t, 1, rec.discarded[frame.ReasonHeader])
	require.Equal(t, 1, rec.discarded[frame.ReasonLength])
}

func TestLoop_InvalidChannelIsLoggedNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	st := inmemory.NewCounterStore(3)
	dev := newFakeDevice()
	rec := newFakeRecorder()
	l := NewLoop(dev, Options{
		Parser:   frame.S0Parser{},
		Store:    st,
		Recorder: rec,
		Logger:   zap.New(core).Sugar(),
	})

	done := runLoop(context.Background(), l)
	dev.send(t,
		"ID:1:I:10:M1:1:1:M2:0:0:M3:2:2:M4:5:5:M5:0:0",
		"ID:1:I:10:M1:1:2:M2:0:0:M3:0:2:M4:0:5:M5:0:0",
	)
	dev.fail(io.EOF)
	require.Error(t, waitDone(t, done))

	require.Equal(t, []uint64{2, 0, 2}, counts(st))
	require.Equal(t, 1, rec.storeErrs)

	rejected := logs.FilterMessage("counter store rejected event").All()
	require.Len(t, rejected, 1)
	require.EqualValues(t, model.Channel(3), rejected[0].ContextMap()["channel"])
}

func TestLoop_OverlongFrameIsDiscarded(t *testing.T) {
	st := inmemory.NewCounterStore(5)
	dev := newFakeDevice()
	rec := newFakeRecorder()
	l := NewLoop(dev, Options{Parser: frame.NewLineParser(5), Store: st, Recorder: rec, MaxFrameLen: 32})

	done := runLoop(context.Background(), l)
	dev.send(t, "1", strings.Repeat("7", 200), "1")
	dev.fail(io.EOF)
	require.Error(t, waitDone(t, done))

	require.Equal(t, []uint64{0, 2, 0, 0, 0}, counts(st))
	require.Equal(t, 1, rec.discarded[frame.ReasonTooLong])
}

func TestLoop_CancelClosesDevice(t *testing.T) {
	st := inmemory.NewCounterStore(5)
	dev := newFakeDevice()
	l := NewLoop(dev, Options{Parser: frame.NewLineParser(5), Store: st})

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, l)
	dev.send(t, "3")
	require.Eventually(t, func() bool {
		c, _ := st.Snapshot(3)
		return c == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, l.Status().Healthy())

	cancel()
	require.NoError(t, waitDone(t, done))
	require.Equal(t, StateStopped, l.Status().Snapshot().State)

	// the loop closed the read side
	_, err := dev.w.Write([]byte("4\n"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestLoop_Reconnects(t *testing.T) {
	st := inmemory.NewCounterStore(5)
	first := newFakeDevice()
	second := newFakeDevice()

	var mu sync.Mutex
	attempts := 0
	reopen := func() (io.ReadCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("no such device")
		}
		return second, nil
	}

	l := NewLoop(first, Options{
		Parser:         frame.NewLineParser(5),
		Store:          st,
		Reopen:         reopen,
		ReconnectDelay: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runLoop(ctx, l)

	first.send(t, "0", "0")
	first.fail(errors.New("unplugged"))

	second.send(t, "0", "2")
	require.Eventually(t, func() bool {
		c, _ := st.Snapshot(2)
		return c == 1
	}, time.Second, 5*time.Millisecond)

	c0, err := st.Snapshot(0)
	require.NoError(t, err)
	require.EqualValues(t, 3, c0)
	require.True(t, l.Status().Healthy())
	require.Contains(t, l.Status().Snapshot().LastError, "unplugged")

	cancel()
	require.NoError(t, waitDone(t, done))
	mu.Lock()
	require.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestLoop_CancelWhileReconnecting(t *testing.T) {
	dev := newFakeDevice()
	l := NewLoop(dev, Options{
		Parser:         frame.NewLineParser(5),
		Store:          inmemory.NewCounterStore(5),
		Reopen:         func() (io.ReadCloser, error) { return nil, errors.New("still gone") },
		ReconnectDelay: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, l)
	dev.fail(errors.New("unplugged"))

	require.Eventually(t, func() bool {
		return l.Status().Snapshot().State == StateReconnecting
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))
	require.Equal(t, StateStopped, l.Status().Snapshot().State)
}
