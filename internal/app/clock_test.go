// ABOUTME: Tests for the clock loop
// ABOUTME: Drives calibration, ticks and resyncs with fake clocks, authority and display
package app

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Dozenal-Clock/dozclock-go/internal/display"
	"github.com/Dozenal-Clock/dozclock-go/internal/lines"
	"github.com/Dozenal-Clock/dozclock-go/internal/ui"
	"github.com/Dozenal-Clock/dozclock-go/pkg/dozenal"
	"github.com/Dozenal-Clock/dozclock-go/pkg/timesource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// 2021-12-20T12:30:00Z, half past the hour.
var halfPast = time.Unix(1640003400, 0).UTC()

type fakeCoarse struct {
	mu  gosync.Mutex
	now time.Time
}

func (f *fakeCoarse) Unix() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Unix()
}

func (f *fakeCoarse) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fakeCoarse) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type fakeMono struct {
	ms atomic.Int64
}

func (f *fakeMono) Milliseconds() int64 { return f.ms.Load() }

type fakeAuthority struct {
	mu    gosync.Mutex
	calls int
	read  func() (timesource.Reading, error)
}

func (a *fakeAuthority) Read(ctx context.Context) (timesource.Reading, error) {
	a.mu.Lock()
	a.calls++
	read := a.read
	a.mu.Unlock()
	return read()
}

func (a *fakeAuthority) Name() string { return "fake" }

func (a *fakeAuthority) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *fakeAuthority) setRead(read func() (timesource.Reading, error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.read = read
}

func fixedReading(t time.Time) func() (timesource.Reading, error) {
	return func() (timesource.Reading, error) {
		return timesource.Reading{Time: t, Offset: time.Second, Source: "fake"}, nil
	}
}

func failing() (timesource.Reading, error) {
	return timesource.Reading{}, timesource.ErrUnavailable
}

type recorder struct {
	mu    gosync.Mutex
	texts [ui.LineCount][]string
}

func (r *recorder) SetText(text string, channel int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if channel < 0 || channel >= ui.LineCount {
		return &display.ChannelError{Channel: channel}
	}
	r.texts[channel] = append(r.texts[channel], text)
	return nil
}

func (r *recorder) last(channel int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.texts[channel]); n > 0 {
		return r.texts[channel][n-1]
	}
	return ""
}

func (r *recorder) count(channel int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts[channel])
}

type fakeChime struct {
	plays atomic.Int32
}

func (f *fakeChime) Play(ctx context.Context) error {
	f.plays.Add(1)
	return nil
}

type harness struct {
	clock     *Clock
	coarse    *fakeCoarse
	mono      *fakeMono
	authority *fakeAuthority
	display   *recorder
	registry  *prometheus.Registry
}

func newHarness(t *testing.T, read func() (timesource.Reading, error), mutate func(*Config, *Deps)) *harness {
	t.Helper()
	h := &harness{
		coarse:    &fakeCoarse{now: halfPast.Add(-time.Hour)},
		mono:      &fakeMono{},
		authority: &fakeAuthority{read: read},
		display:   &recorder{},
		registry:  prometheus.NewRegistry(),
	}
	h.mono.ms.Store(500000)

	config := Config{Precision: 3, Location: time.UTC, Registry: h.registry}
	deps := Deps{Authority: h.authority, Coarse: h.coarse, Mono: h.mono, Display: h.display}
	if mutate != nil {
		mutate(&config, &deps)
	}

	c, err := New(config, deps, nil)
	require.NoError(t, err)
	h.clock = c
	return h
}

// advance moves both clocks forward together.
func (h *harness) advance(d time.Duration) {
	h.coarse.advance(d)
	h.mono.ms.Add(d.Milliseconds())
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Precision: 5}, Deps{}, nil)
	assert.ErrorIs(t, err, dozenal.ErrInvalidPrecision)

	_, err = New(Config{Precision: 3}, Deps{}, nil)
	assert.Error(t, err)
}

func TestCalibrateSuccess(t *testing.T) {
	h := newHarness(t, fixedReading(halfPast), nil)

	require.True(t, h.clock.Calibrate(context.Background()))

	assert.Equal(t, halfPast.Unix(), h.coarse.Unix(), "host clock corrected")
	assert.Equal(t, []string{lines.TestPattern[0], lines.Calibrated}, h.display.texts[display.ChannelDecimal])
	assert.Equal(t, []string{lines.TestPattern[1]}, h.display.texts[display.ChannelDozenal])
	assert.Equal(t, []string{lines.TestPattern[2]}, h.display.texts[display.ChannelDate])

	est := h.clock.Estimator()
	assert.True(t, est.Anchored())
	assert.Equal(t, halfPast.UnixMilli(), est.AnchorWallMs())
	assert.Equal(t, int64(500000), est.AnchorMonotonicMs())
	assert.False(t, h.clock.retry)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.clock.metrics.resyncAttempts))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.clock.metrics.resyncFailures))
}

func TestCalibrateFailureShowsPlaceholder(t *testing.T) {
	h := newHarness(t, failing, nil)
	before := h.coarse.Unix()

	require.False(t, h.clock.Calibrate(context.Background()))

	for ch := 0; ch < ui.LineCount; ch++ {
		assert.Equal(t, lines.Placeholder, h.display.last(ch))
	}
	assert.Equal(t, before, h.coarse.Unix(), "host clock untouched")
	assert.True(t, h.clock.Estimator().Anchored(), "anchored on the host clock anyway")
	assert.True(t, h.clock.retry)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.clock.metrics.resyncFailures))
}

func TestFirstTickDrawsEverything(t *testing.T) {
	h := newHarness(t, fixedReading(halfPast), nil)
	h.clock.Calibrate(context.Background())

	h.clock.Tick(context.Background())

	assert.Equal(t, "12:30:00", h.display.last(display.ChannelDecimal))
	assert.Equal(t, "10 600", h.display.last(display.ChannelDozenal))
	assert.Equal(t, "12-20", h.display.last(display.ChannelDate))
}

func TestTickRedrawsOnlyOnChange(t *testing.T) {
	h := newHarness(t, fixedReading(halfPast), nil)
	h.clock.Calibrate(context.Background())
	h.clock.Tick(context.Background())

	decimal := h.display.count(display.ChannelDecimal)
	date := h.display.count(display.ChannelDate)
	dozenalCount := h.display.count(display.ChannelDozenal)

	// Same second, 20ms later: nothing changes.
	h.mono.ms.Add(20)
	h.clock.Tick(context.Background())
	assert.Equal(t, decimal, h.display.count(display.ChannelDecimal))
	assert.Equal(t, date, h.display.count(display.ChannelDate))
	assert.Equal(t, dozenalCount, h.display.count(display.ChannelDozenal))

	// Still the same coarse second, but 2.1s of dozenal subunit passed.
	h.mono.ms.Add(2100)
	h.clock.Tick(context.Background())
	assert.Equal(t, decimal, h.display.count(display.ChannelDecimal))
	assert.Equal(t, dozenalCount+1, h.display.count(display.ChannelDozenal))
	assert.Equal(t, "10;601", h.display.last(display.ChannelDozenal))

	// Next second redraws the decimal line with blinking colons.
	h.coarse.advance(time.Second)
	h.clock.Tick(context.Background())
	assert.Equal(t, decimal+1, h.display.count(display.ChannelDecimal))
	assert.Equal(t, "12 30 01", h.display.last(display.ChannelDecimal))
}

func TestDriftCorrection(t *testing.T) {
	h := newHarness(t, fixedReading(halfPast), nil)
	h.clock.Calibrate(context.Background())

	// Coarse second ticks over while the monotonic counter only moved 700ms.
	h.coarse.advance(time.Second)
	h.mono.ms.Add(700)
	h.clock.Tick(context.Background())

	est := h.clock.Estimator()
	assert.Equal(t, int64(300), est.DriftOffsetMs())
	assert.Equal(t, halfPast.UnixMilli()+1000, est.Estimate(h.mono.Milliseconds()))
	assert.Equal(t, 300.0, testutil.ToFloat64(h.clock.metrics.driftOffset))
}

func TestFullRedrawEvery2833Seconds(t *testing.T) {
	// 1640003869 is a multiple of 2833.
	at := time.Unix(1640003868, 0).UTC()
	h := newHarness(t, fixedReading(at), nil)
	h.clock.Calibrate(context.Background())
	h.clock.Tick(context.Background())

	date := h.display.count(display.ChannelDate)
	h.advance(time.Second)
	h.clock.Tick(context.Background())

	assert.Equal(t, int64(0), h.coarse.Unix()%FullRedrawEvery)
	assert.Equal(t, date+1, h.display.count(display.ChannelDate), "unchanged date text redrawn")
}

func TestResyncAfterThreshold(t *testing.T) {
	h := newHarness(t, fixedReading(halfPast), nil)
	ctx := context.Background()
	h.clock.Calibrate(ctx)

	h.advance(4020 * time.Second)
	h.clock.Tick(ctx)
	assert.Equal(t, 1, h.authority.Calls(), "no resync at exactly the threshold")

	later := halfPast.Add(4021*time.Second + 3*time.Second)
	h.authority.setRead(fixedReading(later))
	h.advance(time.Second)
	h.clock.Tick(ctx)

	res := <-h.clock.results
	h.clock.finishResync(res)

	assert.Equal(t, 2, h.authority.Calls())
	assert.Equal(t, later.Unix(), h.coarse.Unix())
	assert.Equal(t, later.UnixMilli(), h.clock.Estimator().AnchorWallMs())
	assert.False(t, h.clock.Estimator().NeedsResync(h.coarse.Unix()))
	assert.True(t, h.clock.forceRedraw)
}

func TestFailedResyncKeepsAnchorAndRetries(t *testing.T) {
	h := newHarness(t, fixedReading(halfPast), nil)
	ctx := context.Background()
	h.clock.Calibrate(ctx)
	anchor := h.clock.Estimator().AnchorWallMs()

	h.authority.setRead(failing)
	h.advance(4021 * time.Second)
	h.clock.Tick(ctx)

	// A second tick while the read is in flight does not start another.
	h.clock.Tick(ctx)
	h.clock.finishResync(<-h.clock.results)

	assert.Equal(t, 2, h.authority.Calls())
	assert.Equal(t, anchor, h.clock.Estimator().AnchorWallMs())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.clock.metrics.resyncFailures))

	// No backoff: the very next tick asks again.
	h.mono.ms.Add(20)
	h.clock.Tick(ctx)
	h.clock.finishResync(<-h.clock.results)
	assert.Equal(t, 3, h.authority.Calls())

	// Recovery.
	h.authority.setRead(fixedReading(halfPast.Add(5000 * time.Second)))
	h.clock.Tick(ctx)
	h.clock.finishResync(<-h.clock.results)
	assert.False(t, h.clock.retry)
	assert.Equal(t, halfPast.Add(5000*time.Second).UnixMilli(), h.clock.Estimator().AnchorWallMs())
}

func TestOutageWarnsSparingly(t *testing.T) {
	var mu gosync.Mutex
	syncReports := 0
	h := newHarness(t, failing, func(c *Config, d *Deps) {
		d.Status = func(m ui.StatusMsg) {
			if m.SyncQuality != nil {
				mu.Lock()
				syncReports++
				mu.Unlock()
			}
		}
	})
	core, logs := observer.New(zapcore.DebugLevel)
	h.clock.log = zap.New(core)
	ctx := context.Background()

	h.clock.Calibrate(ctx)
	for i := 1; i < 2*failureReportEvery+10; i++ {
		h.mono.ms.Add(20)
		h.clock.Tick(ctx)
		h.clock.finishResync(<-h.clock.results)
	}

	reads := h.authority.Calls()
	require.Equal(t, 2*failureReportEvery+10, reads)
	assert.Equal(t, float64(reads), testutil.ToFloat64(h.clock.metrics.resyncFailures))

	// First failure, then the 500th and the 1000th.
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 3)
	assert.Equal(t, int64(1), warns[0].ContextMap()["failures"])
	assert.Equal(t, int64(failureReportEvery), warns[1].ContextMap()["failures"])
	assert.Equal(t, reads-3, logs.FilterMessage("time authority still unavailable").Len())
	mu.Lock()
	assert.Equal(t, 3, syncReports)
	mu.Unlock()

	h.authority.setRead(fixedReading(halfPast))
	h.mono.ms.Add(20)
	h.clock.Tick(ctx)
	h.clock.finishResync(<-h.clock.results)

	recovered := logs.FilterMessage("time authority recovered").All()
	require.Len(t, recovered, 1)
	assert.Equal(t, int64(reads), recovered[0].ContextMap()["failures"])
}

func TestStartupFailureRetriesNextTick(t *testing.T) {
	h := newHarness(t, failing, nil)
	ctx := context.Background()
	h.clock.Calibrate(ctx)

	h.authority.setRead(fixedReading(halfPast))
	h.clock.Tick(ctx)
	h.clock.finishResync(<-h.clock.results)

	assert.Equal(t, halfPast.Unix(), h.coarse.Unix())
	assert.False(t, h.clock.retry)
}

func TestSetPrecision(t *testing.T) {
	h := newHarness(t, fixedReading(halfPast), nil)
	h.clock.Calibrate(context.Background())
	h.clock.Tick(context.Background())

	assert.ErrorIs(t, h.clock.SetPrecision(7), dozenal.ErrInvalidPrecision)
	assert.Equal(t, 3, h.clock.Precision())

	require.NoError(t, h.clock.SetPrecision(1))
	h.mono.ms.Add(20)
	h.clock.Tick(context.Background())
	assert.Equal(t, "10 6", h.display.last(display.ChannelDozenal))

	require.NoError(t, h.clock.SetPrecision(0))
	h.clock.Tick(context.Background())
	assert.Equal(t, "10 ", h.display.last(display.ChannelDozenal))
}

func TestChimeOnRollover(t *testing.T) {
	chimes := &fakeChime{}
	h := newHarness(t, fixedReading(halfPast), func(c *Config, d *Deps) {
		d.Chime = chimes
		d.ChimePrecision = 4
	})
	ctx := context.Background()
	h.clock.Calibrate(ctx)
	h.clock.Tick(ctx)

	h.mono.ms.Add(100)
	h.clock.Tick(ctx)
	h.mono.ms.Add(200)
	h.clock.Tick(ctx)
	h.clock.wg.Wait()

	assert.Equal(t, int32(1), chimes.plays.Load())
}

func TestStatusReported(t *testing.T) {
	var mu gosync.Mutex
	var msgs []ui.StatusMsg
	h := newHarness(t, fixedReading(halfPast), func(c *Config, d *Deps) {
		d.Status = func(m ui.StatusMsg) {
			mu.Lock()
			msgs = append(msgs, m)
			mu.Unlock()
		}
	})
	h.clock.Calibrate(context.Background())
	h.clock.Tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, "fake", msgs[0].Source)
	require.NotNil(t, msgs[0].SyncQuality)
	assert.False(t, msgs[0].LastResync.IsZero())
	require.NotNil(t, msgs[len(msgs)-1].DriftMs)
}

func TestRunAppliesControls(t *testing.T) {
	controls := ui.NewControls()
	h := newHarness(t, fixedReading(halfPast), func(c *Config, d *Deps) {
		c.PollInterval = 5 * time.Millisecond
		d.Controls = controls
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.clock.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.display.last(display.ChannelDozenal) == "10 600"
	}, 2*time.Second, 5*time.Millisecond)

	controls.Precision <- 4
	require.Eventually(t, func() bool {
		return utf8.RuneCountInString(h.display.last(display.ChannelDozenal)) == 7
	}, 2*time.Second, 5*time.Millisecond)

	controls.Resync <- struct{}{}
	require.Eventually(t, func() bool { return h.authority.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRedrawMetrics(t *testing.T) {
	h := newHarness(t, func() (timesource.Reading, error) {
		return timesource.Reading{}, errors.New("down")
	}, nil)
	h.clock.Calibrate(context.Background())

	// Test pattern plus placeholder on each line.
	assert.Equal(t, 2.0, testutil.ToFloat64(h.clock.metrics.redraws.WithLabelValues("date")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.clock.metrics.redraws.WithLabelValues("decimal")))
}
