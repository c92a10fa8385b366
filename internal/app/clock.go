// ABOUTME: Clock loop orchestration
// ABOUTME: Calibrates against a time authority, then polls the estimator and redraws the three lines
package app

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/chime"
	"github.com/Dozenal-Clock/dozclock-go/internal/display"
	"github.com/Dozenal-Clock/dozclock-go/internal/lines"
	"github.com/Dozenal-Clock/dozclock-go/internal/sync"
	"github.com/Dozenal-Clock/dozclock-go/internal/ui"
	"github.com/Dozenal-Clock/dozclock-go/pkg/clock"
	"github.com/Dozenal-Clock/dozclock-go/pkg/dozenal"
	"github.com/Dozenal-Clock/dozclock-go/pkg/timesource"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// FullRedrawEvery forces every line to be redrawn when the Unix second is a
// multiple of it, clearing any stale segments on the panel.
const FullRedrawEvery = 2833

// DefaultPollInterval is the gap between loop iterations.
const DefaultPollInterval = 20 * time.Millisecond

// failureReportEvery spaces out warnings while the time authority stays down.
const failureReportEvery = 500

var lineNames = [ui.LineCount]string{"decimal", "dozenal", "date"}

// Config holds clock loop configuration
type Config struct {
	Precision     int
	PollInterval  time.Duration
	ResyncAfter   time.Duration
	ResyncTimeout time.Duration
	CalibrateHold time.Duration // how long the calibration result stays up
	Glyphs        dozenal.Glyphs
	Location      *time.Location
	Registry      prometheus.Registerer
}

// SettableClock is a coarse clock the loop corrects after each resync.
type SettableClock interface {
	clock.CoarseClock
	Set(t time.Time)
}

// Deps are the collaborators the loop drives.
type Deps struct {
	Authority      timesource.Authority
	Coarse         SettableClock
	Mono           clock.Monotonic
	Display        display.Display
	Chime          chime.Player // optional
	ChimePrecision int
	Controls       *ui.Controls        // optional
	Status         func(ui.StatusMsg) // optional
}

type resyncResult struct {
	reading timesource.Reading
	err     error
}

// Clock is the running clock
type Clock struct {
	config  Config
	deps    Deps
	log     *zap.Logger
	metrics *clockMetrics
	tracker *sync.Tracker
	codec   dozenal.Codec

	// Owned by the loop goroutine.
	est         clock.Estimator
	precision   int
	lastDate    string
	lastDozenal string
	forceRedraw bool
	retry       bool
	resyncing   bool
	rollover    *chime.Rollover

	results chan resyncResult
	wg      gosync.WaitGroup
}

// New creates a clock loop
func New(config Config, deps Deps, log *zap.Logger) (*Clock, error) {
	if config.Precision < 0 || config.Precision > dozenal.MaxPrecision {
		return nil, &dozenal.PrecisionError{Precision: config.Precision}
	}
	if deps.Authority == nil || deps.Coarse == nil || deps.Mono == nil || deps.Display == nil {
		return nil, errors.New("app: authority, clocks and display are required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.ResyncAfter <= 0 {
		config.ResyncAfter = clock.DefaultResyncAfter
	}
	if config.ResyncTimeout <= 0 {
		config.ResyncTimeout = 10 * time.Second
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Clock{
		config:    config,
		deps:      deps,
		log:       log,
		metrics:   newClockMetrics(config.Registry),
		tracker:   sync.NewTracker(2 * config.ResyncAfter),
		codec:     dozenal.Codec{Glyphs: config.Glyphs, Location: config.Location},
		precision: config.Precision,
		results:   make(chan resyncResult, 1),
	}
	if deps.Chime != nil {
		c.rollover = chime.NewRollover(deps.ChimePrecision)
	}
	return c, nil
}

// Run calibrates, then ticks every PollInterval until ctx is cancelled
func (c *Clock) Run(ctx context.Context) error {
	c.Calibrate(ctx)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	var resyncReq <-chan struct{}
	var precisionReq <-chan int
	if c.deps.Controls != nil {
		resyncReq = c.deps.Controls.Resync
		precisionReq = c.deps.Controls.Precision
	}

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		case res := <-c.results:
			c.finishResync(res)
		case <-resyncReq:
			c.log.Info("resync requested")
			c.startResync(ctx)
		case p := <-precisionReq:
			if err := c.SetPrecision(p); err != nil {
				c.log.Warn("precision change rejected", zap.Error(err))
			}
		}
	}
}

// Calibrate shows the glyph test pattern, asks the authority for the time and
// anchors the estimator. It reports whether the authority answered. On failure
// the host clock is left as is and the next tick retries in the background.
func (c *Clock) Calibrate(ctx context.Context) bool {
	for ch, text := range lines.TestPattern {
		c.show(text, ch)
	}

	reading, err := c.readAuthority(ctx)
	ok := err == nil
	if ok {
		c.applyReading(reading)
		c.show(lines.Calibrated, display.ChannelDecimal)
	} else {
		c.recordFailure(err)
		for ch := range lines.TestPattern {
			c.show(lines.Placeholder, ch)
		}
	}

	if c.config.CalibrateHold > 0 {
		select {
		case <-time.After(c.config.CalibrateHold):
		case <-ctx.Done():
		}
	}

	c.est = clock.Initialize(c.deps.Coarse.Unix(), c.deps.Mono.Milliseconds(),
		clock.WithResyncAfter(c.config.ResyncAfter))
	c.retry = !ok
	c.forceRedraw = true
	return ok
}

// Tick runs one polling iteration
func (c *Clock) Tick(ctx context.Context) {
	second := c.deps.Coarse.Unix()
	mono := c.deps.Mono.Milliseconds()

	next, changed := c.est.Observe(second, mono)
	c.est = next

	full := c.forceRedraw
	c.forceRedraw = false
	if changed && second%FullRedrawEvery == 0 {
		full = true
	}

	wall := time.Unix(second, 0).In(c.config.Location)
	if changed || full {
		c.show(lines.Decimal(wall), display.ChannelDecimal)
		c.metrics.driftOffset.Set(float64(c.est.DriftOffsetMs()))
		c.reportDrift()
	}

	if date := lines.Date(wall); full || date != c.lastDate {
		c.lastDate = date
		c.show(date, display.ChannelDate)
	}

	dt, err := c.codec.Convert(c.est.Estimate(mono), c.precision)
	if err != nil {
		// precision is validated on every path that sets it
		c.log.Error("dozenal conversion failed", zap.Error(err))
		return
	}
	if text := lines.Dozenal(dt); full || text != c.lastDozenal {
		c.lastDozenal = text
		c.show(text, display.ChannelDozenal)
	}

	if c.rollover != nil && c.rollover.Observe(dt.Units) {
		c.ring(ctx)
	}

	if c.retry || c.est.NeedsResync(second) {
		c.startResync(ctx)
	}
}

// SetPrecision changes the number of fractional dozenal digits shown
func (c *Clock) SetPrecision(p int) error {
	if p < 0 || p > dozenal.MaxPrecision {
		return &dozenal.PrecisionError{Precision: p}
	}
	if p != c.precision {
		c.precision = p
		c.lastDozenal = ""
		c.log.Info("precision changed", zap.Int("precision", p))
	}
	return nil
}

// Precision returns the current dozenal precision
func (c *Clock) Precision() int { return c.precision }

// Estimator returns a copy of the current estimator state
func (c *Clock) Estimator() clock.Estimator { return c.est }

// Tracker returns the sync quality tracker
func (c *Clock) Tracker() *sync.Tracker { return c.tracker }

// startResync reads the authority in the background. At most one read is in
// flight; the result is applied by the loop goroutine.
func (c *Clock) startResync(ctx context.Context) {
	if c.resyncing {
		return
	}
	c.resyncing = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		reading, err := c.readAuthority(ctx)
		select {
		case c.results <- resyncResult{reading: reading, err: err}:
		case <-ctx.Done():
		}
	}()
}

// finishResync applies a background read. Failure keeps the old anchor and
// the next tick tries again.
func (c *Clock) finishResync(res resyncResult) {
	c.resyncing = false
	if res.err != nil {
		c.recordFailure(res.err)
		c.retry = true
		return
	}

	c.applyReading(res.reading)
	c.est = c.est.Reanchor(c.deps.Coarse.Unix(), c.deps.Mono.Milliseconds())
	c.retry = false
	c.forceRedraw = true
}

func (c *Clock) readAuthority(ctx context.Context) (timesource.Reading, error) {
	c.metrics.resyncAttempts.Inc()

	readCtx, cancel := context.WithTimeout(ctx, c.config.ResyncTimeout)
	defer cancel()

	reading, err := c.deps.Authority.Read(readCtx)
	if err != nil {
		return timesource.Reading{}, fmt.Errorf("resync via %s: %w", c.deps.Authority.Name(), err)
	}
	return reading, nil
}

// applyReading corrects the host clock and records the sync.
func (c *Clock) applyReading(r timesource.Reading) {
	before := c.deps.Coarse.Unix()
	c.deps.Coarse.Set(r.Time)
	shift := c.deps.Coarse.Unix() - before

	if _, _, _, failures := c.tracker.Stats(); failures > 0 {
		c.log.Info("time authority recovered", zap.Int("failures", failures))
	}
	c.tracker.Record(sync.Sample{Offset: r.Offset.Microseconds(), RTT: r.RTT.Microseconds()})
	c.metrics.hostOffset.Set(r.Offset.Seconds())

	c.log.Info("clock synchronized",
		zap.String("source", r.Source),
		zap.Duration("offset", r.Offset),
		zap.Duration("rtt", r.RTT),
		zap.Int64("shift_s", shift))
	c.reportSync(r.Source)
}

// recordFailure counts every failed read. Only the first failure of a streak
// and every failureReportEvery after it are warned about and reported.
func (c *Clock) recordFailure(err error) {
	c.metrics.resyncFailures.Inc()
	c.tracker.Fail()
	_, _, _, failures := c.tracker.Stats()

	if failures != 1 && failures%failureReportEvery != 0 {
		c.log.Debug("time authority still unavailable", zap.Int("failures", failures), zap.Error(err))
		return
	}
	c.log.Warn("time authority unavailable, keeping previous anchor",
		zap.Int("failures", failures), zap.Error(err))
	c.reportSync("")
}

func (c *Clock) ring(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.deps.Chime.Play(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("chime failed", zap.Error(err))
		}
	}()
}

func (c *Clock) show(text string, channel int) {
	if err := c.deps.Display.SetText(text, channel); err != nil {
		c.log.Warn("display update failed", zap.Int("channel", channel), zap.Error(err))
		return
	}
	c.metrics.redraws.WithLabelValues(lineNames[channel]).Inc()
}

func (c *Clock) reportSync(source string) {
	if c.deps.Status == nil {
		return
	}
	offset, rtt, _, failures := c.tracker.Stats()
	quality := c.tracker.CheckQuality()
	c.deps.Status(ui.StatusMsg{
		Source:      source,
		SyncQuality: &quality,
		SyncOffset:  offset,
		SyncRTT:     rtt,
		Failures:    failures,
		LastResync:  c.tracker.LastSync(),
	})
}

func (c *Clock) reportDrift() {
	if c.deps.Status == nil {
		return
	}
	drift := c.est.DriftOffsetMs()
	c.deps.Status(ui.StatusMsg{DriftMs: &drift})
}
