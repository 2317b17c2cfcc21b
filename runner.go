// CoverLink - Render Loop
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"context"
	"image"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
)

// coverPollInterval is the cover mode tick; the screen only changes on new metadata.
const coverPollInterval = 100 * time.Millisecond

// RunnerStats holds render loop counters.
type RunnerStats struct {
	Frames    uint64    `json:"frames"`
	Errors    uint64    `json:"errors"`
	Hidden    bool      `json:"hidden"`
	LastFrame time.Time `json:"last_frame"`
	LastError string    `json:"last_error,omitempty"`
	Mode      string    `json:"mode"`
	Revision  uint64    `json:"revision"`
}

// Runner drives a Display from the now-playing state.
type Runner struct {
	config   DisplayConfig
	display  Display
	state    *NowPlaying
	renderer *Renderer
	logger   *zap.Logger

	marquee   *Marquee
	starfield *Starfield
	now       func() time.Time

	// cover mode bookkeeping
	drawn      bool
	lastCover  *image.Gray
	lastArtist string
	lastTitle  string

	statsMutex sync.RWMutex
	stats      RunnerStats
}

// NewRunner creates a render loop. Fonts are loaded from config.FontPath.
func NewRunner(config DisplayConfig, display Display, state *NowPlaying, logger *zap.Logger) *Runner {
	renderer := NewRenderer(config)
	titleFace := LoadFaceOrDefault(config.FontPath, config.FontSize)
	return newRunner(config, display, state, renderer, titleFace, rand.New(rand.NewSource(time.Now().UnixNano())), logger)
}

func newRunner(config DisplayConfig, display Display, state *NowPlaying, renderer *Renderer, titleFace font.Face, rng *rand.Rand, logger *zap.Logger) *Runner {
	return &Runner{
		config:    config,
		display:   display,
		state:     state,
		renderer:  renderer,
		logger:    logger.With(zap.String("component", "display")),
		marquee:   NewMarquee(renderer.Width, titleFace, config.ScrollSpeed, config.ScrollDelay),
		starfield: NewStarfield(renderer.Width, renderer.Height, config.Stars, config.StarDepth, rng),
		now:       time.Now,
		stats:     RunnerStats{Mode: config.Mode},
	}
}

// Interval returns the tick period for the configured mode.
func (r *Runner) Interval() time.Duration {
	if r.config.Mode == DisplayModeStarfield && r.config.FPS > 0 {
		return time.Second / time.Duration(r.config.FPS)
	}
	return coverPollInterval
}

// Run renders until ctx is cancelled. Frame errors are logged and counted,
// the loop keeps going.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.display.SetContrast(r.config.Contrast); err != nil {
		r.logger.Warn("Failed to set contrast", zap.Error(err))
	}

	r.logger.Info("Render loop started",
		zap.String("mode", r.config.Mode),
		zap.Duration("interval", r.Interval()))

	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()

	for {
		if err := r.Step(); err != nil {
			r.recordError(err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Render loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Step renders one tick.
func (r *Runner) Step() error {
	if r.config.Mode == DisplayModeStarfield {
		return r.stepStarfield()
	}
	return r.stepCover()
}

func (r *Runner) stepCover() error {
	timedOut := r.state.IsTimedOut(r.config.Timeout)
	hidden := r.Hidden()

	switch {
	case timedOut && !hidden:
		if err := r.display.Hide(); err != nil {
			return err
		}
		r.setHidden(true)
		r.logger.Info("Display turned off", zap.Duration("timeout", r.config.Timeout))
		return nil
	case !timedOut && hidden:
		if err := r.display.Unhide(); err != nil {
			return err
		}
		r.setHidden(false)
		r.logger.Info("Display turned on")
	case hidden:
		return nil
	}

	snap := r.state.Snapshot()
	if r.drawn && snap.Cover == r.lastCover && snap.Artist == r.lastArtist && snap.Title == r.lastTitle {
		return nil
	}

	var frame *image.Gray
	if snap.Cover != nil {
		frame = r.renderer.CoverLayout(snap.Cover, snap.Artist, snap.Title)
	} else {
		frame = r.renderer.WaitingScreen()
	}
	if err := r.display.Show(frame); err != nil {
		return err
	}

	r.drawn = true
	r.lastCover, r.lastArtist, r.lastTitle = snap.Cover, snap.Artist, snap.Title
	r.recordFrame(snap.Revision)
	return nil
}

func (r *Runner) stepStarfield() error {
	snap := r.state.Snapshot()
	now := r.now()
	frame := NewFrame(r.renderer.Width, r.renderer.Height)

	if title := snap.DisplayTitle(); title != "" {
		r.marquee.SetTitle(title, now)
		r.marquee.Update(now)
		r.starfield.SetViewport(0, r.config.TitleBarHeight, r.renderer.Width, r.renderer.Height-r.config.TitleBarHeight)
		r.marquee.Draw(frame, 0)
		Threshold(frame)
	} else {
		r.starfield.SetViewport(0, 0, r.renderer.Width, r.renderer.Height)
	}
	r.starfield.UpdateAndDraw(frame)

	if err := r.display.Show(frame); err != nil {
		return err
	}
	r.recordFrame(snap.Revision)
	return nil
}

// Hidden reports whether the loop has blanked the display.
func (r *Runner) Hidden() bool {
	r.statsMutex.RLock()
	defer r.statsMutex.RUnlock()
	return r.stats.Hidden
}

// GetStats returns a copy of the loop counters.
func (r *Runner) GetStats() RunnerStats {
	r.statsMutex.RLock()
	defer r.statsMutex.RUnlock()
	return r.stats
}

func (r *Runner) setHidden(hidden bool) {
	r.statsMutex.Lock()
	r.stats.Hidden = hidden
	r.statsMutex.Unlock()
}

func (r *Runner) recordFrame(revision uint64) {
	r.statsMutex.Lock()
	r.stats.Frames++
	r.stats.LastFrame = r.now()
	r.stats.Revision = revision
	r.statsMutex.Unlock()
}

func (r *Runner) recordError(err error) {
	r.statsMutex.Lock()
	r.stats.Errors++
	r.stats.LastError = err.Error()
	r.statsMutex.Unlock()
	r.logger.Error("Frame failed", zap.Error(err))
}
