package coverlink

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeDisplay struct {
	mutex    sync.Mutex
	frames   []*image.Gray
	hides    int
	unhides  int
	contrast uint8
	showErr  error
	closed   bool
}

func (d *fakeDisplay) Show(frame *image.Gray) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.showErr != nil {
		return d.showErr
	}
	d.frames = append(d.frames, frame)
	return nil
}

func (d *fakeDisplay) Hide() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.hides++
	return nil
}

func (d *fakeDisplay) Unhide() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.unhides++
	return nil
}

func (d *fakeDisplay) SetContrast(level uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.contrast = level
	return nil
}

func (d *fakeDisplay) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDisplay) FrameCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.frames)
}

func testDisplayConfig(mode string) DisplayConfig {
	config := DefaultConfig().Display
	config.Mode = mode
	config.FontPath = ""
	return config
}

func newTestRunner(t *testing.T, mode string) (*Runner, *fakeDisplay, *fakeBroker, *fakeClock) {
	t.Helper()
	np, broker, clock := newTestNowPlaying(t)
	display := &fakeDisplay{}
	r := newRunner(testDisplayConfig(mode), display, np, testRenderer(), testFace, rand.New(rand.NewSource(1)), zap.NewNop())
	r.now = clock.Now
	return r, display, broker, clock
}

func TestRunner_CoverModeWithShallowStars(t *testing.T) {
	np, _, _ := newTestNowPlaying(t)
	config := testDisplayConfig(DisplayModeCover)
	config.StarDepth = 1
	config.Stars = -1

	var r *Runner
	require.NotPanics(t, func() {
		r = newRunner(config, &fakeDisplay{}, np, testRenderer(), testFace, rand.New(rand.NewSource(1)), zap.NewNop())
	})
	assert.NoError(t, r.Step())
}

func TestRunner_CoverModeRedrawsOnlyOnChange(t *testing.T) {
	r, display, broker, _ := newTestRunner(t, DisplayModeCover)

	require.NoError(t, r.Step())
	require.Equal(t, 1, display.FrameCount(), "waiting screen")
	assert.Positive(t, litIn(display.frames[0], image.Rect(10, 27, 128, 40)))

	require.NoError(t, r.Step())
	assert.Equal(t, 1, display.FrameCount(), "nothing changed")

	broker.Deliver(testBase+"/cover", encodePNG(t, solid(64, 64, color.White)))
	require.NoError(t, r.Step())
	require.Equal(t, 2, display.FrameCount())
	assert.Equal(t, 48*48, litIn(display.frames[1], image.Rect(0, 8, 48, 56)))

	broker.Deliver(testBase+"/play_start", []byte("--"))
	require.NoError(t, r.Step())
	assert.Equal(t, 2, display.FrameCount(), "activity alone does not redraw")

	broker.Deliver(testBase+"/title", []byte("Song"))
	require.NoError(t, r.Step())
	assert.Equal(t, 3, display.FrameCount())
	assert.Equal(t, uint64(3), r.GetStats().Frames)
}

func TestRunner_CoverModeTimeout(t *testing.T) {
	r, display, broker, clock := newTestRunner(t, DisplayModeCover)
	require.NoError(t, r.Step())

	clock.Advance(5*time.Minute + time.Second)
	require.NoError(t, r.Step())
	assert.True(t, r.Hidden())
	assert.Equal(t, 1, display.hides)

	broker.Deliver(testBase+"/title", []byte("Song"))
	require.NoError(t, r.Step())
	assert.Equal(t, 1, display.FrameCount(), "no drawing while hidden")
	assert.Equal(t, 1, display.hides, "hidden only once")

	broker.Deliver(testBase+"/play_resume", []byte("--"))
	require.NoError(t, r.Step())
	assert.False(t, r.Hidden())
	assert.Equal(t, 1, display.unhides)
	assert.Equal(t, 2, display.FrameCount(), "title change drawn after waking")
}

func TestRunner_StarfieldMode(t *testing.T) {
	r, display, broker, _ := newTestRunner(t, DisplayModeStarfield)

	require.NoError(t, r.Step())
	assert.Equal(t, image.Rect(0, 0, 128, 64), r.starfield.Viewport())

	broker.Deliver(testBase+"/title", []byte("Hi"))
	require.NoError(t, r.Step())
	assert.Equal(t, image.Rect(0, 15, 128, 64), r.starfield.Viewport())
	assert.Equal(t, "- Hi -", r.marquee.DisplayText())
	assert.Positive(t, litIn(display.frames[1], image.Rect(0, 0, 128, 15)))

	require.NoError(t, r.Step())
	assert.Equal(t, 3, display.FrameCount(), "starfield redraws every tick")
}

func TestRunner_Interval(t *testing.T) {
	r, _, _, _ := newTestRunner(t, DisplayModeStarfield)
	assert.Equal(t, time.Second/30, r.Interval())

	r.config.Mode = DisplayModeCover
	assert.Equal(t, coverPollInterval, r.Interval())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, display, _, _ := newTestRunner(t, DisplayModeStarfield)
	display.showErr = errors.New("bus gone")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return r.GetStats().Errors >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("render loop did not stop")
	}
	assert.Equal(t, "bus gone", r.GetStats().LastError)
	assert.Equal(t, uint8(255), display.contrast)
}

// fakeBus records every I2C write.
type fakeBus struct {
	writes [][]byte
	fail   error
	closed bool
}

func (b *fakeBus) Write(p []byte) (int, error) {
	if b.fail != nil {
		return 0, b.fail
	}
	b.writes = append(b.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func TestPageData(t *testing.T) {
	frame := NewFrame(4, 16)
	frame.SetGray(0, 0, white)
	frame.SetGray(0, 7, white)
	frame.SetGray(3, 9, white)

	pages := PageData(frame, 4, 16)

	want := [][]byte{
		{0x81, 0, 0, 0},
		{0, 0, 0, 0x02},
	}
	if diff := cmp.Diff(want, pages); diff != "" {
		t.Errorf("page data mismatch (-want +got):\n%s", diff)
	}
}

func TestSH1106_InitAndShow(t *testing.T) {
	bus := &fakeBus{}

	d, err := NewSH1106(bus, 128, 64, 0)
	require.NoError(t, err)

	// init commands, 8 pages of (address, data), display on
	require.Len(t, bus.writes, 1+8*2+1)
	assert.Equal(t, byte(sh1106ControlCommand), bus.writes[0][0])
	assert.Equal(t, byte(sh1106DisplayOff), bus.writes[0][1])
	assert.Equal(t, []byte{sh1106ControlCommand, sh1106DisplayOn}, bus.writes[len(bus.writes)-1])

	bus.writes = nil
	frame := NewFrame(128, 64)
	frame.SetGray(0, 8, white)
	require.NoError(t, d.Show(frame))

	require.Len(t, bus.writes, 16)
	assert.Equal(t, []byte{0x00, 0xB1, 0x02, 0x10}, bus.writes[2], "page 1 at column 2")
	data := bus.writes[3]
	require.Len(t, data, 129)
	assert.Equal(t, byte(sh1106ControlData), data[0])
	assert.Equal(t, byte(0x01), data[1])
}

func TestSH1106_RotatedFrame(t *testing.T) {
	bus := &fakeBus{}
	d, err := NewSH1106(bus, 128, 64, 2)
	require.NoError(t, err)

	bus.writes = nil
	frame := NewFrame(128, 64)
	frame.SetGray(0, 0, white)
	require.NoError(t, d.Show(frame))

	last := bus.writes[15]
	assert.Equal(t, byte(0x80), last[128], "top-left pixel lands bottom-right")
}

func TestSH1106_ControlCommands(t *testing.T) {
	bus := &fakeBus{}
	d, err := NewSH1106(bus, 128, 64, 0)
	require.NoError(t, err)
	bus.writes = nil

	require.NoError(t, d.SetContrast(200))
	require.NoError(t, d.Hide())
	require.NoError(t, d.Unhide())
	require.NoError(t, d.Close())

	assert.Equal(t, [][]byte{
		{0x00, sh1106SetContrast, 200},
		{0x00, sh1106DisplayOff},
		{0x00, sh1106DisplayOn},
		{0x00, sh1106DisplayOff},
	}, bus.writes)
	assert.True(t, bus.closed)
}

func TestSH1106_Errors(t *testing.T) {
	_, err := NewSH1106(&fakeBus{}, 128, 60, 0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewSH1106(&fakeBus{fail: errors.New("nack")}, 128, 64, 0)
	assert.ErrorContains(t, err, "nack")
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestFileDisplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	d := NewFileDisplay(path, 0)

	frame := NewFrame(128, 64)
	frame.SetGray(5, 5, white)
	require.NoError(t, d.Show(frame))

	img := readPNG(t, path)
	assert.Equal(t, image.Rect(0, 0, 128, 64), img.Bounds())
	r, _, _, _ := img.At(5, 5).RGBA()
	assert.NotZero(t, r)

	require.NoError(t, d.Hide())
	assert.True(t, d.Hidden())
	r, _, _, _ = readPNG(t, path).At(5, 5).RGBA()
	assert.Zero(t, r, "hidden frames are black")

	require.NoError(t, d.Unhide())
	r, _, _, _ = readPNG(t, path).At(5, 5).RGBA()
	assert.NotZero(t, r)
	assert.Equal(t, uint64(1), d.Frames())
}
