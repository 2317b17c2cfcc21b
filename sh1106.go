// CoverLink - SH1106 OLED Driver
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"fmt"
	"image"
	"io"
	"sync"
)

// SH1106 command set (subset).
const (
	sh1106DisplayOff       = 0xAE
	sh1106DisplayOn        = 0xAF
	sh1106SetContrast      = 0x81
	sh1106SegmentRemap     = 0xA1
	sh1106NormalDisplay    = 0xA6
	sh1106DisplayAllResume = 0xA4
	sh1106SetMultiplex     = 0xA8
	sh1106SetDisplayOffset = 0xD3
	sh1106SetClockDiv      = 0xD5
	sh1106SetPrecharge     = 0xD9
	sh1106SetComPins       = 0xDA
	sh1106SetVComDetect    = 0xDB
	sh1106SetStartLine     = 0x40
	sh1106ComScanDec       = 0xC8
	sh1106SetPageAddr      = 0xB0
	sh1106SetLowColumn     = 0x00
	sh1106SetHighColumn    = 0x10
	sh1106ChargePump       = 0xAD

	sh1106ControlCommand = 0x00
	sh1106ControlData    = 0x40

	// the controller RAM is 132 columns wide and 128-pixel panels sit at column 2
	sh1106ColumnOffset = 2
)

// SH1106 drives a 128x64 SH1106 panel over I2C. The bus is any writer that
// addresses the panel, one Write per I2C transaction.
type SH1106 struct {
	bus    io.WriteCloser
	width  int
	height int
	rotate int

	mutex sync.Mutex
	buf   []byte
}

// NewSH1106 initializes the panel and clears it.
func NewSH1106(bus io.WriteCloser, width, height, rotate int) (*SH1106, error) {
	if width <= 0 || height <= 0 || height%8 != 0 {
		return nil, fmt.Errorf("%w: sh1106 geometry %dx%d", ErrInvalidConfiguration, width, height)
	}

	d := &SH1106{
		bus:    bus,
		width:  width,
		height: height,
		rotate: rotate,
		buf:    make([]byte, 1+width),
	}

	if err := d.command(
		sh1106DisplayOff,
		sh1106SetClockDiv, 0x80,
		sh1106SetMultiplex, byte(height-1),
		sh1106SetDisplayOffset, 0x00,
		sh1106SetStartLine,
		sh1106ChargePump, 0x8B,
		sh1106SegmentRemap,
		sh1106ComScanDec,
		sh1106SetComPins, 0x12,
		sh1106SetContrast, 0x80,
		sh1106SetPrecharge, 0x22,
		sh1106SetVComDetect, 0x35,
		sh1106DisplayAllResume,
		sh1106NormalDisplay,
	); err != nil {
		return nil, fmt.Errorf("sh1106 init: %w", err)
	}

	if err := d.Show(NewFrame(width, height)); err != nil {
		return nil, err
	}
	if err := d.command(sh1106DisplayOn); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *SH1106) command(cmds ...byte) error {
	pkt := append([]byte{sh1106ControlCommand}, cmds...)
	_, err := d.bus.Write(pkt)
	return err
}

// PageData converts frame into SH1106 page order: byte x of page p holds the
// vertical strip of pixels (x, 8p..8p+7), least significant bit on top.
func PageData(frame *image.Gray, width, height int) [][]byte {
	pages := make([][]byte, height/8)
	b := frame.Bounds()
	for p := range pages {
		page := make([]byte, width)
		for x := 0; x < width && x < b.Dx(); x++ {
			var v byte
			for bit := 0; bit < 8; bit++ {
				y := p*8 + bit
				if y < b.Dy() && frame.GrayAt(b.Min.X+x, b.Min.Y+y).Y != 0 {
					v |= 1 << bit
				}
			}
			page[x] = v
		}
		pages[p] = page
	}
	return pages
}

// Show transfers a frame to display RAM.
func (d *SH1106) Show(frame *image.Gray) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	pages := PageData(Rotate(frame, d.rotate), d.width, d.height)
	for p, data := range pages {
		col := sh1106ColumnOffset
		if err := d.command(
			sh1106SetPageAddr|byte(p),
			sh1106SetLowColumn|byte(col&0x0F),
			sh1106SetHighColumn|byte(col>>4),
		); err != nil {
			return fmt.Errorf("sh1106 page %d: %w", p, err)
		}
		d.buf[0] = sh1106ControlData
		copy(d.buf[1:], data)
		if _, err := d.bus.Write(d.buf); err != nil {
			return fmt.Errorf("sh1106 page %d: %w", p, err)
		}
	}
	return nil
}

// Hide switches the panel off; RAM is kept.
func (d *SH1106) Hide() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.command(sh1106DisplayOff)
}

// Unhide switches the panel back on.
func (d *SH1106) Unhide() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.command(sh1106DisplayOn)
}

// SetContrast sets the panel brightness.
func (d *SH1106) SetContrast(level uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.command(sh1106SetContrast, level)
}

// Close switches the panel off and releases the bus.
func (d *SH1106) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	offErr := d.command(sh1106DisplayOff)
	if err := d.bus.Close(); err != nil {
		return err
	}
	return offErr
}
