// CoverLink - Display Devices
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
)

// Display is an output device for 1-bit frames.
type Display interface {
	Show(frame *image.Gray) error
	Hide() error
	Unhide() error
	SetContrast(level uint8) error
	Close() error
}

// FileDisplay writes every frame as a PNG, for development without a panel.
// Hidden displays render as black frames.
type FileDisplay struct {
	path   string
	rotate int

	mutex  sync.Mutex
	hidden bool
	frames uint64
	last   *image.Gray
}

// NewFileDisplay creates a display that renders to path.
func NewFileDisplay(path string, rotate int) *FileDisplay {
	return &FileDisplay{path: path, rotate: rotate}
}

// Show writes frame to the output file.
func (fd *FileDisplay) Show(frame *image.Gray) error {
	fd.mutex.Lock()
	defer fd.mutex.Unlock()

	fd.last = frame
	fd.frames++
	if fd.hidden {
		return nil
	}
	return fd.write(Rotate(frame, fd.rotate))
}

// Hide blanks the output.
func (fd *FileDisplay) Hide() error {
	fd.mutex.Lock()
	defer fd.mutex.Unlock()

	fd.hidden = true
	if fd.last == nil {
		return nil
	}
	b := fd.last.Bounds()
	return fd.write(Rotate(NewFrame(b.Dx(), b.Dy()), fd.rotate))
}

// Unhide restores the last frame.
func (fd *FileDisplay) Unhide() error {
	fd.mutex.Lock()
	defer fd.mutex.Unlock()

	fd.hidden = false
	if fd.last == nil {
		return nil
	}
	return fd.write(Rotate(fd.last, fd.rotate))
}

// SetContrast is a no-op for files.
func (fd *FileDisplay) SetContrast(level uint8) error { return nil }

// Close releases nothing.
func (fd *FileDisplay) Close() error { return nil }

// Frames returns how many frames were shown.
func (fd *FileDisplay) Frames() uint64 {
	fd.mutex.Lock()
	defer fd.mutex.Unlock()
	return fd.frames
}

// Hidden reports whether the display is blanked.
func (fd *FileDisplay) Hidden() bool {
	fd.mutex.Lock()
	defer fd.mutex.Unlock()
	return fd.hidden
}

// write replaces the file atomically so viewers never see a partial PNG.
func (fd *FileDisplay) write(img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(fd.path), ".coverlink-*.png")
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fd.path)
}
