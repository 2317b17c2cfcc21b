// CoverLink - I2C Bus (unsupported platforms)
// Copyright (c) 2025 - Open Source Project

//go:build !linux

package coverlink

import (
	"errors"
	"runtime"
)

// I2CDevice is unavailable outside Linux.
type I2CDevice struct{}

// OpenI2C always fails outside Linux; use the png display device instead.
func OpenI2C(bus int, addr uint16) (*I2CDevice, error) {
	return nil, errors.New("i2c is not supported on " + runtime.GOOS)
}

func (d *I2CDevice) Write(p []byte) (int, error) { return 0, errors.New("i2c unavailable") }

func (d *I2CDevice) Close() error { return nil }
