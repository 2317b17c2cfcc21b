// CoverLink - Linux I2C Bus
// Copyright (c) 2025 - Open Source Project

//go:build linux

package coverlink

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl selecting the target address.
const i2cSlave = 0x0703

// I2CDevice is one device on a Linux /dev/i2c-N bus.
type I2CDevice struct {
	file *os.File
	addr uint16
}

// OpenI2C opens /dev/i2c-<bus> and addresses addr.
func OpenI2C(bus int, addr uint16) (*I2CDevice, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, int(addr)); err != nil {
		f.Close()
		return nil, fmt.Errorf("select i2c address %#x on %s: %w", addr, path, err)
	}

	return &I2CDevice{file: f, addr: addr}, nil
}

// Write sends p as a single I2C write transaction.
func (d *I2CDevice) Write(p []byte) (int, error) {
	return d.file.Write(p)
}

// Close releases the bus.
func (d *I2CDevice) Close() error {
	return d.file.Close()
}
