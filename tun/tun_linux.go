// SPDX-License-Identifier: MIT

// Package tun provides the Linux TUN device backend for a network
// interface: raw IPv4 packets in, raw IPv4 packets out.
package tun

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	cloneDevicePath = "/dev/net/tun"
	ifReqSize       = unix.IFNAMSIZ + 64
)

// Device is an open TUN device.
type Device struct {
	file   *os.File
	name   string
	mtu    int
	mu     sync.RWMutex
	closed bool
}

// Config describes the device to create.
type Config struct {
	Name string // device name, e.g. "netstack0"
	MTU  int    // defaults to 1500
	IP   string // local address assigned to the device
	Peer string // peer address for the point-to-point link
}

// Open creates and brings up a TUN device.
func Open(config Config) (*Device, error) {
	if config.MTU == 0 {
		config.MTU = 1500
	}

	nfd, err := unix.Open(cloneDevicePath, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("tun: open %q: %s does not exist", config.Name, cloneDevicePath)
		}
		return nil, err
	}

	var ifr [ifReqSize]byte
	var flags uint16 = unix.IFF_TUN | unix.IFF_NO_PI
	copy(ifr[:], config.Name)
	*(*uint16)(unsafe.Pointer(&ifr[unix.IFNAMSIZ])) = flags

	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		uintptr(nfd),
		uintptr(unix.TUNSETIFF),
		uintptr(unsafe.Pointer(&ifr[0])),
	)
	if errno != 0 {
		unix.Close(nfd)
		return nil, fmt.Errorf("tun: create device: %v", errno)
	}

	file := os.NewFile(uintptr(nfd), cloneDevicePath)
	deviceName := string(ifr[:unix.IFNAMSIZ])
	for i, c := range deviceName {
		if c == 0 {
			deviceName = deviceName[:i]
			break
		}
	}

	d := &Device{file: file, name: deviceName, mtu: config.MTU}

	if err := d.setUp(); err != nil {
		d.Close()
		return nil, fmt.Errorf("tun: bring up: %w", err)
	}
	if err := d.setMTU(config.MTU); err != nil {
		d.Close()
		return nil, fmt.Errorf("tun: set mtu: %w", err)
	}
	if config.IP != "" && config.Peer != "" {
		if err := d.setAddresses(config.IP, config.Peer); err != nil {
			d.Close()
			return nil, fmt.Errorf("tun: set addresses: %w", err)
		}
	}
	return d, nil
}

// Name returns the device name as assigned by the kernel.
func (d *Device) Name() string {
	return d.name
}

// MTU returns the configured MTU.
func (d *Device) MTU() int {
	return d.mtu
}

// Read reads one packet from the device.
func (d *Device) Read(buf []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, os.ErrClosed
	}
	return d.file.Read(buf)
}

// Write writes one packet to the device.
func (d *Device) Write(buf []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, os.ErrClosed
	}
	return d.file.Write(buf)
}

// Close shuts the device down.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}

func (d *Device) setUp() error {
	return execCmd("ip", "link", "set", "dev", d.name, "up")
}

func (d *Device) setMTU(mtu int) error {
	return execCmd("ip", "link", "set", "dev", d.name, "mtu", fmt.Sprintf("%d", mtu))
}

func (d *Device) setAddresses(local, peer string) error {
	return execCmd("ip", "addr", "add", local, "peer", peer, "dev", d.name)
}

func execCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s %v failed: %w, output: %s", name, args, err, string(output))
	}
	return nil
}
