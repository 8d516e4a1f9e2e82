//go:build linux

package hci

import (
	"fmt"
	"io"
	"sync"
	"unsafe"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// ioc encodes a linux ioctl request number with a four byte argument.
func ioc(dir, nr uintptr) uintptr {
	return dir<<30 | ioctlSize<<16 | typHCI<<8 | nr
}

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

const (
	iocWrite = 1
	iocRead  = 2

	ioctlSize     = 4
	hciMaxDevices = 16
	typHCI        = 72 // 'H'

	// pollTimeout bounds how long Close waits for a blocked Read, in ms.
	pollTimeout = 50
)

var (
	hciUpDevice      = ioc(iocWrite, 201) // HCIDEVUP
	hciDownDevice    = ioc(iocWrite, 202) // HCIDEVDOWN
	hciGetDeviceList = ioc(iocRead, 210)  // HCIGETDEVLIST
)

type devListRequest struct {
	devNum     uint16
	devRequest [hciMaxDevices]struct {
		id  uint16
		opt uint32
	}
}

// Socket is a HCI User Channel. Each Read returns one packet.
type Socket struct {
	fd     int
	device int
	closed atomic.Bool
	rmu    sync.Mutex
	wmu    sync.Mutex
}

// NewSocket binds the HCI User Channel of device id, or of the first device
// that can be bound if id is -1. Binding requires CAP_NET_ADMIN.
func NewSocket(id int) (*Socket, error) {
	if id != -1 {
		return open(id)
	}
	ids, err := devices()
	if err != nil {
		return nil, err
	}
	var errs error
	for _, id := range ids {
		s, err := open(id)
		if err == nil {
			return s, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("hci%d: %w", id, err))
	}
	if errs == nil {
		return nil, fmt.Errorf("hci: no devices")
	}
	return nil, fmt.Errorf("hci: no device available: %w", errs)
}

// devices lists the ids known to the kernel.
func devices() ([]int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)
	req := devListRequest{devNum: hciMaxDevices}
	if err := ioctl(uintptr(fd), hciGetDeviceList, uintptr(unsafe.Pointer(&req))); err != nil {
		return nil, err
	}
	ids := make([]int, 0, req.devNum)
	for _, d := range req.devRequest[:req.devNum] {
		ids = append(ids, int(d.id))
	}
	return ids, nil
}

func open(id int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, err
	}
	if err := bind(fd, id); err != nil {
		unix.Close(fd)
		return nil, err
	}
	s := &Socket{fd: fd, device: id}
	s.discard()
	return s, nil
}

func bind(fd, id int) error {
	// cycling the device clears whatever a previous session left behind
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(id)); err != nil {
		return fmt.Errorf("down: %w", err)
	}
	if err := ioctl(uintptr(fd), hciUpDevice, uintptr(id)); err != nil {
		return fmt.Errorf("up: %w", err)
	}
	// the user channel is exclusive and only binds to a device that is down
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(id)); err != nil {
		return fmt.Errorf("down: %w", err)
	}
	sa := unix.SockaddrHCI{Dev: uint16(id), Channel: unix.HCI_CHANNEL_USER}
	if err := unix.Bind(fd, &sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	return nil
}

// discard drops a packet that is pending right after binding.
func (s *Socket) discard() {
	if ok, _ := s.wait(20); ok {
		b := make([]byte, 260)
		unix.Read(s.fd, b)
	}
}

// wait polls for input for up to ms milliseconds.
func (s *Socket) wait(ms int) (bool, error) {
	pfds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfds, ms)
	if err == unix.EINTR {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0 && pfds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
}

// Device returns the id of the bound device.
func (s *Socket) Device() int {
	return s.device
}

// Read blocks until a packet arrives or the socket is closed, in which case
// it returns io.EOF.
func (s *Socket) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	for {
		if s.closed.Load() {
			return 0, io.EOF
		}
		ok, err := s.wait(pollTimeout)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		n, err := unix.Read(s.fd, p)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if n == 0 && err == nil {
			return 0, io.EOF
		}
		return n, err
	}
}

func (s *Socket) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return unix.Write(s.fd, p)
}

// Close waits for a pending Read to return before releasing the device.
func (s *Socket) Close() error {
	if !s.closed.CAS(false, true) {
		return nil
	}
	s.rmu.Lock()
	defer s.rmu.Unlock()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return unix.Close(s.fd)
}
