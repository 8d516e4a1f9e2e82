//go:build !linux

package hci

import "errors"

var errUnsupported = errors.New("hci: user channel sockets require linux")

// Socket is only available on linux.
type Socket struct{}

func NewSocket(id int) (*Socket, error) {
	return nil, errUnsupported
}

func (s *Socket) Device() int {
	return -1
}

func (s *Socket) Read(p []byte) (int, error) {
	return 0, errUnsupported
}

func (s *Socket) Write(p []byte) (int, error) {
	return 0, errUnsupported
}

func (s *Socket) Close() error {
	return nil
}
