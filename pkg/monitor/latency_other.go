//go:build !linux

package monitor

import (
	"errors"
	"net"
	"time"
)

func roundTrip(*net.TCPConn) (time.Duration, error) {
	return 0, errors.New("monitor: round trip time not available")
}
