//go:build unix

package framing

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// unixSocketIO implements socketIO using raw MSG_PEEK/MSG_TRUNC recvfrom
// via the connection's SyscallConn, the way the true framed-datagram
// receiver is specified: a non-destructive header peek followed by an
// exact-length receive once the declared length is known.
type unixSocketIO struct{}

func defaultSocketIO() socketIO {
	return unixSocketIO{}
}

func (unixSocketIO) supportsPeek() bool { return true }

func (unixSocketIO) peekHeader(conn *net.UDPConn, hdr []byte) (*net.UDPAddr, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("framing: syscall conn: %w", err)
	}

	var (
		addr    *net.UDPAddr
		readErr error
	)
	ctrlErr := raw.Read(func(fd uintptr) bool {
		n, from, err := unix.Recvfrom(int(fd), hdr, unix.MSG_PEEK|unix.MSG_TRUNC)
		if err == unix.EAGAIN {
			return false
		}
		if err != nil {
			readErr = err
			return true
		}
		if n < len(hdr) {
			readErr = fmt.Errorf("%w: got %d bytes", errShortPeek, n)
			return true
		}
		addr = sockaddrToUDPAddr(from)
		return true
	})
	if ctrlErr != nil {
		return nil, fmt.Errorf("framing: raw read: %w", ctrlErr)
	}
	if readErr != nil {
		return nil, readErr
	}
	return addr, nil
}

func (unixSocketIO) receiveExact(conn *net.UDPConn, buf []byte) (n int, truncated bool, err error) {
	raw, sysErr := conn.SyscallConn()
	if sysErr != nil {
		return 0, false, fmt.Errorf("framing: syscall conn: %w", sysErr)
	}

	var readErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		got, _, e := unix.Recvfrom(int(fd), buf, unix.MSG_TRUNC)
		if e == unix.EAGAIN {
			return false
		}
		if e != nil {
			readErr = e
			return true
		}
		n = got
		return true
	})
	if ctrlErr != nil {
		return 0, false, fmt.Errorf("framing: raw read: %w", ctrlErr)
	}
	if readErr != nil {
		return 0, false, readErr
	}
	return n, n > len(buf), nil
}

func (unixSocketIO) drain(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("framing: syscall conn: %w", err)
	}

	var readErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		var zero [0]byte
		_, _, e := unix.Recvfrom(int(fd), zero[:], unix.MSG_TRUNC)
		if e == unix.EAGAIN {
			return false
		}
		readErr = e
		return true
	})
	if ctrlErr != nil {
		return fmt.Errorf("framing: raw read: %w", ctrlErr)
	}
	return readErr
}

func (unixSocketIO) receiveFull(conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	return n, addr, nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, s.Addr[:])
		return &net.UDPAddr{IP: ip, Port: s.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, s.Addr[:])
		return &net.UDPAddr{IP: ip, Port: s.Port}
	default:
		return nil
	}
}
