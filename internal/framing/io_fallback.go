//go:build !unix

package framing

import "net"

// fallbackSocketIO implements socketIO for platforms without MSG_TRUNC
// support: rather than peeking a 4-byte header and then receiving exactly
// the declared length, it receives the whole datagram in one call into an
// oversized buffer and lets the caller validate the declared length
// against what actually arrived, per the documented truncation-policy
// fallback.
type fallbackSocketIO struct{}

func defaultSocketIO() socketIO {
	return fallbackSocketIO{}
}

func (fallbackSocketIO) supportsPeek() bool { return false }

func (fallbackSocketIO) peekHeader(*net.UDPConn, []byte) (*net.UDPAddr, error) {
	panic("framing: peekHeader not supported by fallbackSocketIO")
}

func (fallbackSocketIO) receiveExact(*net.UDPConn, []byte) (int, bool, error) {
	panic("framing: receiveExact not supported by fallbackSocketIO")
}

func (fallbackSocketIO) drain(*net.UDPConn) error {
	panic("framing: drain not supported by fallbackSocketIO")
}

func (fallbackSocketIO) receiveFull(conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	return n, addr, nil
}
