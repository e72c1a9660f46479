package udp

import (
	"net"
	"time"

	"github.com/radsecproxy/udpcore/internal/client"
)

// Request is one received datagram handed to the external dispatcher,
// carrying everything needed to route a reply back to the same peer
// through the same socket.
type Request struct {
	Payload   []byte
	Client    *client.Client
	Socket    *net.UDPConn
	CreatedAt time.Time
}

// Dispatcher processes a received request. It is the one piece of RADIUS
// semantic logic this core delegates entirely: request validation,
// attribute processing, and proxying policy all live on the other side of
// this interface.
type Dispatcher interface {
	Dispatch(req *Request) error
}

// ReplyHandler processes a reply read from an upstream server.
type ReplyHandler interface {
	HandleReply(serverName string, serverAddr *net.UDPAddr, payload []byte) error
}
