// Package transport adapts the node's shared UDP socket to the Sender
// interfaces the gossip and consensus engines depend on, keeping those
// packages free of net.Conn details. The peer datagram socket is shared
// for both send and receive: sends happen from any handler, receives
// only from the reactor.
package transport

import (
	"fmt"
	"net"

	"github.com/omnode/omnode/internal/wire"
)

// UDPSender sends wire envelopes over a shared *net.UDPConn. Safe to
// call from any handler running on the reactor goroutine; sends are
// best-effort — a failed send is logged and dropped, never retried
// inline.
type UDPSender struct {
	conn *net.UDPConn
}

// New wraps conn as a Sender.
func New(conn *net.UDPConn) *UDPSender {
	return &UDPSender{conn: conn}
}

// SendTo encodes env and writes it to host:port. Failures are returned
// for the caller to log; datagram loss beyond this point is tolerated by
// the protocol (messageID suppression for gossip, deadlines for
// consensus).
func (u *UDPSender) SendTo(host string, port int, env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("transport: resolve %s:%d: %w", host, port, err)
	}
	if _, err := u.conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}
