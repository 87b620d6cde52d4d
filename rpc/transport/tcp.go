package transport

import "net"

// NewTCPTransport wraps conn as a Transport, applying TCP_NODELAY so small
// RPC frames (a ping-pong call is often under a kilobyte) aren't held back
// by Nagle's algorithm waiting on a delayed ACK, per spec §6.
func NewTCPTransport(conn *net.TCPConn, limits Limits) *StreamTransport {
	conn.SetNoDelay(true)
	return NewStreamTransport(conn, limits)
}

// DialTCP connects to addr and returns a ready Transport.
func DialTCP(addr string, limits Limits) (*StreamTransport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return NewStreamTransport(conn, limits), nil
	}
	return NewTCPTransport(tc, limits), nil
}
