package p2p

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/OccDeser/uniclip/pkg/types"
)

// Default socket timeouts
const (
	DefaultReadTimeout  = 50 * time.Millisecond
	DefaultWriteTimeout = time.Second
)

// Transport is the datagram socket a node sends and receives on.
//
// ReadFrom returns n == 0 with a nil source and nil error when no datagram
// arrived within the read timeout. WriteTo failures are the only signal the
// node uses to decide a peer is gone.
type Transport interface {
	LocalAddr() *net.UDPAddr
	ReadFrom(buf []byte) (int, *net.UDPAddr, error)
	WriteTo(b []byte, addr *net.UDPAddr) error
	Close() error
}

// UDPTransport is a single bound UDP socket shared by one receiver and any
// number of senders. The socket lock is held for exactly one I/O call.
type UDPTransport struct {
	conn         *net.UDPConn
	readTimeout  time.Duration
	writeTimeout time.Duration
	mu           sync.Mutex
}

// ListenUDP binds addr
func ListenUDP(addr *net.UDPAddr, readTimeout, writeTimeout time.Duration) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, types.NewError(types.ErrCodeBindFailure,
			fmt.Sprintf("binding %s", addr), err)
	}

	return &UDPTransport{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}, nil
}

func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *UDPTransport) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return 0, nil, err
	}

	n, src, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return n, src, nil
}

func (t *UDPTransport) WriteTo(b []byte, addr *net.UDPAddr) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return types.NewError(types.ErrCodeSendFailure, fmt.Sprintf("sending to %s", addr), err)
	}

	if _, err := t.conn.WriteToUDP(b, addr); err != nil {
		return types.NewError(types.ErrCodeSendFailure, fmt.Sprintf("sending to %s", addr), err)
	}
	return nil
}

// Close unblocks any pending read and releases the socket
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
