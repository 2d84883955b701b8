package types

import (
	"fmt"
	"net"
	"strconv"

	"github.com/multiformats/go-multiaddr"
)

// ParseListenAddr resolves a listen address into the local endpoint.
// Both multiaddrs (/ip4/192.168.1.164/udp/1699) and host:port strings are
// accepted. The host must be a concrete IPv4 address and the port non-zero,
// since every node sweeps its /24 on the same fixed port.
func ParseListenAddr(addr string) (Endpoint, error) {
	var (
		host string
		port string
	)

	if len(addr) > 0 && addr[0] == '/' {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return Endpoint{}, NewError(ErrCodeConfig, "parsing listen multiaddr", err)
		}
		if host, err = maddr.ValueForProtocol(multiaddr.P_IP4); err != nil {
			return Endpoint{}, NewError(ErrCodeConfig, "listen multiaddr needs an /ip4 component", err)
		}
		if port, err = maddr.ValueForProtocol(multiaddr.P_UDP); err != nil {
			return Endpoint{}, NewError(ErrCodeConfig, "listen multiaddr needs a /udp component", err)
		}
	} else {
		var err error
		if host, port, err = net.SplitHostPort(addr); err != nil {
			return Endpoint{}, NewError(ErrCodeConfig, "parsing listen address", err)
		}
	}

	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return Endpoint{}, NewError(ErrCodeConfig, fmt.Sprintf("listen host %q is not an IPv4 address", host), nil)
	}
	if ip.IsUnspecified() {
		return Endpoint{}, NewError(ErrCodeConfig, "listen host must be a concrete address, not 0.0.0.0", nil)
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return Endpoint{}, NewError(ErrCodeConfig, fmt.Sprintf("invalid listen port %q", port), err)
	}

	return NewEndpoint(ip, uint16(p))
}
