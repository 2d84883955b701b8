package types

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Endpoint is an IPv4 host and UDP port pair. Hosts are kept in host byte
// order so that subnet arithmetic is plain integer math.
type Endpoint struct {
	Host uint32
	Port uint16
}

// NewEndpoint builds an endpoint from an IPv4 address
func NewEndpoint(ip net.IP, port uint16) (Endpoint, error) {
	v4 := ip.To4()
	if v4 == nil {
		return Endpoint{}, fmt.Errorf("not an IPv4 address: %s", ip)
	}
	return Endpoint{Host: binary.BigEndian.Uint32(v4), Port: port}, nil
}

// EndpointFromUDPAddr converts a socket address into an endpoint
func EndpointFromUDPAddr(addr *net.UDPAddr) (Endpoint, error) {
	if addr == nil {
		return Endpoint{}, fmt.Errorf("nil address")
	}
	return NewEndpoint(addr.IP, uint16(addr.Port))
}

// IP returns the host as a net.IP
func (e Endpoint) IP() net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, e.Host)
	return ip
}

// UDPAddr returns the endpoint as a dialable socket address
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP(), Port: int(e.Port)}
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP(), e.Port)
}

// MarshalJSON renders the host as a dotted quad
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Host string `json:"host"`
		Port uint16 `json:"port"`
	}{
		Host: e.IP().String(),
		Port: e.Port,
	})
}

// Opcode identifies the kind of a datagram
type Opcode uint8

const (
	OpPing Opcode = iota
	OpPong
	OpData
)

func (o Opcode) String() string {
	switch o {
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	case OpData:
		return "data"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// NodeInfo describes the local node
type NodeInfo struct {
	Endpoint  Endpoint       `json:"endpoint"`
	Started   bool           `json:"started"`
	PeerCount int            `json:"peer_count"`
	Traffic   TrafficSummary `json:"traffic"`
}

// TrafficSummary is a point-in-time copy of the node's traffic counters
type TrafficSummary struct {
	PacketsReceived uint64    `json:"packets_received"`
	PacketsSent     uint64    `json:"packets_sent"`
	BytesReceived   uint64    `json:"bytes_received"`
	BytesSent       uint64    `json:"bytes_sent"`
	Dropped         uint64    `json:"dropped"`
	Evicted         uint64    `json:"evicted"`
	LastActivity    time.Time `json:"last_activity"`
}

// BroadcastReport summarizes one fan-out of a DATA packet
type BroadcastReport struct {
	Attempted int        `json:"attempted"`
	Delivered int        `json:"delivered"`
	Evicted   []Endpoint `json:"evicted"`
}

func (r BroadcastReport) String() string {
	return fmt.Sprintf("Broadcast(delivered=%d/%d, evicted=%d)",
		r.Delivered, r.Attempted, len(r.Evicted))
}
