package p2p

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/OccDeser/uniclip/pkg/types"
	"github.com/snksoft/crc"
)

// Wire layout, little-endian throughout:
//
//	header  opcode u8 | length u16
//	DATA    len u64 | data[len] | crc u16
//	PONG    count u64 | count x (host u32 | port u16)
//	PING    empty
const (
	HeaderSize = 3

	// MaxDatagramSize is the largest UDP payload an IPv4 socket can carry
	MaxDatagramSize = 65507

	// MaxDataSize is the largest clipboard payload that fits one DATA packet
	MaxDataSize = MaxDatagramSize - HeaderSize - dataOverhead

	dataOverhead = 8 + 2
	endpointSize = 4 + 2
)

var x25 = crc.NewTable(crc.X25)

// Checksum computes CRC-16/X-25 (IBM-SDLC) over data
func Checksum(data []byte) uint16 {
	return uint16(x25.CalculateCRC(data))
}

// Header is the fixed prefix of every datagram
type Header struct {
	Opcode types.Opcode
	Length uint16
}

// EncodeHeader serializes a packet header
func EncodeHeader(op types.Opcode, length uint16) []byte {
	b := make([]byte, HeaderSize)
	b[0] = byte(op)
	binary.LittleEndian.PutUint16(b[1:], length)
	return b
}

// DecodeHeader reads the header from the first three bytes of b
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, types.NewError(types.ErrCodeMalformedHeader,
			fmt.Sprintf("need %d header bytes, got %d", HeaderSize, len(b)), nil)
	}
	return Header{
		Opcode: types.Opcode(b[0]),
		Length: binary.LittleEndian.Uint16(b[1:HeaderSize]),
	}, nil
}

// EncodePacket frames payload behind a header
func EncodePacket(op types.Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxDatagramSize-HeaderSize {
		return nil, types.NewError(types.ErrCodePayloadTooLarge,
			fmt.Sprintf("%d byte payload does not fit one datagram", len(payload)), nil)
	}
	pkt := make([]byte, 0, HeaderSize+len(payload))
	pkt = append(pkt, EncodeHeader(op, uint16(len(payload)))...)
	return append(pkt, payload...), nil
}

// DecodePacket splits a datagram into header and payload. The declared
// length must match the bytes actually received.
func DecodePacket(pkt []byte) (Header, []byte, error) {
	header, err := DecodeHeader(pkt)
	if err != nil {
		return Header{}, nil, err
	}

	payload := pkt[HeaderSize:]
	if int(header.Length) != len(payload) {
		return header, nil, types.NewError(types.ErrCodeMalformedHeader,
			fmt.Sprintf("header declares %d payload bytes, datagram carries %d", header.Length, len(payload)), nil)
	}

	return header, payload, nil
}

// EncodeData serializes a DATA payload with its checksum
func EncodeData(data []byte) []byte {
	b := make([]byte, 8, 8+len(data)+2)
	binary.LittleEndian.PutUint64(b, uint64(len(data)))
	b = append(b, data...)
	return binary.LittleEndian.AppendUint16(b, Checksum(data))
}

// DecodeData verifies a DATA payload and returns a copy of its contents.
// Any payload whose structure or checksum does not add up is reported as
// a checksum mismatch.
func DecodeData(b []byte) ([]byte, error) {
	if len(b) < dataOverhead {
		return nil, types.NewError(types.ErrCodeChecksumMismatch,
			fmt.Sprintf("data payload truncated to %d bytes", len(b)), nil)
	}

	n := binary.LittleEndian.Uint64(b)
	if n != uint64(len(b)-dataOverhead) {
		return nil, types.NewError(types.ErrCodeChecksumMismatch,
			fmt.Sprintf("data length %d inconsistent with %d byte payload", n, len(b)), nil)
	}

	data := b[8 : 8+n]
	want := binary.LittleEndian.Uint16(b[8+n:])
	if got := Checksum(data); got != want {
		return nil, types.NewError(types.ErrCodeChecksumMismatch,
			fmt.Sprintf("crc %#04x, expected %#04x", got, want), nil)
	}

	return append([]byte(nil), data...), nil
}

// EncodePong serializes a peer list
func EncodePong(peers []types.Endpoint) []byte {
	b := make([]byte, 8, 8+len(peers)*endpointSize)
	binary.LittleEndian.PutUint64(b, uint64(len(peers)))
	for _, p := range peers {
		b = binary.LittleEndian.AppendUint32(b, p.Host)
		b = binary.LittleEndian.AppendUint16(b, p.Port)
	}
	return b
}

// DecodePong parses a peer list. PONG carries no checksum.
func DecodePong(b []byte) ([]types.Endpoint, error) {
	if len(b) < 8 {
		return nil, types.NewError(types.ErrCodeMalformedPayload,
			fmt.Sprintf("pong payload truncated to %d bytes", len(b)), nil)
	}

	count := binary.LittleEndian.Uint64(b)
	body := b[8:]
	if count > uint64(len(body)/endpointSize) {
		return nil, types.NewError(types.ErrCodeMalformedPayload,
			fmt.Sprintf("pong declares %d peers in %d bytes", count, len(body)), nil)
	}

	peers := make([]types.Endpoint, 0, count)
	for i := uint64(0); i < count; i++ {
		off := i * endpointSize
		peers = append(peers, types.Endpoint{
			Host: binary.LittleEndian.Uint32(body[off:]),
			Port: binary.LittleEndian.Uint16(body[off+4:]),
		})
	}
	return peers, nil
}

// TrafficStats tracks what went over the socket
type TrafficStats struct {
	packetsReceived uint64
	packetsSent     uint64
	bytesReceived   uint64
	bytesSent       uint64
	dropped         uint64
	evicted         uint64
	lastActivity    time.Time
	mu              sync.RWMutex
}

func (s *TrafficStats) recordReceived(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetsReceived++
	s.bytesReceived += uint64(bytes)
	s.lastActivity = time.Now()
}

func (s *TrafficStats) recordSent(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetsSent++
	s.bytesSent += uint64(bytes)
	s.lastActivity = time.Now()
}

func (s *TrafficStats) recordDropped() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func (s *TrafficStats) recordEvicted() {
	s.mu.Lock()
	s.evicted++
	s.mu.Unlock()
}

// Summary returns a copy of the counters
func (s *TrafficStats) Summary() types.TrafficSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.TrafficSummary{
		PacketsReceived: s.packetsReceived,
		PacketsSent:     s.packetsSent,
		BytesReceived:   s.bytesReceived,
		BytesSent:       s.bytesSent,
		Dropped:         s.dropped,
		Evicted:         s.evicted,
		LastActivity:    s.lastActivity,
	}
}
