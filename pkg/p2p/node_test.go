package p2p

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/OccDeser/uniclip/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type datagram struct {
	data []byte
	addr *net.UDPAddr
}

// fakeTransport is an in-memory socket. Datagrams handed to deliver are
// returned by ReadFrom; writes are recorded unless the destination host
// has been marked as failing.
type fakeTransport struct {
	local *net.UDPAddr
	inbox chan datagram

	mu        sync.Mutex
	sent      []datagram
	failHosts map[string]bool

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport(local *net.UDPAddr) *fakeTransport {
	return &fakeTransport{
		local:     local,
		inbox:     make(chan datagram, 64),
		failHosts: make(map[string]bool),
		closed:    make(chan struct{}),
	}
}

func (f *fakeTransport) LocalAddr() *net.UDPAddr {
	return f.local
}

func (f *fakeTransport) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	select {
	case <-f.closed:
		return 0, nil, net.ErrClosed
	case d := <-f.inbox:
		return copy(buf, d.data), d.addr, nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil, nil
	}
}

func (f *fakeTransport) WriteTo(b []byte, addr *net.UDPAddr) error {
	select {
	case <-f.closed:
		return types.NewError(types.ErrCodeSendFailure, "closed", net.ErrClosed)
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failHosts[addr.IP.String()] {
		return types.NewError(types.ErrCodeSendFailure, "host unreachable", nil)
	}
	f.sent = append(f.sent, datagram{data: append([]byte(nil), b...), addr: addr})
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, pkt []byte, from string) {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp4", from)
	require.NoError(t, err)
	f.inbox <- datagram{data: pkt, addr: addr}
}

func (f *fakeTransport) fail(host string) {
	f.mu.Lock()
	f.failHosts[host] = true
	f.mu.Unlock()
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

// sentOf returns what was written with opcode op, in order
func (f *fakeTransport) sentOf(op types.Opcode) []datagram {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []datagram
	for _, d := range f.sent {
		if len(d.data) > 0 && types.Opcode(d.data[0]) == op {
			out = append(out, d)
		}
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	entries [][]byte
}

func (s *recordingSink) Append(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, data)
}

func (s *recordingSink) Entries() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.entries...)
}

func newTestNode(t *testing.T, listen string) (*Node, *fakeTransport, *recordingSink) {
	t.Helper()

	local := endpoint(t, listen)
	transport := newFakeTransport(local.UDPAddr())
	sink := &recordingSink{}

	config := &Config{
		ListenAddr:   listen,
		IdleInterval: time.Millisecond,
	}
	node, err := NewNode(config, sink,
		WithLogger(zaptest.NewLogger(t)),
		WithTransport(transport))
	require.NoError(t, err)

	return node, transport, sink
}

func startTestNode(t *testing.T, listen string) (*Node, *fakeTransport, *recordingSink) {
	t.Helper()

	node, transport, sink := newTestNode(t, listen)
	require.NoError(t, node.Start(context.Background()))
	t.Cleanup(func() { node.Stop() })

	transport.reset()
	return node, transport, sink
}

func TestNewNode(t *testing.T) {
	_, err := NewNode(&Config{ListenAddr: "10.0.0.1:1699"}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = NewNode(&Config{ListenAddr: "0.0.0.0:1699"}, &recordingSink{})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	config := &Config{ListenAddr: "/ip4/10.0.0.1/udp/1699"}
	node, err := NewNode(config, &recordingSink{}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:1699", node.LocalEndpoint().String())
	assert.Equal(t, DefaultReadTimeout, node.config.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, node.config.WriteTimeout)
	assert.Empty(t, node.GetPeers())

	// The caller's config is not modified
	assert.Equal(t, Config{ListenAddr: "/ip4/10.0.0.1/udp/1699"}, *config)
}

func TestNodeLifecycle(t *testing.T) {
	node, transport, _ := newTestNode(t, "10.0.0.1:1699")

	_, err := node.Broadcast(context.Background(), []byte("early"))
	assert.ErrorIs(t, err, types.ErrNotStarted)

	require.NoError(t, node.Start(context.Background()))
	assert.True(t, node.GetNodeInfo().Started)
	assert.ErrorIs(t, node.Start(context.Background()), types.ErrAlreadyStarted)

	require.NoError(t, node.Stop())
	assert.False(t, node.GetNodeInfo().Started)
	assert.NoError(t, node.Stop())

	select {
	case <-transport.closed:
	default:
		t.Fatal("transport was not closed")
	}

	assert.ErrorIs(t, node.Start(context.Background()), types.ErrAlreadyStarted)
	_, err = node.Broadcast(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, types.ErrNotStarted)
}

func TestNodeReceiveLoopStopsOnCancel(t *testing.T) {
	node, _, _ := newTestNode(t, "10.0.0.1:1699")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, node.Start(ctx))
	cancel()

	select {
	case <-node.done:
	case <-time.After(time.Second):
		t.Fatal("receive loop still running after cancel")
	}
	assert.NoError(t, node.Stop())
}

func TestNodeBroadcastEvictsFailedPeer(t *testing.T) {
	node, transport, _ := startTestNode(t, "10.0.0.1:1699")

	a := endpoint(t, "10.0.0.2:1699")
	b := endpoint(t, "10.0.0.3:1699")
	c := endpoint(t, "10.0.0.4:1699")
	node.Peers().Merge([]types.Endpoint{a, b, c})

	transport.fail("10.0.0.3")

	report, err := node.Broadcast(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, []types.Endpoint{b}, report.Evicted)
	assert.Equal(t, []types.Endpoint{a, c}, node.GetPeers())

	sent := transport.sentOf(types.OpData)
	require.Len(t, sent, 2)
	assert.Equal(t, a.UDPAddr().String(), sent[0].addr.String())
	assert.Equal(t, c.UDPAddr().String(), sent[1].addr.String())

	_, payload, err := DecodePacket(sent[0].data)
	require.NoError(t, err)
	data, err := DecodeData(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// The evicted peer is no longer a broadcast target
	transport.reset()
	report, err = node.Broadcast(context.Background(), []byte("again"))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Delivered)
	assert.Empty(t, report.Evicted)
	for _, d := range transport.sentOf(types.OpData) {
		assert.NotEqual(t, b.UDPAddr().String(), d.addr.String())
	}

	info := node.GetNodeInfo()
	assert.Equal(t, uint64(1), info.Traffic.Evicted)
	assert.Equal(t, 2, info.PeerCount)
}

func TestNodeBroadcastWithoutPeers(t *testing.T) {
	node, transport, _ := startTestNode(t, "10.0.0.1:1699")

	report, err := node.Broadcast(context.Background(), []byte("nobody listens"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
	assert.Empty(t, transport.sentOf(types.OpData))
}

func TestNodeBroadcastTooLarge(t *testing.T) {
	node, transport, _ := startTestNode(t, "10.0.0.1:1699")
	node.Peers().Upsert(endpoint(t, "10.0.0.2:1699"))

	_, err := node.Broadcast(context.Background(), make([]byte, MaxDataSize+1))
	assert.ErrorIs(t, err, types.ErrPayloadTooLarge)
	assert.Empty(t, transport.sentOf(types.OpData))

	report, err := node.Broadcast(context.Background(), make([]byte, MaxDataSize))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
}

func TestNodeDeliversData(t *testing.T) {
	node, transport, sink := startTestNode(t, "10.0.0.1:1699")
	node.Peers().Upsert(endpoint(t, "10.0.0.2:1699"))
	before := node.GetPeers()

	pkt, err := EncodePacket(types.OpData, EncodeData([]byte("hello")))
	require.NoError(t, err)
	transport.deliver(t, pkt, "10.0.0.9:1699")

	assert.Eventually(t, func() bool {
		return len(sink.Entries()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("hello"), sink.Entries()[0])

	// Receiving data never changes the peer table
	assert.Equal(t, before, node.GetPeers())
}

func TestNodeDropsBadDatagrams(t *testing.T) {
	node, transport, sink := startTestNode(t, "10.0.0.1:1699")

	corrupted := EncodeData([]byte("tampered"))
	corrupted[9] ^= 0x01
	badChecksum, err := EncodePacket(types.OpData, corrupted)
	require.NoError(t, err)

	truncatedPong, err := EncodePacket(types.OpPong, EncodePong([]types.Endpoint{{Host: 1, Port: 1}})[:10])
	require.NoError(t, err)

	good, err := EncodePacket(types.OpData, EncodeData([]byte("ok")))
	require.NoError(t, err)

	transport.deliver(t, []byte{0x02}, "10.0.0.2:1699")
	transport.deliver(t, append(EncodeHeader(types.OpData, 10), 1, 2, 3, 4, 5), "10.0.0.2:1699")
	transport.deliver(t, badChecksum, "10.0.0.2:1699")
	transport.deliver(t, truncatedPong, "10.0.0.2:1699")
	transport.deliver(t, EncodeHeader(types.Opcode(9), 0), "10.0.0.2:1699")
	transport.deliver(t, good, "10.0.0.2:1699")

	// The loop survives every bad datagram and still handles the good one
	assert.Eventually(t, func() bool {
		return len(sink.Entries()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]byte{[]byte("ok")}, sink.Entries())

	info := node.GetNodeInfo()
	assert.Equal(t, uint64(5), info.Traffic.Dropped)
	assert.Equal(t, uint64(6), info.Traffic.PacketsReceived)
	assert.Empty(t, node.GetPeers())
}

func TestDropReason(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{err: types.ErrMalformedHeader, reason: "malformed_header"},
		{err: types.NewError(types.ErrCodeChecksumMismatch, "crc", nil), reason: "checksum_mismatch"},
		{err: types.ErrMalformedPayload, reason: "malformed_payload"},
		{err: types.ErrUnknownOpcode, reason: "unknown_opcode"},
		{err: net.ErrClosed, reason: "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.reason, dropReason(tt.err))
	}
}
