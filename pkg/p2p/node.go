package p2p

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/OccDeser/uniclip/internal/telemetry"
	"github.com/OccDeser/uniclip/pkg/types"
	"go.uber.org/zap"
)

// DefaultPort is the port every node of a group listens on
const DefaultPort = 1699

// Sink receives the payload of every verified DATA packet
type Sink interface {
	Append(data []byte)
}

// Config holds the node configuration
type Config struct {
	// ListenAddr is a multiaddr (/ip4/192.168.1.164/udp/1699) or host:port.
	// Every node of a group must use the same port.
	ListenAddr string `yaml:"listen_addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleInterval is how long the receive loop sleeps after an empty read
	IdleInterval time.Duration `yaml:"idle_interval"`
}

// DefaultConfig returns the protocol's standard timeouts
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   "/ip4/192.168.1.164/udp/1699",
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleInterval: 20 * time.Millisecond,
	}
}

// Option customizes a Node
type Option func(*Node)

// WithLogger sets the node's logger
func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithTransport makes Start use t instead of binding a UDP socket
func WithTransport(t Transport) Option {
	return func(n *Node) {
		n.transport = t
	}
}

// Node owns the socket, the peer table and the receive loop. It is created
// once and shared by pointer with every goroutine that needs it.
type Node struct {
	config *Config
	local  types.Endpoint
	peers  *PeerTable
	sink   Sink
	stats  *TrafficStats

	// Lifecycle, guarded by mu
	transport Transport
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.RWMutex

	logger *zap.Logger
}

// NewNode creates a node that will listen on config.ListenAddr and hand
// received clipboard payloads to sink
func NewNode(config *Config, sink Sink, opts ...Option) (*Node, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if sink == nil {
		return nil, types.NewError(types.ErrCodeConfig, "node needs a sink", nil)
	}

	local, err := types.ParseListenAddr(config.ListenAddr)
	if err != nil {
		return nil, err
	}

	// Defaults are filled in on a private copy; the caller's config is left as is
	cfg := *config
	config = &cfg
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = DefaultConfig().IdleInterval
	}

	n := &Node{
		config: config,
		local:  local,
		peers:  NewPeerTable(local),
		sink:   sink,
		stats:  &TrafficStats{},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger, _ = zap.NewProduction()
	}

	return n, nil
}

// Start binds the socket, launches the receive loop and sweeps the local
// subnet for peers. The loop runs until ctx is cancelled or Stop is called.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started || n.stopped {
		n.mu.Unlock()
		return types.ErrAlreadyStarted
	}

	if n.transport == nil {
		t, err := ListenUDP(n.local.UDPAddr(), n.config.ReadTimeout, n.config.WriteTimeout)
		if err != nil {
			n.mu.Unlock()
			return err
		}
		n.transport = t
	}

	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	n.started = true
	transport := n.transport
	n.mu.Unlock()

	go n.receiveLoop(loopCtx, transport)

	n.logger.Info("Node started",
		zap.Stringer("endpoint", n.local))

	if _, err := n.Discover(ctx); err != nil && !errors.Is(err, context.Canceled) {
		n.logger.Warn("Initial discovery sweep incomplete", zap.Error(err))
	}

	return nil
}

// Stop cancels the receive loop, closes the socket and waits for the loop
// to exit. A stopped node cannot be started again.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = false
	n.stopped = true
	n.cancel()
	err := n.transport.Close()
	done := n.done
	n.mu.Unlock()

	<-done

	n.logger.Info("Node stopped", zap.Stringer("endpoint", n.local))
	return err
}

// Broadcast sends data to every known peer. A peer whose send fails is
// removed from the table until it announces itself again. Failures are
// per-peer and never abort the fan-out.
func (n *Node) Broadcast(ctx context.Context, data []byte) (types.BroadcastReport, error) {
	transport, err := n.conn()
	if err != nil {
		return types.BroadcastReport{}, err
	}

	if len(data) > MaxDataSize {
		return types.BroadcastReport{}, types.NewError(types.ErrCodePayloadTooLarge,
			"clipboard payload does not fit one datagram", nil)
	}
	pkt, err := EncodePacket(types.OpData, EncodeData(data))
	if err != nil {
		return types.BroadcastReport{}, err
	}

	peers := n.peers.Snapshot()
	report := types.BroadcastReport{Attempted: len(peers)}

	for _, peer := range peers {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := n.send(transport, types.OpData, pkt, peer.UDPAddr()); err != nil {
			n.logger.Error("Broadcast send failed",
				zap.Stringer("peer", peer),
				zap.Error(err))

			if n.peers.Remove(peer.Host) > 0 {
				n.stats.recordEvicted()
				telemetry.PeerEvictions.Inc()
				telemetry.Peers.Set(float64(n.peers.Len()))
				report.Evicted = append(report.Evicted, peer)
				n.logger.Info("Removed peer",
					zap.Stringer("peer", peer),
					zap.Int("total_peers", n.peers.Len()))
			}
			continue
		}
		report.Delivered++
	}

	n.logger.Debug("Broadcast complete",
		zap.Int("bytes", len(data)),
		zap.Stringer("report", report))

	return report, nil
}

// GetPeers returns a snapshot of the peer table
func (n *Node) GetPeers() []types.Endpoint {
	return n.peers.Snapshot()
}

// Peers exposes the node's peer table
func (n *Node) Peers() *PeerTable {
	return n.peers
}

// LocalEndpoint returns the endpoint the node listens on
func (n *Node) LocalEndpoint() types.Endpoint {
	return n.local
}

// GetNodeInfo returns information about the node
func (n *Node) GetNodeInfo() types.NodeInfo {
	n.mu.RLock()
	started := n.started
	n.mu.RUnlock()

	return types.NodeInfo{
		Endpoint:  n.local,
		Started:   started,
		PeerCount: n.peers.Len(),
		Traffic:   n.stats.Summary(),
	}
}

// Internal methods

func (n *Node) conn() (Transport, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.started {
		return nil, types.ErrNotStarted
	}
	return n.transport, nil
}

func (n *Node) send(t Transport, op types.Opcode, pkt []byte, to *net.UDPAddr) error {
	if err := t.WriteTo(pkt, to); err != nil {
		telemetry.SendFailures.Inc()
		return err
	}
	n.stats.recordSent(len(pkt))
	telemetry.PacketsSent.WithLabelValues(op.String()).Inc()
	return nil
}

func (n *Node) receiveLoop(ctx context.Context, t Transport) {
	defer close(n.done)

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		size, src, err := t.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.logger.Error("Failed to read datagram", zap.Error(err))
			size, src = 0, nil
		}

		if src == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.config.IdleInterval):
			}
			continue
		}

		n.stats.recordReceived(size)
		if err := n.handlePacket(t, src, buf[:size]); err != nil {
			n.stats.recordDropped()
			telemetry.PacketsDropped.WithLabelValues(dropReason(err)).Inc()
			n.logger.Warn("Dropped datagram",
				zap.Stringer("from", src),
				zap.Int("bytes", size),
				zap.Error(err))
		}
	}
}

// handlePacket decodes one datagram and dispatches it by opcode. Any error
// it returns concerns this datagram only.
func (n *Node) handlePacket(t Transport, src *net.UDPAddr, pkt []byte) error {
	header, payload, err := DecodePacket(pkt)
	if err != nil {
		return err
	}

	switch header.Opcode {
	case types.OpPing:
		err = n.handlePing(t, src)
	case types.OpPong:
		err = n.handlePong(src, payload)
	case types.OpData:
		err = n.handleData(src, payload)
	default:
		return types.NewError(types.ErrCodeUnknownOpcode, header.Opcode.String(), nil)
	}
	if err != nil {
		return err
	}

	telemetry.PacketsReceived.WithLabelValues(header.Opcode.String()).Inc()
	return nil
}

func (n *Node) handleData(src *net.UDPAddr, payload []byte) error {
	data, err := DecodeData(payload)
	if err != nil {
		return err
	}

	n.logger.Debug("Data received",
		zap.Stringer("from", src),
		zap.Int("bytes", len(data)))

	n.sink.Append(data)
	return nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, types.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, types.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, types.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, types.ErrUnknownOpcode):
		return "unknown_opcode"
	default:
		return "other"
	}
}
