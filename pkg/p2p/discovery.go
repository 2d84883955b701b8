package p2p

import (
	"context"
	"net"

	"github.com/OccDeser/uniclip/internal/telemetry"
	"github.com/OccDeser/uniclip/pkg/types"
	"go.uber.org/zap"
)

// SweepTargets lists the endpoints a ping sweep probes: every host .1 to
// .254 of local's /24 on local's port, except local itself.
func SweepTargets(local types.Endpoint) []types.Endpoint {
	subnet := local.Host & 0xFFFFFF00
	self := local.Host & 0xFF

	targets := make([]types.Endpoint, 0, 253)
	for i := uint32(1); i < 255; i++ {
		if i == self {
			continue
		}
		targets = append(targets, types.Endpoint{Host: subnet | i, Port: local.Port})
	}
	return targets
}

// Discover unicasts a PING to every address of the local /24 and returns
// how many were sent. Replies arrive asynchronously through the receive
// loop. Individual send errors are expected (unused addresses) and ignored.
func (n *Node) Discover(ctx context.Context) (int, error) {
	transport, err := n.conn()
	if err != nil {
		return 0, err
	}

	ping := EncodeHeader(types.OpPing, 0)
	targets := SweepTargets(n.local)

	n.logger.Info("Sweeping subnet for peers",
		zap.String("subnet", types.Endpoint{Host: n.local.Host & 0xFFFFFF00}.IP().String()+"/24"),
		zap.Uint16("port", n.local.Port))

	sent := 0
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		if err := n.send(transport, types.OpPing, ping, target.UDPAddr()); err != nil {
			n.logger.Debug("Ping failed",
				zap.Stringer("target", target),
				zap.Error(err))
			continue
		}
		sent++
	}

	return sent, nil
}

// handlePing answers with our peer list plus ourselves, then records the
// sender on the group's fixed port.
func (n *Node) handlePing(t Transport, src *net.UDPAddr) error {
	from, err := types.EndpointFromUDPAddr(src)
	if err != nil {
		return types.NewError(types.ErrCodeMalformedPayload, "ping from non-IPv4 source", err)
	}

	n.logger.Debug("Ping received", zap.Stringer("from", src))

	peers := append(n.peers.Snapshot(), n.local)
	pong, err := EncodePacket(types.OpPong, EncodePong(peers))
	if err != nil {
		return err
	}

	if err := n.send(t, types.OpPong, pong, src); err != nil {
		n.logger.Warn("Failed to answer ping",
			zap.Stringer("to", src),
			zap.Error(err))
	}

	peer := types.Endpoint{Host: from.Host, Port: n.local.Port}
	if n.peers.Upsert(peer) {
		telemetry.Peers.Set(float64(n.peers.Len()))
		n.logger.Info("Discovered new peer",
			zap.Stringer("peer", peer),
			zap.Int("total_peers", n.peers.Len()))
	}

	return nil
}

// handlePong merges the responder's view of the group into ours
func (n *Node) handlePong(src *net.UDPAddr, payload []byte) error {
	reported, err := DecodePong(payload)
	if err != nil {
		return err
	}

	n.logger.Debug("Pong received",
		zap.Stringer("from", src),
		zap.Int("reported", len(reported)))

	added := n.peers.Merge(reported)
	if len(added) == 0 {
		return nil
	}

	telemetry.Peers.Set(float64(n.peers.Len()))
	for _, peer := range added {
		n.logger.Info("Discovered new peer",
			zap.Stringer("peer", peer),
			zap.Stringer("via", src),
			zap.Int("total_peers", n.peers.Len()))
	}

	return nil
}
