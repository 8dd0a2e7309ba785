package p2p

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/multiformats/go-multiaddr"
)

// connNotifier keeps Node.peers in step with the swarm. A chunk host
// sees signers dial in; a signer sees its one host.
type connNotifier struct {
	node *Node
}

func (cn *connNotifier) Connected(_ network.Network, conn network.Conn) {
	id := conn.RemotePeer()
	if id == cn.node.host.ID() {
		return
	}
	cn.node.addPeer(id, conn.Stat().Direction == network.DirInbound)
}

// Disconnected drops the peer once its last connection closes.
func (cn *connNotifier) Disconnected(nw network.Network, conn network.Conn) {
	id := conn.RemotePeer()
	if len(nw.ConnsToPeer(id)) > 0 {
		return
	}
	cn.node.removePeer(id)
	cn.node.logger.Debug().Str("peer", id.String()).Msg("Peer disconnected")
}

func (cn *connNotifier) Listen(network.Network, multiaddr.Multiaddr)      {}
func (cn *connNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}
