package memory

import (
	"sync"

	"github.com/meetsync/meetsync/internal/domain/models"
)

// PeerRepository tracks the gateway-side peer connection of every
// participant currently negotiating or exchanging media.
type PeerRepository interface {
	Add(peer *models.Peer)
	Get(roomID, identity string) (*models.Peer, bool)
	Remove(roomID, identity string)

	// List returns the room's peers except the named identity; the
	// set a new publication has to be forwarded to.
	List(roomID, exceptIdentity string) []*models.Peer
}

type peerRepository struct {
	peers map[string]map[string]*models.Peer
	mu    sync.RWMutex
}

func NewPeerRepository() PeerRepository {
	return &peerRepository{
		peers: make(map[string]map[string]*models.Peer),
	}
}

func (p *peerRepository) Add(peer *models.Peer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.peers[peer.RoomID]; !ok {
		p.peers[peer.RoomID] = make(map[string]*models.Peer)
	}

	p.peers[peer.RoomID][peer.Identity] = peer
}

func (p *peerRepository) Get(roomID, identity string) (*models.Peer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	peer, ok := p.peers[roomID][identity]

	return peer, ok
}

func (p *peerRepository) Remove(roomID, identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.peers[roomID], identity)

	if len(p.peers[roomID]) == 0 {
		delete(p.peers, roomID)
	}
}

func (p *peerRepository) List(roomID, exceptIdentity string) []*models.Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()

	room := p.peers[roomID]

	peers := make([]*models.Peer, 0, len(room))
	for identity, peer := range room {
		if identity == exceptIdentity {
			continue
		}

		peers = append(peers, peer)
	}

	return peers
}
