package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog/log"
)

const (
	meshProtocolID  = protocol.ID("/oasis/broadcast/1.0.0")
	meshDialTimeout = 10 * time.Second
	meshSendTimeout = 5 * time.Second
)

type meshFrame struct {
	Channel string `json:"channel"`
	Data    []byte `json:"data"`
}

// Mesh bridges a Local hub across processes over libp2p streams.
// Local publications are forwarded to every connected peer; frames from
// peers are delivered to all local endpoints and never forwarded again.
type Mesh struct {
	*Local
	host host.Host
}

// NewMesh starts a libp2p host listening on listen and dials peers.
// Peers that cannot be reached are logged and skipped.
func NewMesh(ctx context.Context, listen []string, peers []string) (*Mesh, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listen...))
	if err != nil {
		return nil, fmt.Errorf("libp2p host: %w", err)
	}
	m := &Mesh{Local: NewLocal(), host: h}
	m.Local.onPublish = m.forward
	h.SetStreamHandler(meshProtocolID, m.handleStream)
	log.Info().Str("peer_id", h.ID().String()).Strs("multiaddr", m.Addrs()).Msg("[p2p] broadcast mesh ready")

	for _, raw := range peers {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if err := m.Connect(ctx, raw); err != nil {
			log.Warn().Err(err).Str("peer", raw).Msg("[p2p] connect peer failed")
		}
	}
	return m, nil
}

// Addrs lists dialable multiaddrs including the peer id.
func (m *Mesh) Addrs() []string {
	raw := m.host.Addrs()
	addrs := make([]string, 0, len(raw))
	for _, addr := range raw {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", addr.String(), m.host.ID().String()))
	}
	sort.Strings(addrs)
	return addrs
}

// Connect dials a peer given as a /p2p/ multiaddr.
func (m *Mesh) Connect(ctx context.Context, addr string) error {
	info, err := parseAddrInfo(addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, meshDialTimeout)
	defer cancel()
	if err := m.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connect peer: %w", err)
	}
	log.Info().Str("peer_id", info.ID.String()).Msg("[p2p] peer connected")
	return nil
}

func (m *Mesh) forward(name string, payload []byte) {
	peers := m.host.Network().Peers()
	if len(peers) == 0 {
		return
	}
	frame, err := json.Marshal(meshFrame{Channel: name, Data: payload})
	if err != nil {
		return
	}
	for _, pid := range peers {
		go m.send(pid, frame)
	}
}

func (m *Mesh) send(pid peer.ID, frame []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), meshSendTimeout)
	defer cancel()
	stream, err := m.host.NewStream(ctx, pid, meshProtocolID)
	if err != nil {
		log.Debug().Err(err).Str("peer_id", pid.String()).Msg("[p2p] open stream")
		return
	}
	defer func() { _ = stream.Close() }()
	_ = stream.SetWriteDeadline(time.Now().Add(meshSendTimeout))
	if _, err := stream.Write(frame); err != nil {
		log.Debug().Err(err).Str("peer_id", pid.String()).Msg("[p2p] write frame")
	}
}

func (m *Mesh) handleStream(stream network.Stream) {
	defer func() { _ = stream.Close() }()
	var frame meshFrame
	if err := json.NewDecoder(stream).Decode(&frame); err != nil {
		log.Debug().Err(err).Msg("[p2p] decode frame")
		return
	}
	if frame.Channel == "" {
		return
	}
	m.Local.fanout(frame.Channel, nil, frame.Data)
}

// Close closes all endpoints and the libp2p host.
func (m *Mesh) Close() error {
	_ = m.Local.Close()
	return m.host.Close()
}

func parseAddrInfo(raw string) (*peer.AddrInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("multiaddr required")
	}
	ma, err := multiaddr.NewMultiaddr(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return nil, fmt.Errorf("addr info: %w", err)
	}
	return info, nil
}
