package udp

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/bKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("udp")

const (
	// DefaultPort is used for peer addresses without a port
	DefaultPort = 27918
	// maxDatagramSize is the largest UDP payload
	maxDatagramSize = 64 * 1024
)

var (
	ErrUnknownPeer  = errors.New("unknown peer")
	ErrNotListening = errors.New("udp transport is not listening")
)

// Peer is a remote peer and its configured address
type Peer struct {
	ID      string
	Address string
}

type peerEntry struct {
	id   string
	addr atomic.Pointer[net.UDPAddr]
}

// Transport is a UDP datagram transport
type Transport struct {
	peers   *xsync.MapOf[string, *peerEntry]
	handler atomic.Pointer[transport.DatagramHandleFunc]

	mu   sync.Mutex
	conn *net.UDPConn
	wg   sync.WaitGroup
}

// New creates a transport for the given peers. It does not bind a socket yet.
func New(peers []Peer) (*Transport, error) {
	t := &Transport{peers: xsync.NewMapOf[string, *peerEntry]()}
	for _, p := range peers {
		if err := t.AddPeer(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddPeer adds a peer or replaces the address of a known one
func (t *Transport) AddPeer(p Peer) error {
	if p.ID == "" {
		return fmt.Errorf("peer id must not be empty")
	}
	addr, err := resolve(p.Address)
	if err != nil {
		return fmt.Errorf("invalid address for peer %s: %w", p.ID, err)
	}
	entry, _ := t.peers.LoadOrCompute(p.ID, func() *peerEntry {
		return &peerEntry{id: p.ID}
	})
	entry.addr.Store(addr)
	return nil
}

// PeerAddress returns the address the peer is currently reached at
func (t *Transport) PeerAddress(peerID string) (*net.UDPAddr, bool) {
	entry, ok := t.peers.Load(peerID)
	if !ok {
		return nil, false
	}
	return entry.addr.Load(), true
}

func resolve(address string) (*net.UDPAddr, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, fmt.Sprint(DefaultPort))
	}
	return net.ResolveUDPAddr("udp", address)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IDatagramTransport)
// --------------------------------------------------------------------------

func (t *Transport) SetHandler(handler transport.DatagramHandleFunc) {
	t.handler.Store(&handler)
}

func (t *Transport) Send(peerID string, data []byte) error {
	entry, ok := t.peers.Load(peerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotListening
	}

	_, err := conn.WriteToUDP(data, entry.addr.Load())
	return err
}

func (t *Transport) PeerIDs() []string {
	ids := make([]string, 0, t.peers.Size())
	t.peers.Range(func(id string, _ *peerEntry) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids
}

// --------------------------------------------------------------------------
// Socket Lifecycle
// --------------------------------------------------------------------------

// Listen binds the socket and starts receiving. It fails if the transport
// (or another process) is already bound to the address.
func (t *Transport) Listen(bindAddr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("udp transport already bound to %s", t.conn.LocalAddr())
	}

	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return fmt.Errorf("invalid bind address %s: %w", bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind udp socket: %w", err)
	}
	t.conn = conn

	t.wg.Add(1)
	go t.readLoop(conn)

	Logger.Infof("bound to udp %s (%d peers)", conn.LocalAddr(), t.peers.Size())
	return nil
}

// LocalAddr returns the bound address or nil
func (t *Transport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Close closes the socket and waits for the receive loop to exit
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) readLoop(conn *net.UDPConn) {
	defer t.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Warningf("udp read failed: %v", err)
			continue
		}

		peerID, ok := t.match(src)
		if !ok {
			Logger.Debugf("dropped datagram from unknown source %s", src)
			continue
		}

		handler := t.handler.Load()
		if handler == nil {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		(*handler)(peerID, data)
	}
}

// match finds the peer a datagram came from and learns its source port
func (t *Transport) match(src *net.UDPAddr) (string, bool) {
	var exact, byIP *peerEntry
	ipMatches := 0

	t.peers.Range(func(_ string, entry *peerEntry) bool {
		addr := entry.addr.Load()
		if !addr.IP.Equal(src.IP) {
			return true
		}
		if addr.Port == src.Port {
			exact = entry
			return false
		}
		byIP = entry
		ipMatches++
		return true
	})

	if exact != nil {
		return exact.id, true
	}
	if ipMatches != 1 {
		return "", false
	}

	learned := &net.UDPAddr{IP: src.IP, Port: src.Port, Zone: src.Zone}
	old := byIP.addr.Swap(learned)
	Logger.Infof("learned port of peer %s: %s -> %s", byIP.id, old, learned)
	return byIP.id, true
}
