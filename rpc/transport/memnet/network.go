package memnet

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/bKV/rpc/transport"
)

// queueSize is the number of datagrams a node buffers before dropping
const queueSize = 4096

// Action tells the network what to do with a datagram
type Action int

const (
	Deliver Action = iota
	Drop
	Duplicate
)

// Filter decides the fate of every datagram sent through the network
type Filter func(from, to string, data []byte) Action

type datagram struct {
	from string
	data []byte
}

// Network connects nodes in memory
type Network struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	offline map[string]bool
	filter  Filter

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{
		nodes:   map[string]*Node{},
		offline: map[string]bool{},
	}
}

// Node is one endpoint of the network
type Node struct {
	net     *Network
	id      string
	handler atomic.Pointer[transport.DatagramHandleFunc]
	queue   chan datagram
	done    chan struct{}
	once    sync.Once
}

// Add attaches a node. Every other node of the network is one of its peers.
func (n *Network) Add(id string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.nodes[id]; ok {
		panic(fmt.Sprintf("memnet: node %s already exists", id))
	}
	node := &Node{
		net:   n,
		id:    id,
		queue: make(chan datagram, queueSize),
		done:  make(chan struct{}),
	}
	n.nodes[id] = node
	go node.run()
	return node
}

// SetFilter replaces the filter, nil delivers everything
func (n *Network) SetFilter(f Filter) {
	n.mu.Lock()
	n.filter = f
	n.mu.Unlock()
}

// SetOffline makes a node unreachable (or reachable again). Datagrams from and to
// an offline node are dropped.
func (n *Network) SetOffline(id string, offline bool) {
	n.mu.Lock()
	n.offline[id] = offline
	n.mu.Unlock()
}

// Inject delivers data to node to as if it was sent by from, bypassing the filter
func (n *Network) Inject(from, to string, data []byte) {
	n.mu.RLock()
	node := n.nodes[to]
	n.mu.RUnlock()
	if node != nil {
		n.enqueue(node, from, data)
	}
}

// Stats returns the number of delivered and dropped datagrams
func (n *Network) Stats() (delivered, dropped int64) {
	return n.delivered.Load(), n.dropped.Load()
}

// Close stops all nodes
func (n *Network) Close() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, node := range n.nodes {
		node.Close()
	}
}

func (n *Network) send(from, to string, data []byte) error {
	n.mu.RLock()
	node, ok := n.nodes[to]
	filter := n.filter
	offline := n.offline[from] || n.offline[to]
	n.mu.RUnlock()

	if !ok {
		return fmt.Errorf("memnet: unknown peer %s", to)
	}
	if offline {
		n.dropped.Add(1)
		return nil
	}

	action := Deliver
	if filter != nil {
		action = filter(from, to, data)
	}
	switch action {
	case Drop:
		n.dropped.Add(1)
	case Duplicate:
		n.enqueue(node, from, data)
		n.enqueue(node, from, data)
	default:
		n.enqueue(node, from, data)
	}
	return nil
}

func (n *Network) enqueue(node *Node, from string, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case node.queue <- datagram{from: from, data: cp}:
		n.delivered.Add(1)
	default:
		n.dropped.Add(1)
	}
}

// --------------------------------------------------------------------------
// Node (implements transport.IDatagramTransport)
// --------------------------------------------------------------------------

// ID returns the id of the node
func (node *Node) ID() string {
	return node.id
}

func (node *Node) SetHandler(handler transport.DatagramHandleFunc) {
	node.handler.Store(&handler)
}

func (node *Node) Send(peerID string, data []byte) error {
	return node.net.send(node.id, peerID, data)
}

func (node *Node) PeerIDs() []string {
	node.net.mu.RLock()
	defer node.net.mu.RUnlock()

	ids := make([]string, 0, len(node.net.nodes))
	for id := range node.net.nodes {
		if id != node.id {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close stops delivering datagrams to the node
func (node *Node) Close() {
	node.once.Do(func() { close(node.done) })
}

func (node *Node) run() {
	for {
		select {
		case <-node.done:
			return
		case d := <-node.queue:
			if h := node.handler.Load(); h != nil {
				(*h)(d.from, d.data)
			}
		}
	}
}
