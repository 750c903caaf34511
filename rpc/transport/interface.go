package transport

import (
	"github.com/ValentinKolb/bKV/rpc/common"
)

// --------------------------------------------------------------------------
// Datagram Transport
// --------------------------------------------------------------------------

// DatagramHandleFunc is called for every datagram received from a known peer.
// The data slice is owned by the callee.
type DatagramHandleFunc func(peerID string, data []byte)

// IDatagramTransport is the unreliable, unordered message channel between peers
type IDatagramTransport interface {
	// SetHandler sets the callback for inbound datagrams. It must be called before
	// the transport starts receiving.
	SetHandler(handler DatagramHandleFunc)
	// Send fires a single datagram to the peer. There is no acknowledgement.
	Send(peerID string, data []byte) error
	// PeerIDs returns the ids of all configured peers (never the local peer)
	PeerIDs() []string
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// and returns the response
type ServerHandleFunc func(req []byte) (resp []byte)

// IRPCServerTransport is the stream transport serving the control API of a peer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler called for every request
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and listens for incoming requests.
	// It blocks until the transport is closed.
	Listen(config common.ServerConfig) error
	// Close stops listening and closes all open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
