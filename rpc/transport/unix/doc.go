// Package unix serves and connects to the control API of a peer over Unix domain sockets,
// the usual choice when the host process runs on the same machine as its peer.
//
// Only the socket specific connectors live here, see the base package for framing, pooling
// and retries. The default server buffer size is 64 KB.
package unix
