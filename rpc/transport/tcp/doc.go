// Package tcp serves and connects to the control API of a peer over TCP. It only provides
// the socket specific connectors, framing, pooling and retries live in the base package.
//
// The server applies the socket options of common.ServerTransportConfig (no delay, keep
// alive, linger and buffer sizes) to every accepted connection. The default server buffer
// size is 512 KB.
package tcp
