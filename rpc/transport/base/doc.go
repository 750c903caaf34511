// Package base implements the stream transport of the control API independent of the
// socket type. The tcp and unix packages plug in a connector for their socket type.
//
// Every message is one frame:
//
//	| requestID (8 bytes) | length (4 bytes) | payload (length bytes) |
//
// The client multiplexes concurrent requests over a pool of connections (round robin,
// optionally several connections per endpoint) and matches responses by request ID, so
// responses may arrive out of order. Failed requests are retried with exponential backoff,
// broken connections are re-established.
//
// The server starts a goroutine per connection and handles up to maxWorkersPerConn requests
// of a connection concurrently. Payload buffers come from a sync.Pool. Close stops the
// listener, closes all connections and waits for running handlers.
package base
