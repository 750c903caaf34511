// Package cmd implements the command-line interface of bKV. It provides
// a hierarchical command structure for running a peer and for talking to
// a running peer through its control API.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures a bKV peer
//   - tx: Submits transactions (get, set, del, exec, perf) and runs the
//     integrity check and round trip statistics of a peer
//   - keys: Generates ed25519 peer identities
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See bkv -help for a list of all commands.
package cmd
