// Package tx defines transactions, the unit of work submitted to a replica.
//
// A transaction is an ordered list of operations. It is either read-only (only READ
// operations) or mutating (any mix of WRITE, DELETE and EXECUTE). WRITE and EXECUTE carry
// a value (for EXECUTE the value is the code to run), DELETE and READ do not.
//
// The package also provides the deterministic binary encoding of a transaction, which
// the certificate engine hashes and the message serializer embeds.
package tx
