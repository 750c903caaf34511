package store

import (
	"fmt"
	"iter"

	"github.com/ValentinKolb/bKV/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface of the local replica store.
// Callers lock the keys they touch before calling Get or Set and unlock them afterwards,
// also on error.
type IStore interface {
	lockmgr.IKeyLocker

	// Get returns a copy of the object stored for key. The boolean reports whether it exists.
	Get(key string) (obj *StoredObject, found bool, err error)
	// Set stores obj for key, replacing any previous object.
	Set(key string, obj *StoredObject) (err error)
	// Keys iterates over all stored keys. The sequence is finite and may or may not reflect
	// writes made during the iteration. An error ends the iteration.
	Keys() iter.Seq2[string, error]
	// Close releases the resources of the store
	Close() (err error)
}

// Factory creates a store, used by the server to select the backend
type Factory func() (IStore, error)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCInvalidOperation:
		errorCode = "InvalidOperation"
	case RetCCorruptRecord:
		errorCode = "CorruptRecord"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("StoreError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation.
	RetCCorruptRecord                   // 3: A stored record could not be decoded.
)
