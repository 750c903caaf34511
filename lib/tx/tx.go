package tx

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ValentinKolb/bKV/lib/util"
)

// ErrInvalidTransaction is wrapped by every validation error
var ErrInvalidTransaction = errors.New("invalid transaction")

// --------------------------------------------------------------------------
// Action
// --------------------------------------------------------------------------

// Action is the kind of operation
type Action uint8

const (
	ActionRead Action = iota
	ActionDelete
	ActionWrite
	ActionExecute
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionDelete:
		return "delete"
	case ActionWrite:
		return "write"
	case ActionExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// ParseAction is the inverse of Action.String
func ParseAction(s string) (Action, error) {
	switch s {
	case "read":
		return ActionRead, nil
	case "delete":
		return ActionDelete, nil
	case "write":
		return ActionWrite, nil
	case "execute":
		return ActionExecute, nil
	default:
		return 0, fmt.Errorf("unknown action: %s", s)
	}
}

// MarshalJSON encodes the action as its name
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes an action name
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// hasValue reports whether operations of this action carry a value
func (a Action) hasValue() bool {
	return a == ActionWrite || a == ActionExecute
}

// --------------------------------------------------------------------------
// Operation and Transaction
// --------------------------------------------------------------------------

// Operation is a single step of a transaction
type Operation struct {
	Action Action `json:"action"`
	Key    string `json:"key"`
	Value  []byte `json:"value"`
}

// Transaction is an ordered list of operations
type Transaction []Operation

// Read creates a read-only transaction for the given keys
func Read(keys ...string) Transaction {
	t := make(Transaction, len(keys))
	for i, k := range keys {
		t[i] = Operation{Action: ActionRead, Key: k}
	}
	return t
}

// Write creates a transaction writing a single key
func Write(key string, value []byte) Transaction {
	return Transaction{{Action: ActionWrite, Key: key, Value: value}}
}

// Delete creates a transaction deleting the given keys
func Delete(keys ...string) Transaction {
	t := make(Transaction, len(keys))
	for i, k := range keys {
		t[i] = Operation{Action: ActionDelete, Key: k}
	}
	return t
}

// Execute creates a transaction that replaces the value of key with the result of code
func Execute(key string, code string) Transaction {
	return Transaction{{Action: ActionExecute, Key: key, Value: []byte(code)}}
}

// Validate checks the shape of a complete transaction and reports whether it is read-only
func (t Transaction) Validate() (readOnly bool, err error) {
	if err := t.validateKeys(); err != nil {
		return false, err
	}

	reads := 0
	for _, op := range t {
		switch op.Action {
		case ActionRead:
			reads++
			if op.Value != nil {
				return false, fmt.Errorf("%w: read of %q carries a value", ErrInvalidTransaction, op.Key)
			}
		case ActionWrite, ActionExecute:
			if op.Value == nil {
				return false, fmt.Errorf("%w: %s of %q without value", ErrInvalidTransaction, op.Action, op.Key)
			}
		case ActionDelete:
			if op.Value != nil {
				return false, fmt.Errorf("%w: delete of %q carries a value", ErrInvalidTransaction, op.Key)
			}
		default:
			return false, fmt.Errorf("%w: unknown action %d", ErrInvalidTransaction, op.Action)
		}
	}

	if reads != 0 && reads != len(t) {
		return false, fmt.Errorf("%w: read and write operations cannot be mixed", ErrInvalidTransaction)
	}
	return reads == len(t), nil
}

// ValidateMutationShape checks a mutating transaction whose values were stripped,
// as carried by a Write1 request
func (t Transaction) ValidateMutationShape() error {
	if err := t.validateKeys(); err != nil {
		return err
	}
	for _, op := range t {
		if op.Action != ActionWrite && op.Action != ActionDelete && op.Action != ActionExecute {
			return fmt.Errorf("%w: %s operation in a mutating transaction", ErrInvalidTransaction, op.Action)
		}
	}
	return nil
}

func (t Transaction) validateKeys() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty transaction", ErrInvalidTransaction)
	}
	seen := make(map[string]struct{}, len(t))
	for _, op := range t {
		if op.Key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidTransaction)
		}
		if _, ok := seen[op.Key]; ok {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidTransaction, op.Key)
		}
		seen[op.Key] = struct{}{}
	}
	return nil
}

// Keys returns the keys in operation order
func (t Transaction) Keys() []string {
	keys := make([]string, len(t))
	for i, op := range t {
		keys[i] = op.Key
	}
	return keys
}

// SortedKeys returns the keys in lexicographic order
func (t Transaction) SortedKeys() []string {
	keys := t.Keys()
	sort.Strings(keys)
	return keys
}

// WithoutValues returns a copy with all values removed
func (t Transaction) WithoutValues() Transaction {
	out := make(Transaction, len(t))
	for i, op := range t {
		out[i] = Operation{Action: op.Action, Key: op.Key}
	}
	return out
}

// Clone returns a deep copy
func (t Transaction) Clone() Transaction {
	out := make(Transaction, len(t))
	for i, op := range t {
		out[i] = op
		if op.Value != nil {
			out[i].Value = append([]byte{}, op.Value...)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

// Result is the outcome of one operation as returned to the caller.
// For mutations Value is nil and Available reports whether the key holds a value afterwards.
type Result struct {
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"`
	Available bool   `json:"available"`
}

// --------------------------------------------------------------------------
// Binary Encoding
// --------------------------------------------------------------------------

// AppendBinary appends the deterministic encoding of t to dst
func (t Transaction) AppendBinary(dst []byte) []byte {
	dst = util.AppendUvarint(dst, uint64(len(t)))
	for _, op := range t {
		dst = append(dst, byte(op.Action))
		dst = util.AppendString(dst, op.Key)
		dst = util.AppendOptBytes(dst, op.Value)
	}
	return dst
}

// ReadTransaction reads a transaction written by AppendBinary
func ReadTransaction(r *util.WireReader) Transaction {
	n := r.Count()
	if r.Err() != nil {
		return nil
	}
	t := make(Transaction, 0, n)
	for i := 0; i < n; i++ {
		op := Operation{
			Action: Action(r.Byte()),
			Key:    r.String(),
			Value:  r.OptBytes(),
		}
		if r.Err() != nil {
			return nil
		}
		t = append(t, op)
	}
	return t
}
