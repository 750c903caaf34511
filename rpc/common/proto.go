package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/tx"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. The same structure is carried
// between peers (inside a transfer) and between the control client and a peer.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Replication fields
	Transaction      tx.Transaction        `json:"transaction,omitempty"`      // Used for: Read, Write1 (no values), Write2, ExecTx requests
	Results          []store.ReadResult    `json:"results,omitempty"`          // Used for: Read response
	SubEpoch         uint16                `json:"subEpoch,omitempty"`         // Used for: Write1 request
	TransactionHash  []byte                `json:"transactionHash,omitempty"`  // Used for: Write1 request, Write2 response
	MultiGrant       *cert.MultiGrant      `json:"multiGrant,omitempty"`       // Used for: Write1 response
	WriteCertificate cert.WriteCertificate `json:"writeCertificate,omitempty"` // Used for: Write2 request

	// Echo fields, unix milliseconds
	ReqTime int64 `json:"reqTime,omitempty"` // Used for: Echo request and response
	ResTime int64 `json:"resTime,omitempty"` // Used for: Echo response

	// Control fields
	TxResults []tx.Result    `json:"txResults,omitempty"` // Used for: ExecTx response
	Integrity []KeyIntegrity `json:"integrity,omitempty"` // Used for: IntegrityCheck response
	PeerStats []PeerStats    `json:"peerStats,omitempty"` // Used for: PeerStats response

	// Err is empty if no error occurred, otherwise it contains the error message
	Err string `json:"err,omitempty"`
}

// KeyIntegrity is the outcome of the integrity check for one key.
// Segments holds the size of every group of matching results (local result included),
// LocalSegment is the index of the group containing the local result and Unreachable
// counts the peers that did not answer.
type KeyIntegrity struct {
	Key          string `json:"key"`
	Segments     []int  `json:"segments"`
	LocalSegment int    `json:"localSegment"`
	Unreachable  int    `json:"unreachable"`
}

// Consistent reports whether every answering peer agrees with the local result
func (k *KeyIntegrity) Consistent() bool {
	return len(k.Segments) == 1 && k.Unreachable == 0
}

// PeerStats summarizes the round trip times measured to one peer, in milliseconds
type PeerStats struct {
	PeerID    string  `json:"peerId"`
	Reachable bool    `json:"reachable"`
	LastRTT   int64   `json:"lastRtt"`
	MeanRTT   float64 `json:"meanRtt"`
	P95RTT    float64 `json:"p95Rtt"`
	Samples   int64   `json:"samples"`
	Failures  int64   `json:"failures"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewReadRequest creates a new Read request
func NewReadRequest(t tx.Transaction) *Message {
	return &Message{
		MsgType:     MsgTRead,
		Transaction: t,
	}
}

// NewReadResponse creates a new Read response
func NewReadResponse(results []store.ReadResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTRead,
		Results: results,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewWrite1Request creates a new Write1 request. The values of the transaction are not sent.
func NewWrite1Request(t tx.Transaction, subEpoch uint16, txHash []byte) *Message {
	return &Message{
		MsgType:         MsgTWrite1,
		Transaction:     t.WithoutValues(),
		SubEpoch:        subEpoch,
		TransactionHash: txHash,
	}
}

// NewWrite1Response creates a new Write1 response carrying a grant
func NewWrite1Response(mg cert.MultiGrant) *Message {
	return &Message{
		MsgType:    MsgTWrite1,
		MultiGrant: &mg,
	}
}

// NewWrite1RefusedResponse creates a new Write1 refusal
func NewWrite1RefusedResponse(err error) *Message {
	return &Message{
		MsgType: MsgTWrite1Refused,
		Err:     err.Error(),
	}
}

// NewWrite2Request creates a new Write2 request
func NewWrite2Request(wc cert.WriteCertificate, t tx.Transaction) *Message {
	return &Message{
		MsgType:          MsgTWrite2,
		WriteCertificate: wc,
		Transaction:      t,
	}
}

// NewWrite2Response creates a new Write2 response carrying the committed transaction hash
func NewWrite2Response(txHash []byte) *Message {
	return &Message{
		MsgType:         MsgTWrite2,
		TransactionHash: txHash,
	}
}

// NewWrite2RefusedResponse creates a new Write2 refusal
func NewWrite2RefusedResponse(err error) *Message {
	return &Message{
		MsgType: MsgTWrite2Refused,
		Err:     err.Error(),
	}
}

// NewEchoRequest creates a new Echo request
func NewEchoRequest(reqTime int64) *Message {
	return &Message{
		MsgType: MsgTEcho,
		ReqTime: reqTime,
	}
}

// NewEchoResponse creates a new Echo response
func NewEchoResponse(reqTime, resTime int64) *Message {
	return &Message{
		MsgType: MsgTEcho,
		ReqTime: reqTime,
		ResTime: resTime,
	}
}

// NewExecTxRequest creates a new request to execute a transaction on a peer
func NewExecTxRequest(t tx.Transaction) *Message {
	return &Message{
		MsgType:     MsgTExecTx,
		Transaction: t,
	}
}

// NewExecTxResponse creates a new ExecTx response
func NewExecTxResponse(results []tx.Result, err error) *Message {
	msg := &Message{
		MsgType:   MsgTExecTx,
		TxResults: results,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewIntegrityCheckRequest creates a new IntegrityCheck request
func NewIntegrityCheckRequest() *Message {
	return &Message{
		MsgType: MsgTIntegrityCheck,
	}
}

// NewIntegrityCheckResponse creates a new IntegrityCheck response
func NewIntegrityCheckResponse(integrity []KeyIntegrity, err error) *Message {
	msg := &Message{
		MsgType:   MsgTIntegrityCheck,
		Integrity: integrity,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPeerStatsRequest creates a new PeerStats request
func NewPeerStatsRequest() *Message {
	return &Message{
		MsgType: MsgTPeerStats,
	}
}

// NewPeerStatsResponse creates a new PeerStats response
func NewPeerStatsResponse(stats []PeerStats, err error) *Message {
	msg := &Message{
		MsgType:   MsgTPeerStats,
		PeerStats: stats,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTRead:
		return "read"
	case MsgTWrite1:
		return "write1"
	case MsgTWrite1Refused:
		return "write1Refused"
	case MsgTWrite2:
		return "write2"
	case MsgTWrite2Refused:
		return "write2Refused"
	case MsgTEcho:
		return "echo"
	case MsgTExecTx:
		return "execTx"
	case MsgTIntegrityCheck:
		return "integrityCheck"
	case MsgTPeerStats:
		return "peerStats"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for candidate := MsgTSuccess; candidate < msgTEnd; candidate++ {
		if candidate.String() == s {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	return t > MsgTUnknown && t < msgTEnd
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Peer to peer replication messages

	MsgTRead          // Quorum read of a set of keys
	MsgTWrite1        // Request for, or issued, MultiGrant
	MsgTWrite1Refused // Responder refused to grant
	MsgTWrite2        // Commit of a certified transaction
	MsgTWrite2Refused // Responder refused to commit
	MsgTEcho          // Round trip measurement

	// Control messages

	MsgTExecTx         // Execute a transaction on a peer
	MsgTIntegrityCheck // Run the full integrity check
	MsgTPeerStats      // Measure peer round trip times

	msgTEnd
)
