package transfer

import (
	"sync"
	"time"
)

type role uint8

const (
	roleInitiator role = iota
	roleResponder
)

func (r role) String() string {
	if r == roleInitiator {
		return "initiator"
	}
	return "responder"
}

// transferKey identifies a transfer. The same request id may be live once per peer and role.
type transferKey struct {
	peer  string
	reqID uint32
	role  role
}

type result struct {
	payload []byte
	err     error
}

// transfer is the state of one request/response exchange. All fields are guarded by mu.
type transfer struct {
	key transferKey
	mu  sync.Mutex

	reqData   []byte
	reqPos    int
	resData   []byte
	resPos    int
	reqDataOk bool
	resDataOk bool

	// deleted marks the transfer for removal. Marked transfers ignore all packets.
	deleted     bool
	lastUpdated time.Time
	started     time.Time

	resendTimer  *time.Timer
	resendGen    uint64
	resendPacket []byte

	// done receives the outcome of an initiator transfer exactly once
	done    chan result
	settled bool
}

func newInitiator(peer string, reqID uint32, payload []byte) *transfer {
	now := time.Now()
	return &transfer{
		key:         transferKey{peer: peer, reqID: reqID, role: roleInitiator},
		reqData:     payload,
		lastUpdated: now,
		started:     now,
		done:        make(chan result, 1),
	}
}

func newResponder(peer string, reqID uint32) *transfer {
	now := time.Now()
	return &transfer{
		key:         transferKey{peer: peer, reqID: reqID, role: roleResponder},
		lastUpdated: now,
		started:     now,
	}
}

// settle delivers the outcome to a waiting initiator, later calls are ignored
func (t *transfer) settle(payload []byte, err error) {
	if t.done == nil || t.settled {
		return
	}
	t.settled = true
	t.done <- result{payload: payload, err: err}
}

// --------------------------------------------------------------------------
// State Machine
// --------------------------------------------------------------------------

type stateChange int

const (
	changeError stateChange = iota
	changeReqChunkFilled
	changeResChunkFilled
	changeReqDataOk
	changeResDataOk
	changeSendPendingIR
	changeSendPendingRI
	changeCompletion
)

func (c stateChange) String() string {
	switch c {
	case changeReqChunkFilled:
		return "REQ_CHUNK_FILLED"
	case changeResChunkFilled:
		return "RES_CHUNK_FILLED"
	case changeReqDataOk:
		return "REQ_DATA_OK"
	case changeResDataOk:
		return "RES_DATA_OK"
	case changeSendPendingIR:
		return "SEND_PENDING_IR"
	case changeSendPendingRI:
		return "SEND_PENDING_RI"
	case changeCompletion:
		return "COMPLETION"
	default:
		return "ERROR"
	}
}

// apply validates p against the transfer state, copies chunk data into the buffers
// and returns the resulting change. Nothing is modified if the result is changeError.
func (t *transfer) apply(p *packet) stateChange {
	if t.key.role == roleResponder {
		switch {
		case p.kind == kindAck:
			return changeCompletion
		case p.kind == kindData && p.first:
			return t.firstRequestChunk(p)
		case p.kind == kindData:
			return t.requestChunk(p)
		case p.kind == kindGet:
			if t.reqData == nil || !t.reqDataOk || t.resDataOk {
				return changeError
			}
			return changeSendPendingRI
		}
		return changeError
	}

	switch {
	case p.kind == kindData && p.first:
		return t.firstResponseChunk(p)
	case p.kind == kindData:
		return t.responseChunk(p)
	case p.kind == kindGet:
		if t.reqData == nil || t.reqDataOk || t.resDataOk {
			return changeError
		}
		return changeSendPendingIR
	}
	return changeError
}

func (t *transfer) firstRequestChunk(p *packet) stateChange {
	if t.reqData != nil || t.reqPos != 0 || t.reqDataOk || t.resDataOk {
		return changeError
	}
	if len(p.data) > int(p.total) {
		return changeError
	}
	t.reqData = make([]byte, p.total)
	t.reqPos = copy(t.reqData, p.data)
	if t.reqPos == len(t.reqData) {
		return changeReqDataOk
	}
	return changeReqChunkFilled
}

func (t *transfer) requestChunk(p *packet) stateChange {
	if t.reqData == nil || t.reqDataOk || t.resDataOk {
		return changeError
	}
	if int(p.offset) != t.reqPos || t.reqPos+len(p.data) > len(t.reqData) {
		return changeError
	}
	t.reqPos += copy(t.reqData[t.reqPos:], p.data)
	if t.reqPos == len(t.reqData) {
		return changeReqDataOk
	}
	return changeReqChunkFilled
}

func (t *transfer) firstResponseChunk(p *packet) stateChange {
	// a duplicate of the last response chunk means our completion ack got lost
	if t.reqDataOk && t.resDataOk {
		return changeResDataOk
	}
	if t.resData != nil || t.resPos != 0 || t.reqDataOk || t.resDataOk {
		return changeError
	}
	if len(p.data) > int(p.total) {
		return changeError
	}
	// the responder only answers once it has the full request
	t.reqDataOk = true
	t.resData = make([]byte, p.total)
	t.resPos = copy(t.resData, p.data)
	if t.resPos == len(t.resData) {
		return changeResDataOk
	}
	return changeResChunkFilled
}

func (t *transfer) responseChunk(p *packet) stateChange {
	if t.reqDataOk && t.resDataOk {
		return changeResDataOk
	}
	if t.resData == nil || !t.reqDataOk || t.resDataOk {
		return changeError
	}
	if int(p.offset) != t.resPos || t.resPos+len(p.data) > len(t.resData) {
		return changeError
	}
	t.resPos += copy(t.resData[t.resPos:], p.data)
	if t.resPos == len(t.resData) {
		return changeResDataOk
	}
	return changeResChunkFilled
}
