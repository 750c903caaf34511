package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/tx"
	"github.com/ValentinKolb/bKV/lib/util"
	"github.com/ValentinKolb/bKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte message type, 2 bytes flags (big endian), then every field whose
// flag is set, in flag order. Strings and byte slices are varint length prefixed.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasTransaction      uint16 = 1 << 0
	hasResults          uint16 = 1 << 1
	hasSubEpoch         uint16 = 1 << 2
	hasTransactionHash  uint16 = 1 << 3
	hasMultiGrant       uint16 = 1 << 4
	hasWriteCertificate uint16 = 1 << 5
	hasReqTime          uint16 = 1 << 6
	hasResTime          uint16 = 1 << 7
	hasTxResults        uint16 = 1 << 8
	hasIntegrity        uint16 = 1 << 9
	hasPeerStats        uint16 = 1 << 10
	hasErr              uint16 = 1 << 11

	knownFlags = hasErr<<1 - 1
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, headerSize, headerSize+64)
	result[0] = byte(msg.MsgType)

	// Initialize flags
	var flags uint16

	if msg.Transaction != nil {
		flags |= hasTransaction
		result = msg.Transaction.AppendBinary(result)
	}

	if msg.Results != nil {
		flags |= hasResults
		result = store.AppendReadResults(result, msg.Results)
	}

	if msg.SubEpoch != 0 {
		flags |= hasSubEpoch
		result = util.AppendUvarint(result, uint64(msg.SubEpoch))
	}

	if msg.TransactionHash != nil {
		flags |= hasTransactionHash
		result = util.AppendBytes(result, msg.TransactionHash)
	}

	if msg.MultiGrant != nil {
		flags |= hasMultiGrant
		result = cert.AppendMultiGrant(result, msg.MultiGrant)
	}

	if msg.WriteCertificate != nil {
		flags |= hasWriteCertificate
		result = cert.AppendCertificate(result, msg.WriteCertificate)
	}

	if msg.ReqTime != 0 {
		flags |= hasReqTime
		result = util.AppendVarint(result, msg.ReqTime)
	}

	if msg.ResTime != 0 {
		flags |= hasResTime
		result = util.AppendVarint(result, msg.ResTime)
	}

	if msg.TxResults != nil {
		flags |= hasTxResults
		result = appendTxResults(result, msg.TxResults)
	}

	if msg.Integrity != nil {
		flags |= hasIntegrity
		result = appendIntegrity(result, msg.Integrity)
	}

	if msg.PeerStats != nil {
		flags |= hasPeerStats
		result = appendPeerStats(result, msg.PeerStats)
	}

	if msg.Err != "" {
		flags |= hasErr
		result = util.AppendString(result, msg.Err)
	}

	binary.BigEndian.PutUint16(result[1:headerSize], flags)
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for binary message: %d bytes", len(data))
	}

	// Reset the message
	*msg = common.Message{}

	msg.MsgType = common.MessageType(data[0])
	if msg.MsgType != common.MsgTUnknown && !msg.MsgType.Valid() {
		return fmt.Errorf("unknown message type %d", data[0])
	}

	flags := binary.BigEndian.Uint16(data[1:headerSize])
	if flags&^knownFlags != 0 {
		return fmt.Errorf("unknown field flags %#04x", flags&^knownFlags)
	}

	r := util.NewWireReader(data[headerSize:])

	if flags&hasTransaction != 0 {
		msg.Transaction = tx.ReadTransaction(r)
	}

	if flags&hasResults != 0 {
		msg.Results = store.DecodeReadResults(r)
	}

	if flags&hasSubEpoch != 0 {
		sub := r.Uvarint()
		if sub >= util.SubEpochRange {
			r.Fail(fmt.Errorf("sub epoch %d out of range", sub))
		}
		msg.SubEpoch = uint16(sub)
	}

	if flags&hasTransactionHash != 0 {
		msg.TransactionHash = r.Bytes()
	}

	if flags&hasMultiGrant != 0 {
		mg := cert.ReadMultiGrant(r)
		msg.MultiGrant = &mg
	}

	if flags&hasWriteCertificate != 0 {
		msg.WriteCertificate = cert.ReadCertificate(r)
		if msg.WriteCertificate == nil {
			msg.WriteCertificate = cert.WriteCertificate{}
		}
	}

	if flags&hasReqTime != 0 {
		msg.ReqTime = r.Varint()
	}

	if flags&hasResTime != 0 {
		msg.ResTime = r.Varint()
	}

	if flags&hasTxResults != 0 {
		msg.TxResults = readTxResults(r)
	}

	if flags&hasIntegrity != 0 {
		msg.Integrity = readIntegrity(r)
	}

	if flags&hasPeerStats != 0 {
		msg.PeerStats = readPeerStats(r)
	}

	if flags&hasErr != 0 {
		msg.Err = r.String()
	}

	if r.Err() != nil {
		return fmt.Errorf("failed to decode %s message: %w", msg.MsgType, r.Err())
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes after %s message", r.Len(), msg.MsgType)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func appendTxResults(dst []byte, results []tx.Result) []byte {
	dst = util.AppendUvarint(dst, uint64(len(results)))
	for _, res := range results {
		dst = util.AppendString(dst, res.Key)
		dst = util.AppendOptBytes(dst, res.Value)
		dst = util.AppendBool(dst, res.Available)
	}
	return dst
}

func readTxResults(r *util.WireReader) []tx.Result {
	n := r.Count()
	results := make([]tx.Result, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		results = append(results, tx.Result{
			Key:       r.String(),
			Value:     r.OptBytes(),
			Available: r.Bool(),
		})
	}
	return results
}

func appendIntegrity(dst []byte, integrity []common.KeyIntegrity) []byte {
	dst = util.AppendUvarint(dst, uint64(len(integrity)))
	for _, ki := range integrity {
		dst = util.AppendString(dst, ki.Key)
		dst = util.AppendUvarint(dst, uint64(len(ki.Segments)))
		for _, s := range ki.Segments {
			dst = util.AppendVarint(dst, int64(s))
		}
		dst = util.AppendVarint(dst, int64(ki.LocalSegment))
		dst = util.AppendVarint(dst, int64(ki.Unreachable))
	}
	return dst
}

func readIntegrity(r *util.WireReader) []common.KeyIntegrity {
	n := r.Count()
	integrity := make([]common.KeyIntegrity, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		ki := common.KeyIntegrity{Key: r.String()}
		segments := r.Count()
		ki.Segments = make([]int, 0, segments)
		for j := 0; j < segments && r.Err() == nil; j++ {
			ki.Segments = append(ki.Segments, int(r.Varint()))
		}
		ki.LocalSegment = int(r.Varint())
		ki.Unreachable = int(r.Varint())
		integrity = append(integrity, ki)
	}
	return integrity
}

func appendPeerStats(dst []byte, stats []common.PeerStats) []byte {
	dst = util.AppendUvarint(dst, uint64(len(stats)))
	for _, ps := range stats {
		dst = util.AppendString(dst, ps.PeerID)
		dst = util.AppendBool(dst, ps.Reachable)
		dst = util.AppendVarint(dst, ps.LastRTT)
		dst = util.AppendFloat64(dst, ps.MeanRTT)
		dst = util.AppendFloat64(dst, ps.P95RTT)
		dst = util.AppendVarint(dst, ps.Samples)
		dst = util.AppendVarint(dst, ps.Failures)
	}
	return dst
}

func readPeerStats(r *util.WireReader) []common.PeerStats {
	n := r.Count()
	stats := make([]common.PeerStats, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		stats = append(stats, common.PeerStats{
			PeerID:    r.String(),
			Reachable: r.Bool(),
			LastRTT:   r.Varint(),
			MeanRTT:   r.Float64(),
			P95RTT:    r.Float64(),
			Samples:   r.Varint(),
			Failures:  r.Varint(),
		})
	}
	return stats
}
