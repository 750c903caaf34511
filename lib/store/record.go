package store

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/bKV/lib/cert"
	"github.com/ValentinKolb/bKV/lib/util"
)

// recordVersion is the first byte of every encoded record
const recordVersion byte = 1

// EncodeRecord serializes a stored object. Grant history epochs and timestamps are
// written in ascending order so equal objects encode to equal bytes.
func EncodeRecord(obj *StoredObject) []byte {
	b := []byte{recordVersion}
	b = util.AppendBool(b, obj.ValueAvailable)
	b = util.AppendOptBytes(b, obj.Value)
	b = cert.AppendCertificate(b, obj.Certificate)

	epochs := make([]uint64, 0, len(obj.GrantHistory))
	for epoch := range obj.GrantHistory {
		epochs = append(epochs, epoch)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	b = util.AppendUvarint(b, uint64(len(epochs)))
	for _, epoch := range epochs {
		byTs := obj.GrantHistory[epoch]
		timestamps := make([]uint64, 0, len(byTs))
		for ts := range byTs {
			timestamps = append(timestamps, ts)
		}
		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

		b = util.AppendUvarint(b, epoch)
		b = util.AppendUvarint(b, uint64(len(timestamps)))
		for _, ts := range timestamps {
			pg := byTs[ts]
			b = util.AppendUvarint(b, ts)
			b = util.AppendUvarint(b, uint64(pg.IssuedAt))
			b = cert.AppendMultiGrant(b, &pg.Grant)
		}
	}
	return b
}

// DecodeRecord deserializes a record written by EncodeRecord
func DecodeRecord(b []byte) (*StoredObject, error) {
	if len(b) == 0 || b[0] != recordVersion {
		return nil, NewError(RetCCorruptRecord, "unknown record version")
	}

	r := util.NewWireReader(b[1:])
	obj := &StoredObject{
		ValueAvailable: r.Bool(),
		Value:          r.OptBytes(),
		Certificate:    cert.ReadCertificate(r),
		GrantHistory:   GrantHistory{},
	}

	epochs := r.Count()
	for i := 0; i < epochs && r.Err() == nil; i++ {
		epoch := r.Uvarint()
		n := r.Count()
		byTs := make(map[uint64]PendingGrant, n)
		for j := 0; j < n && r.Err() == nil; j++ {
			ts := r.Uvarint()
			issuedAt := int64(r.Uvarint())
			byTs[ts] = PendingGrant{
				Grant:    cert.ReadMultiGrant(r),
				IssuedAt: issuedAt,
			}
		}
		obj.GrantHistory[epoch] = byTs
	}

	if r.Err() != nil {
		return nil, NewError(RetCCorruptRecord, fmt.Sprintf("failed to decode record: %v", r.Err()))
	}
	if r.Len() != 0 {
		return nil, NewError(RetCCorruptRecord, fmt.Sprintf("%d trailing bytes after record", r.Len()))
	}
	if !obj.ValueAvailable && obj.Value != nil {
		return nil, NewError(RetCCorruptRecord, "record has a value but is marked unavailable")
	}
	return obj, nil
}

// --------------------------------------------------------------------------
// Read Results
// --------------------------------------------------------------------------

// AppendReadResults appends the binary encoding of a result list
func AppendReadResults(dst []byte, results []ReadResult) []byte {
	dst = util.AppendUvarint(dst, uint64(len(results)))
	for i := range results {
		res := &results[i]
		dst = util.AppendString(dst, res.Key)
		dst = util.AppendBool(dst, res.ValueAvailable)
		dst = util.AppendOptBytes(dst, res.Value)
		dst = cert.AppendCertificate(dst, res.Certificate)
	}
	return dst
}

// DecodeReadResults reads a result list written by AppendReadResults
func DecodeReadResults(r *util.WireReader) []ReadResult {
	n := r.Count()
	if r.Err() != nil {
		return nil
	}
	results := make([]ReadResult, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		results = append(results, ReadResult{
			Key:            r.String(),
			ValueAvailable: r.Bool(),
			Value:          r.OptBytes(),
			Certificate:    cert.ReadCertificate(r),
		})
	}
	return results
}
