// Package wire implements Aperture's on-the-wire Message envelope (spec
// §4.1): a self-describing, versioned container for a batch of profiling
// events pushed from agent to aggregator.
//
// Two axes vary independently across the lifetime of a deployment:
//
//   - schema: the struct shape of each event variant. "current" carries the
//     parallel symbol arrays; "legacy" is the pre-symbol shape emitted by
//     agents that predate symbolization support.
//   - width: how integers, lengths, and enum tags are encoded on the wire.
//     "fixed" writes every integer at its natural binary width; "varint"
//     writes unsigned LEB128, mirroring an older encoder generation.
//
// Encode always produces current-schema/fixed-width bytes. Decode tries all
// four (schema, width) combinations in a fixed order so that payloads from
// any agent generation remain readable, per the schema evolution contract:
// new parallel arrays may be appended to a variant, fields are never
// reordered or removed.
package wire

import (
	"encoding/binary"
	"errors"
)

// PROTOCOL_VERSION is the only version this decoder accepts.
const PROTOCOL_VERSION uint32 = 1

var (
	// ErrDecodeVersionMismatch is returned when a payload decodes
	// structurally under some (schema, width) combination but carries a
	// version other than PROTOCOL_VERSION.
	ErrDecodeVersionMismatch = errors.New("wire: version mismatch")
	// ErrTruncated is returned when a payload ends before a value it
	// promised (via a length prefix) could be fully read.
	ErrTruncated = errors.New("wire: truncated payload")
	// ErrDecodeFailed is returned by Decode when none of the four
	// (schema, width) combinations could parse the payload.
	ErrDecodeFailed = errors.New("wire: failed to decode message under any known schema")
)

// writer accumulates an encoded payload under one width convention.
type writer interface {
	putUint32(v uint32)
	putUint64(v uint64)
	putInt64(v int64)
	putString(s string)
	putOptString(s *string)
	bytes() []byte
}

// reader consumes an encoded payload under one width convention.
type reader interface {
	getUint32() (uint32, error)
	getUint64() (uint64, error)
	getInt64() (int64, error)
	getString() (string, error)
	getOptString() (*string, error)
	done() bool
}

// --- fixed-width -----------------------------------------------------------

type fixedWriter struct {
	buf []byte
}

func newFixedWriter() *fixedWriter { return &fixedWriter{} }

func (w *fixedWriter) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *fixedWriter) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *fixedWriter) putInt64(v int64) {
	w.putUint64(uint64(v))
}

func (w *fixedWriter) putString(s string) {
	w.putUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *fixedWriter) putOptString(s *string) {
	if s == nil {
		w.buf = append(w.buf, 0)
		return
	}
	w.buf = append(w.buf, 1)
	w.putString(*s)
}

func (w *fixedWriter) bytes() []byte { return w.buf }

type fixedReader struct {
	buf []byte
	pos int
}

func newFixedReader(buf []byte) *fixedReader { return &fixedReader{buf: buf} }

func (r *fixedReader) getUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *fixedReader) getUint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *fixedReader) getInt64() (int64, error) {
	v, err := r.getUint64()
	return int64(v), err
}

func (r *fixedReader) getString() (string, error) {
	n, err := r.getUint32()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", ErrTruncated
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *fixedReader) getOptString() (*string, error) {
	if r.pos+1 > len(r.buf) {
		return nil, ErrTruncated
	}
	tag := r.buf[r.pos]
	r.pos++
	if tag == 0 {
		return nil, nil
	}
	if tag != 1 {
		return nil, ErrTruncated
	}
	s, err := r.getString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *fixedReader) done() bool { return r.pos >= len(r.buf) }

// --- variable-width (unsigned LEB128, with zigzag for signed values) ------

type varintWriter struct {
	buf []byte
}

func newVarintWriter() *varintWriter { return &varintWriter{} }

func (w *varintWriter) putUint64(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	w.buf = append(w.buf, b[:n]...)
}

func (w *varintWriter) putUint32(v uint32) { w.putUint64(uint64(v)) }

func (w *varintWriter) putInt64(v int64) {
	w.putUint64(zigzagEncode(v))
}

func (w *varintWriter) putString(s string) {
	w.putUint64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *varintWriter) putOptString(s *string) {
	if s == nil {
		w.buf = append(w.buf, 0)
		return
	}
	w.buf = append(w.buf, 1)
	w.putString(*s)
}

func (w *varintWriter) bytes() []byte { return w.buf }

type varintReader struct {
	buf []byte
	pos int
}

func newVarintReader(buf []byte) *varintReader { return &varintReader{buf: buf} }

func (r *varintReader) getUint64() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	r.pos += n
	return v, nil
}

func (r *varintReader) getUint32() (uint32, error) {
	v, err := r.getUint64()
	return uint32(v), err
}

func (r *varintReader) getInt64() (int64, error) {
	v, err := r.getUint64()
	if err != nil {
		return 0, err
	}
	return zigzagDecode(v), nil
}

func (r *varintReader) getString() (string, error) {
	n, err := r.getUint64()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", ErrTruncated
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *varintReader) getOptString() (*string, error) {
	if r.pos+1 > len(r.buf) {
		return nil, ErrTruncated
	}
	tag := r.buf[r.pos]
	r.pos++
	if tag == 0 {
		return nil, nil
	}
	if tag != 1 {
		return nil, ErrTruncated
	}
	s, err := r.getString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *varintReader) done() bool { return r.pos >= len(r.buf) }

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
