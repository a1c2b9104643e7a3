package amf0

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"

	"chunkcast/internal/rtmperr"
)

// Wire type markers, per the AMF0 specification.
const (
	markerNumber      = 0x00
	markerBoolean     = 0x01
	markerString      = 0x02
	markerObject      = 0x03
	markerMovieClip   = 0x04 // reserved, not supported
	markerNull        = 0x05
	markerUndefined   = 0x06
	markerReference   = 0x07
	markerECMAArray   = 0x08
	markerObjectEnd   = 0x09
	markerStrictArray = 0x0A
	markerDate        = 0x0B
	markerLongString  = 0x0C
	markerUnsupported = 0x0D
	markerRecordSet   = 0x0E
	markerXMLDocument = 0x0F
	markerTypedObject = 0x10
	markerAVMPlus     = 0x11 // AMF3 escape marker
)

// maxDepth bounds object/array nesting during decode to avoid stack
// blow-up on adversarial input.
const maxDepth = 64

// Decoder decodes a sequence of AMF0 values from a byte buffer. Lenient
// mode (the default) tolerates a missing end-of-object marker at end of
// buffer and returns Undefined for unknown markers; Strict surfaces both
// as errors. Strict mode is intended for client-side consumption of
// server responses; lenient is the default for server inbound traffic,
// per the prevalence of non-conformant encoders in the wild.
type Decoder struct {
	Strict bool

	buf  []byte
	pos  int
	refs []Value // objects/arrays seen so far, for reference markers
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Decode reads a single AMF0 value starting at the current position.
func (d *Decoder) Decode() (Value, error) {
	return d.decodeValue(0)
}

// DecodeAll decodes every top-level value until the buffer is exhausted.
// RTMP command messages are a flat sequence of AMF0 values, not a single
// wrapped array — this is the entry point command dispatch (C6) uses.
func DecodeAll(buf []byte) ([]Value, error) {
	d := NewDecoder(buf)
	var values []Value
	for d.pos < len(d.buf) {
		v, err := d.Decode()
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (d *Decoder) remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) readByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, rtmperr.ErrAMFEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readBytes(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, rtmperr.ErrAMFEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) readU16() (uint16, error) {
	b, err := d.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) readU32() (uint32, error) {
	b, err := d.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) readF64() (float64, error) {
	b, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// readUTF8 reads a 2-byte-length-prefixed string (the "short" AMF0 string
// used for object keys and markerString values).
func (d *Decoder) readUTF8() (string, error) {
	n, err := d.readU16()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", rtmperr.ErrAMFUTF8
	}
	return string(b), nil
}

func (d *Decoder) readLongUTF8() (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", rtmperr.ErrAMFUTF8
	}
	return string(b), nil
}

func (d *Decoder) decodeValue(depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, rtmperr.ErrAMFDepth
	}
	marker, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	switch marker {
	case markerNumber:
		n, err := d.readF64()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	case markerBoolean:
		b, err := d.readByte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case markerString:
		s, err := d.readUTF8()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case markerLongString:
		s, err := d.readLongUTF8()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case markerNull:
		return Null(), nil
	case markerUndefined:
		return Undefined(), nil
	case markerObject:
		props, err := d.decodeProps(depth)
		if err != nil {
			return Value{}, err
		}
		v := Object(props...)
		d.refs = append(d.refs, v)
		return v, nil
	case markerECMAArray:
		// 4-byte approximate-count hint precedes the object body; it is
		// advisory only, real termination is still the end-of-object
		// marker, same as a plain object.
		if _, err := d.readU32(); err != nil {
			return Value{}, err
		}
		props, err := d.decodeProps(depth)
		if err != nil {
			return Value{}, err
		}
		v := ECMAArray(props...)
		d.refs = append(d.refs, v)
		return v, nil
	case markerStrictArray:
		count, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, count)
		for i := uint32(0); i < count; i++ {
			item, err := d.decodeValue(depth + 1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		v := StrictArray(items...)
		d.refs = append(d.refs, v)
		return v, nil
	case markerTypedObject:
		className, err := d.readUTF8()
		if err != nil {
			return Value{}, err
		}
		props, err := d.decodeProps(depth)
		if err != nil {
			return Value{}, err
		}
		v := TypedObject(className, props...)
		d.refs = append(d.refs, v)
		return v, nil
	case markerDate:
		millis, err := d.readF64()
		if err != nil {
			return Value{}, err
		}
		tzBytes, err := d.readBytes(2)
		if err != nil {
			return Value{}, err
		}
		tz := int16(binary.BigEndian.Uint16(tzBytes))
		return Date(millis, tz), nil
	case markerXMLDocument:
		s, err := d.readLongUTF8()
		if err != nil {
			return Value{}, err
		}
		return XMLDocument(s), nil
	case markerReference:
		idx, err := d.readU16()
		if err != nil {
			return Value{}, err
		}
		if int(idx) >= len(d.refs) {
			return Value{}, rtmperr.ErrAMFReference
		}
		return d.refs[idx], nil
	default:
		if d.Strict {
			return Value{}, rtmperr.ErrAMFMarker
		}
		return Undefined(), nil
	}
}

// decodeProps reads key/value pairs until the end-of-object sentinel (an
// empty key followed by the object-end marker). In lenient mode, running
// out of buffer before the sentinel is tolerated and the properties read
// so far are returned.
func (d *Decoder) decodeProps(depth int) ([]Property, error) {
	var props []Property
	for {
		if d.remaining() == 0 {
			if d.Strict {
				return nil, rtmperr.ErrAMFEndMarker
			}
			return props, nil
		}
		// Peek for the end-of-object sentinel: 2-byte zero length
		// followed by the object-end marker.
		if d.remaining() >= 3 && d.buf[d.pos] == 0 && d.buf[d.pos+1] == 0 && d.buf[d.pos+2] == markerObjectEnd {
			d.pos += 3
			return props, nil
		}
		key, err := d.readUTF8()
		if err != nil {
			if d.Strict {
				return nil, err
			}
			return props, nil
		}
		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		props = append(props, Property{Key: key, Value: val})
	}
}

// Encode serializes a value to its AMF0 wire form.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

// EncodeAll serializes a flat sequence of top-level values, concatenated
// in order — the inverse of DecodeAll.
func EncodeAll(values []Value) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		encodeValue(&buf, v)
	}
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindNull:
		buf.WriteByte(markerNull)
	case KindUndefined:
		buf.WriteByte(markerUndefined)
	case KindBoolean:
		buf.WriteByte(markerBoolean)
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindNumber:
		buf.WriteByte(markerNumber)
		writeF64(buf, v.Num)
	case KindString:
		encodeStringValue(buf, v.Str)
	case KindXMLDocument:
		buf.WriteByte(markerXMLDocument)
		writeU32(buf, uint32(len(v.Str)))
		buf.WriteString(v.Str)
	case KindObject:
		buf.WriteByte(markerObject)
		encodeProps(buf, v.Props)
	case KindECMAArray:
		buf.WriteByte(markerECMAArray)
		writeU32(buf, uint32(len(v.Props)))
		encodeProps(buf, v.Props)
	case KindStrictArray:
		buf.WriteByte(markerStrictArray)
		writeU32(buf, uint32(len(v.Array)))
		for _, item := range v.Array {
			encodeValue(buf, item)
		}
	case KindTypedObject:
		buf.WriteByte(markerTypedObject)
		writeUTF8(buf, v.ClassName)
		encodeProps(buf, v.Props)
	case KindDate:
		buf.WriteByte(markerDate)
		writeF64(buf, v.DateMillis)
		writeU16(buf, uint16(v.DateTZ))
	}
}

// encodeStringValue picks the short (16-bit length) or long (32-bit
// length) string marker depending on byte length, per the 65,535/65,536
// boundary in the testable properties.
func encodeStringValue(buf *bytes.Buffer, s string) {
	if len(s) <= 0xFFFF {
		buf.WriteByte(markerString)
		writeUTF8(buf, s)
		return
	}
	buf.WriteByte(markerLongString)
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func encodeProps(buf *bytes.Buffer, props []Property) {
	for _, p := range props {
		writeUTF8(buf, p.Key)
		encodeValue(buf, p.Value)
	}
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(markerObjectEnd)
}

func writeUTF8(buf *bytes.Buffer, s string) {
	writeU16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func writeU16(buf *bytes.Buffer, n uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], n)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}

func writeF64(buf *bytes.Buffer, f float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	buf.Write(b[:])
}
