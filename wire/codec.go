package wire

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Codec errors.
var (
	// ErrIncompleteFrame means the buffer ends before the frame does. It is a
	// retry signal, not a failure: decode again once more bytes arrived.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrMalformedFrame is returned for frames that can never decode.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFieldMismatch is returned when a message's values disagree with its shape.
	ErrFieldMismatch = errors.New("field mismatch")
	// ErrStringTooLong is returned for strings that do not fit a 16-bit length.
	ErrStringTooLong = errors.New("string too long")
)

// maxDepth bounds message nesting on both encode and decode.
const maxDepth = 32

// Encode serializes m into a new frame.
func (r *Registry) Encode(m Message) ([]byte, error) {
	return r.AppendEncode(nil, m)
}

// AppendEncode appends the frame for m to dst. On error dst is returned
// unchanged.
func (r *Registry) AppendEncode(dst []byte, m Message) ([]byte, error) {
	out, err := r.appendMessage(dst, m, "", 0)
	if err != nil {
		return dst, err
	}
	return out, nil
}

func (r *Registry) appendMessage(dst []byte, m Message, want string, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, errors.Wrap(ErrFieldMismatch, "nesting too deep")
	}
	id, err := r.TypeOf(m)
	if err != nil {
		return nil, err
	}
	shape := r.shapes[id]
	if want != "" && shape.Name != want {
		return nil, errors.Wrapf(ErrFieldMismatch, "nested %q where %q is declared", shape.Name, want)
	}

	values := m.Values()
	if len(values) != len(shape.Fields) {
		return nil, errors.Wrapf(ErrFieldMismatch, "shape %q has %d fields, message has %d values",
			shape.Name, len(shape.Fields), len(values))
	}

	dst = append(dst, byte(id))
	for i, f := range shape.Fields {
		v := values[i]
		if v.Kind != f.Kind {
			return nil, errors.Wrapf(ErrFieldMismatch, "%s.%s: want %s, got %s", shape.Name, f.Name, f.Kind, v.Kind)
		}
		switch f.Kind {
		case KindString:
			if len(v.Str) > math.MaxUint16 {
				return nil, errors.Wrapf(ErrStringTooLong, "%s.%s: %d bytes", shape.Name, f.Name, len(v.Str))
			}
			if !utf8.ValidString(v.Str) {
				return nil, errors.Wrapf(ErrFieldMismatch, "%s.%s: invalid UTF-8", shape.Name, f.Name)
			}
			dst = binary.BigEndian.AppendUint16(dst, uint16(len(v.Str)))
			dst = append(dst, v.Str...)
		case KindInt32:
			dst = binary.BigEndian.AppendUint32(dst, uint32(v.Int))
		case KindMessage:
			if v.Msg == nil {
				return nil, errors.Wrapf(ErrFieldMismatch, "%s.%s: nil message", shape.Name, f.Name)
			}
			dst, err = r.appendMessage(dst, v.Msg, f.Shape, depth+1)
			if err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}

// Decode reads one frame from the front of buf and reports how many bytes
// it consumed. It never reads past len(buf): a short buffer yields
// ErrIncompleteFrame and buf may be decoded again once extended.
func (r *Registry) Decode(buf []byte) (Message, int, error) {
	d := decoder{registry: r, buf: buf}
	m, err := d.message("", 0)
	if err != nil {
		return nil, 0, err
	}
	return m, d.off, nil
}

type decoder struct {
	registry *Registry
	buf      []byte
	off      int
}

// need reports ErrIncompleteFrame unless n more bytes are available.
func (d *decoder) need(n int) error {
	if len(d.buf)-d.off < n {
		return ErrIncompleteFrame
	}
	return nil
}

func (d *decoder) message(want string, depth int) (Message, error) {
	if depth > maxDepth {
		return nil, errors.Wrap(ErrMalformedFrame, "nesting too deep")
	}
	if err := d.need(1); err != nil {
		return nil, err
	}
	id := TypeID(d.buf[d.off])
	shape, ok := d.registry.shapes[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTypeID, "id %d at offset %d", id, d.off)
	}
	if want != "" && shape.Name != want {
		return nil, errors.Wrapf(ErrMalformedFrame, "nested %q where %q is declared", shape.Name, want)
	}
	d.off++

	values := make([]Value, len(shape.Fields))
	for i, f := range shape.Fields {
		switch f.Kind {
		case KindString:
			if err := d.need(2); err != nil {
				return nil, err
			}
			n := int(binary.BigEndian.Uint16(d.buf[d.off:]))
			if err := d.need(2 + n); err != nil {
				return nil, err
			}
			raw := d.buf[d.off+2 : d.off+2+n]
			if !utf8.Valid(raw) {
				return nil, errors.Wrapf(ErrMalformedFrame, "%s.%s: invalid UTF-8", shape.Name, f.Name)
			}
			values[i] = String(string(raw))
			d.off += 2 + n
		case KindInt32:
			if err := d.need(4); err != nil {
				return nil, err
			}
			values[i] = Int32(int32(binary.BigEndian.Uint32(d.buf[d.off:])))
			d.off += 4
		case KindMessage:
			nested, err := d.message(f.Shape, depth+1)
			if err != nil {
				return nil, err
			}
			values[i] = Nested(nested)
		}
	}

	m, err := shape.Build(values)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return m, nil
}
