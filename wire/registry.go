// Package wire implements the typed-message framing used between chat hosts
// and their clients.
//
// Every message belongs to a shape: an ordered list of typed fields described
// once, at registration time. A frame is the shape's one-byte type id followed
// by the encoded fields:
//
//	string  [u16 big-endian length][UTF-8 bytes]
//	int32   [4 bytes big-endian]
//	message [type id][fields...]   (nested frames carry their own id)
//
// Frames carry no overall length prefix, so Decode reports ErrIncompleteFrame
// whenever the buffer ends before the frame does. Callers keep the bytes and
// retry once more data has arrived.
package wire

import (
	"github.com/pkg/errors"
)

// Registry errors.
var (
	// ErrDuplicateRegistration is returned when a shape name is registered twice.
	ErrDuplicateRegistration = errors.New("shape already registered")
	// ErrRegistryFull is returned when all 255 type ids are taken.
	ErrRegistryFull = errors.New("registry full")
	// ErrInvalidShape is returned for malformed shape descriptors.
	ErrInvalidShape = errors.New("invalid shape")
	// ErrUnregisteredType is returned when encoding a message whose shape is unknown.
	ErrUnregisteredType = errors.New("unregistered message type")
	// ErrUnknownTypeID is returned when decoding a frame whose leading id is unknown.
	ErrUnknownTypeID = errors.New("unknown type id")
)

// TypeID is the single-byte wire identifier of a registered shape.
type TypeID uint8

// Registry is a bijective, append-only mapping between shapes and type ids.
// Build it once at startup and share it read-only afterwards.
type Registry struct {
	next   TypeID
	byName map[string]TypeID
	shapes map[TypeID]*Shape
}

// NewRegistry returns an empty registry whose first id will be 1.
func NewRegistry() *Registry {
	return &Registry{
		next:   1,
		byName: make(map[string]TypeID),
		shapes: make(map[TypeID]*Shape),
	}
}

// Register assigns the next unused id to shape.
func (r *Registry) Register(shape Shape) (TypeID, error) {
	if shape.Name == "" {
		return 0, errors.Wrap(ErrInvalidShape, "empty name")
	}
	if _, ok := r.byName[shape.Name]; ok {
		return 0, errors.Wrapf(ErrDuplicateRegistration, "shape %q", shape.Name)
	}
	if shape.Build == nil {
		return 0, errors.Wrapf(ErrInvalidShape, "shape %q has no builder", shape.Name)
	}
	for _, f := range shape.Fields {
		switch f.Kind {
		case KindString, KindInt32:
		case KindMessage:
			if _, ok := r.byName[f.Shape]; !ok {
				return 0, errors.Wrapf(ErrInvalidShape,
					"shape %q field %q refers to unregistered shape %q", shape.Name, f.Name, f.Shape)
			}
		default:
			return 0, errors.Wrapf(ErrInvalidShape, "shape %q field %q has kind %d", shape.Name, f.Name, f.Kind)
		}
	}
	if r.next == 0 {
		return 0, errors.Wrapf(ErrRegistryFull, "shape %q", shape.Name)
	}

	id := r.next
	s := shape
	s.Fields = append([]Field(nil), shape.Fields...)
	r.byName[s.Name] = id
	r.shapes[id] = &s
	// wraps to 0 after 255, which marks the registry full
	r.next++
	return id, nil
}

// MustRegister is like Register but panics on error. It is meant for
// registries assembled from fixed shape lists at init time.
func (r *Registry) MustRegister(shape Shape) TypeID {
	id, err := r.Register(shape)
	if err != nil {
		panic(err)
	}
	return id
}

// TypeOf returns the id registered for m's shape.
func (r *Registry) TypeOf(m Message) (TypeID, error) {
	if m == nil {
		return 0, errors.Wrap(ErrUnregisteredType, "nil message")
	}
	id, ok := r.byName[m.Shape()]
	if !ok {
		return 0, errors.Wrapf(ErrUnregisteredType, "shape %q", m.Shape())
	}
	return id, nil
}

// ShapeOf returns the shape registered under id.
func (r *Registry) ShapeOf(id TypeID) (Shape, error) {
	s, ok := r.shapes[id]
	if !ok {
		return Shape{}, errors.Wrapf(ErrUnknownTypeID, "id %d", id)
	}
	return *s, nil
}

// Len returns the number of registered shapes.
func (r *Registry) Len() int {
	return len(r.shapes)
}
