package wire

import "fmt"

// FieldKind tags the wire encoding of a single field.
type FieldKind uint8

const (
	// KindString is a length-prefixed UTF-8 string.
	KindString FieldKind = iota + 1
	// KindInt32 is a 4-byte big-endian signed integer.
	KindInt32
	// KindMessage is a nested frame, type id included.
	KindMessage
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt32:
		return "int32"
	case KindMessage:
		return "message"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field describes one field of a shape. Shape is only used by KindMessage
// fields and names the nested shape they must carry.
type Field struct {
	Name  string
	Kind  FieldKind
	Shape string
}

// Value is a single field value. Exactly one of Str, Int or Msg is
// meaningful, selected by Kind.
type Value struct {
	Kind FieldKind
	Str  string
	Int  int32
	Msg  Message
}

// String returns a string field value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Int32 returns an integer field value.
func Int32(n int32) Value { return Value{Kind: KindInt32, Int: n} }

// Nested returns a nested message field value.
func Nested(m Message) Value { return Value{Kind: KindMessage, Msg: m} }

// Message is implemented by every value that travels on the wire.
type Message interface {
	// Shape returns the registered shape name.
	Shape() string
	// Values returns the field values in declaration order.
	Values() []Value
}

// Shape is the descriptor of a message type: its name, its ordered field
// layout, and a builder that turns decoded values back into a Message.
// Build receives values already checked against Fields.
type Shape struct {
	Name   string
	Fields []Field
	Build  func(values []Value) (Message, error)
}
