package wire

import (
	"fmt"

	"github.com/pkg/errors"
)

// Shape names of the chat protocol.
const (
	ShapeSignIn         = "SignIn"
	ShapeIdentity       = "Identity"
	ShapeServerIdentity = "ServerIdentity"
	ShapeChatMessage    = "ChatMessage"
)

// SignIn is sent by a client to claim a local username on a host.
type SignIn struct {
	Name string
}

func (SignIn) Shape() string { return ShapeSignIn }

func (m SignIn) Values() []Value { return []Value{String(m.Name)} }

// Identity addresses a user on a host. It is only ever sent as a field.
type Identity struct {
	Name string
	Host string
}

func (Identity) Shape() string { return ShapeIdentity }

func (m Identity) Values() []Value { return []Value{String(m.Name), String(m.Host)} }

func (m Identity) String() string { return m.Name + "@" + m.Host }

// ServerIdentity is a host's reply to SignIn, naming itself.
type ServerIdentity struct {
	Hostname string
}

func (ServerIdentity) Shape() string { return ShapeServerIdentity }

func (m ServerIdentity) Values() []Value { return []Value{String(m.Hostname)} }

// ChatMessage carries text from one identity to another.
type ChatMessage struct {
	Sender   Identity
	To       Identity
	Contents string
}

func (ChatMessage) Shape() string { return ShapeChatMessage }

func (m ChatMessage) Values() []Value {
	return []Value{Nested(m.Sender), Nested(m.To), String(m.Contents)}
}

func (m ChatMessage) String() string {
	return fmt.Sprintf("%s -> %s: %s", m.Sender, m.To, m.Contents)
}

// Standard returns a registry holding the chat shapes. Ids are stable:
// SignIn=1, Identity=2, ServerIdentity=3, ChatMessage=4.
func Standard() *Registry {
	r := NewRegistry()
	r.MustRegister(Shape{
		Name:   ShapeSignIn,
		Fields: []Field{{Name: "name", Kind: KindString}},
		Build: func(v []Value) (Message, error) {
			return &SignIn{Name: v[0].Str}, nil
		},
	})
	r.MustRegister(Shape{
		Name:   ShapeIdentity,
		Fields: []Field{{Name: "name", Kind: KindString}, {Name: "host", Kind: KindString}},
		Build: func(v []Value) (Message, error) {
			return &Identity{Name: v[0].Str, Host: v[1].Str}, nil
		},
	})
	r.MustRegister(Shape{
		Name:   ShapeServerIdentity,
		Fields: []Field{{Name: "hostname", Kind: KindString}},
		Build: func(v []Value) (Message, error) {
			return &ServerIdentity{Hostname: v[0].Str}, nil
		},
	})
	r.MustRegister(Shape{
		Name: ShapeChatMessage,
		Fields: []Field{
			{Name: "sender", Kind: KindMessage, Shape: ShapeIdentity},
			{Name: "to", Kind: KindMessage, Shape: ShapeIdentity},
			{Name: "contents", Kind: KindString},
		},
		Build: func(v []Value) (Message, error) {
			sender, err := identityOf(v[0].Msg)
			if err != nil {
				return nil, err
			}
			to, err := identityOf(v[1].Msg)
			if err != nil {
				return nil, err
			}
			return &ChatMessage{Sender: sender, To: to, Contents: v[2].Str}, nil
		},
	})
	return r
}

func identityOf(m Message) (Identity, error) {
	switch id := m.(type) {
	case *Identity:
		return *id, nil
	case Identity:
		return id, nil
	default:
		return Identity{}, errors.Errorf("want Identity, got %T", m)
	}
}
