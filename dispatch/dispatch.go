// Package dispatch routes decoded messages to ordered handler chains keyed
// by shape name.
package dispatch

import (
	"github.com/pkg/errors"

	"github.com/Zereker/fedchat/wire"
)

// Action tells the dispatcher whether to run the rest of a chain.
type Action int

const (
	// Continue passes the message on to the next handler.
	Continue Action = iota
	// Stop ends the chain; later handlers do not see the message.
	Stop
)

// Handler handles one message received on origin.
type Handler[S any] func(msg wire.Message, origin S) (Action, error)

// Dispatcher maps shape names to handler chains. Bind everything during
// initialization; Dispatch does not lock.
type Dispatcher[S any] struct {
	chains map[string][]Handler[S]
}

// New returns an empty dispatcher.
func New[S any]() *Dispatcher[S] {
	return &Dispatcher[S]{chains: make(map[string][]Handler[S])}
}

// Bind appends h to the chain for shape.
func (d *Dispatcher[S]) Bind(shape string, h Handler[S]) {
	d.chains[shape] = append(d.chains[shape], h)
}

// Handlers returns the length of the chain bound to shape.
func (d *Dispatcher[S]) Handlers(shape string) int {
	return len(d.chains[shape])
}

// Dispatch runs the chain for msg's shape in bind order. The first handler
// returning Stop or an error ends the chain. It reports false when nothing
// is bound for the shape.
func (d *Dispatcher[S]) Dispatch(msg wire.Message, origin S) (bool, error) {
	chain := d.chains[msg.Shape()]
	if len(chain) == 0 {
		return false, nil
	}
	for i, h := range chain {
		action, err := h(msg, origin)
		if err != nil {
			return true, errors.Wrapf(err, "%s handler %d", msg.Shape(), i)
		}
		if action == Stop {
			break
		}
	}
	return true, nil
}
