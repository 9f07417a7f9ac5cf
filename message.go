package fedchat

import "github.com/Zereker/fedchat/wire"

// Codec turns messages into frames and back. *wire.Registry implements it.
//
// Decode must never read past the end of buf. When buf holds only part of a
// frame it returns wire.ErrIncompleteFrame and the stream retries with more
// bytes. This is what lets a stream reassemble frames that arrive split
// across reads or packed several to a read.
type Codec interface {
	Decode(buf []byte) (msg wire.Message, consumed int, err error)
	Encode(wire.Message) ([]byte, error)
}

var _ Codec = (*wire.Registry)(nil)
