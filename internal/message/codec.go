package message

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serialises a message with msgpack. The simulator never puts these
// bytes on a real radio; they are used for traces and the MQTT bridge.
func Encode(m *Message) ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind, err)
	}
	return b, nil
}

func Decode(b []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch m.Kind {
	case Hello, Bye, Alone:
	default:
		return nil, fmt.Errorf("decode message: unknown kind %d", m.Kind)
	}
	return &m, nil
}
