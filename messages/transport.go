package messages

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// Sender sends a message and returns the number of bytes written.
type Sender func(Msg) (int, error)

// Receiver receives a message and returns the number of bytes read.
type Receiver func() (Msg, int, error)

// ResponseSender queues messages for the connected client.
type ResponseSender interface {
	// Sends a message built from a type and a payload.
	Send(t MsgType, requestID uint32, payload any)

	// Sends an already built message.
	SendMsg(Msg)
}

// Codec encodes messages as JSON text frames.
var Codec = websocket.Codec{
	Marshal:   marshal,
	Unmarshal: unmarshal,
}

func marshal(v any) ([]byte, byte, error) {
	b, err := json.Marshal(v)
	return b, websocket.TextFrame, err
}

func unmarshal(data []byte, payloadType byte, v any) error {
	return json.Unmarshal(data, v)
}

// Receive reads a message from conn.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return Msg{}, len(data), errors.New("decoding message failed").
			WithType(ErrTypeMsgInvalid).
			Wrap(err)
	}
	return msg, len(data), nil
}

// Send writes a message to conn.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithType(ErrTypeMsgInvalid).
			WithTag("msg_type", msg.Type).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}
