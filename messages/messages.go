// Package messages defines the JSON protocol spoken over WebSocket
// connections.
package messages

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/tiles"
	"github.com/segmentio/encoding/json"
)

const (
	// ErrTypeMsgInvalid is the error type returned when a message or its
	// payload cannot be decoded.
	ErrTypeMsgInvalid = "msg-invalid"

	// ErrTypeMsgSkip is the error type returned by modules to indicate that
	// a message is not handled by them.
	ErrTypeMsgSkip = "msg-skip"
)

// MsgType identifies the payload carried by a message.
type MsgType string

const (
	MsgTypePing           MsgType = "ping"
	MsgTypePong           MsgType = "pong"
	MsgTypeInit           MsgType = "init"
	MsgTypeInitResponse   MsgType = "init_response"
	MsgTypeContact        MsgType = "contact"
	MsgTypeCurrentTile    MsgType = "current_tile"
	MsgTypeTileActivate   MsgType = "tile_activate"
	MsgTypeTileDeactivate MsgType = "tile_deactivate"
	MsgTypeError          MsgType = "error"
)

// Msg is the envelope of every message.
type Msg struct {
	Type      MsgType         `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMsg creates a message with the given payload. A nil payload produces a
// message without data.
func NewMsg(t MsgType, requestID uint32, payload any) (Msg, error) {
	msg := Msg{
		Type:      t,
		RequestID: requestID,
		Timestamp: time.Now(),
	}

	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Msg{}, errors.New("encoding message payload failed").
			WithType(ErrTypeMsgInvalid).
			WithTag("msg_type", t).
			Wrap(err)
	}
	msg.Data = data
	return msg, nil
}

// DataTo decodes the message payload into v.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no data").
			WithType(ErrTypeMsgInvalid).
			WithTag("msg_type", m.Type)
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message payload failed").
			WithType(ErrTypeMsgInvalid).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

func (m Msg) TypeString() string {
	if m.Type == "" {
		return "unknown"
	}
	return string(m.Type)
}

// InitRequest starts a streaming session at the entity position.
type InitRequest struct {
	Position tiles.Vector3 `json:"position"`
}

// InitResponse describes the streaming session and its grid.
type InitResponse struct {
	SessionID   string     `json:"session_id"`
	SessionUUID string     `json:"session_uuid"`
	Variant     string     `json:"variant"`
	Cols        int        `json:"cols"`
	Rows        int        `json:"rows"`
	TileSize    tiles.Size `json:"tile_size"`
	Scale       float64    `json:"scale"`
	Start       TileRef    `json:"start"`
	Active      []TileRef  `json:"active"`
}

// ContactEvent reports a collision between the entity and a surface.
type ContactEvent struct {
	Surface string        `json:"surface"`
	Point   tiles.Vector3 `json:"point"`
}

// TileRef references a tile by id and name.
type TileRef struct {
	ID   tiles.ID `json:"id"`
	Name string   `json:"name"`
}

func NewTileRef(id tiles.ID) TileRef {
	return TileRef{ID: id, Name: id.Name()}
}

func NewTileRefs(ids []tiles.ID) []TileRef {
	refs := make([]TileRef, len(ids))
	for i, id := range ids {
		refs[i] = NewTileRef(id)
	}
	return refs
}

// TileEvent notifies a tile visibility change.
type TileEvent struct {
	Tile        TileRef               `json:"tile"`
	State       string                `json:"state"`
	Position    tiles.Vector3         `json:"position"`
	RasterURL   string                `json:"raster_url,omitempty"`
	Heightfield *producer.Heightfield `json:"heightfield,omitempty"`
}

// CurrentTile notifies that the entity entered a tile.
type CurrentTile struct {
	Tile    TileRef   `json:"tile"`
	Active  []TileRef `json:"active"`
	Pending int       `json:"pending"`
}

// ErrorCode classifies error responses.
type ErrorCode string

const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeNotInitialized     ErrorCode = "not_initialized"
	ErrorCodeAlreadyInitialized ErrorCode = "already_initialized"
	ErrorCodeGenerationFailed   ErrorCode = "generation_failed"
	ErrorCodeInternal           ErrorCode = "internal_server_error"
)

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
	Tile    *TileRef  `json:"tile,omitempty"`
}
