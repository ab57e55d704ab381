package terrain

import (
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/tiles"
)

type sceneEvent struct {
	msgType messages.MsgType
	payload messages.TileEvent
}

// scene queues the visibility changes made by the controller until the
// message that caused them is answered.
type scene struct {
	rasterURL func(tiles.ID) string
	events    []sceneEvent
}

func (s *scene) Show(t tiles.Tile, terrain *producer.Terrain) {
	event := messages.TileEvent{
		Tile:     messages.NewTileRef(t.ID),
		State:    t.State.String(),
		Position: t.Position,
	}

	if terrain != nil {
		heightfield := terrain.Heightfield
		event.Heightfield = &heightfield

		if s.rasterURL != nil {
			event.RasterURL = s.rasterURL(t.ID)
		}
	}

	s.events = append(s.events, sceneEvent{
		msgType: messages.MsgTypeTileActivate,
		payload: event,
	})
}

func (s *scene) Hide(t tiles.Tile) {
	s.events = append(s.events, sceneEvent{
		msgType: messages.MsgTypeTileDeactivate,
		payload: messages.TileEvent{
			Tile:     messages.NewTileRef(t.ID),
			State:    tiles.Inactive.String(),
			Position: t.Position,
		},
	})
}

func (s *scene) flush(respond messages.ResponseSender, requestID uint32) {
	for _, e := range s.events {
		respond.Send(e.msgType, requestID, e.payload)
	}
	s.events = s.events[:0]
}
