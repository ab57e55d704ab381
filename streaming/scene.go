package streaming

import (
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/tiles"
)

// Scene is the consumer of tile visibility changes. Terrain is nil for
// static tiles that were not produced by a Producer.
type Scene interface {
	Show(t tiles.Tile, terrain *producer.Terrain)
	Hide(t tiles.Tile)
}

type nopScene struct{}

func (nopScene) Show(tiles.Tile, *producer.Terrain) {}
func (nopScene) Hide(tiles.Tile)                    {}
