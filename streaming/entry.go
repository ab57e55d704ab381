package streaming

import (
	"context"

	"github.com/aukilabs/tilestream/tiles"
)

// Contact is a collision reported between the tracked entity and a surface.
type Contact struct {
	Surface string        `json:"surface"`
	Point   tiles.Vector3 `json:"point"`
}

// EntryDetector turns contacts into tile changes.
type EntryDetector struct {
	controller *Controller
	dedup      bool

	last    tiles.Vector3
	hasLast bool
}

// NewEntryDetector creates an entry detector that reports tile changes to c.
// When dedup is set, a contact at the same point as the previous one is
// dropped.
func NewEntryDetector(c *Controller, dedup bool) *EntryDetector {
	return &EntryDetector{
		controller: c,
		dedup:      dedup,
	}
}

// HandleContact reports whether the contact made the entity enter a new tile.
// Contacts with surfaces that are not tiles of the grid are ignored.
func (d *EntryDetector) HandleContact(ctx context.Context, c Contact) (bool, error) {
	if d.dedup && d.hasLast && c.Point == d.last {
		return false, nil
	}
	d.last, d.hasLast = c.Point, true

	id, err := tiles.ParseName(c.Surface)
	if err != nil {
		return false, nil
	}

	if !d.controller.Graph().Contains(id) ||
		d.controller.State() != Tracking ||
		id == d.controller.Current() {
		return false, nil
	}

	return true, d.controller.OnEnteredTile(ctx, id)
}
