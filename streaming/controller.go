// Package streaming keeps the tiles around a moving entity resident. A
// Controller tracks the tile the entity stands on and maintains an active set
// made of that tile and its grid neighbors, producing tiles on demand in the
// dynamic variant.
//
// A Controller is not safe for concurrent use. Each streaming session drives
// its controller from a single goroutine, asynchronous generation results
// included.
package streaming

import (
	"context"
	"math"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/tiles"
)

const (
	// ErrTypeEmptyGrid is the error type returned when a session is
	// initialized over a grid without tiles.
	ErrTypeEmptyGrid = "grid-empty"

	// ErrTypeNotInitialized is the error type returned when a tile change is
	// reported before the session is initialized.
	ErrTypeNotInitialized = "session-not-initialized"

	// ErrTypeAlreadyInitialized is the error type returned when a session is
	// initialized twice.
	ErrTypeAlreadyInitialized = "session-already-initialized"

	// ErrTypeInvalidVariant is the error type returned when parsing an
	// unknown variant.
	ErrTypeInvalidVariant = "invalid-variant"

	defaultResultsBuffer = 16
)

// Variant defines how tiles come into existence.
type Variant int

const (
	// Dynamic tiles are produced on demand.
	Dynamic Variant = iota

	// Static tiles are all produced before the session starts.
	Static
)

func (v Variant) String() string {
	switch v {
	case Dynamic:
		return "dynamic"
	case Static:
		return "static"
	default:
		return "unknown"
	}
}

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "dynamic":
		return Dynamic, nil
	case "static":
		return Static, nil
	default:
		return Dynamic, errors.New("unknown variant").
			WithType(ErrTypeInvalidVariant).
			WithTag("variant", s)
	}
}

// State is the state of a Controller.
type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

// Producer is the source of terrain tiles.
type Producer interface {
	Ensure(ctx context.Context, id tiles.ID) (*producer.Terrain, error)
	Request(ctx context.Context, id tiles.ID, reply chan<- producer.Result) error
	Cached(id tiles.ID) (*producer.Terrain, bool)
}

// Options configures a Controller.
type Options struct {
	Graph   *tiles.Graph
	Layout  tiles.Layout
	Variant Variant

	// The tile source. Required by the dynamic variant. In the static
	// variant it is only used to look up prebaked terrain.
	Producer Producer

	// Receives visibility changes. Nil discards them.
	Scene Scene

	// Makes dynamic tiles produced in the background. Results must be fed
	// back with HandleGenerated.
	Async bool

	// The session identifier used in logs.
	SessionID string

	ResultsBuffer int
}

// Controller is the per-session tile streaming state machine.
type Controller struct {
	graph     *tiles.Graph
	layout    tiles.Layout
	variant   Variant
	producer  Producer
	scene     Scene
	async     bool
	sessionID string

	state   State
	current tiles.ID
	tiles   map[tiles.ID]*tiles.Tile
	active  *tiles.ActiveSet
	results chan producer.Result
}

// NewController creates an idle controller over the grid.
func NewController(o Options) (*Controller, error) {
	if o.Graph == nil {
		return nil, errors.New("missing tile graph")
	}
	if o.Variant == Dynamic && o.Producer == nil {
		return nil, errors.New("dynamic variant requires a producer")
	}
	if o.Scene == nil {
		o.Scene = nopScene{}
	}
	if o.ResultsBuffer <= 0 {
		o.ResultsBuffer = defaultResultsBuffer
	}

	c := &Controller{
		graph:     o.Graph,
		layout:    o.Layout,
		variant:   o.Variant,
		producer:  o.Producer,
		scene:     o.Scene,
		async:     o.Async && o.Variant == Dynamic,
		sessionID: o.SessionID,
		tiles:     make(map[tiles.ID]*tiles.Tile, o.Graph.Len()),
		active:    tiles.NewActiveSet(),
		results:   make(chan producer.Result, o.ResultsBuffer),
	}

	o.Graph.Each(func(id tiles.ID) {
		state := tiles.Ungenerated
		if c.variant == Static {
			state = tiles.Generated
		} else if _, ok := c.producer.Cached(id); ok {
			state = tiles.Generated
		}

		c.tiles[id] = &tiles.Tile{
			ID:       id,
			State:    state,
			Position: o.Layout.Origin(id),
		}
	})

	return c, nil
}

// Initialize picks the start tile, activates it with its neighbors and starts
// tracking. The start tile is the grid center in the dynamic variant and the
// tile closest to position in the static variant.
func (c *Controller) Initialize(ctx context.Context, position tiles.Vector3) error {
	if c.state != Idle {
		return errors.New("session already initialized").
			WithType(ErrTypeAlreadyInitialized).
			WithTag("session_id", c.sessionID)
	}

	start, ok := c.startTile(position)
	if !ok {
		return errors.New("grid has no tiles").
			WithType(ErrTypeEmptyGrid).
			WithTag("session_id", c.sessionID)
	}

	t := c.tiles[start]
	terrain, err := c.ensure(ctx, t)
	if err != nil {
		instrumentActivationError(c.variant, errors.Type(err))
		return errors.New("activating start tile failed").
			WithType(errors.Type(err)).
			WithTag("session_id", c.sessionID).
			WithTag("tile", start.Name()).
			Wrap(err)
	}
	c.show(t, terrain)
	c.active.Insert(start)

	c.current = start
	c.state = Tracking

	err = c.ActivateNeighbors(ctx, start)

	logs.WithTag("session_id", c.sessionID).
		WithTag("variant", c.variant.String()).
		WithTag("tile", start.Name()).
		WithTag("active_count", c.active.Len()).
		Debug("streaming session initialized")

	return err
}

// OnEnteredTile handles the entity entering a tile. Entering the current tile
// is a no-op. The tiles that are no longer adjacent to the entered tile are
// deactivated even when activating the new neighbors fails, in which case the
// first activation error is returned.
func (c *Controller) OnEnteredTile(ctx context.Context, id tiles.ID) error {
	if c.state != Tracking {
		return errors.New("session not initialized").
			WithType(ErrTypeNotInitialized).
			WithTag("session_id", c.sessionID).
			WithTag("tile", id.Name())
	}

	if !c.graph.Contains(id) {
		return errors.New("tile out of grid").
			WithType(producer.ErrTypeOutOfGrid).
			WithTag("session_id", c.sessionID).
			WithTag("tile", id.Name())
	}

	if id == c.current {
		return nil
	}

	previous := c.current
	c.current = id

	var err error
	if !c.active.Contains(id) {
		err = c.activate(ctx, id)
	}

	if nerr := c.ActivateNeighbors(ctx, id); err == nil {
		err = nerr
	}

	evicted := c.DeactivateFar(id)
	instrumentEntered(c.variant, c.active.Len())

	logs.WithTag("session_id", c.sessionID).
		WithTag("tile", id.Name()).
		WithTag("previous_tile", previous.Name()).
		WithTag("evicted_count", len(evicted)).
		WithTag("active_count", c.active.Len()).
		Debug("entered tile")

	return err
}

// ActivateNeighbors activates every neighbor of id. A neighbor that fails to
// activate is left out of the active set. The first error is returned after
// every neighbor has been processed.
func (c *Controller) ActivateNeighbors(ctx context.Context, id tiles.ID) error {
	var first error

	for _, n := range c.graph.NeighborsOf(id) {
		if err := c.activate(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DeactivateFar removes from the active set every tile that is neither id
// nor one of its neighbors, hides the visible ones and returns the removed
// tiles.
func (c *Controller) DeactivateFar(id tiles.ID) []tiles.ID {
	evicted := c.active.Sweep(func(candidate tiles.ID) bool {
		return candidate == id || c.graph.IsNeighbor(id, candidate)
	})

	for _, e := range evicted {
		t := c.tiles[e]
		if t.State == tiles.Active {
			c.scene.Hide(*t)
			t.State = tiles.Inactive
		}
	}

	if len(evicted) != 0 {
		instrumentEvicted(c.variant, len(evicted))
	}
	return evicted
}

// HandleGenerated applies the result of an asynchronous generation. A
// produced tile still in the active set is shown, otherwise it is kept
// hidden. A failed tile goes back to ungenerated and leaves the active set.
func (c *Controller) HandleGenerated(res producer.Result) error {
	t, ok := c.tiles[res.ID]
	if !ok || t.State != tiles.Generating {
		return nil
	}

	if res.Err != nil {
		t.State = tiles.Ungenerated
		c.active.Remove(res.ID)
		instrumentActivationError(c.variant, errors.Type(res.Err))

		return errors.New("generating tile failed").
			WithType(errors.Type(res.Err)).
			WithTag("session_id", c.sessionID).
			WithTag("tile", res.ID.Name()).
			Wrap(res.Err)
	}

	if !c.active.Contains(res.ID) {
		t.State = tiles.Generated
		return nil
	}

	c.show(t, res.Terrain)
	return nil
}

// Results returns the channel asynchronous generation results are delivered
// on.
func (c *Controller) Results() <-chan producer.Result {
	return c.results
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Variant() Variant {
	return c.variant
}

// Current returns the tile the entity stands on.
func (c *Controller) Current() tiles.ID {
	return c.current
}

// ActiveIDs returns the active set in insertion order.
func (c *Controller) ActiveIDs() []tiles.ID {
	return c.active.IDs()
}

// Tile returns a copy of a tile.
func (c *Controller) Tile(id tiles.ID) (tiles.Tile, bool) {
	t, ok := c.tiles[id]
	if !ok {
		return tiles.Tile{}, false
	}
	return *t, true
}

func (c *Controller) Graph() *tiles.Graph {
	return c.graph
}

// Pending returns the number of tiles waiting for an asynchronous
// generation.
func (c *Controller) Pending() int {
	var n int
	for _, t := range c.tiles {
		if t.State == tiles.Generating {
			n++
		}
	}
	return n
}

func (c *Controller) startTile(position tiles.Vector3) (tiles.ID, bool) {
	if c.variant == Dynamic {
		return c.graph.Center()
	}

	var nearest tiles.ID
	var found bool
	distance := math.Inf(1)

	c.graph.Each(func(id tiles.ID) {
		if d := position.Distance(c.tiles[id].Position); d < distance {
			nearest, found, distance = id, true, d
		}
	})
	return nearest, found
}

func (c *Controller) activate(ctx context.Context, id tiles.ID) error {
	t := c.tiles[id]

	switch t.State {
	case tiles.Active, tiles.Generating:
		c.active.Insert(id)
		return nil
	}

	if c.async && !c.resident(t) {
		if err := c.producer.Request(ctx, id, c.results); err != nil {
			instrumentActivationError(c.variant, errors.Type(err))
			return err
		}

		t.State = tiles.Generating
		c.active.Insert(id)
		return nil
	}

	terrain, err := c.ensure(ctx, t)
	if err != nil {
		instrumentActivationError(c.variant, errors.Type(err))
		logs.WithTag("session_id", c.sessionID).
			WithTag("tile", id.Name()).
			Debug("activating tile failed")
		return err
	}

	c.show(t, terrain)
	c.active.Insert(id)
	return nil
}

func (c *Controller) resident(t *tiles.Tile) bool {
	if t.State.Resident() {
		return true
	}

	if _, ok := c.producer.Cached(t.ID); ok {
		t.State = tiles.Generated
		return true
	}
	return false
}

func (c *Controller) ensure(ctx context.Context, t *tiles.Tile) (*producer.Terrain, error) {
	if c.producer == nil {
		return nil, nil
	}

	// Static tiles are prebaked. A session started before prebaking is done
	// produces the missing tiles itself.
	if c.variant == Static {
		if terrain, ok := c.producer.Cached(t.ID); ok {
			return terrain, nil
		}
	}

	terrain, err := c.producer.Ensure(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	if t.State == tiles.Ungenerated {
		t.State = tiles.Generated
	}
	return terrain, nil
}

func (c *Controller) show(t *tiles.Tile, terrain *producer.Terrain) {
	if terrain == nil && c.producer != nil {
		terrain, _ = c.producer.Cached(t.ID)
	}

	t.State = tiles.Active
	c.scene.Show(*t, terrain)
	instrumentShown(c.variant)
}
