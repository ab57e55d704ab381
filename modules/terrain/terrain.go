// Package terrain is the module that streams terrain tiles around the entity
// of the connected client.
package terrain

import (
	"context"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/models"
	"github.com/aukilabs/tilestream/producer"
	"github.com/aukilabs/tilestream/streaming"
	"github.com/aukilabs/tilestream/tiles"
)

// Module streams the tiles of a grid to a client. A module instance serves a
// single connection.
type Module struct {
	Graph    *tiles.Graph
	Layout   tiles.Layout
	Variant  streaming.Variant
	Producer streaming.Producer

	// Produces dynamic tiles in the background.
	Async bool

	// Drops contacts reported at the same point as the previous one.
	ContactDedup bool

	// The base URL where tile rasters are served. Raster URLs are omitted
	// when empty.
	RasterBaseURL string

	session    *models.Session
	controller *streaming.Controller
	detector   *streaming.EntryDetector
	scene      scene
}

func (m *Module) Name() string {
	return "terrain"
}

func (m *Module) Init(s *models.Session) {
	m.session = s
	m.scene.rasterURL = m.rasterURL
}

func (m *Module) HandleMsg(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	switch msg.Type {
	case messages.MsgTypeInit:
		return m.handleInit(ctx, respond, msg)

	case messages.MsgTypeContact:
		return m.handleContact(ctx, respond, msg)

	default:
		return errors.New("message not handled").
			WithType(messages.ErrTypeMsgSkip).
			WithTag("msg_type", msg.Type)
	}
}

func (m *Module) HandleDisconnect() {
	if m.controller == nil {
		return
	}

	logs.WithTag("session_id", m.sessionID()).
		WithTag("tile", m.controller.Current().Name()).
		WithTag("active_count", len(m.controller.ActiveIDs())).
		WithTag("pending", m.controller.Pending()).
		Debug("terrain streaming stopped")

	m.controller = nil
	m.detector = nil
}

// Results returns the channel the asynchronous generation results of the
// session are delivered on.
func (m *Module) Results() <-chan producer.Result {
	if m.controller == nil {
		return nil
	}
	return m.controller.Results()
}

func (m *Module) HandleResult(ctx context.Context, respond messages.ResponseSender, res producer.Result) error {
	if m.controller == nil {
		return nil
	}

	err := m.controller.HandleGenerated(res)
	m.scene.flush(respond, 0)
	m.updateStats(false)

	return m.respondError(ctx, respond, 0, &res.ID, err)
}

// Controller returns the streaming controller of the session. It is nil
// until the session is initialized.
func (m *Module) Controller() *streaming.Controller {
	return m.controller
}

func (m *Module) handleInit(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.InitRequest
	if len(msg.Data) != 0 {
		if err := msg.DataTo(&req); err != nil {
			return err
		}
	}

	if m.controller == nil {
		c, err := streaming.NewController(streaming.Options{
			Graph:     m.Graph,
			Layout:    m.Layout,
			Variant:   m.Variant,
			Producer:  m.Producer,
			Scene:     &m.scene,
			Async:     m.Async,
			SessionID: m.sessionID(),
		})
		if err != nil {
			return errors.New("creating streaming controller failed").Wrap(err)
		}

		m.controller = c
		m.detector = streaming.NewEntryDetector(c, m.ContactDedup)
	}

	wasTracking := m.controller.State() == streaming.Tracking
	err := m.controller.Initialize(ctx, req.Position)

	if !wasTracking && m.controller.State() == streaming.Tracking {
		respond.Send(messages.MsgTypeInitResponse, msg.RequestID, m.initResponse())
		m.updateStats(false)
	}
	m.scene.flush(respond, msg.RequestID)

	return m.respondError(ctx, respond, msg.RequestID, nil, err)
}

func (m *Module) handleContact(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var contact messages.ContactEvent
	if err := msg.DataTo(&contact); err != nil {
		return err
	}

	if m.controller == nil || m.controller.State() != streaming.Tracking {
		respond.Send(messages.MsgTypeError, msg.RequestID, messages.ErrorResponse{
			Code:    messages.ErrorCodeNotInitialized,
			Message: "session not initialized",
		})
		return nil
	}

	entered, err := m.detector.HandleContact(ctx, streaming.Contact{
		Surface: contact.Surface,
		Point:   contact.Point,
	})
	m.scene.flush(respond, msg.RequestID)

	if entered {
		respond.Send(messages.MsgTypeCurrentTile, msg.RequestID, messages.CurrentTile{
			Tile:    messages.NewTileRef(m.controller.Current()),
			Active:  messages.NewTileRefs(m.controller.ActiveIDs()),
			Pending: m.controller.Pending(),
		})
	}

	m.session.UpdateStats(func(s *models.Stats) {
		s.Contacts++
	})
	m.updateStats(entered)

	return m.respondError(ctx, respond, msg.RequestID, nil, err)
}

func (m *Module) initResponse() messages.InitResponse {
	c := m.controller

	return messages.InitResponse{
		SessionID:   m.session.GlobalID,
		SessionUUID: m.session.SessionUUID,
		Variant:     c.Variant().String(),
		Cols:        c.Graph().Cols(),
		Rows:        c.Graph().Rows(),
		TileSize:    m.Layout.Size,
		Scale:       m.Layout.Scale,
		Start:       messages.NewTileRef(c.Current()),
		Active:      messages.NewTileRefs(c.ActiveIDs()),
	}
}

// respondError reports a streaming error to the client. Only the errors that
// make the session unusable are returned.
func (m *Module) respondError(ctx context.Context, respond messages.ResponseSender, requestID uint32, tile *tiles.ID, err error) error {
	if err == nil {
		return nil
	}

	if ctx.Err() != nil || errors.IsType(err, producer.ErrTypeClosed) {
		return err
	}

	res := messages.ErrorResponse{
		Code:    messages.ErrorCodeGenerationFailed,
		Message: "tile generation failed",
	}
	if tile != nil {
		ref := messages.NewTileRef(*tile)
		res.Tile = &ref
	}

	switch {
	case errors.IsType(err, streaming.ErrTypeAlreadyInitialized):
		res.Code = messages.ErrorCodeAlreadyInitialized
		res.Message = "session already initialized"

	case errors.IsType(err, streaming.ErrTypeNotInitialized):
		res.Code = messages.ErrorCodeNotInitialized
		res.Message = "session not initialized"

	case errors.IsType(err, streaming.ErrTypeEmptyGrid):
		res.Code = messages.ErrorCodeInternal
		res.Message = "terrain grid is empty"

	default:
		logs.Warn(errors.New("terrain request failed").
			WithTag("session_id", m.sessionID()).
			Wrap(err))
	}

	respond.Send(messages.MsgTypeError, requestID, res)
	return nil
}

func (m *Module) updateStats(entered bool) {
	c := m.controller

	m.session.UpdateStats(func(s *models.Stats) {
		s.CurrentTile = c.Current()
		s.ActiveTiles = c.ActiveIDs()
		s.Pending = c.Pending()
		if entered {
			s.TilesEntered++
		}
	})
}

func (m *Module) rasterURL(id tiles.ID) string {
	if m.RasterBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(m.RasterBaseURL, "/") + "/" + id.Name()
}

func (m *Module) sessionID() string {
	if m.session == nil {
		return ""
	}
	return m.session.GlobalID
}
