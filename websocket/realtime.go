package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/models"
	"github.com/aukilabs/tilestream/modules"
	"github.com/aukilabs/tilestream/producer"
	"golang.org/x/net/websocket"
)

// HeaderClientID is the HTTP header that carries the client id.
const HeaderClientID = "X-Client-Id"

// RealtimeHandler represents a service that manages the streaming session of
// a client connection.
type RealtimeHandler struct {
	// The interval between each ping message sent to the connected client.
	ClientPingInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server sessions.
	Sessions *models.SessionStore

	// The streaming variant of created sessions.
	Variant string

	// The modules that serve the session.
	Modules []modules.Module

	conn           *websocket.Conn
	currentSession *models.Session

	clientID string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(HeaderClientID)
	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	respond.Send(messages.MsgTypePong, msg.RequestID, nil)
	return nil
}

func (h *RealtimeHandler) HandlePong(ctx context.Context, msg messages.Msg) error {
	return nil
}

func (h *RealtimeHandler) HandleInit(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	if h.currentSession != nil {
		return nil
	}

	session := models.NewSession(h.Sessions.NewID(), h.Variant)
	session.ClientID = h.clientID

	if err := h.Sessions.Add(ctx, session); err != nil {
		respond.Send(messages.MsgTypeError, msg.RequestID, messages.ErrorResponse{
			Code:    messages.ErrorCodeInternal,
			Message: "creating session failed",
		})
		return nil
	}

	h.currentSession = session

	for _, m := range h.Modules {
		m.Init(session)
	}
	return nil
}

func (h *RealtimeHandler) HandleWithoutSession(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	switch msg.Type {
	case messages.MsgTypePing, messages.MsgTypePong, messages.MsgTypeInit:
		return nil
	}

	respond.Send(messages.MsgTypeError, msg.RequestID, messages.ErrorResponse{
		Code:    messages.ErrorCodeNotInitialized,
		Message: "session not initialized",
	})
	return nil
}

func (h *RealtimeHandler) HandleWithModule(ctx context.Context, m modules.Module, respond messages.ResponseSender, msg messages.Msg) error {
	if h.CurrentSession() == nil {
		return nil
	}

	err := m.HandleMsg(ctx, respond, msg)
	if errors.IsType(err, messages.ErrTypeMsgSkip) {
		return nil
	}
	if err != nil {
		return errors.New("handling message with module failed").
			WithTag("module", m.Name()).
			Wrap(err)
	}
	return nil
}

func (h *RealtimeHandler) HandleResult(ctx context.Context, respond messages.ResponseSender, res producer.Result) error {
	m := h.resultHandler()
	if m == nil {
		return nil
	}

	if err := m.HandleResult(ctx, respond, res); err != nil {
		return errors.New("handling generation result with module failed").
			WithTag("module", m.Name()).
			WithTag("tile", res.ID.Name()).
			Wrap(err)
	}
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	h.leaveSession()
}

func (h *RealtimeHandler) SendPing(ctx context.Context, respond messages.ResponseSender) error {
	respond.Send(messages.MsgTypePing, 0, nil)
	return nil
}

func (h *RealtimeHandler) Results() <-chan producer.Result {
	if m := h.resultHandler(); m != nil {
		return m.Results()
	}
	return nil
}

func (h *RealtimeHandler) Receiver() messages.Receiver {
	return func() (messages.Msg, int, error) {
		return messages.Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() messages.Sender {
	return func(msg messages.Msg) (int, error) {
		return messages.Send(h.conn, msg)
	}
}

func (h *RealtimeHandler) Close() {
	h.leaveSession()
}

func (h *RealtimeHandler) PingInterval() time.Duration {
	return h.ClientPingInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetSessions() *models.SessionStore {
	return h.Sessions
}

func (h *RealtimeHandler) GetModules() []modules.Module {
	return h.Modules
}

func (h *RealtimeHandler) CurrentSession() *models.Session {
	return h.currentSession
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

// resultHandler returns the first module producing tiles in the background.
func (h *RealtimeHandler) resultHandler() modules.ResultHandler {
	if h.currentSession == nil {
		return nil
	}

	for _, m := range h.Modules {
		if rh, ok := m.(modules.ResultHandler); ok {
			return rh
		}
	}
	return nil
}

func (h *RealtimeHandler) leaveSession() {
	session := h.currentSession
	if session == nil {
		return
	}

	for _, m := range h.Modules {
		m.HandleDisconnect()
	}

	// The connection context may already be canceled at this point.
	h.Sessions.Remove(context.Background(), session)
	h.currentSession = nil
}
