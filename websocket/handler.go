package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/models"
	"github.com/aukilabs/tilestream/modules"
	"github.com/aukilabs/tilestream/producer"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a streaming connection handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handles a response to a ping sent by the server.
	HandlePong(ctx context.Context, msg messages.Msg) error

	// Handles a request to start a streaming session.
	HandleInit(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handles a message received before a session is started.
	HandleWithoutSession(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handle a message with a module.
	HandleWithModule(ctx context.Context, module modules.Module, respond messages.ResponseSender, msg messages.Msg) error

	// Handles the result of a background tile generation.
	HandleResult(ctx context.Context, respond messages.ResponseSender, res producer.Result) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Sends a ping message to the client.
	SendPing(ctx context.Context, respond messages.ResponseSender) error

	// Returns the channel background tile generations complete on. Nil when
	// nothing is pending.
	Results() <-chan producer.Result

	// Creates a message receiver used to receive incoming messages.
	Receiver() messages.Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() messages.Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The interval between each ping message sent to the connected client.
	PingInterval() time.Duration

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the session store.
	GetSessions() *models.SessionStore

	// Returns the modules.
	GetModules() []modules.Module

	// The current streaming session.
	CurrentSession() *models.Session

	// Get ClientID
	GetClientID() string
}

// Handle runs the connection loop of the given handler. Received messages
// and generation results are handled one at a time.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	c := connection{
		conn:        conn,
		handler:     h,
		outbox:      make(chan messages.Msg, sendChanSize),
		inbox:       make(chan messages.Msg, receiveChanSize),
		disconnects: make(chan error, 8),
	}
	c.run(ctx)
}

// connection drives a Handler for a single WebSocket connection. Only the
// run goroutine calls into the handler, apart from the sender and receiver
// funcs.
type connection struct {
	conn    *websocket.Conn
	handler Handler

	outbox      chan messages.Msg
	inbox       chan messages.Msg
	disconnects chan error

	// Closed when the connection loop exits. Messages queued afterwards are
	// dropped.
	done chan struct{}
}

func (c *connection) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.done = make(chan struct{})
	defer close(c.done)

	c.handler.HandleConnect(c.conn)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.writeLoop(ctx, c.handler.Sender())
	}()

	go func() {
		defer wg.Done()
		c.readLoop(ctx, c.handler.Receiver())
	}()

	idleTimeout := c.handler.IdleTimeout()
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	ping := time.NewTicker(c.handler.PingInterval())
	defer ping.Stop()

	respond := responseSender{conn: c}

	for ctx.Err() == nil {
		var err error

		select {
		case <-ctx.Done():
			err = ctx.Err()

		case <-idle.C:
			err = errors.New("idle connection").WithTag("duration", idleTimeout)

		case <-ping.C:
			if perr := c.handler.SendPing(ctx, respond); perr != nil {
				err = errors.New("sending ping failed").Wrap(perr)
			}

		case msg := <-c.inbox:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTimeout)

			if herr := c.dispatch(ctx, respond, msg); herr != nil {
				err = errors.New("handling message failed").
					WithTag("msg_type", msg.Type).
					Wrap(herr)
			}

		case res := <-c.handler.Results():
			if rerr := c.handler.HandleResult(ctx, respond, res); rerr != nil {
				err = errors.New("handling generation result failed").
					WithTag("tile", res.ID.Name()).
					Wrap(rerr)
			}

		case err = <-c.disconnects:
		}

		if err != nil {
			c.conn.Close()
			c.handler.HandleDisconnect(err)
			cancel()
		}
	}

	wg.Wait()
}

// dispatch routes a message to the connection level handlers, then to the
// modules once a session exists.
func (c *connection) dispatch(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var err error

	switch msg.Type {
	case messages.MsgTypePing:
		err = c.handler.HandlePing(ctx, respond, msg)

	case messages.MsgTypePong:
		err = c.handler.HandlePong(ctx, msg)

	case messages.MsgTypeInit:
		err = c.handler.HandleInit(ctx, respond, msg)
	}
	if err != nil {
		return err
	}

	if c.handler.CurrentSession() == nil {
		return c.handler.HandleWithoutSession(ctx, respond, msg)
	}

	for _, m := range c.handler.GetModules() {
		if err := c.handler.HandleWithModule(ctx, m, respond, msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *connection) enqueue(msg messages.Msg) {
	select {
	case c.outbox <- msg:
	case <-c.done:
	}
}

func (c *connection) writeLoop(ctx context.Context, send messages.Sender) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-c.outbox:
			if _, err := send(msg); err != nil {
				c.fail(ctx, errors.New("sending message failed").
					WithTag("msg_type", msg.Type).
					Wrap(err))
				return
			}
		}
	}
}

func (c *connection) readLoop(ctx context.Context, receive messages.Receiver) {
	for ctx.Err() == nil {
		msg, _, err := receive()
		if err != nil {
			c.fail(ctx, errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case c.inbox <- msg:
		case <-ctx.Done():
		}
	}
}

// fail reports an error from the sender or receiver goroutine. Errors raised
// after the loop stopped are discarded.
func (c *connection) fail(ctx context.Context, err error) {
	select {
	case c.disconnects <- err:
	case <-ctx.Done():
	}
}

type responseSender struct {
	conn *connection
}

func (r responseSender) Send(t messages.MsgType, requestID uint32, payload any) {
	msg, err := messages.NewMsg(t, requestID, payload)
	if err != nil {
		logs.WithTag("msg_type", t).
			WithClientID(r.conn.handler.GetClientID()).
			Debug(err)
		return
	}
	r.conn.enqueue(msg)
}

func (r responseSender) SendMsg(msg messages.Msg) {
	r.conn.enqueue(msg)
}
